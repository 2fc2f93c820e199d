package sources

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/modkit/installer/internal/progress"
)

// defaultDailyLimit/defaultHourlyLimit are the §4.3 rate-limiter fallback
// values used when a response carries no x-rl-* headers at all (e.g. the
// very first request of a process).
const (
	defaultDailyLimit  = 2400
	defaultHourlyLimit = 100
)

// RateLimiter tracks the Nexus API's daily/hourly budget from response
// headers and blocks callers until headroom exists. A
// golang.org/x/time/rate.Limiter is layered underneath as a smoothing
// token bucket so a burst of permitted requests doesn't all fire in the
// same instant once the header-driven counters say "not blocked".
type RateLimiter struct {
	mu sync.Mutex

	dailyLimit, dailyRemaining   int64
	hourlyLimit, hourlyRemaining int64
	dailyReset, hourlyReset      time.Time

	bucket *rate.Limiter
	now    func() time.Time
}

// NewRateLimiter builds a limiter with the §4.3 fallback defaults in
// effect until the first response's headers are observed.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		dailyLimit:      defaultDailyLimit,
		dailyRemaining:  defaultDailyLimit,
		hourlyLimit:     defaultHourlyLimit,
		hourlyRemaining: defaultHourlyLimit,
		bucket:          rate.NewLimiter(rate.Limit(defaultHourlyLimit)/3600, 5),
		now:             time.Now,
	}
}

// Observe updates the counters from a response's x-rl-* headers. Fields
// absent from the response leave the previous value in place.
func (l *RateLimiter) Observe(h http.Header) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := parseInt64(h.Get("x-rl-daily-limit")); ok {
		l.dailyLimit = v
	}
	if v, ok := parseInt64(h.Get("x-rl-daily-remaining")); ok {
		l.dailyRemaining = v
	}
	if v, ok := parseInt64(h.Get("x-rl-hourly-limit")); ok {
		l.hourlyLimit = v
	}
	if v, ok := parseInt64(h.Get("x-rl-hourly-remaining")); ok {
		l.hourlyRemaining = v
	}
	if v, ok := parseInt64(h.Get("x-rl-daily-reset")); ok {
		l.dailyReset = time.Unix(v, 0)
	}
	if v, ok := parseInt64(h.Get("x-rl-hourly-reset")); ok {
		l.hourlyReset = time.Unix(v, 0)
	}
}

func parseInt64(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// IsBlocked reports whether either counter is exhausted.
func (l *RateLimiter) IsBlocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hourlyRemaining == 0 || l.dailyRemaining == 0
}

// TimeUntilRenewal returns min(hourly_reset, daily_reset) - now, counting
// only resets that are still in the future. Zero if neither is in the
// future (the caller should not block).
func (l *RateLimiter) TimeUntilRenewal() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timeUntilRenewalLocked()
}

func (l *RateLimiter) timeUntilRenewalLocked() time.Duration {
	now := l.now()
	var candidates []time.Duration
	if l.hourlyReset.After(now) {
		candidates = append(candidates, l.hourlyReset.Sub(now))
	}
	if l.dailyReset.After(now) {
		candidates = append(candidates, l.dailyReset.Sub(now))
	}
	if len(candidates) == 0 {
		return 0
	}
	min := candidates[0]
	for _, c := range candidates[1:] {
		if c < min {
			min = c
		}
	}
	return min
}

// Headroom returns the fraction [0,1] of remaining budget, taking the
// more constrained of the two counters. SPEC_FULL §3 addition, backing
// the "about to block" warning.
func (l *RateLimiter) Headroom() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := headroomRatio(l.hourlyRemaining, l.hourlyLimit)
	d := headroomRatio(l.dailyRemaining, l.dailyLimit)
	if h < d {
		return h
	}
	return d
}

func headroomRatio(remaining, limit int64) float64 {
	if limit <= 0 {
		return 1
	}
	r := float64(remaining) / float64(limit)
	if r < 0 {
		return 0
	}
	return r
}

// WaitForHeadroom blocks (if IsBlocked) until the limiter believes
// headroom is available, then waits on the smoothing token bucket, and
// emits a Warning if headroom drops below 10% before the wait (SPEC_FULL
// §3's "about to block" notice).
func (l *RateLimiter) WaitForHeadroom(reporter progress.Reporter) error {
	if l.Headroom() < 0.10 {
		progress.Emit(reporter, progress.Event{Kind: progress.KindWarning, Warning: &progress.Warning{
			Message: "Nexus API rate-limit headroom below 10%",
		}})
	}

	if l.IsBlocked() {
		wait := l.TimeUntilRenewal()
		if wait > 0 {
			time.Sleep(wait)
		}
	}

	return l.bucket.Wait(context.Background())
}
