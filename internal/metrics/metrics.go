// Package metrics implements C5: seven atomic counters tracking pipeline
// activity, plus a point-in-time snapshot with derived fields.
package metrics

import "sync/atomic"

// Counters holds the seven relaxed-ordered atomic counters §4.5 names.
type Counters struct {
	totalDownloads      atomic.Uint64
	successfulDownloads atomic.Uint64
	failedDownloads     atomic.Uint64
	totalBytes          atomic.Uint64
	validationFailures  atomic.Uint64
	retriesAttempted    atomic.Uint64
	cacheHits           atomic.Uint64
}

// New returns a zeroed Counters.
func New() *Counters { return &Counters{} }

func (c *Counters) IncTotalDownloads()      { c.totalDownloads.Add(1) }
func (c *Counters) IncSuccessfulDownloads() { c.successfulDownloads.Add(1) }
func (c *Counters) IncFailedDownloads()     { c.failedDownloads.Add(1) }
func (c *Counters) AddBytes(n uint64)       { c.totalBytes.Add(n) }
func (c *Counters) IncValidationFailures()  { c.validationFailures.Add(1) }
func (c *Counters) IncRetriesAttempted()    { c.retriesAttempted.Add(1) }
func (c *Counters) IncCacheHits()           { c.cacheHits.Add(1) }

// Snapshot is a plain-struct point-in-time read of every counter plus
// the derived fields §4.5 names.
type Snapshot struct {
	TotalDownloads      uint64
	SuccessfulDownloads uint64
	FailedDownloads     uint64
	TotalBytes          uint64
	ValidationFailures  uint64
	RetriesAttempted    uint64
	CacheHits           uint64

	SuccessRate float64
	AverageSize float64
}

// Snapshot reads every counter and computes the derived fields.
func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{
		TotalDownloads:      c.totalDownloads.Load(),
		SuccessfulDownloads: c.successfulDownloads.Load(),
		FailedDownloads:     c.failedDownloads.Load(),
		TotalBytes:          c.totalBytes.Load(),
		ValidationFailures:  c.validationFailures.Load(),
		RetriesAttempted:    c.retriesAttempted.Load(),
		CacheHits:           c.cacheHits.Load(),
	}
	if s.TotalDownloads > 0 {
		s.SuccessRate = float64(s.SuccessfulDownloads) / float64(s.TotalDownloads)
	}
	if s.SuccessfulDownloads > 0 {
		s.AverageSize = float64(s.TotalBytes) / float64(s.SuccessfulDownloads)
	}
	return s
}
