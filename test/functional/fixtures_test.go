package functional

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/modkit/installer/internal/progress"
)

// httptestServer wraps httptest.Server with a per-path call counter, so
// scenarios can script "fail once, then succeed" responses without a
// bespoke handler per case.
type httptestServer struct {
	*httptest.Server
	mu    sync.Mutex
	calls map[string]int
}

// newScriptedServer serves the response at index min(call count, len-1)
// for the given path, so the last entry repeats once exhausted.
func newScriptedServer(path string, responses ...scriptedResponse) *httptestServer {
	s := &httptestServer{calls: make(map[string]int)}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		idx := s.calls[path]
		s.calls[path]++
		s.mu.Unlock()

		if idx >= len(responses) {
			idx = len(responses) - 1
		}
		resp := responses[idx]
		if resp.status != 0 {
			w.WriteHeader(resp.status)
		}
		w.Write(resp.body)
	})
	s.Server = httptest.NewServer(mux)
	return s
}

type scriptedResponse struct {
	status int
	body   []byte
}

// recordingReporter captures the events the six §8 scenarios assert on:
// retry attempts and mirror-fallback warnings.
type recordingReporter struct {
	progress.BaseReporter
	mu       sync.Mutex
	retries  int
	warnings []progress.Warning
}

func newRecordingReporter() *recordingReporter { return &recordingReporter{} }

func (r *recordingReporter) OnRetryAttempt(e progress.RetryAttempt) {
	r.mu.Lock()
	r.retries++
	r.mu.Unlock()
}

func (r *recordingReporter) OnWarning(e progress.Warning) {
	r.mu.Lock()
	r.warnings = append(r.warnings, e)
	r.mu.Unlock()
}

func (r *recordingReporter) retryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retries
}

func (r *recordingReporter) sawMirrorWarning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.warnings {
		if bytes.Contains([]byte(w.Message), []byte("mirror")) {
			return true
		}
	}
	return false
}
