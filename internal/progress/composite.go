package progress

import "sync"

// Composite fans a single event out to a list of Reporters, in order,
// synchronously on the emitting goroutine -- matching the "all callbacks
// invoked synchronously on the emitting task's thread" rule in §4.6.
type Composite struct {
	mu        sync.RWMutex
	reporters []Reporter
}

// NewComposite builds a Composite over the given reporters.
func NewComposite(reporters ...Reporter) *Composite {
	c := &Composite{}
	c.reporters = append(c.reporters, reporters...)
	return c
}

// Add appends a reporter. Safe to call concurrently with dispatch.
func (c *Composite) Add(r Reporter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reporters = append(c.reporters, r)
}

func (c *Composite) snapshot() []Reporter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Reporter, len(c.reporters))
	copy(out, c.reporters)
	return out
}

func (c *Composite) OnDownloadStarted(e DownloadStarted) {
	for _, r := range c.snapshot() {
		r.OnDownloadStarted(e)
	}
}

func (c *Composite) OnDownloadProgress(e DownloadProgress) {
	for _, r := range c.snapshot() {
		r.OnDownloadProgress(e)
	}
}

func (c *Composite) OnDownloadComplete(e DownloadComplete) {
	for _, r := range c.snapshot() {
		r.OnDownloadComplete(e)
	}
}

func (c *Composite) OnValidationStarted(e ValidationStarted) {
	for _, r := range c.snapshot() {
		r.OnValidationStarted(e)
	}
}

func (c *Composite) OnValidationProgress(e ValidationProgress) {
	for _, r := range c.snapshot() {
		r.OnValidationProgress(e)
	}
}

func (c *Composite) OnValidationComplete(e ValidationComplete) {
	for _, r := range c.snapshot() {
		r.OnValidationComplete(e)
	}
}

func (c *Composite) OnRetryAttempt(e RetryAttempt) {
	for _, r := range c.snapshot() {
		r.OnRetryAttempt(e)
	}
}

func (c *Composite) OnStateChanged(e StateChanged) {
	for _, r := range c.snapshot() {
		r.OnStateChanged(e)
	}
}

func (c *Composite) OnWarning(e Warning) {
	for _, r := range c.snapshot() {
		r.OnWarning(e)
	}
}

func (c *Composite) OnError(e ErrorEvent) {
	for _, r := range c.snapshot() {
		r.OnError(e)
	}
}

// CallbackFunc adapts any Reporter into a single function over Event,
// per §4.6's "adapter converts any reporter into a single-function
// callback".
type CallbackFunc func(Event)

// Callback turns r into a plain func(Event) by wrapping each method.
func Callback(r Reporter) CallbackFunc {
	return func(e Event) {
		Emit(r, e)
	}
}

// callbackReporter adapts a CallbackFunc back into a Reporter, so a
// single func(Event) can be installed wherever a Reporter is expected.
type callbackReporter struct {
	fn CallbackFunc
}

// FromCallback wraps fn as a Reporter.
func FromCallback(fn CallbackFunc) Reporter {
	return &callbackReporter{fn: fn}
}

func (c *callbackReporter) OnDownloadStarted(e DownloadStarted) {
	c.fn(Event{Kind: KindDownloadStarted, DownloadStarted: &e})
}
func (c *callbackReporter) OnDownloadProgress(e DownloadProgress) {
	c.fn(Event{Kind: KindDownloadProgress, DownloadProgress: &e})
}
func (c *callbackReporter) OnDownloadComplete(e DownloadComplete) {
	c.fn(Event{Kind: KindDownloadComplete, DownloadComplete: &e})
}
func (c *callbackReporter) OnValidationStarted(e ValidationStarted) {
	c.fn(Event{Kind: KindValidationStarted, ValidationStarted: &e})
}
func (c *callbackReporter) OnValidationProgress(e ValidationProgress) {
	c.fn(Event{Kind: KindValidationProgress, ValidationProgress: &e})
}
func (c *callbackReporter) OnValidationComplete(e ValidationComplete) {
	c.fn(Event{Kind: KindValidationComplete, ValidationComplete: &e})
}
func (c *callbackReporter) OnRetryAttempt(e RetryAttempt) {
	c.fn(Event{Kind: KindRetryAttempt, RetryAttempt: &e})
}
func (c *callbackReporter) OnStateChanged(e StateChanged) {
	c.fn(Event{Kind: KindStateChanged, StateChanged: &e})
}
func (c *callbackReporter) OnWarning(e Warning) {
	c.fn(Event{Kind: KindWarning, Warning: &e})
}
func (c *callbackReporter) OnError(e ErrorEvent) {
	c.fn(Event{Kind: KindError, Error: &e})
}
