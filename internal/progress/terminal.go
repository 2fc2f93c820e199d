package progress

import (
	"fmt"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"golang.org/x/term"
)

// IsTerminalFunc checks whether a file descriptor is a terminal. It is a
// var so tests can stub it, matching the teacher's progress.IsTerminalFunc.
var IsTerminalFunc = term.IsTerminal

// ShouldShowProgress reports whether a rendered progress bar should be
// shown, i.e. stdout is attached to a terminal.
func ShouldShowProgress() bool {
	return IsTerminalFunc(int(os.Stdout.Fd()))
}

// Terminal renders one progress bar per in-flight download using pterm's
// multi-printer, embedding BaseReporter so only the events that move a
// bar (plus warnings, errors and retries) are overridden; validation
// events are not rendered. In non-TTY environments it falls back
// to printing one line per started/completed item.
type Terminal struct {
	BaseReporter

	mu    sync.Mutex
	multi *pterm.MultiPrinter
	bars  map[string]*pterm.ProgressbarPrinter
	tty   bool
}

// NewTerminal creates a Terminal reporter. started/stopped are driven by
// the caller (Start/Stop) so a batch of downloads shares one multi-printer.
func NewTerminal() *Terminal {
	return &Terminal{bars: make(map[string]*pterm.ProgressbarPrinter), tty: ShouldShowProgress()}
}

// Start begins rendering. Call once before submitting a batch.
func (t *Terminal) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.tty {
		return
	}
	multi, _ := pterm.DefaultMultiPrinter.Start()
	t.multi = multi
}

// Stop finishes rendering and flushes the cursor.
func (t *Terminal) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.multi != nil {
		_, _ = t.multi.Stop()
		t.multi = nil
	}
}

func (t *Terminal) OnDownloadStarted(e DownloadStarted) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.tty || t.multi == nil {
		pterm.Info.Printf("Downloading %s (%s)...\n", e.URL, sizeOrUnknown(e.Total))
		return
	}
	w := t.multi.NewWriter()
	title := fmt.Sprintf("Downloading %s", e.URL)
	bar, _ := pterm.DefaultProgressbar.WithTotal(100).WithWriter(w).WithTitle(title).Start()
	t.bars[e.URL] = bar
}

func (t *Terminal) OnDownloadProgress(e DownloadProgress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bar, ok := t.bars[e.URL]
	if !ok || e.Total <= 0 {
		return
	}
	pct := int(float64(e.Downloaded) / float64(e.Total) * 100)
	if pct > 100 {
		pct = 100
	}
	bar.Current = pct
	bar.Title = fmt.Sprintf("Downloading %s (%s/s)", e.URL, humanize.Bytes(uint64(e.Speed)))
}

func (t *Terminal) OnDownloadComplete(e DownloadComplete) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if bar, ok := t.bars[e.URL]; ok {
		bar.Current = 100
		_, _ = bar.Stop()
		delete(t.bars, e.URL)
	} else {
		pterm.Success.Printf("Downloaded %s (%s)\n", e.URL, humanize.Bytes(uint64(e.FinalSize)))
	}
}

func (t *Terminal) OnWarning(e Warning) {
	pterm.Warning.Printf("%s\n", e.Message)
}

func (t *Terminal) OnError(e ErrorEvent) {
	pterm.Error.Printf("%s: %s\n", e.URL, e.Message)
}

func (t *Terminal) OnRetryAttempt(e RetryAttempt) {
	pterm.Warning.Printf("retrying %s (%d/%d)\n", e.URL, e.Attempt, e.Max)
}

func sizeOrUnknown(n int64) string {
	if n <= 0 {
		return "unknown size"
	}
	return humanize.Bytes(uint64(n))
}
