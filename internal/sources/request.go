package sources

import (
	"context"
	"fmt"

	"github.com/modkit/installer/internal/progress"
	"github.com/modkit/installer/internal/xxh"
)

// Request is §3's "Download request": { source, destination_dir,
// filename?, validation, expected_size?, mirror_url? }.
type Request struct {
	Source         Source
	DestinationDir string
	Filename       string // empty means "derive from source"
	Validation     xxh.Spec
	ExpectedSize   int64 // 0 means unknown
	// MirrorURL is the §4.4 pipeline-level mirror: distinct from a
	// Http source's own Mirrors list, it's attempted once, as a fresh
	// Http request against the same destination, only after every
	// retry of the primary source has failed.
	MirrorURL string
}

// ResultKind discriminates Result.
type ResultKind int

const (
	KindDownloaded ResultKind = iota
	KindResumed
	KindAlreadyExists
	KindDownloadedPendingValidation
	KindSkipped
)

// Result is §3's "Download result" tagged variant.
type Result struct {
	Kind   ResultKind
	Size   int64
	Path   string
	// Validated is meaningful only for KindAlreadyExists.
	Validated bool
	// Reason is meaningful only for KindSkipped.
	Reason string
}

func (r Result) String() string {
	switch r.Kind {
	case KindDownloaded:
		return fmt.Sprintf("Downloaded{size=%d path=%s}", r.Size, r.Path)
	case KindResumed:
		return fmt.Sprintf("Resumed{size=%d path=%s}", r.Size, r.Path)
	case KindAlreadyExists:
		return fmt.Sprintf("AlreadyExists{size=%d path=%s validated=%t}", r.Size, r.Path, r.Validated)
	case KindDownloadedPendingValidation:
		return fmt.Sprintf("DownloadedPendingValidation{size=%d path=%s}", r.Size, r.Path)
	case KindSkipped:
		return fmt.Sprintf("Skipped{reason=%s}", r.Reason)
	default:
		return "Result{unknown}"
	}
}

// Handler fetches (or copies, or extracts) the bytes named by a Request's
// Source into Request.DestinationDir, returning a terminal Result.
type Handler interface {
	Fetch(ctx context.Context, req Request, reporter progress.Reporter) (Result, error)
}
