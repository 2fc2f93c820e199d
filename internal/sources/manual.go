package sources

import (
	"context"
	"fmt"

	"github.com/modkit/installer/internal/errs"
	"github.com/modkit/installer/internal/progress"
)

// ManualHandler always errors: a Manual source requires a human to fetch
// the file by hand, which has no automated path (§3).
type ManualHandler struct{}

func (ManualHandler) Fetch(ctx context.Context, req Request, reporter progress.Reporter) (Result, error) {
	src, ok := req.Source.(Manual)
	if !ok {
		return Result{}, &errs.ConfigurationError{Message: "ManualHandler received a non-Manual source"}
	}
	msg := fmt.Sprintf("manual download required: %s", src.Instructions)
	if src.URL != "" {
		msg += fmt.Sprintf(" (%s)", src.URL)
	}
	return Result{}, &errs.ConfigurationError{
		Message:    msg,
		Field:      "source",
		SuggestStr: "download this file manually and place it in the downloads directory before retrying",
	}
}

// UnknownHandler always errors: an Unknown source means the manifest
// named a source variant this installer doesn't recognize.
type UnknownHandler struct{}

func (UnknownHandler) Fetch(ctx context.Context, req Request, reporter progress.Reporter) (Result, error) {
	return Result{}, &errs.UnsupportedURLError{
		URL:       "",
		Scheme:    "unknown",
		Supported: []string{"http", "cdn", "gamefile", "nexus", "archive"},
	}
}
