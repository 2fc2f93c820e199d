package sources

import (
	"context"
	"net/url"
	"path"
	"path/filepath"

	"github.com/modkit/installer/internal/elog"
	"github.com/modkit/installer/internal/errs"
	"github.com/modkit/installer/internal/httpclient"
	"github.com/modkit/installer/internal/progress"
)

// HttpHandler implements the §4.3 "Http source": direct range-resume
// download through C2, falling back to mirrors sequentially after the
// primary URL exhausts its own retry budget.
type HttpHandler struct {
	Downloader *httpclient.Downloader
	MaxRetries int
	Logger     elog.Logger
}

// NewHttpHandler builds a handler around an already-configured Downloader.
func NewHttpHandler(d *httpclient.Downloader, maxRetries int) *HttpHandler {
	return &HttpHandler{Downloader: d, MaxRetries: maxRetries, Logger: elog.Default()}
}

func (h *HttpHandler) Fetch(ctx context.Context, req Request, reporter progress.Reporter) (Result, error) {
	src, ok := req.Source.(Http)
	if !ok {
		return Result{}, &errs.ConfigurationError{Message: "HttpHandler received a non-Http source"}
	}

	dest := DestinationPath(req, src.URL)

	if existing, ok := checkExisting(dest, req); ok {
		return existing, nil
	}

	err := httpclient.Retry(ctx, httpclient.RetryConfig{MaxRetries: h.MaxRetries, URL: src.URL}, reporter, func(ctx context.Context) error {
		_, derr := h.Downloader.Download(ctx, src.URL, dest, req.ExpectedSize, src.Headers, reporter)
		return derr
	})
	if err == nil {
		return Result{Kind: KindDownloaded, Size: req.ExpectedSize, Path: dest}, nil
	}

	lastErr := err
	for _, mirror := range src.Mirrors {
		progress.Emit(reporter, progress.Event{Kind: progress.KindWarning, Warning: &progress.Warning{
			Message: "primary URL exhausted retries, trying mirror", URL: mirror,
		}})
		merr := httpclient.Retry(ctx, httpclient.RetryConfig{MaxRetries: h.MaxRetries, URL: mirror}, reporter, func(ctx context.Context) error {
			_, derr := h.Downloader.Download(ctx, mirror, dest, req.ExpectedSize, src.Headers, reporter)
			return derr
		})
		if merr == nil {
			return Result{Kind: KindDownloaded, Size: req.ExpectedSize, Path: dest}, nil
		}
		lastErr = merr
	}

	return Result{}, lastErr
}

// DestinationPath derives the final file path from the request, defaulting
// the filename to the last URL component when req.Filename is empty
// (§3: "Filename defaults by source (last URL component; ...)").
func DestinationPath(req Request, rawURL string) string {
	name := req.Filename
	if name == "" {
		if u, err := url.Parse(rawURL); err == nil {
			name = path.Base(u.Path)
		}
		if name == "" || name == "." || name == "/" {
			name = "download"
		}
	}
	return filepath.Join(req.DestinationDir, name)
}
