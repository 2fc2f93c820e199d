package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/modkit/installer/internal/buildinfo"
	"github.com/modkit/installer/internal/errs"
	"github.com/modkit/installer/internal/progress"
)

// defaultUserAgent identifies this installer build to mirrors and CDNs;
// manifests can override it via a per-source "User-Agent" header entry.
var defaultUserAgent = "modinstaller/" + buildinfo.Version()

// progressCadence is the minimum interval between DownloadProgress events
// (§4.2 step 7: "if >= 100ms since last progress event").
const progressCadence = 100 * time.Millisecond

// Downloader wraps an *http.Client with the range-resume download
// algorithm from §4.2.
type Downloader struct {
	Client *http.Client
	Opts   Options
}

// NewDownloader builds a Downloader using opts for both the transport and the
// size-derived timeout.
func NewDownloader(opts Options) *Downloader {
	return &Downloader{Client: New(opts), Opts: opts}
}

// Download implements the §4.2 contract exactly: on success dest
// atomically appears with the full content; on failure dest does not
// exist (a .part sibling may remain for a future resume).
func (d *Downloader) Download(ctx context.Context, url, dest string, expectedSize int64, headers map[string]string, reporter progress.Reporter) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, errs.NewFileSystemError(filepath.Dir(dest), errs.FSOpMkdir, err)
	}

	temp := dest + ".part"
	var start int64
	if info, err := os.Stat(temp); err == nil {
		start = info.Size()
	}

	timeout := d.Opts.TimeoutFor(expectedSize)
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if start > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", start))
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
			return 0, &errs.NetworkTimeoutError{URL: url, Duration: timeout}
		}
		return 0, &errs.HTTPRequestError{URL: url, StatusCode: 0, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return 0, &errs.HTTPRequestError{URL: url, StatusCode: resp.StatusCode}
	}
	// A server that ignores Range and replies 200 must be treated as a
	// fresh download, or the part file would get duplicated content.
	if resp.StatusCode == http.StatusOK && start > 0 {
		start = 0
	}

	total := expectedSize
	if total <= 0 {
		total = start + resp.ContentLength
	}
	progress.Emit(reporter, progress.Event{Kind: progress.KindDownloadStarted, DownloadStarted: &progress.DownloadStarted{URL: url, Total: total}})

	flag := os.O_WRONLY | os.O_CREATE
	if start > 0 {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	out, err := os.OpenFile(temp, flag, 0o644)
	if err != nil {
		return 0, errs.NewFileSystemError(temp, errs.FSOpCreate, err)
	}

	downloaded := start
	lastEmit := time.Now()
	buf := make([]byte, 64*1024)
	started := time.Now()

	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				return 0, errs.NewFileSystemError(temp, errs.FSOpWrite, werr)
			}
			downloaded += int64(n)
			if time.Since(lastEmit) >= progressCadence {
				elapsed := time.Since(started).Seconds()
				var speed float64
				if elapsed > 0 {
					speed = float64(downloaded-start) / elapsed
				}
				progress.Emit(reporter, progress.Event{
					Kind: progress.KindDownloadProgress,
					DownloadProgress: &progress.DownloadProgress{
						URL: url, Downloaded: downloaded, Total: total, Speed: speed,
					},
				})
				lastEmit = time.Now()
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			if ne, ok := rerr.(interface{ Timeout() bool }); ok && ne.Timeout() {
				return 0, &errs.NetworkTimeoutError{URL: url, Duration: timeout}
			}
			return 0, &errs.HTTPRequestError{URL: url, StatusCode: resp.StatusCode, Cause: rerr}
		}
	}

	if err := out.Sync(); err != nil {
		out.Close()
		return 0, errs.NewFileSystemError(temp, errs.FSOpSync, err)
	}
	if err := out.Close(); err != nil {
		return 0, errs.NewFileSystemError(temp, errs.FSOpWrite, err)
	}
	if err := os.Rename(temp, dest); err != nil {
		return 0, errs.NewFileSystemError(dest, errs.FSOpRename, err)
	}

	progress.Emit(reporter, progress.Event{Kind: progress.KindDownloadComplete, DownloadComplete: &progress.DownloadComplete{URL: url, FinalSize: downloaded}})
	return downloaded, nil
}
