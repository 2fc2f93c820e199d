package sources

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/modkit/installer/internal/errs"
	"github.com/modkit/installer/internal/extract"
	"github.com/modkit/installer/internal/progress"
)

// ArchiveHandler implements the extraction-only Archive source: the
// bytes already live inside a downloaded archive and just need pulling
// out, not downloading (§3: "Archive { source_archive_hash, inner_path }
// -- extraction-only, not a download").
type ArchiveHandler struct {
	Extractor extract.Extractor
	// Locate maps an archive hash to its on-disk path (the VFS's
	// archive_locations table in C7).
	Locate func(archiveHash string) (string, bool)
}

func NewArchiveHandler(extractor extract.Extractor, locate func(string) (string, bool)) *ArchiveHandler {
	return &ArchiveHandler{Extractor: extractor, Locate: locate}
}

func (h *ArchiveHandler) Fetch(ctx context.Context, req Request, reporter progress.Reporter) (Result, error) {
	src, ok := req.Source.(Archive)
	if !ok {
		return Result{}, &errs.ConfigurationError{Message: "ArchiveHandler received a non-Archive source"}
	}

	filename := req.Filename
	if filename == "" {
		filename = filepath.Base(src.InnerPath)
	}
	dest := filepath.Join(req.DestinationDir, filename)

	if existing, ok := checkExisting(dest, req); ok {
		return existing, nil
	}

	archivePath, found := h.Locate(src.SourceArchiveHash)
	if !found {
		return Result{}, &errs.ConfigurationError{
			Message: "archive not found for hash " + src.SourceArchiveHash,
			Field:   "source_archive_hash",
		}
	}

	rc, err := h.Extractor.Extract(archivePath, src.InnerPath)
	if err != nil {
		return Result{}, err
	}
	defer rc.Close()

	if err := os.MkdirAll(req.DestinationDir, 0o755); err != nil {
		return Result{}, errs.NewFileSystemError(req.DestinationDir, errs.FSOpMkdir, err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return Result{}, errs.NewFileSystemError(dest, errs.FSOpCreate, err)
	}
	defer out.Close()

	n, err := io.Copy(out, rc)
	if err != nil {
		os.Remove(dest)
		return Result{}, errs.NewFileSystemError(dest, errs.FSOpWrite, err)
	}

	return Result{Kind: KindDownloaded, Size: n, Path: dest}, nil
}
