package sources

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/modkit/installer/internal/elog"
	"github.com/modkit/installer/internal/errs"
	"github.com/modkit/installer/internal/gamepath"
	"github.com/modkit/installer/internal/progress"
)

// GameFileHandler implements the §4.3 "GameFile source": resolve the
// game's install directory, stream-copy the named relative path, and
// (SPEC_FULL §3 addition) optionally gate the copy on a semver
// constraint against the installed game's version.
type GameFileHandler struct {
	Paths  *gamepath.Cache
	Logger elog.Logger
}

// NewGameFileHandler builds a handler around a path-resolution cache.
func NewGameFileHandler(paths *gamepath.Cache) *GameFileHandler {
	return &GameFileHandler{Paths: paths, Logger: elog.Default()}
}

func (h *GameFileHandler) Fetch(ctx context.Context, req Request, reporter progress.Reporter) (Result, error) {
	src, ok := req.Source.(GameFile)
	if !ok {
		return Result{}, &errs.ConfigurationError{Message: "GameFileHandler received a non-GameFile source"}
	}

	gameDir, err := h.Paths.Resolve(src.GameID)
	if err != nil {
		return Result{}, &errs.ConfigurationError{
			Message: err.Error(), Field: "game_id",
			SuggestStr: "set " + src.GameID + "_PATH to the game's install directory, or verify it is installed via Steam",
		}
	}

	if src.GameVersionConstraint != "" && src.GameVersion != "" {
		constraint, err := semver.NewConstraint(src.GameVersionConstraint)
		if err != nil {
			return Result{}, &errs.ConfigurationError{Message: "invalid game_version constraint: " + err.Error(), Field: "game_version"}
		}
		installed, err := semver.NewVersion(src.GameVersion)
		if err != nil {
			return Result{}, &errs.ConfigurationError{Message: "invalid installed game_version: " + err.Error(), Field: "game_version"}
		}
		if !constraint.Check(installed) {
			return Result{}, &errs.ConfigurationError{
				Message:    "installed game version " + src.GameVersion + " does not satisfy " + src.GameVersionConstraint,
				Field:      "game_version",
				SuggestStr: "update or downgrade the game to a version satisfying " + src.GameVersionConstraint,
			}
		}
	}

	sourcePath := filepath.Join(gameDir, src.RelativePath)
	info, err := os.Stat(sourcePath)
	if err != nil {
		return Result{}, &errs.ConfigurationError{
			Message: "game file not found: " + sourcePath, Field: "relative_path",
			SuggestStr: "verify the game installation is complete and not missing optional content",
		}
	}

	filename := req.Filename
	if filename == "" {
		filename = filepath.Base(src.RelativePath)
	}
	dest := filepath.Join(req.DestinationDir, filename)

	checkReq := req
	checkReq.ExpectedSize = info.Size()
	if existing, ok := checkExisting(dest, checkReq); ok {
		return existing, nil
	}

	if err := os.MkdirAll(req.DestinationDir, 0o755); err != nil {
		return Result{}, errs.NewFileSystemError(req.DestinationDir, errs.FSOpMkdir, err)
	}

	n, err := copyWithProgress(sourcePath, dest, info.Size(), src.RelativePath, reporter)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindDownloaded, Size: n, Path: dest}, nil
}

// copyWithProgress stream-copies src to a .part sibling of dest in 64
// KiB chunks at the same progress cadence and atomic-rename discipline
// as C2 (§4.3 GameFile step 3).
func copyWithProgress(srcPath, dest string, total int64, label string, reporter progress.Reporter) (int64, error) {
	in, err := os.Open(srcPath)
	if err != nil {
		return 0, errs.NewFileSystemError(srcPath, errs.FSOpOpen, err)
	}
	defer in.Close()

	temp := dest + ".part"
	out, err := os.OpenFile(temp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, errs.NewFileSystemError(temp, errs.FSOpCreate, err)
	}

	progress.Emit(reporter, progress.Event{Kind: progress.KindDownloadStarted, DownloadStarted: &progress.DownloadStarted{URL: label, Total: total}})

	buf := make([]byte, 64*1024)
	var copied int64
	lastEmit := time.Now()
	started := time.Now()

	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				return 0, errs.NewFileSystemError(temp, errs.FSOpWrite, werr)
			}
			copied += int64(n)
			if time.Since(lastEmit) >= progressCadence {
				elapsed := time.Since(started).Seconds()
				var speed float64
				if elapsed > 0 {
					speed = float64(copied) / elapsed
				}
				progress.Emit(reporter, progress.Event{Kind: progress.KindDownloadProgress, DownloadProgress: &progress.DownloadProgress{
					URL: label, Downloaded: copied, Total: total, Speed: speed,
				}})
				lastEmit = time.Now()
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			return 0, errs.NewFileSystemError(srcPath, errs.FSOpRead, rerr)
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

	progress.Emit(reporter, progress.Event{Kind: progress.KindDownloadComplete, DownloadComplete: &progress.DownloadComplete{URL: label, FinalSize: copied}})
	return copied, nil
}

const progressCadence = 100 * time.Millisecond
