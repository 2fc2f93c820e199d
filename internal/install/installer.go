// Package install implements C9: the phased installer that drains a
// filtered, grouped directive list into install_dir, fanning each phase
// out under a bounded semaphore (golang.org/x/sync/errgroup.SetLimit).
package install

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/modkit/installer/internal/directive"
	"github.com/modkit/installer/internal/diskspace"
	"github.com/modkit/installer/internal/elog"
	"github.com/modkit/installer/internal/errs"
)

// Option configures an Installer.
type Option func(*Installer)

// WithLogger overrides the installer's logger.
func WithLogger(l elog.Logger) Option {
	return func(i *Installer) { i.logger = l }
}

// WithConcurrency overrides the fan-out cap used within every phase.
// Defaults to 8.
func WithConcurrency(n int) Option {
	return func(i *Installer) {
		if n > 0 {
			i.maxConcurrency = n
		}
	}
}

// Installer drains a directive set into install_dir across the eight
// phases §4.8 names, each one fully drained before the next starts.
type Installer struct {
	ctx            directive.Context
	tempDir        string
	maxConcurrency int
	logger         elog.Logger

	hashCacheMu sync.Mutex
	hashCache   map[string]string
}

// New builds an Installer. ctx supplies install_dir/extracted_blob_dir/
// downloads_dir/game_dir/vfs/extractor/reporter; tempDir is the CreateBSA
// scratch root removed at Finalize.
func New(ctx directive.Context, tempDir string, opts ...Option) *Installer {
	i := &Installer{
		ctx:            ctx,
		tempDir:        tempDir,
		maxConcurrency: 8,
		logger:         elog.Default(),
		hashCache:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// HashCache returns a snapshot of the path -> xxh64-base64 cache,
// populated by every directive the installer executes successfully.
func (i *Installer) HashCache() map[string]string {
	i.hashCacheMu.Lock()
	defer i.hashCacheMu.Unlock()
	out := make(map[string]string, len(i.hashCache))
	for k, v := range i.hashCache {
		out[k] = v
	}
	return out
}

func (i *Installer) recordHash(path, hash string) {
	i.hashCacheMu.Lock()
	i.hashCache[path] = hash
	i.hashCacheMu.Unlock()
}

// Run executes every phase in order, stopping at the first phase
// boundary after ctx is cancelled (§5 cancellation model: checked at
// phase boundaries and between items of a parallel batch, never
// mid-rename).
func (i *Installer) Run(ctx context.Context, directives []directive.Directive) error {
	filtered := i.prepare(directives)

	if err := i.checkDiskSpace(filtered); err != nil {
		return err
	}

	phases := []func(context.Context, []directive.Directive) error{
		i.buildFolderStructure,
		i.installArchiveSourced,
		i.installInline,
		i.writeMetaFiles,
		i.createBSAs,
		i.installMergedPatches,
	}
	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return &errs.CancelledError{Reason: "cancelled at phase boundary"}
		}
		if err := phase(ctx, filtered); err != nil {
			return err
		}
	}

	i.finalize()
	return nil
}

// prepare is phase 1: create install_dir and temp_dir, then drop
// Ignored/NoMatch directives from the working set.
func (i *Installer) prepare(directives []directive.Directive) []directive.Directive {
	os.MkdirAll(i.ctx.InstallDir, 0o755)
	if i.tempDir != "" {
		os.MkdirAll(i.tempDir, 0o755)
	}

	out := make([]directive.Directive, 0, len(directives))
	for _, d := range directives {
		switch d.(type) {
		case *directive.IgnoredDirectly, *directive.NoMatch:
			continue
		}
		out = append(out, d)
	}
	return out
}

// checkDiskSpace sums every directive's expected output size and fails
// fast with errs.InsufficientSpaceError if install_dir's filesystem
// can't hold it, rather than discovering the shortage mid-batch.
func (i *Installer) checkDiskSpace(directives []directive.Directive) error {
	var required int64
	for _, d := range directives {
		required += d.Fields().Size
	}
	if required == 0 {
		return nil
	}
	return diskspace.Check(i.ctx.InstallDir, required)
}

// buildFolderStructure is phase 2: create every unique destination
// directory under install_dir, in parallel under the shared semaphore.
func (i *Installer) buildFolderStructure(ctx context.Context, directives []directive.Directive) error {
	seen := make(map[string]bool)
	var dirs []string
	for _, d := range directives {
		dir := filepath.Dir(filepath.Join(i.ctx.InstallDir, d.Fields().To))
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return runParallel(ctx, i.maxConcurrency, dirs, func(dir string) error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &errs.InstallError{To: dir, Phase: "build_folder_structure", Cause: errs.NewFileSystemError(dir, errs.FSOpMkdir, err)}
		}
		return nil
	})
}

// archiveGroupKey returns the archive hash a directive reads from, and
// whether the directive is archive-sourced at all.
func archiveGroupKey(d directive.Directive) (string, bool) {
	switch v := d.(type) {
	case *directive.FromArchive:
		if len(v.ArchiveHashPath) > 0 {
			return v.ArchiveHashPath[0], true
		}
	case *directive.PatchedFromArchive:
		if len(v.ArchiveHashPath) > 0 {
			return v.ArchiveHashPath[0], true
		}
	case *directive.TransformedTexture:
		if len(v.ArchiveHashPath) > 0 {
			return v.ArchiveHashPath[0], true
		}
	}
	return "", false
}

// installArchiveSourced is phase 3: group directives by source archive
// hash, run archive groups concurrently (so each container is opened
// once per group), but directives within a group run sequentially.
func (i *Installer) installArchiveSourced(ctx context.Context, directives []directive.Directive) error {
	groups := make(map[string][]directive.Directive)
	var order []string
	for _, d := range directives {
		key, ok := archiveGroupKey(d)
		if !ok {
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], d)
	}

	return runParallel(ctx, i.maxConcurrency, order, func(archiveHash string) error {
		for _, d := range groups[archiveHash] {
			if err := i.execute(d); err != nil {
				return err
			}
		}
		return nil
	})
}

// installInline is phase 4: InlineFile and RemappedInlineFile, parallel
// across all inline directives.
func (i *Installer) installInline(ctx context.Context, directives []directive.Directive) error {
	var inline []directive.Directive
	for _, d := range directives {
		switch d.(type) {
		case *directive.InlineFile, *directive.RemappedInlineFile:
			inline = append(inline, d)
		}
	}
	return runParallel(ctx, i.maxConcurrency, inline, i.execute)
}

// writeMetaFiles is phase 5: ArchiveMeta, parallel.
func (i *Installer) writeMetaFiles(ctx context.Context, directives []directive.Directive) error {
	var metas []directive.Directive
	for _, d := range directives {
		if _, ok := d.(*directive.ArchiveMeta); ok {
			metas = append(metas, d)
		}
	}
	return runParallel(ctx, i.maxConcurrency, metas, i.execute)
}

// createBSAs is phase 6: group CreateBSA directives by TempID so the
// file states feeding one archive are written sequentially, but distinct
// BSAs build in parallel.
func (i *Installer) createBSAs(ctx context.Context, directives []directive.Directive) error {
	groups := make(map[string][]directive.Directive)
	var order []string
	for _, d := range directives {
		bsa, ok := d.(*directive.CreateBSA)
		if !ok {
			continue
		}
		if _, seen := groups[bsa.TempID]; !seen {
			order = append(order, bsa.TempID)
		}
		groups[bsa.TempID] = append(groups[bsa.TempID], d)
	}

	return runParallel(ctx, i.maxConcurrency, order, func(tempID string) error {
		for _, d := range groups[tempID] {
			if err := i.execute(d); err != nil {
				return err
			}
		}
		return nil
	})
}

// installMergedPatches is phase 7: MergedPatch and PropertyFile,
// parallel.
func (i *Installer) installMergedPatches(ctx context.Context, directives []directive.Directive) error {
	var patches []directive.Directive
	for _, d := range directives {
		switch d.(type) {
		case *directive.MergedPatch, *directive.PropertyFile:
			patches = append(patches, d)
		}
	}
	return runParallel(ctx, i.maxConcurrency, patches, i.execute)
}

// finalize is phase 8: delete temp_dir best-effort. Failures are logged,
// not returned -- a leftover scratch directory is not install failure.
func (i *Installer) finalize() {
	if i.tempDir == "" {
		return
	}
	if err := os.RemoveAll(i.tempDir); err != nil {
		i.logger.Warn("failed to remove temp dir during finalize", "path", i.tempDir, "error", err)
	}
}

// execute runs one directive's contract and records its hash for the
// file-hash cache when it writes a real (non-skipped) file.
func (i *Installer) execute(d directive.Directive) error {
	hash, err := d.Execute(i.ctx)
	if err != nil {
		return err
	}
	i.recordHash(filepath.Join(i.ctx.InstallDir, d.Fields().To), hash)
	return nil
}

// runParallel fans work out across maxConcurrency, checking ctx between
// items (§5: "workers check [cancellation] ... between phases"; applied
// here between items of a parallel batch too, per §9's cancellation
// design note). Go methods can't carry their own type parameters, so
// this is a free function the Installer's phase methods delegate to.
func runParallel[T any](ctx context.Context, maxConcurrency int, items []T, work func(T) error) error {
	if len(items) == 0 {
		return nil
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrency)
	for _, item := range items {
		item := item
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			return work(item)
		})
	}
	return eg.Wait()
}
