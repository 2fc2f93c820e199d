package xxh

import (
	"context"
	"io"
	"os"

	"github.com/modkit/installer/internal/errs"
	"github.com/modkit/installer/internal/progress"
)

// inMemoryThreshold is the §4.1 step-2 cutoff: files smaller than this
// are hashed in one read; larger files stream through the buffer pool.
const inMemoryThreshold = 50 * 1024 * 1024

// Spec describes what a file is expected to look like. A Spec with
// neither field set is "empty" and Validate passes it vacuously.
type Spec struct {
	ExpectedXXH64 string // base-64, empty means "don't check"
	ExpectedSize  *int64 // nil means "don't check"
}

// IsEmpty reports whether spec carries no checks at all.
func (s Spec) IsEmpty() bool {
	return s.ExpectedXXH64 == "" && s.ExpectedSize == nil
}

// Validate checks the file at path against spec, following §4.1's
// algorithm exactly: size first (cheap, screens truncation), then hash
// only if size passed. A Spec with no expectations passes vacuously.
// Size/hash failures are returned as *errs.SizeMismatchError /
// *errs.ValidationFailedError, never as (false, nil).
func Validate(path string, spec Spec, pool *BufferPool, reporter progress.Reporter) (bool, error) {
	if pool == nil {
		pool = globalBufferPool
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, errs.NewFileSystemError(path, errs.FSOpStat, err)
	}

	if spec.ExpectedSize != nil && info.Size() != *spec.ExpectedSize {
		return false, &errs.SizeMismatchError{
			File:     path,
			Expected: *spec.ExpectedSize,
			Actual:   info.Size(),
		}
	}

	if spec.ExpectedXXH64 == "" {
		return true, nil
	}

	progress.Emit(reporter, progress.Event{Kind: progress.KindValidationStarted, ValidationStarted: &progress.ValidationStarted{Path: path}})

	digest, err := hashFile(path, info.Size(), pool, reporter)
	if err != nil {
		return false, err
	}

	valid := digest == spec.ExpectedXXH64
	progress.Emit(reporter, progress.Event{Kind: progress.KindValidationComplete, ValidationComplete: &progress.ValidationComplete{Path: path, Valid: valid}})

	if !valid {
		return false, &errs.ValidationFailedError{
			File:     path,
			Kind:     errs.ValidationKindXXH64,
			Expected: spec.ExpectedXXH64,
			Actual:   digest,
		}
	}
	return true, nil
}

// hashFile computes the base-64 xxHash64 of the file, choosing an
// in-memory read or a pooled-buffer stream by size.
func hashFile(path string, size int64, pool *BufferPool, reporter progress.Reporter) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errs.NewFileSystemError(path, errs.FSOpOpen, err)
	}
	defer f.Close()

	if size < inMemoryThreshold {
		data, err := io.ReadAll(f)
		if err != nil {
			return "", errs.NewFileSystemError(path, errs.FSOpRead, err)
		}
		return EncodeBytes(data), nil
	}

	digest := NewDigest()
	var read int64
	for {
		buf := pool.Acquire()
		n, rerr := f.Read(buf[:MaxBufferSize])
		if n > 0 {
			digest.Write(buf[:n])
			read += int64(n)
			if size > 0 {
				progress.Emit(reporter, progress.Event{
					Kind:               progress.KindValidationProgress,
					ValidationProgress: &progress.ValidationProgress{Path: path, Fraction: float64(read) / float64(size)},
				})
			}
		}
		_ = pool.Release(buf)
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", errs.NewFileSystemError(path, errs.FSOpRead, rerr)
		}
	}
	return Encode(digest.Sum64()), nil
}

// ValidationHandle references an in-progress (or completed) validation
// that the pipeline awaits for its verdict (§4.1, glossary "validation
// handle").
type ValidationHandle struct {
	Path    string
	URL     string
	done    chan struct{}
	valid   bool
	err     error
}

// Wait blocks until the validation completes and returns its verdict.
func (h *ValidationHandle) Wait(ctx context.Context) (bool, error) {
	select {
	case <-h.done:
		return h.valid, h.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Pool bounds concurrent validations to a fixed capacity, independent of
// the download pool, so hashing cannot starve downloads or vice versa
// (§4.1 "validation pool", §5).
type Pool struct {
	sem  chan struct{}
	buf  *BufferPool
}

// NewPool creates a validation pool with the given concurrency cap.
func NewPool(maxConcurrent int, buf *BufferPool) *Pool {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if buf == nil {
		buf = globalBufferPool
	}
	return &Pool{sem: make(chan struct{}, maxConcurrent), buf: buf}
}

// ValidateAsync spawns a validation that acquires a pool permit before
// running, and returns a handle the caller can Wait on.
func (p *Pool) ValidateAsync(ctx context.Context, path, url string, spec Spec, reporter progress.Reporter) *ValidationHandle {
	h := &ValidationHandle{Path: path, URL: url, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
		case <-ctx.Done():
			h.err = ctx.Err()
			return
		}
		h.valid, h.err = Validate(path, spec, p.buf, reporter)
	}()
	return h
}
