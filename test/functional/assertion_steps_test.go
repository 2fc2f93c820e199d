package functional

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cucumber/godog"
)

func registerAssertionSteps(ctx *godog.ScenarioContext) {
	ctx.Step(`^the download succeeds with a file of (\d+) bytes$`, theDownloadSucceedsWithSize)
	ctx.Step(`^the download fails with a validation error$`, theDownloadFailsWithValidationError)
	ctx.Step(`^no retries were recorded$`, noRetriesWereRecorded)
	ctx.Step(`^a mirror warning was recorded$`, aMirrorWarningWasRecorded)
	ctx.Step(`^(\d+) validation failures? (?:was|were) recorded$`, validationFailuresWereRecorded)
	ctx.Step(`^the installed file "([^"]*)" contains "([^"]*)"$`, theInstalledFileContains)
	ctx.Step(`^the hash cache contains an entry for "([^"]*)"$`, theHashCacheContainsAnEntryFor)
}

func theDownloadSucceedsWithSize(ctx context.Context, size int) error {
	w := getWorld(ctx)
	if w.err != nil {
		return fmt.Errorf("expected success, got error: %w", w.err)
	}
	if len(w.outcomes) == 0 {
		return fmt.Errorf("no outcome recorded")
	}
	got := w.outcomes[len(w.outcomes)-1]
	if got.size != int64(size) {
		return fmt.Errorf("expected size %d, got %d", size, got.size)
	}
	info, err := os.Stat(w.lastPath)
	if err != nil {
		return fmt.Errorf("stat downloaded file: %w", err)
	}
	if info.Size() != int64(size) {
		return fmt.Errorf("expected file of %d bytes, got %d", size, info.Size())
	}
	return nil
}

func theDownloadFailsWithValidationError(ctx context.Context) error {
	w := getWorld(ctx)
	if w.err == nil {
		return fmt.Errorf("expected a validation error, got success")
	}
	return nil
}

func noRetriesWereRecorded(ctx context.Context) error {
	w := getWorld(ctx)
	if n := w.reporter.retryCount(); n != 0 {
		return fmt.Errorf("expected no retries, got %d", n)
	}
	return nil
}

func aMirrorWarningWasRecorded(ctx context.Context) error {
	w := getWorld(ctx)
	if !w.reporter.sawMirrorWarning() {
		return fmt.Errorf("expected a mirror-fallback warning, saw none")
	}
	return nil
}

func validationFailuresWereRecorded(ctx context.Context, n int) error {
	w := getWorld(ctx)
	if got := uint64(n); got != w.metricsSnapshot.ValidationFailures {
		return fmt.Errorf("expected %d validation failures, got %d", n, w.metricsSnapshot.ValidationFailures)
	}
	return nil
}

func theInstalledFileContains(ctx context.Context, relPath, want string) error {
	w := getWorld(ctx)
	if w.err != nil {
		return fmt.Errorf("install failed: %w", w.err)
	}
	got, err := os.ReadFile(filepath.Join(w.installedDir, relPath))
	if err != nil {
		return fmt.Errorf("reading installed file: %w", err)
	}
	if string(got) != unescape(want) {
		return fmt.Errorf("installed file content = %q, want %q", got, unescape(want))
	}
	return nil
}

func theHashCacheContainsAnEntryFor(ctx context.Context, relPath string) error {
	w := getWorld(ctx)
	if _, ok := w.hashCache[relPath]; !ok {
		return fmt.Errorf("expected hash cache entry for %q", relPath)
	}
	return nil
}
