package functional

import (
	"github.com/modkit/installer/internal/dlpipeline"
	"github.com/modkit/installer/internal/sources"
)

// newTestPipeline builds a single-worker pipeline: the six §8 scenarios
// exercise retry/validation semantics, not concurrency.
func newTestPipeline(dispatch *sources.Dispatcher, maxRetries int) *dlpipeline.Pipeline {
	return dlpipeline.New(dispatch, 1, 1, maxRetries)
}
