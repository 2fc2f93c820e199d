// Package diskspace checks free space on the filesystem backing a
// directory before the installer commits to a large download/install
// batch, so a shortage surfaces as errs.InsufficientSpaceError up front
// rather than as a mid-batch write failure.
package diskspace

import "github.com/modkit/installer/internal/errs"

// Check reports errs.InsufficientSpaceError if path's filesystem has
// fewer than required bytes available. path must already exist.
func Check(path string, required int64) error {
	available, err := availableBytes(path)
	if err != nil {
		return err
	}
	if available < required {
		return &errs.InsufficientSpaceError{Required: required, Available: available, Path: path}
	}
	return nil
}
