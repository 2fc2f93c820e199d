package diskspace

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modkit/installer/internal/errs"
)

func TestCheckPassesWhenRequirementIsSmall(t *testing.T) {
	err := Check(t.TempDir(), 1)
	require.NoError(t, err)
}

func TestCheckFailsWhenRequirementExceedsAvailable(t *testing.T) {
	err := Check(t.TempDir(), 1<<62)
	var spaceErr *errs.InsufficientSpaceError
	require.ErrorAs(t, err, &spaceErr)
	require.Positive(t, spaceErr.Shortage())
}
