package sources

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modkit/installer/internal/gamepath"
)

type fixedResolver struct{ path string }

func (r fixedResolver) Resolve(gameID string) (string, error) { return r.path, nil }

func TestGameFileHandlerCopiesExistingFile(t *testing.T) {
	gameDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(gameDir, "Data"), 0o755))
	content := []byte("plugin bytes")
	require.NoError(t, os.WriteFile(filepath.Join(gameDir, "Data", "Update.esm"), content, 0o644))

	cache := gamepath.NewCache(fixedResolver{path: gameDir})
	h := NewGameFileHandler(cache)

	destDir := t.TempDir()
	res, err := h.Fetch(context.Background(), Request{
		Source:         GameFile{GameID: "skyrimse", RelativePath: "Data/Update.esm"},
		DestinationDir: destDir,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, KindDownloaded, res.Kind)

	got, err := os.ReadFile(filepath.Join(destDir, "Update.esm"))
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestGameFileHandlerErrorsOnMissingFile(t *testing.T) {
	gameDir := t.TempDir()
	cache := gamepath.NewCache(fixedResolver{path: gameDir})
	h := NewGameFileHandler(cache)

	_, err := h.Fetch(context.Background(), Request{
		Source:         GameFile{GameID: "skyrimse", RelativePath: "Data/Missing.esm"},
		DestinationDir: t.TempDir(),
	}, nil)
	require.Error(t, err)
}

func TestGameFileHandlerRejectsVersionConstraintViolation(t *testing.T) {
	gameDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(gameDir, "SkyrimSE.exe"), []byte("x"), 0o644))

	cache := gamepath.NewCache(fixedResolver{path: gameDir})
	h := NewGameFileHandler(cache)

	_, err := h.Fetch(context.Background(), Request{
		Source: GameFile{
			GameID: "skyrimse", RelativePath: "SkyrimSE.exe",
			GameVersion: "1.5.3", GameVersionConstraint: ">=1.6.0",
		},
		DestinationDir: t.TempDir(),
	}, nil)
	require.Error(t, err)
}
