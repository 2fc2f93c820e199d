// Package gamepath is the game-install discovery collaborator spec.md
// scopes out as "interfaces only": resolve(game_id) -> path. The GameFile
// source handler depends on this, caching results per-process per-game.
package gamepath

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Resolver finds the install directory for a game_id. The default
// implementation tries, in order: a set of Steam library heuristics,
// then a `<GAME>_PATH` environment variable. Registry lookups (Windows) are
// left to a platform-specific Resolver the caller can substitute --
// spec.md scopes the actual discovery mechanism out.
type Resolver interface {
	Resolve(gameID string) (string, error)
}

// EnvAndSteamResolver implements the two portable legs of §4.3's
// "Steam paths -> registry -> <GAME>_PATH env var" chain. Registry
// lookups are Windows-only and out of scope here; embed this resolver in
// a platform-specific one that tries the registry first and falls back
// to this for the rest of the chain.
type EnvAndSteamResolver struct {
	// SteamLibraryDirs lists candidate Steam library roots to search,
	// e.g. "~/.steam/steam/steamapps/common". Each is joined with the
	// game's Steam install-folder name.
	SteamLibraryDirs []string
	// SteamFolderNames maps a game_id to its Steam "installdir" name,
	// e.g. {"skyrimse": "Skyrim Special Edition"}.
	SteamFolderNames map[string]string
}

// DefaultSteamLibraryDirs returns the conventional Steam library
// locations on Linux/macOS, used when a Resolver doesn't override them.
func DefaultSteamLibraryDirs() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".steam", "steam", "steamapps", "common"),
		filepath.Join(home, ".local", "share", "Steam", "steamapps", "common"),
		filepath.Join(home, "Library", "Application Support", "Steam", "steamapps", "common"),
	}
}

func (r *EnvAndSteamResolver) Resolve(gameID string) (string, error) {
	folder, ok := r.SteamFolderNames[gameID]
	if ok {
		dirs := r.SteamLibraryDirs
		if dirs == nil {
			dirs = DefaultSteamLibraryDirs()
		}
		for _, lib := range dirs {
			candidate := filepath.Join(lib, folder)
			if info, err := os.Stat(candidate); err == nil && info.IsDir() {
				return candidate, nil
			}
		}
	}

	envVar := gameID + "_PATH"
	if v := os.Getenv(envVarName(envVar)); v != "" {
		if _, err := os.Stat(v); err == nil {
			return v, nil
		}
	}

	return "", fmt.Errorf("gamepath: could not resolve install directory for %q", gameID)
}

// envVarName upper-cases gameID-derived env var names the way shells
// expect (SKYRIMSE_PATH, not skyrimse_PATH).
func envVarName(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

// cacheEntry pairs a resolved path with the resolver that produced it,
// so a stale path can be re-resolved without losing the strategy.
type cacheEntry struct {
	path string
}

// Cache resolves and memoizes game paths per-process per-game (§4.3
// GameFile step 1: "Cache per-process per-game. If cached path no longer
// exists, evict and re-resolve.").
type Cache struct {
	resolver Resolver
	mu       sync.Mutex
	entries  map[string]cacheEntry
}

// NewCache wraps resolver with the caching/eviction policy §4.3 requires.
func NewCache(resolver Resolver) *Cache {
	return &Cache{resolver: resolver, entries: make(map[string]cacheEntry)}
}

// Resolve returns the cached path for gameID, re-resolving if the cached
// path has been evicted from disk or was never resolved.
func (c *Cache) Resolve(gameID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[gameID]; ok {
		if _, err := os.Stat(e.path); err == nil {
			return e.path, nil
		}
		delete(c.entries, gameID)
	}

	path, err := c.resolver.Resolve(gameID)
	if err != nil {
		return "", err
	}
	c.entries[gameID] = cacheEntry{path: path}
	return path, nil
}
