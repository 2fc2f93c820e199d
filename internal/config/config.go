// Package config resolves the on-disk layout for the installer's
// persistent state: the downloads cache, the extracted-archive blob
// cache, and the user config file that stores secrets like the Nexus
// API key. This is distinct from engcfg, which tunes a single run's
// pipeline knobs (concurrency, retries, timeouts) -- config describes
// where things live on disk across runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// EnvHome overrides the default installer home directory.
	EnvHome = "MODINSTALLER_HOME"
)

// DefaultHomeOverride can be set by the binary's main package to change
// the default home directory (e.g. for dev builds). EnvHome still takes
// precedence.
var DefaultHomeOverride string

// Config holds the installer's on-disk directory layout.
type Config struct {
	HomeDir          string // $MODINSTALLER_HOME
	DownloadsDir     string // $MODINSTALLER_HOME/downloads
	ExtractedDir     string // $MODINSTALLER_HOME/cache/extracted
	VFSCacheDir      string // $MODINSTALLER_HOME/cache/vfs
	ConfigFile       string // $MODINSTALLER_HOME/config.toml
}

// DefaultConfig returns the default configuration.
func DefaultConfig() (*Config, error) {
	home := os.Getenv(EnvHome)
	if home == "" {
		if DefaultHomeOverride != "" {
			home = DefaultHomeOverride
		} else {
			dir, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get user home directory: %w", err)
			}
			home = filepath.Join(dir, ".modinstaller")
		}
	}

	return &Config{
		HomeDir:      home,
		DownloadsDir: filepath.Join(home, "downloads"),
		ExtractedDir: filepath.Join(home, "cache", "extracted"),
		VFSCacheDir:  filepath.Join(home, "cache", "vfs"),
		ConfigFile:   filepath.Join(home, "config.toml"),
	}, nil
}

// EnsureDirectories creates every directory the layout names.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.HomeDir, c.DownloadsDir, c.ExtractedDir, c.VFSCacheDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
