// Package userconfig manages the installer's persistent user
// configuration, stored at $MODINSTALLER_HOME/config.toml. Today that
// is limited to the [secrets] table (e.g. the Nexus API key) and a
// default mirror preference; everything about a single run's pipeline
// knobs lives in engcfg instead.
package userconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/modkit/installer/internal/config"
	"github.com/modkit/installer/internal/elog"
)

// Config represents user-configurable settings.
type Config struct {
	// PreferredMirror is a mirror host stored in config.toml. It is only
	// persisted: sources.Http's mirror fallback tries the archive's listed
	// mirrors alone and does not read this value.
	PreferredMirror string `toml:"preferred_mirror,omitempty"`

	// Secrets stores API keys and tokens in the [secrets] section.
	// Values are resolved through the secrets package, which checks
	// environment variables first and falls through to this map.
	Secrets map[string]string `toml:"secrets,omitempty"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{}
}

// Load reads the config file and returns the configuration. Returns
// default values if the file doesn't exist.
func Load() (*Config, error) {
	cfg, err := config.DefaultConfig()
	if err != nil {
		return DefaultConfig(), nil
	}
	return loadFromPath(cfg.ConfigFile)
}

func loadFromPath(path string) (*Config, error) {
	userCfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return userCfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if info, err := os.Stat(path); err == nil {
		mode := info.Mode().Perm()
		if mode&0077 != 0 {
			elog.Default().Warn("config file has permissive permissions",
				"path", path,
				"mode", fmt.Sprintf("%04o", mode),
				"expected", "0600",
			)
		}
	}

	if _, err := toml.Decode(string(data), userCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return userCfg, nil
}

// Save writes the configuration to the config file using an atomic
// write with 0600 permissions (the file may hold secrets).
func (c *Config) Save() error {
	cfg, err := config.DefaultConfig()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	return c.saveToPath(cfg.ConfigFile)
}

func (c *Config) saveToPath(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config.toml.tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to set temp file permissions: %w", err)
	}

	encoder := toml.NewEncoder(tmpFile)
	if err := encoder.Encode(c); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Get returns the value of a config key as a string. Keys with the
// "secrets." prefix are resolved from the Secrets map.
func (c *Config) Get(key string) (string, bool) {
	lowerKey := strings.ToLower(key)

	if secretName, ok := strings.CutPrefix(lowerKey, "secrets."); ok {
		if c.Secrets != nil {
			if val, found := c.Secrets[secretName]; found && val != "" {
				return val, true
			}
		}
		return "", false
	}

	switch lowerKey {
	case "preferred_mirror":
		return c.PreferredMirror, true
	default:
		return "", false
	}
}

// Set updates a config value from a string. Keys with the "secrets."
// prefix are stored in the Secrets map.
func (c *Config) Set(key, value string) error {
	lowerKey := strings.ToLower(key)

	if secretName, ok := strings.CutPrefix(lowerKey, "secrets."); ok {
		if c.Secrets == nil {
			c.Secrets = make(map[string]string)
		}
		c.Secrets[secretName] = value
		return nil
	}

	switch lowerKey {
	case "preferred_mirror":
		c.PreferredMirror = value
		return nil
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
}

// AvailableKeys returns a list of all configurable keys with descriptions.
func AvailableKeys() map[string]string {
	return map[string]string{
		"preferred_mirror": "Preferred mirror host (stored only; not read by the download sources)",
		"secrets.*":        "API keys/tokens, e.g. secrets.nexus_api_key",
	}
}
