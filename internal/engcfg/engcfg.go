// Package engcfg configures pipeline/installer tunables, following the
// teacher's internal/config shape: typed getters backed by environment
// variables, validated ranges, and a warn-and-fall-back-to-default
// policy. An optional engine.toml file (BurntSushi/toml) supplies a base
// layer that the environment variables still override.
package engcfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	EnvMaxConcurrentDownloads      = "INSTALLER_MAX_CONCURRENT_DOWNLOADS"
	EnvMaxConcurrentValidations    = "INSTALLER_MAX_CONCURRENT_VALIDATIONS"
	EnvMaxRetries                  = "INSTALLER_MAX_RETRIES"
	EnvValidationMemoryThreshold   = "INSTALLER_VALIDATION_MEMORY_THRESHOLD"
	EnvIdleTimeout                 = "INSTALLER_IDLE_TIMEOUT"
	EnvCompletionPollInterval      = "INSTALLER_COMPLETION_POLL_INTERVAL"

	DefaultMaxConcurrentDownloads    = 6
	DefaultMaxConcurrentValidations  = 4
	DefaultMaxRetries                = 3
	DefaultValidationMemoryThreshold = 50 * 1024 * 1024
	DefaultIdleTimeout               = 30 * time.Second
	DefaultCompletionPollInterval    = 100 * time.Millisecond
)

// Config holds every pipeline/installer tunable named in SPEC_FULL §1.
type Config struct {
	MaxConcurrentDownloads         int           `toml:"max_concurrent_downloads"`
	MaxConcurrentValidations       int           `toml:"max_concurrent_validations"`
	MaxRetries                     int           `toml:"max_retries"`
	ValidationMemoryThresholdBytes int64         `toml:"validation_memory_threshold_bytes"`
	IdleTimeout                    time.Duration `toml:"-"`
	CompletionPollInterval         time.Duration `toml:"-"`
}

// Default returns the hardcoded defaults, used when neither engine.toml
// nor any environment variable is present.
func Default() Config {
	return Config{
		MaxConcurrentDownloads:         DefaultMaxConcurrentDownloads,
		MaxConcurrentValidations:       DefaultMaxConcurrentValidations,
		MaxRetries:                     DefaultMaxRetries,
		ValidationMemoryThresholdBytes: DefaultValidationMemoryThreshold,
		IdleTimeout:                    DefaultIdleTimeout,
		CompletionPollInterval:         DefaultCompletionPollInterval,
	}
}

// Load builds a Config by layering engine.toml (if tomlPath exists) over
// the hardcoded defaults, then applying any set environment variables on
// top. tomlPath may be empty, in which case only defaults+env apply.
func Load(tomlPath string) (Config, error) {
	cfg := Default()

	if tomlPath != "" {
		if _, err := os.Stat(tomlPath); err == nil {
			var fileCfg Config
			if _, err := toml.DecodeFile(tomlPath, &fileCfg); err != nil {
				return cfg, fmt.Errorf("engcfg: parsing %s: %w", tomlPath, err)
			}
			if fileCfg.MaxConcurrentDownloads > 0 {
				cfg.MaxConcurrentDownloads = fileCfg.MaxConcurrentDownloads
			}
			if fileCfg.MaxConcurrentValidations > 0 {
				cfg.MaxConcurrentValidations = fileCfg.MaxConcurrentValidations
			}
			if fileCfg.MaxRetries > 0 {
				cfg.MaxRetries = fileCfg.MaxRetries
			}
			if fileCfg.ValidationMemoryThresholdBytes > 0 {
				cfg.ValidationMemoryThresholdBytes = fileCfg.ValidationMemoryThresholdBytes
			}
		}
	}

	cfg.MaxConcurrentDownloads = getIntEnv(EnvMaxConcurrentDownloads, cfg.MaxConcurrentDownloads, 1, 64)
	cfg.MaxConcurrentValidations = getIntEnv(EnvMaxConcurrentValidations, cfg.MaxConcurrentValidations, 1, 64)
	cfg.MaxRetries = getIntEnv(EnvMaxRetries, cfg.MaxRetries, 0, 20)
	cfg.ValidationMemoryThresholdBytes = getInt64Env(EnvValidationMemoryThreshold, cfg.ValidationMemoryThresholdBytes, 1024*1024, 1024*1024*1024)
	cfg.IdleTimeout = getDurationEnv(EnvIdleTimeout, cfg.IdleTimeout, time.Second, 10*time.Minute)
	cfg.CompletionPollInterval = getDurationEnv(EnvCompletionPollInterval, cfg.CompletionPollInterval, 10*time.Millisecond, 5*time.Second)

	return cfg, nil
}

func getIntEnv(name string, def, min, max int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %d\n", name, raw, def)
		return def
	}
	if v < min {
		fmt.Fprintf(os.Stderr, "Warning: %s too low (%d), using minimum %d\n", name, v, min)
		return min
	}
	if v > max {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%d), using maximum %d\n", name, v, max)
		return max
	}
	return v
}

func getInt64Env(name string, def, min, max int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %d\n", name, raw, def)
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func getDurationEnv(name string, def, min, max time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %v\n", name, raw, def)
		return def
	}
	if v < min {
		fmt.Fprintf(os.Stderr, "Warning: %s too low (%v), using minimum %v\n", name, v, min)
		return min
	}
	if v > max {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%v), using maximum %v\n", name, v, max)
		return max
	}
	return v
}
