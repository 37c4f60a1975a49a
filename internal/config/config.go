// Package config provides unified configuration for the Pitlake query
// layer.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration needed to instantiate the query layer.
type Config struct {
	// DataRoot is the root directory containing one subdirectory of
	// partition files per dataset. Manifest entries outside it are
	// rejected.
	DataRoot string `json:"data_root" yaml:"data_root"`

	// ManifestDB is the path to the manifest database maintained by the
	// sync pipeline.
	ManifestDB string `json:"manifest_db" yaml:"manifest_db"`

	// FilingLagDays overrides the per-dataset default filing lag.
	// Keys are dataset kinds, e.g. "fundamentals_annual".
	FilingLagDays map[string]int `json:"filing_lag_days" yaml:"filing_lag_days"`

	// Engine configuration
	Engine EngineConfig `json:"engine" yaml:"engine"`
}

// EngineConfig holds query engine pool configuration.
type EngineConfig struct {
	// MaxHandles is the maximum number of live engine handles
	MaxHandles int `json:"max_handles" yaml:"max_handles"`

	// IdleTimeout is how long a handle can be idle before being closed
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataRoot:      "./data/pitlake",
		ManifestDB:    "",
		FilingLagDays: map[string]int{},
		Engine: EngineConfig{
			MaxHandles:  8,
			IdleTimeout: 5 * time.Minute,
		},
	}
}

// Load reads configuration from a YAML or JSON file, starting from
// defaults. An empty path returns defaults with env overrides applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
			}
		case ".json":
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
			}
		default:
			return nil, fmt.Errorf("config: unsupported config format: %s", path)
		}
	}

	cfg.applyEnv()
	cfg.Resolve()
	return cfg, nil
}

// applyEnv applies PITLAKE_* environment overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("PITLAKE_DATA_ROOT"); v != "" {
		c.DataRoot = v
	}
	if v := os.Getenv("PITLAKE_MANIFEST_DB"); v != "" {
		c.ManifestDB = v
	}
	if v := os.Getenv("PITLAKE_ENGINE_MAX_HANDLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.MaxHandles = n
		}
	}
	if v := os.Getenv("PITLAKE_ENGINE_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Engine.IdleTimeout = d
		}
	}
}

// Resolve resolves relative paths and sets defaults based on DataRoot.
func (c *Config) Resolve() {
	if c.DataRoot == "" {
		c.DataRoot = "./data/pitlake"
	}
	if c.ManifestDB == "" {
		c.ManifestDB = filepath.Join(c.DataRoot, "manifest.db")
	}
	if c.FilingLagDays == nil {
		c.FilingLagDays = map[string]int{}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataRoot == "" {
		return fmt.Errorf("data_root is required")
	}
	if c.ManifestDB == "" {
		return fmt.Errorf("manifest_db is required")
	}
	if c.Engine.MaxHandles < 1 || c.Engine.MaxHandles > 256 {
		return fmt.Errorf("engine.max_handles must be between 1 and 256, got %d", c.Engine.MaxHandles)
	}
	for kind, lag := range c.FilingLagDays {
		if lag < 0 {
			return fmt.Errorf("filing_lag_days for %s must be non-negative, got %d", kind, lag)
		}
	}
	return nil
}
