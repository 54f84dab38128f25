// Package config holds the run configuration: defaults, an optional JSON
// config file, and command-line flag overlays, merged in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mwidmann/replica/pkg/copyverify"
	"github.com/mwidmann/replica/pkg/plog"
	"github.com/mwidmann/replica/pkg/util"
)

// Config describes one mirroring run. Source and Replica are never read
// from a config file; they identify the run and always come from flags.
type Config struct {
	Source       string `json:"-"`
	Replica      string `json:"-"`
	MaxRetries   int    `json:"maxRetries"`
	Permissions  bool   `json:"permissions"`
	Verbose      bool   `json:"verbose"`
	LogFile      string `json:"logFile"`
	LogLevel     string `json:"logLevel"`
	BufferSizeKB int    `json:"bufferSizeKB"`
}

// NewDefault returns the built-in defaults.
func NewDefault() Config {
	return Config{
		MaxRetries:   copyverify.DefaultMaxAttempts,
		LogLevel:     "done",
		BufferSizeKB: copyverify.DefaultBufferSizeKB,
	}
}

// Load reads a JSON config file on top of the defaults. A missing path is
// a normal case and yields the defaults; a present but unparsable file is
// an error.
func Load(configPath string) (Config, error) {
	if configPath == "" {
		return NewDefault(), nil
	}

	file, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config file %s does not exist", configPath)
		}
		return Config{}, fmt.Errorf("error opening config file %s: %w", configPath, err)
	}
	defer file.Close()

	plog.Info("Loading configuration", "path", configPath)

	// Start with defaults, then overwrite with the file's content, so the
	// file may carry only the fields it wants to change.
	cfg := NewDefault()
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// MergeWithFlags overlays explicitly set command-line flags on top of a base
// configuration. setFlags contains only the flags the user actually provided.
func MergeWithFlags(base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "source":
			merged.Source = value.(string)
		case "replica":
			merged.Replica = value.(string)
		case "retries":
			merged.MaxRetries = value.(int)
		case "permissions":
			merged.Permissions = value.(bool)
		case "verbose":
			merged.Verbose = value.(bool)
		case "log-file":
			merged.LogFile = value.(string)
		case "log-level":
			merged.LogLevel = value.(string)
		case "buffer-size-kb":
			merged.BufferSizeKB = value.(int)
		default:
			plog.Debug("unhandled flag in MergeWithFlags", "flag", name)
		}
	}
	return merged
}

// Validate checks the merged configuration and normalizes the paths:
// tilde prefixes are expanded and both paths are made absolute.
func (c *Config) Validate() error {
	if c.Source == "" {
		return fmt.Errorf("a source directory is required")
	}
	if c.Replica == "" {
		return fmt.Errorf("a replica directory is required")
	}

	source, err := util.ExpandPath(c.Source)
	if err != nil {
		return fmt.Errorf("could not expand source path %s: %w", c.Source, err)
	}
	replica, err := util.ExpandPath(c.Replica)
	if err != nil {
		return fmt.Errorf("could not expand replica path %s: %w", c.Replica, err)
	}

	absSource, err := filepath.Abs(source)
	if err != nil {
		return fmt.Errorf("could not determine absolute path for source %s: %w", source, err)
	}
	absReplica, err := filepath.Abs(replica)
	if err != nil {
		return fmt.Errorf("could not determine absolute path for replica %s: %w", replica, err)
	}
	c.Source = absSource
	c.Replica = absReplica

	if c.MaxRetries <= 0 {
		return fmt.Errorf("retries must be positive, got %d", c.MaxRetries)
	}
	if c.BufferSizeKB <= 0 {
		return fmt.Errorf("buffer-size-kb must be positive, got %d", c.BufferSizeKB)
	}
	return nil
}

// LogSummary prints a user-friendly summary of the effective configuration.
func (c *Config) LogSummary() {
	plog.Info("Configuration",
		"source", c.Source,
		"replica", c.Replica,
		"retries", c.MaxRetries,
		"permissions", c.Permissions,
		"log_level", c.LogLevel,
		"buffer_size_kb", c.BufferSizeKB,
	)
}
