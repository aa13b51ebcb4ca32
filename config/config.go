// Package config loads the settings of the usdmesh pipeline from YAML.
//
// A config file is optional. Values it sets replace the defaults; command
// line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/oy3o/usd"
	"github.com/oy3o/usd/mesh"
	"github.com/oy3o/usd/stage"
	"gopkg.in/yaml.v3"
)

// Config is the pipeline configuration.
type Config struct {
	// BaseDir resolves relative asset paths that have no authoring file.
	// Empty means the directory of the opened file.
	BaseDir string `yaml:"base_dir"`

	// ExpandReferences grafts referenced layers into the scene.
	ExpandReferences bool `yaml:"expand_references"`

	// ExpandPayloads also follows payload arcs during expansion.
	ExpandPayloads bool `yaml:"expand_payloads"`

	// ApplyOverrides applies "over" prims after expansion.
	ApplyOverrides bool `yaml:"apply_overrides"`

	// Workers bounds parallel reference loads. Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`

	// MaxFileBytes refuses larger layer files. Zero means no limit.
	MaxFileBytes int64 `yaml:"max_file_bytes"`

	// GroupPolicy is "face" or "mesh".
	GroupPolicy string `yaml:"group_policy"`

	// LogLevel is a slog level name: debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

func Default() *Config {
	return &Config{
		ExpandReferences: true,
		ApplyOverrides:   true,
		GroupPolicy:      "face",
		LogLevel:         "info",
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", usd.ErrAccess, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.MaxFileBytes < 0 {
		errs = append(errs, fmt.Errorf("max_file_bytes must not be negative, got %d", c.MaxFileBytes))
	}
	if _, err := c.Groups(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Groups returns the mesh group policy named by GroupPolicy.
func (c *Config) Groups() (mesh.GroupPolicy, error) {
	switch c.GroupPolicy {
	case "face", "":
		return mesh.GroupPerFace, nil
	case "mesh":
		return mesh.GroupPerMesh, nil
	}
	return 0, fmt.Errorf("group_policy must be one of: face, mesh; got %q", c.GroupPolicy)
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// StageOptions returns the stage.Open options selected by c.
func (c *Config) StageOptions(diag usd.Diagnostics) stage.Options {
	return stage.Options{
		BaseDir:          c.BaseDir,
		ExpandReferences: c.ExpandReferences,
		ApplyOverrides:   c.ApplyOverrides,
		Payloads:         c.ExpandPayloads,
		Workers:          c.Workers,
		MaxBytes:         c.MaxFileBytes,
		Diagnostics:      diag,
	}
}
