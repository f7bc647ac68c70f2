package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rcook/rust-tool-action/internal/logging"
	"github.com/rcook/rust-tool-action/internal/platform"
)

// LoadOptions controls Load.
type LoadOptions struct {
	// Path is the config file. Empty means RUST_TOOL_ACTION_CONFIG, then
	// DefaultFileName in the working directory.
	Path string

	Detector platform.Detector
	Logger   logging.Logger

	// Environ replaces the process environment when non-nil.
	Environ map[string]string
}

// Loaded is the effective configuration and where it came from.
type Loaded struct {
	Config    *Config
	Source    string
	Overrides *Overrides
}

// Load layers defaults, the Lua file and environment overrides, then
// validates the result. A missing default file is not an error; a missing
// file that was asked for by name is.
func Load(ctx context.Context, opts LoadOptions) (*Loaded, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	overrides, err := ReadOverrides(opts.Environ)
	if err != nil {
		return nil, err
	}

	path, explicit := opts.Path, opts.Path != ""
	if !explicit && overrides.ConfigPath != "" {
		path, explicit = overrides.ConfigPath, true
	}
	if path == "" {
		path = DefaultFileName
	}

	var target *platform.Triple
	if overrides.Target != nil {
		t, err := platform.ParseTriple(*overrides.Target)
		if err != nil {
			return nil, &ValidationError{Field: "release.target", Message: err.Error()}
		}
		target = &t
	}

	cfg := Default()
	source := "defaults"
	switch _, statErr := os.Stat(path); {
	case statErr == nil:
		parser := NewParser(opts.Detector, WithLogger(logger), WithTarget(target))
		cfg, err = parser.ParseFile(ctx, path, cfg)
		if err != nil {
			return nil, err
		}
		source = path
		logger.Debug("loaded config file", "path", path)
	case errors.Is(statErr, os.ErrNotExist) && !explicit:
		logger.Debug("no config file, using defaults", "path", path)
	default:
		return nil, fmt.Errorf("config file %s: %w", path, statErr)
	}

	overrides.Apply(cfg)
	if err := cfg.ResolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loaded{Config: cfg, Source: source, Overrides: overrides}, nil
}
