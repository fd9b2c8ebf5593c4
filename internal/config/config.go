// Package config loads the optional .cpptext YAML file and applies
// .env and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up by Load.
const FileName = ".cpptext"

// Default values.
const (
	DefaultCommand   = "cpp"
	DefaultCacheSize = 5
)

// Environment variables that override the file.
const (
	EnvCommand = "CPPTEXT_COMMAND"
	EnvTimeout = "CPPTEXT_TIMEOUT"
	EnvWorkers = "CPPTEXT_WORKERS"
)

// Config holds the parsed .cpptext configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version    int    `yaml:"version"`
	Command    string `yaml:"command"` // preprocessor executable, e.g. "cpp-13"
	RawTimeout string `yaml:"timeout"` // e.g. "30s"; empty means no deadline
	RawWorkers int    `yaml:"workers"` // concurrent invocations
	RawCache   int    `yaml:"cache"`   // in-memory run records kept
}

// PreprocessorCommand returns the configured executable or the default.
func (c *Config) PreprocessorCommand() string {
	if c.Command != "" {
		return c.Command
	}
	return DefaultCommand
}

// Timeout returns the configured per-invocation deadline, or zero when
// none is configured or the value does not parse.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return 0
}

// Workers returns the configured concurrency or the number of CPUs.
func (c *Config) Workers() int {
	if c.RawWorkers > 0 {
		return c.RawWorkers
	}
	return runtime.NumCPU()
}

// CacheSize returns the configured LRU capacity or the default.
func (c *Config) CacheSize() int {
	if c.RawCache > 0 {
		return c.RawCache
	}
	return DefaultCacheSize
}

// LoadResult holds the parsed config and where it was found.
type LoadResult struct {
	Config   *Config
	Root     string   // directory holding .cpptext; falls back to the start dir
	Warnings []string // ignored override values
}

// Load reads .cpptext from dir or the nearest ancestor that has one.
// If no file exists, a default Config is returned. Values from a .env
// file in the same directory and then from the process environment
// override the file.
func Load(dir string) (*LoadResult, error) {
	root, err := findConfigRoot(dir)
	if err != nil {
		root = dir
	}

	cfg := &Config{}
	data, err := os.ReadFile(filepath.Join(root, FileName))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", FileName, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	dotenv, err := godotenv.Read(filepath.Join(root, ".env"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	warnings := applyOverrides(cfg, lookup)

	return &LoadResult{Config: cfg, Root: root, Warnings: warnings}, nil
}

// applyOverrides copies recognised variables into cfg and returns a
// warning for each value it had to ignore.
func applyOverrides(cfg *Config, lookup func(string) (string, bool)) []string {
	var warnings []string
	if v, ok := lookup(EnvCommand); ok && v != "" {
		cfg.Command = v
	}
	if v, ok := lookup(EnvTimeout); ok && v != "" {
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			warnings = append(warnings, fmt.Sprintf("%s=%q is not a valid duration, ignoring", EnvTimeout, v))
		} else {
			cfg.RawTimeout = v
		}
	}
	if v, ok := lookup(EnvWorkers); ok && v != "" {
		if n, err := strconv.Atoi(v); err != nil || n < 1 {
			warnings = append(warnings, fmt.Sprintf("%s=%q is not a positive integer, ignoring", EnvWorkers, v))
		} else {
			cfg.RawWorkers = n
		}
	}
	return warnings
}

// findConfigRoot walks upward from dir looking for a directory
// containing FileName.
func findConfigRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found", FileName)
		}
		dir = parent
	}
}
