// Package config loads export settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// HashAlgorithm names the digest stored in Meta.input_hash.
type HashAlgorithm string

const (
	HashSHA256 HashAlgorithm = "sha256"
	HashBLAKE3 HashAlgorithm = "blake3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config holds all settings for an export run.
type Config struct {
	// Workers encoding flow graphs in parallel; 0 means one per CPU.
	Workers int `yaml:"workers" env:"BINEXPORT_WORKERS"`

	// Hash selects the input file digest.
	Hash HashAlgorithm `yaml:"hash" env:"BINEXPORT_HASH"`

	// Architecture is the name written to Meta.
	Architecture string `yaml:"architecture" env:"BINEXPORT_ARCH"`

	// LibraryPatterns are regular expressions over function names; matches
	// are exported as LIBRARY without a flow graph.
	LibraryPatterns []string `yaml:"library_patterns" env:"BINEXPORT_LIBRARY_PATTERNS"`

	// StringMax bounds the string read for an address reference.
	StringMax int `yaml:"string_max" env:"BINEXPORT_STRING_MAX"`

	// RefWindow is how many instructions an ADRP page stays live while
	// recovering address references.
	RefWindow int `yaml:"ref_window" env:"BINEXPORT_REF_WINDOW"`

	// Strict makes verify and info decode every operand stream.
	Strict bool `yaml:"strict" env:"BINEXPORT_STRICT"`

	// Logging
	Verbose bool `yaml:"verbose" env:"BINEXPORT_VERBOSE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers:      0,
		Hash:         HashSHA256,
		Architecture: "arm64",
		StringMax:    256,
		RefWindow:    8,
	}
}

// Load returns the defaults, overlaid by the YAML file at path when path is
// not empty, then by BINEXPORT_* environment variables.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Validate checks value ranges and compiles the library patterns.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers %d < 0", ErrInvalid, c.Workers)
	}
	switch c.Hash {
	case HashSHA256, HashBLAKE3:
	default:
		return fmt.Errorf("%w: hash %q (want sha256 or blake3)", ErrInvalid, c.Hash)
	}
	if c.StringMax <= 0 {
		return fmt.Errorf("%w: string_max %d <= 0", ErrInvalid, c.StringMax)
	}
	if c.RefWindow <= 0 {
		return fmt.Errorf("%w: ref_window %d <= 0", ErrInvalid, c.RefWindow)
	}
	for _, p := range c.LibraryPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("%w: library pattern %q: %v", ErrInvalid, p, err)
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("BINEXPORT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: BINEXPORT_WORKERS: %v", ErrInvalid, err)
		}
		cfg.Workers = n
	}
	if v := os.Getenv("BINEXPORT_HASH"); v != "" {
		cfg.Hash = HashAlgorithm(strings.ToLower(v))
	}
	if v := os.Getenv("BINEXPORT_ARCH"); v != "" {
		cfg.Architecture = v
	}
	if v := os.Getenv("BINEXPORT_LIBRARY_PATTERNS"); v != "" {
		cfg.LibraryPatterns = strings.Split(v, ",")
	}
	if v := os.Getenv("BINEXPORT_STRING_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: BINEXPORT_STRING_MAX: %v", ErrInvalid, err)
		}
		cfg.StringMax = n
	}
	if v := os.Getenv("BINEXPORT_REF_WINDOW"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: BINEXPORT_REF_WINDOW: %v", ErrInvalid, err)
		}
		cfg.RefWindow = n
	}
	if v := os.Getenv("BINEXPORT_STRICT"); v != "" {
		cfg.Strict = v == "true" || v == "1"
	}
	if v := os.Getenv("BINEXPORT_VERBOSE"); v != "" {
		cfg.Verbose = v == "true" || v == "1"
	}
	return nil
}
