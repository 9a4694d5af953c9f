package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// ErrConfigValidation is returned when configuration validation fails
var ErrConfigValidation = errors.New("configuration validation failed")

// Config is the NanoDoc server configuration.
type Config struct {
	Listen      string             `yaml:"listen"`
	DataDir     string             `yaml:"data_dir"`
	Log         LogConfig          `yaml:"log"`
	Limits      LimitsConfig       `yaml:"limits"`
	Compaction  CompactionConfig   `yaml:"compaction"`
	Collections []CollectionConfig `yaml:"collections"`
	Filter      FilterConfig       `yaml:"filter"`
	Security    SecurityConfig     `yaml:"security"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LimitsConfig bounds what a single client can ask of the server.
type LimitsConfig struct {
	MaxFilterLength int     `yaml:"max_filter_length"`
	MaxBodyBytes    int64   `yaml:"max_body_bytes"`
	RatePerSecond   float64 `yaml:"rate_per_second"` // 0 disables rate limiting
	Burst           int     `yaml:"burst"`
}

type CompactionConfig struct {
	Interval          time.Duration `yaml:"interval"`
	WALThresholdBytes int64         `yaml:"wal_threshold_bytes"`
}

// CollectionConfig pre-registers a collection, optionally with a JSON Schema file.
type CollectionConfig struct {
	Name   string `yaml:"name"`
	Schema string `yaml:"schema"`
}

type FilterConfig struct {
	RawPatterns bool `yaml:"raw_patterns"`
}

type SecurityConfig struct {
	KeyFile string `yaml:"key_file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:  ":8080",
		DataDir: "./data",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Limits: LimitsConfig{
			MaxFilterLength: 4096,
			MaxBodyBytes:    1 << 20,
			RatePerSecond:   50,
			Burst:           100,
		},
		Compaction: CompactionConfig{
			Interval:          30 * time.Second,
			WALThresholdBytes: 8 << 20,
		},
	}
}

// Load reads a .env file if present, then the YAML file at path (when it
// exists), then applies NANODOC_* environment overrides.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("failed to load environment files: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.UnmarshalWithOptions(data, cfg, yaml.Strict()); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required", ErrConfigValidation)
	}
	if c.Limits.MaxFilterLength < 0 {
		return fmt.Errorf("%w: limits.max_filter_length must not be negative", ErrConfigValidation)
	}
	if c.Limits.RatePerSecond > 0 && c.Limits.Burst < 1 {
		return fmt.Errorf("%w: limits.burst must be at least 1 when rate limiting", ErrConfigValidation)
	}

	seen := make(map[string]bool)
	for _, coll := range c.Collections {
		if coll.Name == "" {
			return fmt.Errorf("%w: collection without name", ErrConfigValidation)
		}
		if seen[coll.Name] {
			return fmt.Errorf("%w: duplicate collection %q", ErrConfigValidation, coll.Name)
		}
		seen[coll.Name] = true
	}
	return nil
}

// applyEnv overrides scalar settings from NANODOC_* variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("NANODOC_LISTEN", &cfg.Listen)
	str("NANODOC_DATA_DIR", &cfg.DataDir)
	str("NANODOC_LOG_LEVEL", &cfg.Log.Level)
	str("NANODOC_LOG_FORMAT", &cfg.Log.Format)
	str("NANODOC_KEY_FILE", &cfg.Security.KeyFile)

	if v, ok := lookup("NANODOC_MAX_FILTER_LENGTH"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: NANODOC_MAX_FILTER_LENGTH: %v", ErrConfigValidation, err)
		}
		cfg.Limits.MaxFilterLength = n
	}
	if v, ok := lookup("NANODOC_RATE_PER_SECOND"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: NANODOC_RATE_PER_SECOND: %v", ErrConfigValidation, err)
		}
		cfg.Limits.RatePerSecond = f
	}
	if v, ok := lookup("NANODOC_COMPACTION_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: NANODOC_COMPACTION_INTERVAL: %v", ErrConfigValidation, err)
		}
		cfg.Compaction.Interval = d
	}
	if v, ok := lookup("NANODOC_RAW_PATTERNS"); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: NANODOC_RAW_PATTERNS: %v", ErrConfigValidation, err)
		}
		cfg.Filter.RawPatterns = b
	}
	return nil
}

// loadEnvFiles loads .env files if they exist
func loadEnvFiles() error {
	if fileExists(".env") {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
