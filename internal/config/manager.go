// Package config loads this module's runtime configuration: mmap
// defaults, the operator-tunable security limits, and logging
// destination/level, from an optional YAML file layered with
// environment overrides via spf13/viper.
package config

import (
	"fmt"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/forensiccore/diskvault/internal/security"
)

// EnvPrefix is the prefix viper requires on every environment override,
// e.g. DFCORE_LOG_LEVEL for LogLevel.
const EnvPrefix = "DFCORE"

// MmapConfig records a memory-mapped stream view admission ceiling. It is
// carried in the configuration only; the stream package admits files
// against the compiled-in security.MaxMmapSize.
type MmapConfig struct {
	MaxSize int64 `mapstructure:"max_size" yaml:"max_size"`
}

// Config is this module's full runtime configuration.
type Config struct {
	DefaultUseMmap bool                    `mapstructure:"default_use_mmap" yaml:"default_use_mmap"`
	MmapConfig     MmapConfig              `mapstructure:"mmap" yaml:"mmap"`
	Limits         security.SecurityLimits `mapstructure:"limits" yaml:"limits"`
	LogLevel       string                  `mapstructure:"log_level" yaml:"log_level"`
	LogPath        string                  `mapstructure:"log_path" yaml:"log_path"`
}

// Default returns the zero-configuration defaults: mmap off, compiled-in
// security limits unmodified, info-level logging to stderr (LogPath "").
func Default() *Config {
	return &Config{
		DefaultUseMmap: false,
		MmapConfig:     MmapConfig{MaxSize: int64(security.MaxMmapSize)},
		Limits:         security.DefaultLimits(),
		LogLevel:       "info",
		LogPath:        "",
	}
}

// Template renders Default() as a comment-free YAML document suitable for
// `diskcore config init`: a starting point an operator edits to tighten
// limits or change logging, rather than a fully-documented reference.
func Template() ([]byte, error) {
	out, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("config: rendering template: %w", err)
	}
	return out, nil
}

// Validate checks that Limits does not loosen any compiled-in ceiling
// and that LogLevel is one of the recognized slog levels.
func (c *Config) Validate() error {
	if err := security.ValidateLimits(c.Limits); err != nil {
		return err
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	return nil
}

// Load reads configuration from path (if non-empty) and environment
// variables prefixed with EnvPrefix, falling back to Default()'s values
// for anything unset, and validates the result before returning it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("default_use_mmap", def.DefaultUseMmap)
	v.SetDefault("mmap.max_size", def.MmapConfig.MaxSize)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_path", def.LogPath)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
