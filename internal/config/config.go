// internal/config/config.go

// Package config defines the harness configuration surface. Values are
// resolved by viper with precedence flags > env > config file >
// defaults; durations accept Go duration strings ("60s", "30m").
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config is the root configuration object.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Harness HarnessConfig `mapstructure:"harness" yaml:"harness"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the automation backend.
type BrowserConfig struct {
	Headless        bool   `mapstructure:"headless" yaml:"headless"`
	ProfileDir      string `mapstructure:"profile_dir" yaml:"profile_dir"`
	DisableCache    bool   `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors bool   `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	NoSandbox       bool   `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	Debug           bool   `mapstructure:"debug" yaml:"debug"`
}

// NetworkConfig bounds the page-facing operations.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	EvaluateTimeout   time.Duration `mapstructure:"evaluate_timeout" yaml:"evaluate_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// HarnessConfig tunes the run coordinator and the interaction gate.
type HarnessConfig struct {
	SafetyDeadline time.Duration `mapstructure:"safety_deadline" yaml:"safety_deadline"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// OutputConfig locates the persisted outcome.
type OutputConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// HistoryConfig enables the optional run-history store. An empty URL
// disables it.
type HistoryConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// ResolveProfileDir returns the browser profile directory, expanding a
// leading ~ and defaulting to ~/.gantry/profile when unset.
func (b *BrowserConfig) ResolveProfileDir() (string, error) {
	if b.ProfileDir != "" {
		expanded, err := homedir.Expand(b.ProfileDir)
		if err != nil {
			return "", fmt.Errorf("expanding browser.profile_dir: %w", err)
		}
		return expanded, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".gantry", "profile"), nil
}

// SetDefaults initializes default values for all configuration keys.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "gantry")
	v.SetDefault("logger.log_file", "gantry.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.profile_dir", "")
	v.SetDefault("browser.disable_cache", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.debug", false)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "60s")
	v.SetDefault("network.evaluate_timeout", "30s")
	v.SetDefault("network.post_load_wait", "500ms")

	// -- Harness --
	v.SetDefault("harness.safety_deadline", "30m")
	v.SetDefault("harness.poll_interval", "2s")

	// -- Output --
	v.SetDefault("output.path", "gantry-outcome.json")

	// -- History --
	v.SetDefault("history.url", "")
}

// Load unmarshals and validates the configuration held by v. Call
// SetDefaults on v first.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be 'console' or 'json', got %q", c.Logger.Format)
	}
	if c.Network.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be a positive duration")
	}
	if c.Network.EvaluateTimeout <= 0 {
		return fmt.Errorf("network.evaluate_timeout must be a positive duration")
	}
	if c.Network.PostLoadWait < 0 {
		return fmt.Errorf("network.post_load_wait must not be negative")
	}
	if c.Harness.SafetyDeadline <= 0 {
		return fmt.Errorf("harness.safety_deadline must be a positive duration")
	}
	if c.Harness.PollInterval <= 0 {
		return fmt.Errorf("harness.poll_interval must be a positive duration")
	}
	if c.Output.Path == "" {
		return fmt.Errorf("output.path must not be empty")
	}
	return nil
}
