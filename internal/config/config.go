package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the runtime settings for the sessiondock server.
type Config struct {
	Addr            string        `json:"addr" mapstructure:"addr"`
	DataDir         string        `json:"data_dir" mapstructure:"data_dir"`
	StoreDSN        string        `json:"store_dsn" mapstructure:"store_dsn"`
	MaxBodyBytes    int64         `json:"max_body_bytes" mapstructure:"max_body_bytes"`
	RateLimitMax    int           `json:"rate_limit_max" mapstructure:"rate_limit_max"`
	RateLimitWindow time.Duration `json:"rate_limit_window" mapstructure:"rate_limit_window"`
	Watch           bool          `json:"watch" mapstructure:"watch"`
	LogLevel        string        `json:"log_level" mapstructure:"log_level"`
}

// DefaultConfig returns the configuration used when nothing is provided.
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		DataDir:         "files",
		MaxBodyBytes:    16 << 20,
		RateLimitMax:    0,
		RateLimitWindow: time.Minute,
		Watch:           true,
		LogLevel:        "info",
	}
}

// Loader handles configuration loading from an optional JSON file plus
// SESSIONDOCK_* environment variables.
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader. An empty path means env-only.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads the configuration file (if any), overlays environment
// variables, and fills in defaults.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SESSIONDOCK")
	v.AutomaticEnv()

	defaults := DefaultConfig()
	v.SetDefault("addr", defaults.Addr)
	v.SetDefault("data_dir", defaults.DataDir)
	v.SetDefault("store_dsn", defaults.StoreDSN)
	v.SetDefault("max_body_bytes", defaults.MaxBodyBytes)
	v.SetDefault("rate_limit_max", defaults.RateLimitMax)
	v.SetDefault("rate_limit_window", defaults.RateLimitWindow)
	v.SetDefault("watch", defaults.Watch)
	v.SetDefault("log_level", defaults.LogLevel)

	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		v.SetConfigFile(l.configPath)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The default store is the on-disk directory backend.
	if cfg.StoreDSN == "" {
		cfg.StoreDSN = "file://" + cfg.DataDir
	}

	return cfg, nil
}

// Load is a convenience function that creates a loader and loads the config.
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
