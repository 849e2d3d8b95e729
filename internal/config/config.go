// Package config loads engine configuration from files, environment
// variables, and defaults.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the engine and controller settings.
type Config struct {
	// Listen is the address the engine's control channel binds to. The
	// engine is meant to sit behind a loopback address; it performs no
	// authentication.
	Listen string `mapstructure:"listen"`

	// SerializeDepth bounds how many levels of children evaluation
	// results carry.
	SerializeDepth int `mapstructure:"serialize_depth"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	// ConnectAttempts bounds how many times the controller dials the
	// engine before giving up.
	ConnectAttempts int `mapstructure:"connect_attempts"`

	// ConnectDelay is the pause between connection attempts.
	ConnectDelay time.Duration `mapstructure:"connect_delay"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:          "127.0.0.1:8765",
		SerializeDepth:  1,
		LogLevel:        "info",
		ConnectAttempts: 3,
		ConnectDelay:    500 * time.Millisecond,
	}
}

// Load reads configuration from luadbg.yaml (user config dir, home as
// .luadbg, or the current directory) and LUADBG_* environment variables,
// layered over the defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("luadbg")
	v.SetConfigType("yaml")
	if configDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(configDir, "luadbg"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigName(".luadbg")
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("LUADBG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	cfg := Default()
	v.SetDefault("listen", cfg.Listen)
	v.SetDefault("serialize_depth", cfg.SerializeDepth)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("connect_attempts", cfg.ConnectAttempts)
	v.SetDefault("connect_delay", cfg.ConnectDelay)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads configuration from one explicit file.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
