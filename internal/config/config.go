// Package config handles configuration management for sessionengine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the engine.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Watcher    WatcherConfig    `mapstructure:"watcher" yaml:"watcher"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Limits     LimitsConfig     `mapstructure:"limits" yaml:"limits"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery" yaml:"discovery"`
	IndexCache IndexCacheConfig `mapstructure:"index_cache" yaml:"index_cache"`
}

// ServerConfig holds HTTP/WebSocket bind configuration.
type ServerConfig struct {
	Port int    `mapstructure:"port" yaml:"port"` // HTTP port; WebSocket uses Port+1 (default: 8766)
	Host string `mapstructure:"host" yaml:"host"` // Bind address (default: 127.0.0.1)
}

// WatcherConfig holds file watcher configuration.
type WatcherConfig struct {
	DebounceMS int `mapstructure:"debounce_ms" yaml:"debounce_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// LimitsConfig holds result-size and pagination limits.
type LimitsConfig struct {
	DefaultPageLimit int `mapstructure:"default_page_limit" yaml:"default_page_limit"` // get_events default limit
	SearchResultCap  int `mapstructure:"search_result_cap" yaml:"search_result_cap"`   // hard cap on search matches
	MaxDiffSizeKB    int `mapstructure:"max_diff_size_kb" yaml:"max_diff_size_kb"`     // validated at load (1-10240); no query path reads it
}

// DiscoveryConfig holds project/session discovery configuration.
type DiscoveryConfig struct {
	// Home overrides the directory passed to internal/discovery and
	// internal/pathresolver as "home" (the parent of .claude/projects).
	// Empty means use the current user's home directory.
	Home string `mapstructure:"home" yaml:"home"`
}

// IndexCacheConfig holds the on-disk line-offset cache configuration.
type IndexCacheConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// Load loads configuration from files and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default search paths
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/sessionengine")
		v.AddConfigPath("/etc/sessionengine")
	}

	// Environment variable prefix
	// NOTE: Keep this aligned with docs (SESSIONENGINE_* env overrides).
	v.SetEnvPrefix("SESSIONENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file (optional - not an error if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	// Post-process configuration
	if err := postProcess(&cfg); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults - HTTP port (WebSocket listens on port+1)
	v.SetDefault("server.port", 8766)
	v.SetDefault("server.host", "127.0.0.1")

	// Watcher defaults
	v.SetDefault("watcher.debounce_ms", 500)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Limits defaults - mirror spec.md's get_events/search defaults
	v.SetDefault("limits.default_page_limit", 200)
	v.SetDefault("limits.search_result_cap", 10000)
	v.SetDefault("limits.max_diff_size_kb", 500)

	// Discovery defaults
	v.SetDefault("discovery.home", "")

	// Index cache defaults
	v.SetDefault("index_cache.enabled", true)
	v.SetDefault("index_cache.path", "")
}

// postProcess applies post-processing to configuration.
func postProcess(cfg *Config) error {
	if cfg.Discovery.Home != "" {
		absPath, err := filepath.Abs(cfg.Discovery.Home)
		if err != nil {
			return fmt.Errorf("failed to resolve discovery.home: %w", err)
		}
		cfg.Discovery.Home = absPath
	}

	if cfg.IndexCache.Enabled && cfg.IndexCache.Path == "" {
		dir, err := EnsureConfigDir()
		if err != nil {
			return fmt.Errorf("failed to resolve default index_cache.path: %w", err)
		}
		cfg.IndexCache.Path = filepath.Join(dir, "indexcache.db")
	}

	return nil
}

// GetConfigDir returns the user config directory for sessionengine.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "sessionengine"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// WriteYAML marshals cfg as YAML and writes it to configPath, creating the
// parent directory if needed. Used to seed a starter config.yaml a user can
// then hand-edit; Load reads back whatever this writes.
func WriteYAML(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
