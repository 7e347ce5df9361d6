package config

import (
	"fmt"
)

// Validate validates the configuration.
func Validate(cfg *Config) error {
	if err := validateServer(&cfg.Server); err != nil {
		return err
	}
	if err := validateWatcher(&cfg.Watcher); err != nil {
		return err
	}
	if err := validateLimits(&cfg.Limits); err != nil {
		return err
	}
	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if cfg.Host == "" {
		return fmt.Errorf("server.host cannot be empty")
	}
	return nil
}

func validateWatcher(cfg *WatcherConfig) error {
	if cfg.DebounceMS < 0 {
		return fmt.Errorf("watcher.debounce_ms cannot be negative")
	}
	if cfg.DebounceMS > 10000 {
		return fmt.Errorf("watcher.debounce_ms cannot exceed 10000ms")
	}
	return nil
}

func validateLimits(cfg *LimitsConfig) error {
	if cfg.DefaultPageLimit < 1 {
		return fmt.Errorf("limits.default_page_limit must be at least 1")
	}
	if cfg.SearchResultCap < 1 {
		return fmt.Errorf("limits.search_result_cap must be at least 1")
	}
	if cfg.MaxDiffSizeKB < 1 {
		return fmt.Errorf("limits.max_diff_size_kb must be at least 1")
	}
	if cfg.MaxDiffSizeKB > 10240 { // 10MB max
		return fmt.Errorf("limits.max_diff_size_kb cannot exceed 10240 (10MB)")
	}
	return nil
}
