// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Tracking TrackingConfig `toml:"tracking"`
}

// TrackingConfig maps engine settings.
type TrackingConfig struct {
	TimeoutMinutes      *int     `toml:"timeout-minutes"`
	EmailTriggers       *bool    `toml:"email-triggers"`
	RecoveryWindowHours *int     `toml:"recovery-window-hours"`
	AverageBlend        *float64 `toml:"average-blend"`
	Currency            *string  `toml:"currency"`
	Source              *string  `toml:"source"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
