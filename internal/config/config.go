// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	// FileName is the config file's name inside the repository directory.
	FileName = "config.json"

	envLogLevel = "GITLET_LOG_LEVEL"
)

type Config struct {
	LogLevel      string `json:"log_level"` // debug, info, warn, error
	DefaultBranch string `json:"default_branch"`
	CacheSize     int    `json:"cache_size"`

	Compression struct {
		MinSize int `json:"min_size"` // bytes; 0 disables compression
		Level   int `json:"level"`    // 1=fastest .. 4=best
	} `json:"compression"`
}

// Default returns the configuration written by init.
func Default() *Config {
	cfg := &Config{
		LogLevel:      "warn",
		DefaultBranch: "master",
		CacheSize:     1000,
	}
	cfg.Compression.MinSize = 1024
	cfg.Compression.Level = 2
	return cfg
}

// Load reads the config at path. A missing file yields the defaults; fields
// left out of the file keep their default values.
func Load(path string) (*Config, error) {
	config := Default()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			config.applyEnv()
			return config, nil
		}
		return nil, err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the config as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func (c *Config) Validate() error {
	if c.DefaultBranch == "" {
		return fmt.Errorf("default_branch cannot be empty")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive, got %d", c.CacheSize)
	}
	if c.Compression.MinSize < 0 {
		return fmt.Errorf("compression.min_size cannot be negative")
	}
	if c.Compression.Level < 1 || c.Compression.Level > 4 {
		return fmt.Errorf("compression.level must be between 1 and 4, got %d", c.Compression.Level)
	}
	return nil
}

func (c *Config) applyEnv() {
	if level := os.Getenv(envLogLevel); level != "" {
		c.LogLevel = level
	}
}
