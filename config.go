package minimact

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/minimact/minimact-sub002/internal/memory"
)

// ConfigFileName is the default name of the engine config file
const ConfigFileName = "minimact.yaml"

// Config represents the engine configuration
type Config struct {
	// StoreDSN is the SQLite path template documents persist to. Empty
	// disables persistence; maps then live only in memory.
	StoreDSN string `yaml:"store_dsn,omitempty"`

	// MaxTreeDepth caps render tree depth. Zero means the default.
	MaxTreeDepth int `yaml:"max_tree_depth,omitempty"`

	// MaxTreeNodes caps render tree size. Zero means the default.
	MaxTreeNodes int `yaml:"max_tree_nodes,omitempty"`

	// MaxMemoryMB bounds template map and instance memory accounting.
	MaxMemoryMB int `yaml:"max_memory_mb,omitempty"`

	// SessionTTL is how long an idle patch-feed session survives, in
	// time.ParseDuration syntax ("30m", "24h").
	SessionTTL string `yaml:"session_ttl,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`

	// Version tracks the config file version for future migrations
	Version string `yaml:"version,omitempty"`
}

// DefaultConfig returns a new Config with default values
func DefaultConfig() *Config {
	return &Config{
		MaxTreeDepth: 64,
		MaxTreeNodes: 100_000,
		MaxMemoryMB:  100,
		SessionTTL:   "24h",
		LogLevel:     "info",
		Version:      "1.0",
	}
}

// LoadConfig loads the configuration from a file. A missing file returns
// the default config.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigFileName
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults for missing fields
	defaults := DefaultConfig()
	if config.MaxTreeDepth == 0 {
		config.MaxTreeDepth = defaults.MaxTreeDepth
	}
	if config.MaxTreeNodes == 0 {
		config.MaxTreeNodes = defaults.MaxTreeNodes
	}
	if config.MaxMemoryMB == 0 {
		config.MaxMemoryMB = defaults.MaxMemoryMB
	}
	if config.SessionTTL == "" {
		config.SessionTTL = defaults.SessionTTL
	}
	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}
	if config.Version == "" {
		config.Version = defaults.Version
	}

	return &config, nil
}

// SaveConfig saves the configuration to a file
func SaveConfig(config *Config, path string) error {
	if path == "" {
		path = ConfigFileName
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxTreeDepth < 1 {
		return fmt.Errorf("max_tree_depth must be positive, got %d", c.MaxTreeDepth)
	}
	if c.MaxTreeNodes < 1 {
		return fmt.Errorf("max_tree_nodes must be positive, got %d", c.MaxTreeNodes)
	}
	if c.MaxMemoryMB < 1 {
		return fmt.Errorf("max_memory_mb must be positive, got %d", c.MaxMemoryMB)
	}
	if _, err := c.SessionTTLDuration(); err != nil {
		return err
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SessionTTLDuration parses the configured session TTL.
func (c *Config) SessionTTLDuration() (time.Duration, error) {
	if c.SessionTTL == "" {
		return 24 * time.Hour, nil
	}
	ttl, err := time.ParseDuration(c.SessionTTL)
	if err != nil {
		return 0, fmt.Errorf("bad session_ttl %q: %w", c.SessionTTL, err)
	}
	return ttl, nil
}

// SlogLevel parses the configured log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
}

// MemoryConfig converts the budget settings for the memory manager.
func (c *Config) MemoryConfig() *memory.Config {
	mc := memory.DefaultConfig()
	mc.MaxMemoryMB = c.MaxMemoryMB
	return mc
}
