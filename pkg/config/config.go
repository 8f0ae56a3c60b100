/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by ApplyEnv
const (
	EnvFile            = "AKV_FILE"
	EnvIndexFile       = "AKV_INDEX_FILE"
	EnvPersistIndex    = "AKV_PERSIST_INDEX"
	EnvFsyncInterval   = "AKV_FSYNC_INTERVAL"
	EnvRecoverTornTail = "AKV_RECOVER_TORN_TAIL"
	EnvLogLevel        = "AKV_LOG_LEVEL"
	EnvLogFormat       = "AKV_LOG_FORMAT"
)

// Config represents the actionkv configuration
type Config struct {
	File            string        `yaml:"file"`
	IndexFile       string        `yaml:"index_file,omitempty"`
	PersistIndex    bool          `yaml:"persist_index"`
	FsyncInterval   time.Duration `yaml:"fsync_interval"`
	RecoverTornTail bool          `yaml:"recover_torn_tail"`
	Logging         Logging       `yaml:"logging"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		File:         "./actionkv.db",
		PersistIndex: true,
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from the specified path. Fields missing
// from the file keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, errors.Newf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, errors.Wrap(err, "invalid config path")
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// ApplyEnv loads the given .env files, skipping any that do not exist, and
// then overrides config fields from AKV_* variables. Variables already set
// in the process environment win over .env contents.
func ApplyEnv(config *Config, envFiles ...string) error {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "load env file %s", f)
		}
	}

	if v, ok := os.LookupEnv(EnvFile); ok {
		config.File = v
	}
	if v, ok := os.LookupEnv(EnvIndexFile); ok {
		config.IndexFile = v
	}
	if v, ok := os.LookupEnv(EnvPersistIndex); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "%s", EnvPersistIndex)
		}
		config.PersistIndex = b
	}
	if v, ok := os.LookupEnv(EnvFsyncInterval); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "%s", EnvFsyncInterval)
		}
		config.FsyncInterval = d
	}
	if v, ok := os.LookupEnv(EnvRecoverTornTail); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "%s", EnvRecoverTornTail)
		}
		config.RecoverTornTail = b
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		config.Logging.Level = v
	}
	if v, ok := os.LookupEnv(EnvLogFormat); ok {
		config.Logging.Format = v
	}

	return nil
}

// Validate checks that the configuration can be used to open a store
func (c *Config) Validate() error {
	if c.File == "" {
		return errors.New("config: file is required")
	}
	if c.FsyncInterval < 0 {
		return errors.Newf("config: fsync_interval must not be negative, got %s", c.FsyncInterval)
	}
	// Names are matched case-insensitively, as the logger parses them.
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.Newf("config: unknown log level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return errors.Newf("config: unknown log format %q", c.Logging.Format)
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./actionkv.yaml"
	}

	// For Linux/macOS, use ~/.config/actionkv/config.yaml
	return filepath.Join(homeDir, ".config", "actionkv", "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
