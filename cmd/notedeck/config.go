// Config loading for the notedeck CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileFull = "config.yaml"

	cfgKeyDatabaseKind         = "database.kind"
	cfgKeyDatabaseURL          = "database.url"
	cfgKeyDatabaseMaxReaders   = "database.max_readers"
	cfgKeyDatabaseWriteTimeout = "database.write_timeout"

	cfgKeyLogLevel    = "log.level"
	cfgKeyLogFile     = "log.file"
	cfgKeyLogMaxSize  = "log.max_size_mb"
	cfgKeyLogBackups  = "log.max_backups"
	cfgKeyLogMaxAge   = "log.max_age_days"
	cfgKeyLogConsole  = "log.console"

	defaultDatabaseKind = "sqlite"
	defaultLogLevel     = "info"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# Notedeck CLI configuration

database:
  # Backend selection: sqlite (embedded) or surreal (external, not bundled)
  kind: sqlite
  # Database URL (optional; overridable by --db flag or NOTEDECK_DB_URL)
  # url: sqlite:///./data/notedeck.db
  # max_readers: 8
  # write_timeout: 30s

log:
  level: info
  # File logging with rotation; empty disables the file sink.
  # file: ~/.notedeck/notedeck.log
  max_size_mb: 20
  max_backups: 3
  max_age_days: 14
  # Also log to stderr.
  console: true
`

// defaultConfigDir resolves the config directory when --config is not set.
func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".notedeck"), nil
}

// loadConfig reads config.yaml from the resolved config directory using
// Viper, creating the directory and a default config.yaml on first run.
// A missing config.yaml is not an error.
func loadConfig(configDir string) (*viper.Viper, error) {
	if configDir == "" {
		var err error
		configDir, err = defaultConfigDir()
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyDatabaseKind, defaultDatabaseKind)
	v.SetDefault(cfgKeyLogLevel, defaultLogLevel)
	v.SetDefault(cfgKeyLogMaxSize, 20)
	v.SetDefault(cfgKeyLogBackups, 3)
	v.SetDefault(cfgKeyLogMaxAge, 14)
	v.SetDefault(cfgKeyLogConsole, true)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// ensureDefaultConfigFile creates a default config.yaml if the file does
// not exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileFull)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
