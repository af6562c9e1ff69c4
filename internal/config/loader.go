package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading.
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load loads the configuration from file and environment. Environment keys
// use the AGENTGATE prefix with underscores, e.g.
// AGENTGATE_SESSION_TTL_MINUTES.
func (l *Loader) Load() (*Config, error) {
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".agentgate", "agentgate.json")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetEnvPrefix("AGENTGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults double as env-variable bindings for AutomaticEnv.
	defaults := DefaultConfig()
	v.SetDefault("session.ttl_minutes", defaults.Session.TTLMinutes)
	v.SetDefault("session.max_sessions_per_user", defaults.Session.MaxSessionsPerUser)
	v.SetDefault("session.cleanup_interval_seconds", defaults.Session.CleanupIntervalSeconds)
	v.SetDefault("session.query_timeout_seconds", defaults.Session.QueryTimeoutSeconds)
	v.SetDefault("gateway.host", defaults.Gateway.Host)
	v.SetDefault("gateway.port", defaults.Gateway.Port)
	v.SetDefault("gateway.metrics_port", defaults.Gateway.MetricsPort)
	v.SetDefault("gateway.shared_secret", defaults.Gateway.SharedSecret)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.file", defaults.Logging.File)
	v.SetDefault("logging.console", defaults.Logging.Console)
	v.SetDefault("logging.pretty", defaults.Logging.Pretty)
	v.SetDefault("store.path", defaults.Store.Path)
	v.SetDefault("store.retention_days", defaults.Store.RetentionDays)
	v.SetDefault("store.prune_schedule", defaults.Store.PruneSchedule)
	v.SetDefault("toolsets.manifest_path", defaults.Toolsets.ManifestPath)
	v.SetDefault("toolsets.watch", defaults.Toolsets.Watch)
	v.SetDefault("ai.model", defaults.AI.Model)
	v.SetDefault("data_dir", defaults.DataDir)

	// The config file is optional; env and defaults carry the rest.
	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".agentgate")
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(cfg.DataDir, "audit.db")
	}

	return cfg, nil
}

// GetConfigPath returns the config file path.
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".agentgate", "agentgate.json")
}

// Load is a convenience function that creates a loader and loads the config.
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
