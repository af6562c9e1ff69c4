// Package config loads and validates the gateway configuration from an
// optional JSON file plus AGENTGATE-prefixed environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config is the main agentgate configuration.
type Config struct {
	// Session lifecycle limits
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Gateway server
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Audit store
	Store StoreConfig `json:"store" mapstructure:"store"`

	// Tool sets
	Toolsets ToolsetsConfig `json:"toolsets" mapstructure:"toolsets"`

	// AI provider profiles
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	TTLMinutes             int `json:"ttl_minutes" mapstructure:"ttl_minutes"`
	MaxSessionsPerUser     int `json:"max_sessions_per_user" mapstructure:"max_sessions_per_user"`
	CleanupIntervalSeconds int `json:"cleanup_interval_seconds" mapstructure:"cleanup_interval_seconds"`
	QueryTimeoutSeconds    int `json:"query_timeout_seconds" mapstructure:"query_timeout_seconds"`
}

// TTL returns the session idle TTL.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLMinutes) * time.Minute
}

// CleanupInterval returns the reaper interval.
func (s SessionConfig) CleanupInterval() time.Duration {
	return time.Duration(s.CleanupIntervalSeconds) * time.Second
}

// QueryTimeout returns the query execution deadline.
func (s SessionConfig) QueryTimeout() time.Duration {
	return time.Duration(s.QueryTimeoutSeconds) * time.Second
}

// GatewayConfig holds gateway server configuration.
type GatewayConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	MetricsPort  int    `json:"metrics_port" mapstructure:"metrics_port"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// StoreConfig holds audit store configuration.
type StoreConfig struct {
	Path          string `json:"path" mapstructure:"path"`
	RetentionDays int    `json:"retention_days" mapstructure:"retention_days"`
	PruneSchedule string `json:"prune_schedule" mapstructure:"prune_schedule"`
}

// ToolsetsConfig holds tool set manifest configuration.
type ToolsetsConfig struct {
	ManifestPath string `json:"manifest_path" mapstructure:"manifest_path"`
	Watch        bool   `json:"watch" mapstructure:"watch"`
}

// AIConfig holds AI provider configuration.
type AIConfig struct {
	Model    string      `json:"model" mapstructure:"model"`
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile represents an AI provider profile.
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			TTLMinutes:             30,
			MaxSessionsPerUser:     10,
			CleanupIntervalSeconds: 60,
			QueryTimeoutSeconds:    60,
		},
		Gateway: GatewayConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			MetricsPort: 9090,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
		Store: StoreConfig{
			RetentionDays: 30,
			PruneSchedule: "0 3 * * *",
		},
		AI: AIConfig{
			Model:    "claude-3-5-sonnet-20241022",
			Profiles: []AIProfile{},
		},
	}
}

// String returns a JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Session.TTLMinutes <= 0 {
		return fmt.Errorf("session.ttl_minutes must be positive")
	}
	if c.Session.MaxSessionsPerUser <= 0 {
		return fmt.Errorf("session.max_sessions_per_user must be positive")
	}
	if c.Session.CleanupIntervalSeconds <= 0 {
		return fmt.Errorf("session.cleanup_interval_seconds must be positive")
	}
	if c.Session.QueryTimeoutSeconds <= 0 {
		return fmt.Errorf("session.query_timeout_seconds must be positive")
	}

	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port must be in 1-65535")
	}
	if c.Gateway.MetricsPort < 0 || c.Gateway.MetricsPort > 65535 {
		return fmt.Errorf("gateway.metrics_port must be in 0-65535")
	}
	if c.Gateway.SharedSecret == "" {
		return fmt.Errorf("gateway.shared_secret is required")
	}

	if c.Store.RetentionDays < 0 {
		return fmt.Errorf("store.retention_days cannot be negative")
	}

	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if profile.Provider != "anthropic" && profile.Provider != "openai" {
			return fmt.Errorf("AI profile %s: invalid provider %s (must be: anthropic, openai)", profile.ID, profile.Provider)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
	}

	return nil
}
