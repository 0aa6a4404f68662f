package config

import "time"

// Config is the root configuration for Beacon.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Hub      HubConfig      `yaml:"hub"`
	Client   ClientConfig   `yaml:"client"`
	Tunnel   TunnelConfig   `yaml:"tunnel"`
}

type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	PublicURL string `yaml:"public_url"`
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`
}

type AuthConfig struct {
	APITokens []APITokenEntry `yaml:"api_tokens"`
}

type APITokenEntry struct {
	Name      string `yaml:"name"`
	TokenHash string `yaml:"token_hash"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type HubConfig struct {
	// SubscriberBuffer is the per-subscriber queue depth before a slow
	// subscriber is disconnected.
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

type ClientConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffCap  time.Duration `yaml:"backoff_cap"`
}

type TunnelConfig struct {
	Enabled   bool   `yaml:"enabled"`
	AuthToken string `yaml:"authtoken"`
	Domain    string `yaml:"domain"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8430,
			LogLevel: "info",
		},
		Database: DatabaseConfig{
			Path:          "~/.config/beacon/beacon.db",
			RetentionDays: 90,
		},
		Hub: HubConfig{
			SubscriberBuffer: 64,
		},
		Client: ClientConfig{
			MaxAttempts: 5,
			BackoffBase: time.Second,
			BackoffCap:  30 * time.Second,
		},
	}
}
