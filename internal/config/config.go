// Package config loads process configuration from an optional YAML
// file overlaid with RANGDA_* environment variables.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/layer-3/rangda/internal/logging"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Storage StorageConfig  `yaml:"storage" envconfig:"STORAGE"`
	Auth    AuthConfig     `yaml:"auth" envconfig:"AUTH"`
	Events  EventsConfig   `yaml:"events" envconfig:"EVENTS"`
	Logging logging.Config `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host string `yaml:"host" envconfig:"HOST"`
	Port int    `yaml:"port" envconfig:"PORT"`
}

// StorageConfig selects the store adapters.
type StorageConfig struct {
	Type     string `yaml:"type" envconfig:"TYPE"` // memory, redis
	RedisURL string `yaml:"redis_url" envconfig:"REDIS_URL"`
}

// AuthConfig contains the protocol parameters.
type AuthConfig struct {
	Domain              string   `yaml:"domain" envconfig:"DOMAIN"`
	AllowedDomains      []string `yaml:"allowed_domains" envconfig:"ALLOWED_DOMAINS"`
	Issuer              string   `yaml:"issuer" envconfig:"ISSUER"`
	ChallengeTTLSeconds int      `yaml:"challenge_ttl_seconds" envconfig:"CHALLENGE_TTL_SECONDS"`
	SessionTTLSeconds   int      `yaml:"session_ttl_seconds" envconfig:"SESSION_TTL_SECONDS"`
	AccessTTLSeconds    int      `yaml:"access_ttl_seconds" envconfig:"ACCESS_TTL_SECONDS"`
	RefreshTTLSeconds   int      `yaml:"refresh_ttl_seconds" envconfig:"REFRESH_TTL_SECONDS"`
}

// EventsConfig controls event publication.
type EventsConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 9000},
		Storage: StorageConfig{Type: "memory", RedisURL: "redis://localhost:6379/0"},
		Auth: AuthConfig{
			Domain:              "localhost",
			Issuer:              "rangda",
			ChallengeTTLSeconds: 300,
			SessionTTLSeconds:   86400,
			AccessTTLSeconds:    300,
			RefreshTTLSeconds:   432000, // 5 days
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads the optional YAML file at path, then overlays environment
// variables prefixed with RANGDA.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process("RANGDA", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Storage.Type != "memory" && c.Storage.Type != "redis" {
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	if c.Storage.Type == "redis" && c.Storage.RedisURL == "" {
		return fmt.Errorf("redis storage requires a redis URL")
	}
	if c.Auth.Domain == "" {
		return fmt.Errorf("auth domain is required")
	}
	if c.Auth.ChallengeTTLSeconds <= 0 {
		return fmt.Errorf("challenge TTL must be positive")
	}
	return nil
}
