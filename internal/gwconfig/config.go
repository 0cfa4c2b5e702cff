// Package gwconfig defines the gateway's configuration shape, its defaults,
// and its validation rules. Load (load.go) reads an optional YAML file,
// overlays GAUD_-prefixed environment variables, and validates the result.
package gwconfig

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Default configuration values.
const (
	DefaultRoutingStrategy         = "priority"
	DefaultBreakerFailureThreshold = 3
	DefaultBreakerSuccessThreshold = 2
	DefaultBreakerOpenTimeout      = 30 * time.Second
	DefaultHTTPResponseTimeout     = 30 * time.Second
)

// ProviderConfig configures a single upstream provider registration.
type ProviderConfig struct {
	ID       string   `json:"id" validate:"required"`
	Enabled  bool     `json:"enabled"`
	BaseURLs []string `json:"base_urls" validate:"required,min=1,dive,url"`
	APIKey   string   `json:"api_key,omitempty"`
	Models   []string `json:"models,omitempty"`
}

// BreakerConfig tunes the per-provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold" validate:"min=1"`
	SuccessThreshold int           `json:"success_threshold" validate:"min=1"`
	OpenTimeout      time.Duration `json:"open_timeout" validate:"min=0"`
}

// KiroAuthConfig configures Kiro credential discovery.
type KiroAuthConfig struct {
	Mode         string `json:"mode" validate:"required,oneof=auto json sqlite env"`
	JSONFilePath string `json:"json_file_path,omitempty"`
	SqliteDBPath string `json:"sqlite_db_path,omitempty"`
	Region       string `json:"region,omitempty"`
}

// Config holds the gateway's full configuration.
type Config struct {
	RoutingStrategy string           `json:"routing_strategy" validate:"oneof=priority round_robin least_used random"`
	Providers       []ProviderConfig `json:"providers" validate:"dive"`
	Breaker         BreakerConfig    `json:"breaker"`
	KiroAuth        KiroAuthConfig   `json:"kiro_auth"`
	HTTPTimeout     time.Duration    `json:"http_timeout" validate:"min=0"`
}

// Default returns a Config with defaults applied (no providers configured).
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.RoutingStrategy == "" {
		c.RoutingStrategy = DefaultRoutingStrategy
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = DefaultBreakerFailureThreshold
	}
	if c.Breaker.SuccessThreshold == 0 {
		c.Breaker.SuccessThreshold = DefaultBreakerSuccessThreshold
	}
	if c.Breaker.OpenTimeout == 0 {
		c.Breaker.OpenTimeout = DefaultBreakerOpenTimeout
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = DefaultHTTPResponseTimeout
	}
	if c.KiroAuth.Mode == "" {
		c.KiroAuth.Mode = "auto"
	}
}

// Validate validates struct tags, then the cross-field rules the tags can't
// express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if seen[p.ID] {
			return fmt.Errorf("invalid config: duplicate provider id %q", p.ID)
		}
		seen[p.ID] = true
	}

	switch c.KiroAuth.Mode {
	case "json":
		if c.KiroAuth.JSONFilePath == "" {
			return errors.New("invalid config: kiro_auth.json_file_path required for mode=json")
		}
	case "sqlite":
		if c.KiroAuth.SqliteDBPath == "" {
			return errors.New("invalid config: kiro_auth.sqlite_db_path required for mode=sqlite")
		}
	}

	return nil
}
