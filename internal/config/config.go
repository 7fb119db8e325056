// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PesapalConfig struct {
	ConsumerKey    string `yaml:"consumer_key"`
	ConsumerSecret string `yaml:"consumer_secret"`
	BaseURL        string `yaml:"base_url"` // override for sandbox/tests
	Sandbox        bool   `yaml:"sandbox"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type PaymentsConfig struct {
	SigningSecret       string        `yaml:"signing_secret"`
	AmountTolerance     float64       `yaml:"amount_tolerance"`
	ReconcileInterval   time.Duration `yaml:"reconcile_interval"`
	ReconcileStaleAfter time.Duration `yaml:"reconcile_stale_after"`
	// Rate limit for the client-initiated verify endpoint, per subject.
	VerifyRateLimit  int           `yaml:"verify_rate_limit"`
	VerifyRateWindow time.Duration `yaml:"verify_rate_window"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Pesapal  PesapalConfig  `yaml:"pesapal"`
	Auth     AuthConfig     `yaml:"auth"`
	Payments PaymentsConfig `yaml:"payments"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Payments.AmountTolerance <= 0 {
		cfg.Payments.AmountTolerance = 0.01
	}
	if cfg.Payments.ReconcileInterval <= 0 {
		cfg.Payments.ReconcileInterval = time.Minute
	}
	if cfg.Payments.ReconcileStaleAfter <= 0 {
		cfg.Payments.ReconcileStaleAfter = 10 * time.Minute
	}
	if cfg.Payments.VerifyRateLimit <= 0 {
		cfg.Payments.VerifyRateLimit = 30
	}
	if cfg.Payments.VerifyRateWindow <= 0 {
		cfg.Payments.VerifyRateWindow = time.Minute
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Pesapal.ConsumerKey == "" || cfg.Pesapal.ConsumerSecret == "" {
		return nil, errors.New("pesapal.consumer_key and pesapal.consumer_secret are required")
	}
	if cfg.Payments.SigningSecret == "" {
		return nil, errors.New("payments.signing_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
