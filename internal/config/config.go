// Package config loads service settings from defaults, an optional config
// file, a .env file and SURVEYSYNC_* environment variables, in rising order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "SURVEYSYNC"

// Config is the resolved service configuration.
type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`
	// Empty disables the gRPC health listener.
	GRPCAddr string `mapstructure:"grpc_addr"`
	// Empty selects the in-memory store.
	PGDSN          string `mapstructure:"pg_dsn"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start"`

	DeviceTokenSecret  string        `mapstructure:"device_token_secret"`
	RefreshTokenSecret string        `mapstructure:"refresh_token_secret"`
	CredentialTTL      time.Duration `mapstructure:"credential_ttl"`
	RefreshTTL         time.Duration `mapstructure:"refresh_ttl"`

	MaxBatch       int      `mapstructure:"max_batch"`
	MaxBodyBytes   int64    `mapstructure:"max_body_bytes"`
	RateBurst      int      `mapstructure:"rate_burst"`
	RatePerSec     int      `mapstructure:"rate_per_sec"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Defaults returns the baseline value of every key.
func Defaults() map[string]any {
	return map[string]any{
		"http_addr":            ":8080",
		"grpc_addr":            ":9090",
		"pg_dsn":               "",
		"migrate_on_start":     false,
		"device_token_secret":  "",
		"refresh_token_secret": "",
		"credential_ttl":       365 * 24 * time.Hour,
		"refresh_ttl":          30 * 24 * time.Hour,
		"max_batch":            100,
		"max_body_bytes":       10 << 20,
		"rate_burst":           20,
		"rate_per_sec":         10,
		"allowed_origins":      []string{},
		"log_level":            "info",
		"shutdown_timeout":     10 * time.Second,
	}
}

// Load resolves configuration. configFile may be empty.
func Load(configFile string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	v := viper.New()
	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	cfg.AllowedOrigins = splitList(cfg.AllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DeviceTokenSecret) == "" {
		errs = append(errs, errors.New("device_token_secret is required"))
	}
	if c.CredentialTTL <= 0 {
		errs = append(errs, errors.New("credential_ttl must be positive"))
	}
	if c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("refresh_ttl must be positive"))
	}
	if c.MaxBatch <= 0 {
		errs = append(errs, errors.New("max_batch must be positive"))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	return errors.Join(errs...)
}

// RefreshSecret falls back to the device secret when no dedicated key is set.
func (c *Config) RefreshSecret() string {
	if c.RefreshTokenSecret != "" {
		return c.RefreshTokenSecret
	}
	return c.DeviceTokenSecret
}

// splitList accepts both list values from a file and a single
// comma-separated environment value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
