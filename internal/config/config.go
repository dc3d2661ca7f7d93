package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	DatabaseURL     string `mapstructure:"DATABASE_URL"`
	JWTSecret       string `mapstructure:"JWT_SECRET"`
	ServerAddr      string `mapstructure:"SERVER_ADDR"`
	URLPrefix       string `mapstructure:"URL_PREFIX"`
	CoursesRoot     string `mapstructure:"COURSES_ROOT"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogDevelopment  bool   `mapstructure:"LOG_DEVELOPMENT"`
	OtelEnabled     bool   `mapstructure:"OTEL_ENABLED"`
	OtelExporter    string `mapstructure:"OTEL_EXPORTER"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
	SyncConcurrency int    `mapstructure:"SYNC_CONCURRENCY"`
}

var defaults = map[string]any{
	"DATABASE_URL":      "",
	"JWT_SECRET":        "",
	"SERVER_ADDR":       ":8080",
	"URL_PREFIX":        "/api/v1",
	"COURSES_ROOT":      "./courses",
	"LOG_LEVEL":         "info",
	"LOG_DEVELOPMENT":   false,
	"OTEL_ENABLED":      false,
	"OTEL_EXPORTER":     "stdout",
	"OTEL_SERVICE_NAME": "prairielearn-backend",
	"SYNC_CONCURRENCY":  4,
}

// Load reads configuration from the given .env file (if it exists) and the
// environment. An empty path means ".env" in the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path == "" {
		path = ".env"
	}
	v.AddConfigPath(filepath.Dir(path))
	v.SetConfigName(filepath.Base(path))
	v.SetConfigType("env")

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if cfg.SyncConcurrency < 1 {
		cfg.SyncConcurrency = 1
	}
	return &cfg, nil
}

// Validate reports settings a server process cannot run without.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.DatabaseURL == "" {
		result = multierror.Append(result, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		result = multierror.Append(result, errors.New("JWT_SECRET is required"))
	}
	switch c.OtelExporter {
	case "stdout", "none":
	default:
		result = multierror.Append(result, fmt.Errorf("OTEL_EXPORTER must be stdout or none, got %q", c.OtelExporter))
	}
	return result.ErrorOrNil()
}
