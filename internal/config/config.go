// Package config provides configuration management for the Finish Line timing pipeline.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App         AppConfig         `mapstructure:"app" validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database" validate:"required"`
	Gateway     GatewayConfig     `mapstructure:"gateway" validate:"required"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline" validate:"required"`
	Ranking     RankingConfig     `mapstructure:"ranking" validate:"required"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard"`
	Metrics     MetricsConfig     `mapstructure:"metrics" validate:"required"`
	Health      HealthConfig      `mapstructure:"health"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host" validate:"required"`
	Port           int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name           string `mapstructure:"name" validate:"required"`
	User           string `mapstructure:"user" validate:"required"`
	Password       string `mapstructure:"password" validate:"required"`
	SSLMode        string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections int    `mapstructure:"max_connections" validate:"required,gt=0"`
}

// GatewayConfig represents the reader-feed websocket listener configuration
type GatewayConfig struct {
	ListenAddress   string  `mapstructure:"listen_address" validate:"required"`
	Path            string  `mapstructure:"path" validate:"required"`
	ReadsPerSecond  float64 `mapstructure:"reads_per_second" validate:"required,gt=0"`
	Burst           int     `mapstructure:"burst" validate:"required,gt=0"`
	MaxMessageBytes int64   `mapstructure:"max_message_bytes" validate:"required,gt=0"`
}

// PipelineConfig represents the batch processing worker pool configuration
type PipelineConfig struct {
	Workers             int `mapstructure:"workers" validate:"required,gt=0"`
	BatchSize           int `mapstructure:"batch_size" validate:"required,gt=0"`
	BatchTimeoutSeconds int `mapstructure:"batch_timeout_seconds" validate:"required,gt=0"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" validate:"required,gt=0"`
}

// RankingConfig represents rank recomputation configuration
type RankingConfig struct {
	DebounceMs           int64 `mapstructure:"debounce_ms" validate:"gte=0"`
	FlushIntervalSeconds int   `mapstructure:"flush_interval_seconds" validate:"required,gt=0"`
}

// LeaderboardConfig represents the outbound leaderboard push configuration
type LeaderboardConfig struct {
	Enabled             bool     `mapstructure:"enabled"`
	WebhookURLs         []string `mapstructure:"webhook_urls" validate:"omitempty,dive,url"`
	PushIntervalSeconds int      `mapstructure:"push_interval_seconds" validate:"omitempty,gt=0"`
	TimeoutSeconds      int      `mapstructure:"timeout_seconds" validate:"omitempty,gt=0"`
	MaxRetries          int      `mapstructure:"max_retries" validate:"omitempty,gte=0"`
	TopN                int      `mapstructure:"top_n" validate:"omitempty,gt=0"`
	AuthToken           string   `mapstructure:"auth_token"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// HealthConfig represents the health check server configuration
type HealthConfig struct {
	Port string `mapstructure:"port"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// BatchTimeout returns the bounded processing timeout for one batch.
func (c *PipelineConfig) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutSeconds) * time.Second
}

// PollInterval returns the delay between unprocessed-batch pulls.
func (c *PipelineConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Debounce returns the window within which rank recompute requests for
// the same checkpoint collapse into one.
func (c *RankingConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}
