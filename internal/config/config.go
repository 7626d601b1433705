// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Dispatch backends.
const (
	DispatchRabbitMQ = "rabbitmq"
	DispatchAsynq    = "asynq"
)

// Config holds all configuration for the application.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Dispatch DispatchConfig
	Webhook  WebhookConfig
	Auth     AuthConfig
	YouTube  YouTubeConfig
	Apify    ApifyConfig
	Sweeper  SweeperConfig
	Logging  LoggingConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// DatabaseConfig contains database connection configuration. When Enabled is
// false the server keeps jobs in memory.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type DatabaseConfig struct {
	Enabled        bool
	Host           string
	Name           string
	User           string
	Password       string
	SSLMode        string
	Port           int
	MaxConnections int
	MinConnections int
	MaxIdleTime    time.Duration
	MaxLifetime    time.Duration
}

// RedisConfig contains the Redis connection used for caching, quota
// accounting and the asynq dispatch backend.
type RedisConfig struct {
	URL        string
	CatalogTTL time.Duration
}

// RabbitMQConfig contains RabbitMQ connection and queue configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type RabbitMQConfig struct {
	Host             string
	User             string
	Password         string
	Exchange         string
	Queue            string
	RoutingKey       string
	CancelRoutingKey string
	Port             int
}

// DispatchConfig selects how jobs reach the executor.
type DispatchConfig struct {
	Backend    string
	AsynqQueue string
	Timeout    time.Duration
}

// WebhookConfig contains executor callback configuration.
type WebhookConfig struct {
	Secret         string
	Path           string
	MaxPayloadSize int64
}

// AuthConfig contains the API keys accepted on /api routes. Empty disables auth.
type AuthConfig struct {
	APIKeys []string
}

// YouTubeConfig contains Data API credentials and quota limits.
type YouTubeConfig struct {
	APIKey         string
	DailyQuota     int
	QuotaThreshold int
}

// ApifyConfig contains the Apify token and actor IDs for TikTok and Instagram.
type ApifyConfig struct {
	Token          string
	BaseURL        string
	TikTokActor    string
	InstagramActor string
	Timeout        time.Duration
}

// SweeperConfig controls the stale job sweeper.
type SweeperConfig struct {
	Interval        time.Duration
	StalenessWindow time.Duration
	BatchSize       int
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string
	File  string
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	setDefaults()

	// Read environment variables: APP_DATABASE_HOST -> database.host
	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Try to read config file
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks settings the server cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Webhook.Secret) == "" {
		return errors.New("webhook.secret is required")
	}
	switch c.Dispatch.Backend {
	case DispatchRabbitMQ, DispatchAsynq:
	default:
		return fmt.Errorf("dispatch.backend must be %q or %q, got %q", DispatchRabbitMQ, DispatchAsynq, c.Dispatch.Backend)
	}
	if c.Dispatch.Backend == DispatchAsynq && c.Redis.URL == "" {
		return errors.New("redis.url is required for the asynq dispatch backend")
	}
	if c.Sweeper.StalenessWindow <= 0 {
		return errors.New("sweeper.stalenesswindow must be positive")
	}
	return nil
}

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.shutdowntimeout", 30*time.Second)

	// Database
	viper.SetDefault("database.enabled", true)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "trending_pipeline")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxconnections", 10)
	viper.SetDefault("database.minconnections", 2)
	viper.SetDefault("database.maxidletime", 10*time.Minute)
	viper.SetDefault("database.maxlifetime", 1*time.Hour)

	// Redis
	viper.SetDefault("redis.url", "")
	viper.SetDefault("redis.catalogttl", 15*time.Minute)

	// RabbitMQ
	viper.SetDefault("rabbitmq.host", "localhost")
	viper.SetDefault("rabbitmq.port", 5672)
	viper.SetDefault("rabbitmq.user", "guest")
	viper.SetDefault("rabbitmq.password", "guest")
	viper.SetDefault("rabbitmq.exchange", "production.jobs")
	viper.SetDefault("rabbitmq.queue", "production.jobs.dispatch")
	viper.SetDefault("rabbitmq.routingkey", "job.dispatch")
	viper.SetDefault("rabbitmq.cancelroutingkey", "job.cancel")

	// Dispatch
	viper.SetDefault("dispatch.backend", DispatchRabbitMQ)
	viper.SetDefault("dispatch.asynqqueue", "production")
	viper.SetDefault("dispatch.timeout", 5*time.Second)

	// Webhook
	viper.SetDefault("webhook.secret", "")
	viper.SetDefault("webhook.path", "/webhooks/jobs")
	viper.SetDefault("webhook.maxpayloadsize", 1048576) // 1MB

	// Auth
	viper.SetDefault("auth.apikeys", []string{})

	// YouTube
	viper.SetDefault("youtube.apikey", "")
	viper.SetDefault("youtube.dailyquota", 10000)
	viper.SetDefault("youtube.quotathreshold", 90)

	// Apify
	viper.SetDefault("apify.token", "")
	viper.SetDefault("apify.baseurl", "https://api.apify.com")
	viper.SetDefault("apify.tiktokactor", "clockworks~tiktok-scraper")
	viper.SetDefault("apify.instagramactor", "apify~instagram-hashtag-scraper")
	viper.SetDefault("apify.timeout", 120*time.Second)

	// Sweeper
	viper.SetDefault("sweeper.interval", 1*time.Minute)
	viper.SetDefault("sweeper.stalenesswindow", 30*time.Minute)
	viper.SetDefault("sweeper.batchsize", 100)

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
}
