package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                 string
	AppEnv                  string
	AppPort                 string
	LogLevel                string
	LogFile                 string
	DatabaseURL             string
	RedisURL                string
	NATSURL                 string
	ChannelBase             string
	JWTSecret               string
	WebhookSecret           string
	BookingURLTemplate      string
	TrackingCodeLength      int
	TrackingCodeMaxAttempts int
	MaxEvidenceLinks        int
	CatalogCacheTTL         time.Duration
	WebhookRateLimit        int
	WebhookRateWindow       time.Duration
	OTelEndpoint            string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("STUDIO")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Studio Homework API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("channel.base", "studio:homework")
	v.SetDefault("booking.url_template", "https://book.studio.local/t/{teacher_id}")
	v.SetDefault("tracking.code_length", 10)
	v.SetDefault("tracking.max_attempts", 5)
	v.SetDefault("evidence.max_links", 20)
	v.SetDefault("catalog.cache_ttl", "10m")
	v.SetDefault("webhook.rate_limit", 120)
	v.SetDefault("webhook.rate_window", "1m")

	cacheTTL, err := parseDuration(v.GetString("catalog.cache_ttl"), 10*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid catalog cache ttl: %w", err)
	}

	rateWindow, err := parseDuration(v.GetString("webhook.rate_window"), time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid webhook rate window: %w", err)
	}

	cfg := Config{
		AppName:                 v.GetString("app.name"),
		AppEnv:                  v.GetString("app.env"),
		AppPort:                 v.GetString("app.port"),
		LogLevel:                strings.ToLower(v.GetString("log.level")),
		LogFile:                 v.GetString("log.file"),
		DatabaseURL:             v.GetString("database.url"),
		RedisURL:                v.GetString("redis.url"),
		NATSURL:                 v.GetString("nats.url"),
		ChannelBase:             v.GetString("channel.base"),
		JWTSecret:               v.GetString("jwt.secret"),
		WebhookSecret:           v.GetString("webhook.secret"),
		BookingURLTemplate:      v.GetString("booking.url_template"),
		TrackingCodeLength:      v.GetInt("tracking.code_length"),
		TrackingCodeMaxAttempts: v.GetInt("tracking.max_attempts"),
		MaxEvidenceLinks:        v.GetInt("evidence.max_links"),
		CatalogCacheTTL:         cacheTTL,
		WebhookRateLimit:        v.GetInt("webhook.rate_limit"),
		WebhookRateWindow:       rateWindow,
		OTelEndpoint:            v.GetString("otel.exporter_endpoint"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.WebhookSecret == "" {
		return Config{}, fmt.Errorf("webhook secret must be provided")
	}

	if cfg.TrackingCodeLength < 8 {
		cfg.TrackingCodeLength = 8
	}

	if cfg.TrackingCodeMaxAttempts <= 0 {
		cfg.TrackingCodeMaxAttempts = 5
	}

	if cfg.MaxEvidenceLinks <= 0 {
		cfg.MaxEvidenceLinks = 20
	}

	return cfg, nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}

	return time.ParseDuration(value)
}
