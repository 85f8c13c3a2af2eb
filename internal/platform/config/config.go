package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
	"golang.org/x/text/language"
)

const minSessionSecretLen = 32

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" default:"serverlist"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisURL      string `env:"REDIS_URL"`

	SessionSecret string        `env:"SESSION_SECRET"`
	SessionMaxAge time.Duration `env:"SESSION_MAX_AGE" default:"168h"` // 7 days

	StatusAPIURL  string `env:"STATUS_API_URL" default:"https://api.mcsrvstat.us/2"`
	StatusBedrock bool   `env:"STATUS_BEDROCK" default:"true"`
	SortLocale    string `env:"SORT_LOCALE" default:"en"`

	AuthRateLimit float64 `env:"AUTH_RATE_LIMIT" default:"0.2"` // requests per second per IP
	AuthRateBurst int     `env:"AUTH_RATE_BURST" default:"5"`
	VoteRateLimit float64 `env:"VOTE_RATE_LIMIT" default:"1"` // requests per second per session
	VoteRateBurst int     `env:"VOTE_RATE_BURST" default:"10"`

	MaxWebSocketConnections int `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Locale returns the parsed SORT_LOCALE. validate guarantees it parses.
func (c *Config) Locale() language.Tag {
	tag, err := language.Parse(c.SortLocale)
	if err != nil {
		return language.English
	}
	return tag
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func validate(cfg *Config) error {
	required := []struct {
		name  string
		value string
	}{
		{"MONGO_URI", cfg.MongoURI},
		{"DATABASE_URL", cfg.DatabaseURL},
		{"REDIS_URL", cfg.RedisURL},
		{"SESSION_SECRET", cfg.SessionSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if len(cfg.SessionSecret) < minSessionSecretLen {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters", minSessionSecretLen)
	}
	if cfg.SessionMaxAge <= 0 {
		return errors.New("SESSION_MAX_AGE must be positive")
	}
	if _, err := language.Parse(cfg.SortLocale); err != nil {
		return fmt.Errorf("SORT_LOCALE is not a valid language tag: %w", err)
	}
	if cfg.AuthRateLimit <= 0 || cfg.AuthRateBurst < 1 {
		return errors.New("AUTH_RATE_LIMIT must be positive and AUTH_RATE_BURST at least 1")
	}
	if cfg.VoteRateLimit <= 0 || cfg.VoteRateBurst < 1 {
		return errors.New("VOTE_RATE_LIMIT must be positive and VOTE_RATE_BURST at least 1")
	}
	if cfg.MaxWebSocketConnections < 1 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS must be at least 1")
	}

	return nil
}
