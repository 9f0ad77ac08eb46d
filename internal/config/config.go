package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `default:"development"`

	UpstreamURL      string `split_words:"true" default:"https://fakestoreapi.com/products"`
	FetchTimeout     int    `split_words:"true" default:"30"`
	PollInterval     int    `split_words:"true" default:"3600"`
	WorkerCount      int    `split_words:"true" default:"8"`
	DatabaseURL      string `split_words:"true" required:"true"`
	TelegramBotToken string `split_words:"true"`
	PollingTimeout   int    `split_words:"true" default:"60"`
	RedisURL         string `split_words:"true"`
	LockTTL          int    `split_words:"true" default:"600"`
	ListenAddr       string `split_words:"true" default:":8080"`
}

// Load reads configuration from the environment, with an optional .env
// file for local development. Intervals and timeouts are in seconds.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %v", err)
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("invalid POLL_INTERVAL: must be positive")
	}
	if cfg.FetchTimeout <= 0 {
		return nil, fmt.Errorf("invalid FETCH_TIMEOUT: must be positive")
	}

	return &cfg, nil
}

// PushEnabled reports whether a Telegram bot token is configured.
func (c *Config) PushEnabled() bool {
	return c.TelegramBotToken != ""
}

// LockEnabled reports whether a Redis run lock is configured.
func (c *Config) LockEnabled() bool {
	return c.RedisURL != ""
}
