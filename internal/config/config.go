package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr   string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath     string     `env:"DB_PATH" envDefault:"data/livecategories.db"`
	LogLevel   slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	CORSOrigin string     `env:"CORS_ORIGIN" envDefault:"http://localhost:3000"`

	DefaultBestOf int `env:"DEFAULT_BEST_OF" envDefault:"5"`

	BiddingTimeSeconds int `env:"BIDDING_TIME_SECONDS" envDefault:"30"`
	ListingTimeSeconds int `env:"LISTING_TIME_SECONDS" envDefault:"120"`
	SummaryTimeSeconds int `env:"SUMMARY_TIME_SECONDS" envDefault:"10"`
	ShotClockSeconds   int `env:"SHOT_CLOCK_SECONDS" envDefault:"5"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}

func (c *Config) BiddingTime() time.Duration {
	return time.Duration(c.BiddingTimeSeconds) * time.Second
}

func (c *Config) ListingTime() time.Duration {
	return time.Duration(c.ListingTimeSeconds) * time.Second
}

func (c *Config) SummaryTime() time.Duration {
	return time.Duration(c.SummaryTimeSeconds) * time.Second
}

func (c *Config) ShotClock() time.Duration {
	return time.Duration(c.ShotClockSeconds) * time.Second
}
