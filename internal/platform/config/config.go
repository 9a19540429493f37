package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv string `env:"APP_ENV" default:"development"`
	Host   string `env:"HOST" default:"localhost"`
	Port   int    `env:"PORT" default:"8765"`

	BroadcastInterval time.Duration `env:"BROADCAST_INTERVAL" default:"10s"`
	SendTimeout       time.Duration `env:"SEND_TIMEOUT" default:"5s"`
	MaxSubscribers    int           `env:"MAX_SUBSCRIBERS" default:"10000"`
	SendOnConnect     bool          `env:"SEND_ON_CONNECT" default:"false"`

	AllowedOrigins   []string `env:"ALLOWED_ORIGINS"`
	ConnectRateLimit float64  `env:"CONNECT_RATE_LIMIT" default:"10"`
	ConnectRateBurst int      `env:"CONNECT_RATE_BURST" default:"20"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

// Address is the host:port the server listens on.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.BroadcastInterval <= 0 {
		return errors.New("BROADCAST_INTERVAL must be positive")
	}
	if cfg.SendTimeout <= 0 {
		return errors.New("SEND_TIMEOUT must be positive")
	}
	if cfg.SendTimeout >= cfg.BroadcastInterval {
		return fmt.Errorf("SEND_TIMEOUT (%v) must be shorter than BROADCAST_INTERVAL (%v)", cfg.SendTimeout, cfg.BroadcastInterval)
	}
	if cfg.MaxSubscribers < 1 {
		return errors.New("MAX_SUBSCRIBERS must be at least 1")
	}
	if cfg.ConnectRateLimit <= 0 || cfg.ConnectRateBurst < 1 {
		return errors.New("CONNECT_RATE_LIMIT and CONNECT_RATE_BURST must be positive")
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	return nil
}
