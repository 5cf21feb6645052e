// Package config loads runtime settings from .env files and BREAKOUT_* variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeServer Mode = "server"
	ModeHost   Mode = "host"
	ModeClient Mode = "client"
)

type Config struct {
	Mode         Mode          `env:"BREAKOUT_MODE" envDefault:"host"`
	ListenAddr   string        `env:"BREAKOUT_LISTEN_ADDR" envDefault:":8080"`
	ServerURL    string        `env:"BREAKOUT_SERVER_URL"`
	PlayerName   string        `env:"BREAKOUT_PLAYER_NAME"`
	DatabaseURL  string        `env:"BREAKOUT_DATABASE_URL"`
	RedisAddr    string        `env:"BREAKOUT_REDIS_ADDR"`
	Discovery    bool          `env:"BREAKOUT_DISCOVERY" envDefault:"false"`
	Autopilot    bool          `env:"BREAKOUT_AUTOPILOT" envDefault:"false"`
	PingInterval time.Duration `env:"BREAKOUT_PING_INTERVAL" envDefault:"1s"`
	DialAttempts uint          `env:"BREAKOUT_DIAL_ATTEMPTS" envDefault:"5"`
}

// Load reads files (default .env) into the environment without overriding
// what is already set, then parses the environment. Missing files are fine.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Mode = Mode(strings.ToLower(string(cfg.Mode)))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeServer, ModeHost:
		if c.ListenAddr == "" {
			return fmt.Errorf("%s mode needs BREAKOUT_LISTEN_ADDR", c.Mode)
		}
	case ModeClient:
		if c.ServerURL == "" && !c.Discovery {
			return fmt.Errorf("client mode needs BREAKOUT_SERVER_URL or BREAKOUT_DISCOVERY")
		}
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("ping interval must be positive")
	}
	return nil
}
