// Package config loads environment-driven settings.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	env "github.com/Netflix/go-env"
)

type Config struct {
	Host           string `env:"HOST,default=0.0.0.0"`
	Port           int    `env:"PORT,default=8080"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/messages"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`
	JWTSecret      string `env:"JWT_SECRET,required=true"`

	// SessionBuffer is the per-session outbound frame buffer; a session
	// that falls this far behind starts dropping events.
	SessionBuffer int `env:"SESSION_BUFFER,default=32"`
}

func Load() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to Info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
