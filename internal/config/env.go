// Package config loads process configuration from the environment and the
// business policy from a CUE file.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Env is the process configuration read from DISPENSE_* variables.
type Env struct {
	DBPath         string `env:"DISPENSE_DB"                 envDefault:"dispense.db"`
	LogLevel       string `env:"DISPENSE_LOG_LEVEL"          envDefault:"info"`
	AuditFile      string `env:"DISPENSE_AUDIT_FILE"`
	AuditMaxSizeMB int    `env:"DISPENSE_AUDIT_MAX_SIZE_MB"  envDefault:"10"`
	PolicyFile     string `env:"DISPENSE_POLICY_FILE"`
	JWTSecret      string `env:"DISPENSE_JWT_SECRET"`
}

// LoadEnv parses Env from the process environment.
func LoadEnv() (Env, error) {
	var cfg Env
	if err := env.Parse(&cfg); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// SlogLevel maps LogLevel to a slog level.
func (e Env) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(e.LogLevel)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", e.LogLevel)
	}
}
