package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_Defaults(t *testing.T) {
	t.Setenv("DISPENSE_DB", "")
	t.Setenv("DISPENSE_LOG_LEVEL", "")

	cfg, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "dispense.db", cfg.DBPath)
	assert.Equal(t, 10, cfg.AuditMaxSizeMB)
	assert.Empty(t, cfg.AuditFile)
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("DISPENSE_DB", "/tmp/x.db")
	t.Setenv("DISPENSE_LOG_LEVEL", "debug")
	t.Setenv("DISPENSE_AUDIT_FILE", "/tmp/audit.jsonl")
	t.Setenv("DISPENSE_JWT_SECRET", "s3cret")

	cfg, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	assert.Equal(t, "/tmp/audit.jsonl", cfg.AuditFile)
	assert.Equal(t, "s3cret", cfg.JWTSecret)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadEnv_BadInt(t *testing.T) {
	t.Setenv("DISPENSE_AUDIT_MAX_SIZE_MB", "lots")

	_, err := LoadEnv()
	require.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Env{LogLevel: tt.in}.SlogLevel()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
