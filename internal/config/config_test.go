package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEngineConfigDefaults(t *testing.T) {
	t.Setenv("KIBITZ_ENGINE_PATH", "")
	t.Setenv("KIBITZ_ENGINE_HASH_MB", "")
	t.Setenv("KIBITZ_ENGINE_THREADS", "")
	t.Setenv("KIBITZ_ENGINE_INIT_TIMEOUT", "")

	cfg := LoadEngineConfig()

	assert.Equal(t, &EngineConfig{
		EnginePath:  "stockfish",
		HashMB:      128,
		Threads:     1,
		InitTimeout: 10 * time.Second,
	}, cfg)
}

func TestLoadEngineConfig(t *testing.T) {
	t.Setenv("KIBITZ_ENGINE_PATH", "/usr/games/stockfish")
	t.Setenv("KIBITZ_ENGINE_HASH_MB", "512")
	t.Setenv("KIBITZ_ENGINE_THREADS", "4")
	t.Setenv("KIBITZ_ENGINE_INIT_TIMEOUT", "3s")

	cfg := LoadEngineConfig()

	assert.Equal(t, &EngineConfig{
		EnginePath:  "/usr/games/stockfish",
		HashMB:      512,
		Threads:     4,
		InitTimeout: 3 * time.Second,
	}, cfg)
}

func TestLoadServerConfig(t *testing.T) {
	t.Setenv("KIBITZ_SERVER_HOST", "localhost")
	t.Setenv("KIBITZ_SERVER_PORT", "4444")
	t.Setenv("KIBITZ_TOKEN", "secret")
	t.Setenv("KIBITZ_PREFORK", "false")
	t.Setenv("KIBITZ_REDIS_URL", "redis://localhost:6379")
	t.Setenv("KIBITZ_POSTGRES_URL", "")

	cfg := LoadServerConfig()

	assert.Equal(t, "localhost", cfg.ServerHost)
	assert.Equal(t, "4444", cfg.ServerPort)
	assert.Equal(t, "secret", cfg.Token)
	assert.False(t, cfg.Prefork)
	assert.False(t, cfg.StorageEnabled())

	cfg.PostgresURL = "postgres://localhost/kibitz"
	assert.True(t, cfg.StorageEnabled())
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		format   string
		wantErr  bool
		wantText string
	}{
		{name: "defaults", wantText: "level=INFO msg=hello"},
		{name: "json", level: "info", format: "json", wantText: `"msg":"hello"`},
		{name: "warn hides info", level: "WARN"},
		{name: "bad level", level: "loud", wantErr: true},
		{name: "bad format", format: "xml", wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buf bytes.Buffer

			logger, err := newLogger(&buf, test.level, test.format)
			if test.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			logger.Info("hello")

			if test.wantText == "" {
				assert.Empty(t, buf.String())
			} else {
				assert.Contains(t, buf.String(), test.wantText)
			}
		})
	}
}
