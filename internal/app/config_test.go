package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, int64(1), cfg.SystemPrincipalID)
	require.Equal(t, "*/15 * * * *", cfg.OverdueSweepCron)
	require.Equal(t, 168*time.Hour, cfg.IdempotencyRetention)
	require.Equal(t, int32(10), cfg.PGMaxConns)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsNonPositiveSystemPrincipal(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("SYSTEM_PRINCIPAL_ID", "0")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestRedisOptions(t *testing.T) {
	cfg := &Config{RedisAddr: "cache:6379", RedisPassword: "pw", RedisDB: 4}
	opts := cfg.Redis()
	require.Equal(t, "cache:6379", opts.Addr)
	require.Equal(t, "pw", opts.Password)
	require.Equal(t, 4, opts.DB)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, parseLevel(" warning "))
	require.Equal(t, slog.LevelError, parseLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLevel(""))
}
