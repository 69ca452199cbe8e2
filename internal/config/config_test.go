package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := FromEnv()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, BackendSession, cfg.Backend)
	assert.Equal(t, IdentityLocal, cfg.Identity)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 5*time.Second, cfg.CollabTimeout)
	assert.Equal(t, "pluk:plants:", cfg.RedisChannelPrefix)
	assert.Empty(t, cfg.RedisAddr)
	assert.False(t, cfg.SecureCookies)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PLUK_BACKEND", "Remote")
	t.Setenv("DB_PATH", "/tmp/p.db")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("SECURE_COOKIES", "true")
	t.Setenv("COLLAB_TIMEOUT", "2s")
	t.Setenv("IDENTIFY_DELAY", "0s")

	cfg, err := FromEnv()

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, BackendRemote, cfg.Backend)
	assert.Equal(t, "/tmp/p.db", cfg.DBPath)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.True(t, cfg.SecureCookies)
	assert.Equal(t, 2*time.Second, cfg.CollabTimeout)
	assert.Equal(t, time.Duration(0), cfg.IdentifyDelay)
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}},
		{"short secret", map[string]string{"JWT_SECRET": "short"}},
		{"bad port", map[string]string{"PORT": "eighty"}},
		{"port out of range", map[string]string{"PORT": "70000"}},
		{"bad backend", map[string]string{"PLUK_BACKEND": "mongo"}},
		{"bad identity", map[string]string{"PLUK_IDENTITY": "ldap"}},
		{"remote identity without key", map[string]string{"PLUK_IDENTITY": "remote"}},
		{"bad duration", map[string]string{"COLLAB_TIMEOUT": "soon"}},
		{"bad bool", map[string]string{"SECURE_COOKIES": "maybe"}},
		{"bad level", map[string]string{"LOG_LEVEL": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", testSecret)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestFromEnv_ReportsEveryBadVariable(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "x")
	t.Setenv("REDIS_DB", "y")

	_, err := FromEnv()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "REDIS_DB")
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("JWT_SECRET="+testSecret+"\nPORT=7070\n"), 0o600))
	t.Chdir(dir)

	// real environment wins over .env
	t.Setenv("PORT", "7171")
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 7171, cfg.Port)
	assert.Equal(t, testSecret, cfg.JWTSecret)
}
