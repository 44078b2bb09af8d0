package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"ADDR", "DATABASE_URL", "JWT_SECRET", "JWT_EXPIRY", "BCRYPT_COST", "CORS_ORIGIN",
	"UPLOAD_DIR", "MAX_UPLOAD_BYTES", "SMTP_HOST", "SMTP_PORT", "REDIS_ADDR", "REDIS_DB",
	"LOG_LEVEL", "LOG_FORMAT", "BOOTSTRAP_ADMIN_EMAIL", "BOOTSTRAP_ADMIN_PASSWORD",
}

// clearEnv blanks every key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, "*", cfg.CORSOrigin)
	assert.True(t, cfg.DefaultSecret())
	assert.False(t, cfg.SMTPEnabled())
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides variables that already exist, even if
	// empty, so drop the ones the file sets.
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("JWT_EXPIRY")
	os.Unsetenv("SMTP_HOST")

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from-file\nJWT_EXPIRY=7d\nSMTP_HOST=mail.local\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("JWT_EXPIRY")
		os.Unsetenv("SMTP_HOST")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTExpiry)
	assert.True(t, cfg.SMTPEnabled())
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"bad cost":          {"BCRYPT_COST": "99"},
		"bad expiry":        {"JWT_EXPIRY": "soon"},
		"negative expiry":   {"JWT_EXPIRY": "-1h"},
		"bad port":          {"SMTP_PORT": "abc"},
		"bad log format":    {"LOG_FORMAT": "xml"},
		"half bootstrap":    {"BOOTSTRAP_ADMIN_EMAIL": "root@example.com"},
		"zero upload limit": {"MAX_UPLOAD_BYTES": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}
