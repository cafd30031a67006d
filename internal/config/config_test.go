package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// base64 от 32 нулевых байт
const testKey = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("MT5_CRED_KEY", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("METAAPI_TOKEN", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Sync.RateLimit)
	assert.Equal(t, time.Hour, cfg.Sync.RateWindow)
	assert.Equal(t, 90*24*time.Hour, cfg.Sync.DefaultLookback)
	assert.Equal(t, 60*time.Second, cfg.Sync.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Providers.Timeout)
	assert.Equal(t, 12, cfg.Security.BcryptCost)
	assert.False(t, cfg.AuthEnabled())
	assert.False(t, cfg.CloudEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("MT5_CRED_KEY", testKey)
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("METAAPI_TOKEN", "token")
	t.Setenv("SYNC_RATE_LIMIT", "3")
	t.Setenv("SYNC_RATE_WINDOW", "30m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com ,")
	t.Setenv("CLOUD_API_RPS", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.AuthEnabled())
	assert.True(t, cfg.CloudEnabled())
	assert.Equal(t, 3, cfg.Sync.RateLimit)
	assert.Equal(t, 30*time.Minute, cfg.Sync.RateWindow)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 2.5, cfg.Providers.CloudRPS)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("MT5_CRED_KEY", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("SYNC_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Sync.Timeout)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"production without key", map[string]string{"ENV": "production"}},
		{"malformed key", map[string]string{"MT5_CRED_KEY": "c2hvcnQ="}},
		{"short jwt secret", map[string]string{"JWT_SECRET": "short"}},
		{"unknown env", map[string]string{"ENV": "staging"}},
		{"bcrypt cost too high", map[string]string{"BCRYPT_COST": "40"}},
		{"zero rate limit", map[string]string{"SYNC_RATE_LIMIT": "0"}},
		{"negative window", map[string]string{"SYNC_RATE_WINDOW": "-1h"}},
		{"bad port", map[string]string{"SERVER_PORT": "70000"}},
		{"provider timeout above sync timeout", map[string]string{"PROVIDER_TIMEOUT": "2m"}},
		{"wildcard origin in production", map[string]string{
			"ENV": "production", "MT5_CRED_KEY": testKey, "CORS_ALLOWED_ORIGINS": "*",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"ENV", "MT5_CRED_KEY", "JWT_SECRET", "CORS_ALLOWED_ORIGINS"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TRADESYNC_TEST_VALUE=from-file\n"), 0o600))

	t.Setenv("TRADESYNC_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("TRADESYNC_TEST_VALUE"))

	loaded, err := LoadEnvFile(path)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, "from-file", os.Getenv("TRADESYNC_TEST_VALUE"))

	loaded, err = LoadEnvFile(filepath.Join(dir, "missing.env"))
	require.NoError(t, err, "missing file is not an error")
	assert.False(t, loaded)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "secret", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=secret dbname=n sslmode=disable", d.DSN())
	assert.NotContains(t, d.DSNWithoutPassword(), "secret")
}
