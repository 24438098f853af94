package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_TYPE", "")
	t.Setenv("PORT", "")
	t.Setenv("PAGE_SIZE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.PageSize)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, DBMongo, cfg.Database.Type)
	assert.Equal(t, "gator_overflow", cfg.Database.Name)
	assert.Equal(t, 5, cfg.Database.CASRetries)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DB_TYPE", "memory")
	t.Setenv("PAGE_SIZE", "25")
	t.Setenv("REQUEST_TIMEOUT", "2s")
	t.Setenv("SESSION_TTL", "1h")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, DBMemory, cfg.Database.Type)
	assert.Equal(t, 25, cfg.Server.PageSize)
	assert.Equal(t, 2*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestLoadConfigPostgres(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/qa?sslmode=disable")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "postgres://u:p@db:5432/qa?sslmode=disable", cfg.Database.URI)
}

func TestLoadConfigPostgresRequiresCredentials(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_USER", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"PORT":      "eighty",
		"PAGE_SIZE": "0",
		"DB_TYPE":   "cassandra",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("DB_TYPE", "memory")
			t.Setenv(key, value)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestGetSSLModeFromURI(t *testing.T) {
	assert.Equal(t, "verify-full", getSSLModeFromURI("postgres://h/db?a=b&sslmode=verify-full"))
	assert.Equal(t, "require", getSSLModeFromURI("postgres://h/db"))
}
