package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads; viper treats empty as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "PORT", "GIN_MODE", "STORE_DRIVER", "MONGODB_URI", "MONGODB_DATABASE",
		"REDIS_URL", "JWT_SECRET", "JWT_TTL", "SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME",
		"SMTP_PASSWORD", "SMTP_FROM", "CORS_ALLOW_ORIGINS", "AUTH_RATE_LIMIT",
		"AUTH_RATE_WINDOW", "LOG_LEVEL", "LOG_FORMAT", "CLOUDINARY_URL", "ADMIN_EMAIL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Env)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, StoreMongo, cfg.App.StoreDriver)
	assert.Equal(t, "moments", cfg.Mongo.Database)
	assert.Equal(t, 72*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, devJWTSecret, cfg.JWT.Secret)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 10, cfg.HTTP.AuthRateLimit)
	assert.Equal(t, time.Minute, cfg.HTTP.AuthRateWindow)
	assert.NotEmpty(t, cfg.HTTP.CORSAllowOrigins)
	assert.False(t, cfg.SMTP.Enabled())
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "Production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("CORS_ALLOW_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("ADMIN_EMAIL", " Admin@Example.com ")
	t.Setenv("AUTH_RATE_LIMIT", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, StoreMemory, cfg.App.StoreDriver)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, 2*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSAllowOrigins)
	assert.True(t, cfg.SMTP.Enabled())
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.Equal(t, "admin@example.com", cfg.AdminEmail)
	assert.Equal(t, 3, cfg.HTTP.AuthRateLimit)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadValidation(t *testing.T) {
	clearEnv(t)

	t.Run("production requires secret", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		t.Setenv("JWT_SECRET", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_SECRET")
	})

	t.Run("unknown store driver", func(t *testing.T) {
		t.Setenv("APP_ENV", "")
		t.Setenv("STORE_DRIVER", "postgres")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "STORE_DRIVER")
	})

	t.Run("non-positive ttl", func(t *testing.T) {
		t.Setenv("APP_ENV", "")
		t.Setenv("STORE_DRIVER", "memory")
		t.Setenv("JWT_TTL", "0s")

		_, err := Load()
		require.Error(t, err)
	})
}
