package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	StoreMongo  = "mongo"
	StoreMemory = "memory"

	devJWTSecret = "moments-dev-secret-change-me"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Mongo      MongoConfig
	Redis      RedisConfig
	JWT        JWTConfig
	SMTP       SMTPConfig
	HTTP       HTTPConfig
	Log        LogConfig
	Cloudinary CloudinaryConfig
	AdminEmail string
}

type AppConfig struct {
	Env         string
	Port        string
	GinMode     string
	StoreDriver string
}

type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig is optional; an empty URL selects the in-memory OTP store.
type RedisConfig struct {
	URL string
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether outgoing mail is configured.
func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	CORSAllowOrigins []string
	AuthRateLimit    int
	AuthRateWindow   time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type CloudinaryConfig struct {
	URL string
}

// Load reads .env when present, then environment variables with defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("STORE_DRIVER", StoreMongo)

	v.SetDefault("MONGODB_URI", "mongodb://127.0.0.1:27017")
	v.SetDefault("MONGODB_DATABASE", "moments")

	v.SetDefault("JWT_TTL", "72h")

	v.SetDefault("SMTP_PORT", 587)

	v.SetDefault("HTTP_READ_TIMEOUT", "15s")
	v.SetDefault("HTTP_WRITE_TIMEOUT", "15s")
	v.SetDefault("HTTP_IDLE_TIMEOUT", "60s")
	v.SetDefault("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173,http://127.0.0.1:5500")
	v.SetDefault("AUTH_RATE_LIMIT", 10)
	v.SetDefault("AUTH_RATE_WINDOW", "1m")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "")
}

// FromViper builds and validates a Config from an already populated viper.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Env:         strings.ToLower(v.GetString("APP_ENV")),
			Port:        v.GetString("PORT"),
			GinMode:     v.GetString("GIN_MODE"),
			StoreDriver: strings.ToLower(v.GetString("STORE_DRIVER")),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
		},
		Redis: RedisConfig{
			URL: v.GetString("REDIS_URL"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
			TTL:    v.GetDuration("JWT_TTL"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			From:     v.GetString("SMTP_FROM"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("HTTP_READ_TIMEOUT"),
			WriteTimeout:     v.GetDuration("HTTP_WRITE_TIMEOUT"),
			IdleTimeout:      v.GetDuration("HTTP_IDLE_TIMEOUT"),
			CORSAllowOrigins: splitList(v.GetString("CORS_ALLOW_ORIGINS")),
			AuthRateLimit:    v.GetInt("AUTH_RATE_LIMIT"),
			AuthRateWindow:   v.GetDuration("AUTH_RATE_WINDOW"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Cloudinary: CloudinaryConfig{
			URL: v.GetString("CLOUDINARY_URL"),
		},
		AdminEmail: strings.ToLower(strings.TrimSpace(v.GetString("ADMIN_EMAIL"))),
	}

	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
		if cfg.IsProduction() {
			cfg.Log.Format = "json"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = devJWTSecret
	}
	return cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.IsProduction() && c.JWT.Secret == "" {
		return errors.New("JWT_SECRET must be set in production")
	}
	switch c.App.StoreDriver {
	case StoreMongo:
		if c.Mongo.URI == "" {
			return errors.New("MONGODB_URI must be set when STORE_DRIVER=mongo")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want %q or %q)", c.App.StoreDriver, StoreMongo, StoreMemory)
	}
	if c.JWT.TTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive, got %s", c.JWT.TTL)
	}
	if c.HTTP.AuthRateLimit <= 0 || c.HTTP.AuthRateWindow <= 0 {
		return errors.New("AUTH_RATE_LIMIT and AUTH_RATE_WINDOW must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
