// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/samber/lo"
)

// Config holds the application configuration
type Config struct {
	AppEnv string
	Server struct {
		Port    string
		BaseURL string
	}
	Log struct {
		Level  string // debug, info, warn, error
		Format string // console, json
	}
	DB struct {
		Path string
	}
	Auth struct {
		JWTSecret     string
		TokenTTL      time.Duration
		AdminEmail    string
		AdminPassword string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
		TTL      time.Duration
	}
	MQ struct {
		URL      string
		Exchange string
	}
	Registry struct {
		File string // YAML entity type and widget table; built-in defaults when empty
	}
}

// Load reads the configuration from environment variables.
func Load() *Config {
	cfg := &Config{}

	cfg.AppEnv = getEnv("APP_ENV", "production")
	cfg.Server.Port = getEnv("PORT", "8080")
	cfg.Server.BaseURL = getEnv("FIELDGROUP_BASE_URL", "http://localhost:"+cfg.Server.Port)
	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "console")
	cfg.DB.Path = getEnv("FIELDGROUP_DB_PATH", "fieldgroup.db")

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.Auth.TokenTTL = time.Duration(getInt("TOKEN_TTL_HOURS", 24)) * time.Hour
	cfg.Auth.AdminEmail = getEnv("ADMIN_EMAIL", "admin@fieldgroup.local")
	cfg.Auth.AdminPassword = getEnv("ADMIN_PASSWORD", "changeme")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getInt("REDIS_DB", 0)
	cfg.Redis.TTL = time.Duration(getInt("CACHE_TTL_SECONDS", 300)) * time.Second

	cfg.MQ.URL = getEnv("RABBITMQ_URL", "")
	cfg.MQ.Exchange = getEnv("RABBITMQ_EXCHANGE", "fieldgroup.events")

	cfg.Registry.File = getEnv("FIELDGROUP_REGISTRY_FILE", "")

	return cfg
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	return lo.Ternary(v != "", v, def)
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
