package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config fieldtask（HTTP API + generation engine）配置
type Config struct {
	Env  string
	HTTP struct {
		Addr string
	}
	DBEnabled bool
	Database  DatabaseConfig
	Redis     struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
	}
	Log struct {
		Level  string
		Format string
	}
	Generation GenerationConfig
}

// DatabaseConfig PostgreSQL 连接配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// GenerationConfig 生成引擎触发相关配置
type GenerationConfig struct {
	// TriggerToken is the bearer secret the external scheduler must present.
	// Outside production an empty token disables the check.
	TriggerToken string
	// LeaseTTL bounds how long one sweep may hold the redis lease.
	LeaseTTL time.Duration
	// CronEnabled turns on the in-process periodic trigger. Off by default;
	// the expected deployment is an external scheduler hitting the HTTP
	// trigger endpoint.
	CronEnabled  bool
	CronInterval time.Duration
	// WebhookURL, when set, receives a sweep summary after any sweep that
	// recorded failures.
	WebhookURL string
}

func Load() *Config {
	cfg := &Config{}
	cfg.Env = getEnv("APP_ENV", "development")
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// Default to true for local dev: if DB is unavailable, fieldtask falls
	// back to in-memory repositories so the admin pages still work.
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "fieldtask")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "true") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Generation.TriggerToken = getEnv("GENERATION_TRIGGER_TOKEN", "")
	cfg.Generation.LeaseTTL = parseDuration(getEnv("GENERATION_LEASE_TTL", "5m"), 5*time.Minute)
	cfg.Generation.CronEnabled = getEnv("GENERATION_CRON_ENABLED", "false") == "true"
	cfg.Generation.CronInterval = parseDuration(getEnv("GENERATION_CRON_INTERVAL", "15m"), 15*time.Minute)
	cfg.Generation.WebhookURL = getEnv("GENERATION_WEBHOOK_URL", "")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
