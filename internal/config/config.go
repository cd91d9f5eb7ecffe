// Package config assembles process configuration from an optional .env file
// and NAVISOL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"navisol/internal/blob"
	"navisol/internal/core"
)

// Config is the complete runtime configuration of a navisol process.
type Config struct {
	Storage core.StorageConfig
	Blob    blob.Config
	Redis   RedisConfig
	HTTP    HTTPConfig
	Log     LogConfig
	// StatusRefresh is the cron schedule for recounting projects per status
	// in the served metrics. Empty disables the job.
	StatusRefresh string
	// PermissionsFile optionally replaces the built-in permission matrix.
	PermissionsFile string
}

// RedisConfig enables the audit stream publisher when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// Enabled reports whether audit entries should be streamed to Redis.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr           string
	AllowedOrigins []string
	// RateLimit is requests per second per caller; zero disables it.
	RateLimit float64
	RateBurst int
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  slog.Level
	Format string // json|text
}

// Load reads the given dotenv files (or ./.env when none are named) without
// overriding variables already set, then builds a Config from the environment.
// A missing default .env file is not an error.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(envFiles...); err != nil {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment.
func FromEnv() (Config, error) {
	cfg := Config{
		Storage: core.StorageConfigFromEnv(),
		Blob:    blob.ConfigFromEnv(),
		Redis: RedisConfig{
			Addr:     os.Getenv("NAVISOL_REDIS_ADDR"),
			Password: os.Getenv("NAVISOL_REDIS_PASSWORD"),
			Stream:   getEnv("NAVISOL_REDIS_STREAM", "navisol:audit"),
		},
		HTTP: HTTPConfig{
			Addr:           getEnv("NAVISOL_HTTP_ADDR", ":8080"),
			AllowedOrigins: splitList(os.Getenv("NAVISOL_HTTP_ALLOWED_ORIGINS")),
		},
		Log: LogConfig{
			Format: strings.ToLower(getEnv("NAVISOL_LOG_FORMAT", "json")),
		},
		StatusRefresh:   getEnv("NAVISOL_STATUS_REFRESH", "@every 1m"),
		PermissionsFile: os.Getenv("NAVISOL_PERMISSIONS_FILE"),
	}
	if strings.EqualFold(cfg.StatusRefresh, "off") {
		cfg.StatusRefresh = ""
	}
	var err error
	if cfg.Redis.DB, err = getEnvInt("NAVISOL_REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	maxLen, err := getEnvInt("NAVISOL_REDIS_STREAM_MAXLEN", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.Redis.MaxLen = int64(maxLen)
	if cfg.HTTP.RateBurst, err = getEnvInt("NAVISOL_HTTP_RATE_BURST", 10); err != nil {
		return Config{}, err
	}
	if raw := strings.TrimSpace(os.Getenv("NAVISOL_HTTP_RATE_LIMIT")); raw != "" {
		if cfg.HTTP.RateLimit, err = strconv.ParseFloat(raw, 64); err != nil {
			return Config{}, fmt.Errorf("NAVISOL_HTTP_RATE_LIMIT: %w", err)
		}
	}
	if err := cfg.Log.Level.UnmarshalText([]byte(getEnv("NAVISOL_LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("NAVISOL_LOG_LEVEL: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations that cannot be opened.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "", core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("NAVISOL_POSTGRES_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("%s is required for the s3 blob driver", blob.EnvS3Bucket)
		}
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.HTTP.RateLimit < 0 {
		return errors.New("NAVISOL_HTTP_RATE_LIMIT must not be negative")
	}
	if c.StatusRefresh != "" {
		if _, err := cron.ParseStandard(c.StatusRefresh); err != nil {
			return fmt.Errorf("NAVISOL_STATUS_REFRESH: %w", err)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
