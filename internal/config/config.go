// Package config loads porch settings from PORCH_* environment variables.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"

	"github.com/naveenspark/porch/pkg/kv"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config is the client configuration.
type Config struct {
	APIURL         string        `env:"PORCH_API_URL"         envDefault:"http://localhost:3001"`
	Store          string        `env:"PORCH_STORE"           envDefault:"file"`
	DataDir        string        `env:"PORCH_DATA_DIR"`
	RedisAddr      string        `env:"PORCH_REDIS_ADDR"      envDefault:"localhost:6379"`
	RedisPrefix    string        `env:"PORCH_REDIS_PREFIX"    envDefault:"porch"`
	LogFile        string        `env:"PORCH_LOG_FILE"`
	LogLevel       string        `env:"PORCH_LOG_LEVEL"       envDefault:"info"`
	RequestTimeout time.Duration `env:"PORCH_REQUEST_TIMEOUT" envDefault:"30s"`
}

// Load parses the environment and fills path defaults under ~/.porch.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("get home dir: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".porch")
	}
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.DataDir, "porch.log")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("PORCH_API_URL %q is not an http(s) URL", c.APIURL)
	}
	switch c.Store {
	case StoreFile, StoreSQLite, StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("PORCH_REDIS_ADDR is required for the redis store")
		}
	default:
		return fmt.Errorf("PORCH_STORE %q is not one of file, sqlite, redis, memory", c.Store)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("PORCH_REQUEST_TIMEOUT must be positive")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("PORCH_LOG_LEVEL %q: %w", s, err)
	}
	return lvl, nil
}

// OpenStore builds the configured durable store. The returned close func
// releases backend resources and is never nil.
func OpenStore(ctx context.Context, cfg Config) (kv.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Store {
	case StoreFile:
		return kv.NewFileStore(cfg.DataDir), noop, nil
	case StoreSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, noop, fmt.Errorf("create data dir: %w", err)
		}
		s, err := kv.OpenSQLite(filepath.Join(cfg.DataDir, "porch.db"))
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close() //nolint:errcheck
			return nil, noop, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		s := kv.NewRedisStore(rdb, cfg.RedisPrefix)
		return s, s.Close, nil
	case StoreMemory:
		return kv.NewMemoryStore(), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown store %q", cfg.Store)
}
