// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Supported storage backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config holds the complete application configuration.
type Config struct {
	Addr    string
	Backend string

	RedisAddr     string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	// Strict surfaces storage failures instead of ignoring them.
	Strict   bool
	Metrics  bool
	LogLevel slog.Level
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Addr:          ":8080",
		Backend:       BackendMemory,
		RedisAddr:     "localhost:6379",
		MongoDatabase: "threads",
		Metrics:       true,
		LogLevel:      slog.LevelInfo,
	}
}

// Load reads the configuration from the environment. Variables missing from
// the environment are looked up in the given .env files, or in ./.env when
// none are given. Missing files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	vars := make(map[string]string)
	for _, f := range files {
		m, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		maps.Copy(vars, m)
	}

	return parse(func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return vars[key]
	})
}

func parse(getenv func(string) string) (*Config, error) {
	cfg := Default()

	if v := getenv("THREADS_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := getenv("THREADS_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	cfg.DatabaseURL = getenv("DATABASE_URL")
	cfg.MongoURI = getenv("MONGO_URI")
	if v := getenv("MONGO_DATABASE"); v != "" {
		cfg.MongoDatabase = v
	}

	var err error
	if cfg.Strict, err = parseBool(getenv, "THREADS_STRICT", cfg.Strict); err != nil {
		return nil, err
	}
	if cfg.Metrics, err = parseBool(getenv, "THREADS_METRICS", cfg.Metrics); err != nil {
		return nil, err
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}

	switch cfg.Backend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres backend")
		}
	case BackendMongo:
		if cfg.MongoURI == "" {
			return nil, errors.New("MONGO_URI is required for the mongo backend")
		}
	default:
		return nil, fmt.Errorf("unknown THREADS_BACKEND %q", cfg.Backend)
	}

	return cfg, nil
}

func parseBool(getenv func(string) string, key string, def bool) (bool, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
