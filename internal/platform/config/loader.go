package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sstepanchuk/leptos-image/internal/platform/errors"
)

// candidatePaths are probed in order when no explicit path is set.
var candidatePaths = []string{".config.yaml", "config.yaml"}

// Loader reads configuration in layers: defaults, an optional yaml file,
// then environment variables.
type Loader struct {
	useDotEnv bool
	path      string
}

func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath pins the config file instead of probing the candidates.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// Path reports the config file the last Load read, or "" when defaults
// were used.
func (l *Loader) Path() string {
	return l.path
}

func (l *Loader) Load() (*Config, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("no .env file found, using system environment")
		}
	}

	cfg := DefaultConfig()

	path := l.path
	if path == "" {
		for _, candidate := range candidatePaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.KindConfig, "read", "read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "parse", "parse config file", err)
		}
		l.path = path
	}

	l.applyEnv(cfg)

	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv layers process environment overrides on top of file values.
func (l *Loader) applyEnv(cfg *Config) {
	if v := os.Getenv("SERVER_IP"); v != "" {
		cfg.Server.IP = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CACHE_ROOT"); v != "" {
		cfg.Cache.Root = v
	}
	if v := os.Getenv("CACHE_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.Parallelism = n
		}
	}
	if v := os.Getenv("STORE_TYPE"); v != "" {
		cfg.Store.Type = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}
	if v := os.Getenv("SQLITE_DSN"); v != "" {
		cfg.Store.SQLite.DSN = v
	}
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New(errors.KindConfig, "validate",
			fmt.Sprintf("server port %d out of range", cfg.Server.Port))
	}
	if cfg.Cache.Root == "" {
		return errors.New(errors.KindConfig, "validate", "cache root must not be empty")
	}
	if cfg.Cache.Parallelism < 0 {
		return errors.New(errors.KindConfig, "validate",
			fmt.Sprintf("cache parallelism %d must not be negative", cfg.Cache.Parallelism))
	}
	if cfg.Cache.HandlerPath == "" {
		cfg.Cache.HandlerPath = "/cache/image"
	}
	switch cfg.Store.Type {
	case "", "memory", "redis", "sqlite":
	default:
		return errors.New(errors.KindConfig, "validate",
			fmt.Sprintf("unknown store type %q", cfg.Store.Type))
	}
	return nil
}
