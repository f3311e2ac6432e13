package config

// DefaultConfig returns the configuration used when no config file is
// present. Every field can be overridden by .config.yaml or environment
// variables.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8080,
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Cache: CacheConfig{
			Root:        "data/assets",
			HandlerPath: "/cache/image",
			Parallelism: 4,
			PreList:     true,
			Limits: SourceLimits{
				MaxFileSize: 10485760,
				MaxPixels:   16777216,
				MaxWidth:    4096,
				MaxHeight:   4096,
			},
		},
		Store: StoreConfig{
			Type: "memory",
			Redis: RedisStoreConfig{
				Addr:   "127.0.0.1:6379",
				Prefix: "leptos_image",
			},
			SQLite: SQLiteStoreConfig{
				DSN: "data/placeholders.db",
			},
		},
		Web: WebConfig{
			APIEnabled: true,
			ServeRoot:  true,
		},
	}
}
