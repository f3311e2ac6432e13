// Package store persists rendered blur placeholders keyed by their
// canonical descriptor encoding. Entries are content addressed and never
// expire, so drivers carry no TTL handling.
package store

import (
	"context"

	"github.com/sstepanchuk/leptos-image/internal/domain/optimize"
)

// Store defines the behaviour required by the placeholder cache.
type Store interface {
	Put(ctx context.Context, p optimize.Placeholder) error
	Get(ctx context.Context, key string) (optimize.Placeholder, bool, error)
	List(ctx context.Context) ([]optimize.Placeholder, error)
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver string
	Redis  *RedisConfig
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}
