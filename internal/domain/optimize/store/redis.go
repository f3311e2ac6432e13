package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sstepanchuk/leptos-image/internal/domain/optimize"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a redis-backed placeholder store. Entries are written
// without expiry because derivative keys never go stale.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	opts := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "leptos_image:placeholder:"
	}

	return &redisStore{
		client: client,
		prefix: prefix,
	}, nil
}

func (s *redisStore) key(id string) string {
	return s.prefix + id
}

func (s *redisStore) Put(ctx context.Context, p optimize.Placeholder) error {
	if p.Key == "" {
		return fmt.Errorf("placeholder key required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(p.Key), data, 0).Err()
}

func (s *redisStore) Get(ctx context.Context, key string) (optimize.Placeholder, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return optimize.Placeholder{}, false, nil
		}
		return optimize.Placeholder{}, false, err
	}
	var p optimize.Placeholder
	if err := json.Unmarshal(raw, &p); err != nil {
		return optimize.Placeholder{}, false, err
	}
	return p, true, nil
}

func (s *redisStore) List(ctx context.Context) ([]optimize.Placeholder, error) {
	var cursor uint64
	entries := make([]optimize.Placeholder, 0)
	pattern := s.prefix + "*"
	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			raw, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				return nil, err
			}
			var p optimize.Placeholder
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, err
			}
			entries = append(entries, p)
		}
		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}
	return entries, nil
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	var cursor uint64
	var total int64
	pattern := s.prefix + "*"
	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		total += int64(len(keys))
		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}
	return map[string]any{
		"type":   "redis",
		"total":  total,
		"prefix": s.prefix,
	}, nil
}

func (s *redisStore) Close(ctx context.Context) error {
	return s.client.Close()
}
