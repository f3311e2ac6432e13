package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sstepanchuk/leptos-image/internal/domain/optimize"
)

type memoryStore struct {
	items map[string]optimize.Placeholder
	mutex sync.RWMutex
}

// NewMemory builds an in-memory placeholder store.
func NewMemory() Store {
	return &memoryStore{
		items: make(map[string]optimize.Placeholder),
	}
}

func (s *memoryStore) Put(_ context.Context, p optimize.Placeholder) error {
	if p.Key == "" {
		return fmt.Errorf("placeholder key required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.items[p.Key] = p
	return nil
}

func (s *memoryStore) Get(_ context.Context, key string) (optimize.Placeholder, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	p, ok := s.items[key]
	return p, ok, nil
}

func (s *memoryStore) List(_ context.Context) ([]optimize.Placeholder, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entries := make([]optimize.Placeholder, 0, len(s.items))
	for _, p := range s.items {
		entries = append(entries, p)
	}
	return entries, nil
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var svgBytes int
	for _, p := range s.items {
		svgBytes += len(p.SVG)
	}
	return map[string]any{
		"type":      "memory",
		"total":     len(s.items),
		"svg_bytes": svgBytes,
	}, nil
}

func (s *memoryStore) Close(_ context.Context) error {
	return nil
}
