package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sstepanchuk/leptos-image/internal/domain/optimize"
	"github.com/sstepanchuk/leptos-image/internal/platform/storage"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type sqliteStore struct {
	db *gorm.DB
}

// NewSQLite builds a SQLite-backed placeholder store on an opened database.
func NewSQLite(db *gorm.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Put(ctx context.Context, p optimize.Placeholder) error {
	if p.Key == "" {
		return fmt.Errorf("placeholder key required")
	}
	desc, err := json.Marshal(p.Descriptor)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cache_key = ?", p.Key).Delete(&storage.PlaceholderRecord{}).Error; err != nil {
			return err
		}
		record := &storage.PlaceholderRecord{
			CacheKey:   p.Key,
			Src:        p.Src,
			SVG:        p.SVG,
			Descriptor: datatypes.JSON(desc),
			CreatedAt:  p.CreatedAt,
		}
		return tx.Create(record).Error
	})
}

func (s *sqliteStore) Get(ctx context.Context, key string) (optimize.Placeholder, bool, error) {
	var record storage.PlaceholderRecord
	err := s.db.WithContext(ctx).Where("cache_key = ?", key).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return optimize.Placeholder{}, false, nil
		}
		return optimize.Placeholder{}, false, err
	}

	p, err := recordToPlaceholder(record)
	if err != nil {
		return optimize.Placeholder{}, false, err
	}
	return p, true, nil
}

func (s *sqliteStore) List(ctx context.Context) ([]optimize.Placeholder, error) {
	var records []storage.PlaceholderRecord
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, err
	}

	entries := make([]optimize.Placeholder, 0, len(records))
	for _, record := range records {
		p, err := recordToPlaceholder(record)
		if err != nil {
			return nil, err
		}
		entries = append(entries, p)
	}
	return entries, nil
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&storage.PlaceholderRecord{}).Count(&total).Error; err != nil {
		return nil, err
	}
	return map[string]any{
		"type":  "sqlite",
		"total": total,
	}, nil
}

func (s *sqliteStore) Close(context.Context) error {
	// The database handle is owned by the platform layer.
	return nil
}

func recordToPlaceholder(record storage.PlaceholderRecord) (optimize.Placeholder, error) {
	var d optimize.Descriptor
	if err := json.Unmarshal(record.Descriptor, &d); err != nil {
		return optimize.Placeholder{}, fmt.Errorf("corrupt descriptor for %s: %w", record.CacheKey, err)
	}
	return optimize.Placeholder{
		Key:        record.CacheKey,
		Src:        record.Src,
		SVG:        record.SVG,
		Descriptor: d,
		CreatedAt:  record.CreatedAt,
	}, nil
}
