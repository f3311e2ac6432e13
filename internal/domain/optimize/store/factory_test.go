package store

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/sstepanchuk/leptos-image/internal/platform/storage"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestFactoryMemory(t *testing.T) {
	store, err := New(Config{Driver: DriverMemory}, Dependencies{})
	if err != nil {
		t.Fatalf("New memory store: %v", err)
	}
	defer store.Close(context.Background())
}

func TestFactoryDefaultsToMemory(t *testing.T) {
	store, err := New(Config{}, Dependencies{})
	if err != nil {
		t.Fatalf("New default store: %v", err)
	}
	defer store.Close(context.Background())

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats["type"] != "memory" {
		t.Fatalf("expected memory driver by default, got %v", stats["type"])
	}
}

func TestFactorySQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&storage.PlaceholderRecord{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	store, err := New(Config{Driver: DriverSQLite}, Dependencies{SQLiteDB: db})
	if err != nil {
		t.Fatalf("New sqlite store: %v", err)
	}
	defer store.Close(context.Background())

	if err := store.Put(context.Background(), testPlaceholder("examples/factory.jpg")); err != nil {
		t.Fatalf("Put error: %v", err)
	}
}

func TestFactorySQLiteRequiresHandle(t *testing.T) {
	if _, err := New(Config{Driver: DriverSQLite}, Dependencies{}); err == nil {
		t.Fatalf("expected error without database handle")
	}
}

func TestFactoryRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	store, err := New(Config{
		Driver: DriverRedis,
		Redis: &RedisConfig{
			Addr: mr.Addr(),
		},
	}, Dependencies{})
	if err != nil {
		t.Fatalf("New redis store: %v", err)
	}
	defer store.Close(context.Background())

	if err := store.Put(context.Background(), testPlaceholder("examples/factory.jpg")); err != nil {
		t.Fatalf("Put error: %v", err)
	}
}

func TestFactoryUnsupported(t *testing.T) {
	if _, err := New(Config{Driver: "etcd"}, Dependencies{}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
