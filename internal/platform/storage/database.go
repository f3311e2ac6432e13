package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sstepanchuk/leptos-image/internal/platform/errors"
	"github.com/sstepanchuk/leptos-image/internal/platform/storage/migrations"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open initialises the SQLite database used by the sqlite placeholder store.
// It creates the parent directory for file-backed DSNs, applies the schema
// and runs any pending migrations before handing the connection back.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New(errors.KindStorage, "storage.open", "sqlite dsn required")
	}

	// URI-style DSNs (file:...?mode=memory) manage their own location.
	if !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to create database directory", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to open database", err)
	}

	if err := db.AutoMigrate(&PlaceholderRecord{}); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.migrate", "failed to migrate database", err)
	}

	manager := NewMigrationManager(db)
	manager.AddMigration(&migrations.Migration001Initial{})
	if err := manager.RunMigrations(); err != nil {
		return nil, err
	}

	return db, nil
}
