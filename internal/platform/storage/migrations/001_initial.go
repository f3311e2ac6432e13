package migrations

import (
	"gorm.io/gorm"
)

// Migration001Initial creates the placeholder schema. Raw SQL keeps the
// table layout explicit instead of relying on AutoMigrate inside a
// migration step.
type Migration001Initial struct{}

func (m *Migration001Initial) Version() string {
	return "001_initial"
}

func (m *Migration001Initial) Description() string {
	return "Create placeholder_records table and lookup indexes"
}

func (m *Migration001Initial) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS placeholder_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cache_key VARCHAR(512) NOT NULL UNIQUE,
			src VARCHAR(512) NOT NULL,
			svg TEXT NOT NULL,
			descriptor JSON NOT NULL,
			created_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_placeholder_records_src ON placeholder_records(src)`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_placeholder_records_created_at ON placeholder_records(created_at)`).Error; err != nil {
		return err
	}

	return nil
}

func (m *Migration001Initial) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS placeholder_records`).Error
}
