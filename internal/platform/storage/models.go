package storage

import (
	"time"

	"gorm.io/datatypes"
)

// PlaceholderRecord persists a rendered blur placeholder so restarts can
// serve low-quality previews without touching the image pipeline again.
type PlaceholderRecord struct {
	ID         uint           `gorm:"primaryKey"`
	CacheKey   string         `gorm:"type:varchar(512);uniqueIndex;not null" json:"cache_key"`
	Src        string         `gorm:"index;not null"                         json:"src"`
	SVG        string         `gorm:"type:text;not null"                     json:"svg"`
	Descriptor datatypes.JSON `gorm:"not null"                               json:"descriptor"`
	CreatedAt  time.Time      `gorm:"index"                                  json:"created_at"`
}

// TableName pins the table name independent of GORM's pluralisation rules.
func (PlaceholderRecord) TableName() string {
	return "placeholder_records"
}
