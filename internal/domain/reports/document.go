package reports

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Document is a source document in a named collection. The pipeline only reads it.
type Document struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CollectionID string         `gorm:"column:collection_id;not null;index" json:"collection_id"`
	Title        string         `gorm:"column:title;not null" json:"title"`
	Content      string         `gorm:"column:content;type:text" json:"content"`
	Metadata     datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
}

func (Document) TableName() string { return "document" }

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
