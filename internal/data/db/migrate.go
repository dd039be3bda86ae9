package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/research-reports/internal/domain/reports"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&reports.Report{},
		&reports.Document{},
	); err != nil {
		return err
	}
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	// Listing by parent is newest-first.
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_report_parent_created ON report (parent_id, created_at DESC) WHERE deleted_at IS NULL`).Error
}
