package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	domain "github.com/yungbote/research-reports/internal/domain/reports"
)

// SeedDocuments inserts one document per title into collectionID. Content is "<title> body".
func SeedDocuments(tb testing.TB, ctx context.Context, tx *gorm.DB, collectionID string, titles ...string) []*domain.Document {
	tb.Helper()
	out := make([]*domain.Document, 0, len(titles))
	for _, title := range titles {
		d := &domain.Document{
			ID:           uuid.New(),
			CollectionID: collectionID,
			Title:        title,
			Content:      title + " body",
			Metadata:     datatypes.JSON([]byte(`{"source":"fixture"}`)),
		}
		if err := tx.WithContext(ctx).Create(d).Error; err != nil {
			tb.Fatalf("seed document: %v", err)
		}
		out = append(out, d)
	}
	return out
}

// SeedReport inserts a configuring report with an empty outline.
func SeedReport(tb testing.TB, ctx context.Context, tx *gorm.DB, parentID uuid.UUID, collectionID, name string) *domain.Report {
	tb.Helper()
	r := &domain.Report{
		ID:             uuid.New(),
		ParentID:       parentID,
		CollectionID:   collectionID,
		Name:           name,
		Status:         domain.StatusConfiguring,
		SectionOutline: domain.JSON([]domain.Section{}),
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed report: %v", err)
	}
	return r
}
