package reports

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/research-reports/internal/domain/reports"
	"github.com/yungbote/research-reports/internal/pkg/dbctx"
	"github.com/yungbote/research-reports/internal/platform/logger"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, docs []*domain.Document) ([]*domain.Document, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Document, error)
	CollectionExists(dbc dbctx.Context, collectionID string) (bool, error)
	ListByCollection(dbc dbctx.Context, collectionID string, afterID uuid.UUID, limit int) ([]*domain.Document, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{
		db:  db,
		log: baseLog.With("repo", "DocumentRepo"),
	}
}

func (r *documentRepo) Create(dbc dbctx.Context, docs []*domain.Document) ([]*domain.Document, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(docs) == 0 {
		return []*domain.Document{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// GetByID returns nil, nil when no document has the id.
func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Document, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out domain.Document
	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *documentRepo) CollectionExists(dbc dbctx.Context, collectionID string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if collectionID == "" {
		return false, nil
	}
	var ids []uuid.UUID
	if err := transaction.WithContext(dbc.Ctx).
		Model(&domain.Document{}).
		Where("collection_id = ?", collectionID).
		Limit(1).
		Pluck("id", &ids).Error; err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// ListByCollection pages by id; pass uuid.Nil for the first page.
func (r *documentRepo) ListByCollection(dbc dbctx.Context, collectionID string, afterID uuid.UUID, limit int) ([]*domain.Document, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := []*domain.Document{}
	if collectionID == "" {
		return out, nil
	}
	if limit <= 0 {
		limit = 100
	}
	q := transaction.WithContext(dbc.Ctx).
		Where("collection_id = ?", collectionID)
	if afterID != uuid.Nil {
		q = q.Where("id > ?", afterID)
	}
	if err := q.Order("id ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
