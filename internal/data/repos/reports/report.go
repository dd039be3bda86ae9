package reports

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/research-reports/internal/domain/reports"
	"github.com/yungbote/research-reports/internal/pkg/dbctx"
	"github.com/yungbote/research-reports/internal/platform/logger"
)

type ReportRepo interface {
	Create(dbc dbctx.Context, report *domain.Report) (*domain.Report, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Report, error)
	ListByParent(dbc dbctx.Context, parentID uuid.UUID) ([]*domain.Report, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	BeginRun(dbc dbctx.Context, id uuid.UUID, runID uuid.UUID, staleBefore time.Time, updates map[string]interface{}) (bool, error)
	FinishRun(dbc dbctx.Context, id uuid.UUID, runID uuid.UUID, updates map[string]interface{}) (bool, error)
	SoftDelete(dbc dbctx.Context, id uuid.UUID) error
}

type reportRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReportRepo(db *gorm.DB, baseLog *logger.Logger) ReportRepo {
	return &reportRepo{
		db:  db,
		log: baseLog.With("repo", "ReportRepo"),
	}
}

func (r *reportRepo) Create(dbc dbctx.Context, report *domain.Report) (*domain.Report, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(dbc.Ctx).Create(report).Error; err != nil {
		return nil, err
	}
	return report, nil
}

// GetByID returns nil, nil when the report does not exist or was deleted.
func (r *reportRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Report, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out domain.Report
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

func (r *reportRepo) ListByParent(dbc dbctx.Context, parentID uuid.UUID) ([]*domain.Report, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := []*domain.Report{}
	if parentID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("parent_id = ?", parentID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *reportRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&domain.Report{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *reportRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return false, nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	q := transaction.WithContext(dbc.Ctx).
		Model(&domain.Report{}).
		Where("id = ?", id)
	if len(disallowedStatuses) > 0 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// BeginRun claims the report for runID. The claim succeeds when the report is not generating,
// or when the generating run it finds started before staleBefore. Content from an earlier
// attempt is cleared.
func (r *reportRepo) BeginRun(dbc dbctx.Context, id uuid.UUID, runID uuid.UUID, staleBefore time.Time, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || runID == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = domain.StatusGenerating
	updates["run_id"] = runID
	updates["content"] = nil
	updates["completed_at"] = nil
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&domain.Report{}).
		Where("id = ?", id).
		Where("status <> ? OR generation_started_at IS NULL OR generation_started_at < ?", domain.StatusGenerating, staleBefore).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FinishRun writes the terminal state only if runID still owns the report.
func (r *reportRepo) FinishRun(dbc dbctx.Context, id uuid.UUID, runID uuid.UUID, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || runID == uuid.Nil || len(updates) == 0 {
		return false, nil
	}
	updates["run_id"] = nil
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&domain.Report{}).
		Where("id = ? AND run_id = ? AND status = ?", id, runID, domain.StatusGenerating).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *reportRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&domain.Report{}).Error
}
