package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/research-reports/internal/data/repos/reports"
	"github.com/yungbote/research-reports/internal/platform/logger"
)

type ReportRepo = reports.ReportRepo
type DocumentRepo = reports.DocumentRepo

func NewReportRepo(db *gorm.DB, baseLog *logger.Logger) ReportRepo {
	return reports.NewReportRepo(db, baseLog)
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return reports.NewDocumentRepo(db, baseLog)
}
