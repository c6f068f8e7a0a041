package repository

import (
	"context"

	"relgraph_backend/internal/model"
	"relgraph_backend/internal/service"

	"gorm.io/gorm"
)

type ReportRepository struct {
	DB *gorm.DB
}

var _ service.ReportStore = (*ReportRepository)(nil)

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{DB: db}
}

func (r *ReportRepository) CreateReport(ctx context.Context, report *model.Report) error {
	return r.DB.WithContext(ctx).Create(report).Error
}

func (r *ReportRepository) ListByStatus(ctx context.Context, status string, limit, offset int) ([]model.Report, int64, error) {
	q := r.DB.WithContext(ctx).Model(&model.Report{}).Where("status = ?", status)
	return paginate[model.Report](q, "*", "created_at DESC, id DESC", limit, offset)
}
