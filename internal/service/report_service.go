package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"relgraph_backend/internal/model"
	"relgraph_backend/internal/util"
	"relgraph_backend/pkg/logger"

	"go.uber.org/zap"
)

const maxReportReasonLength = 1000

type ReportService struct {
	reports ReportStore
	users   UserLookup
}

func NewReportService(reports ReportStore, users UserLookup) *ReportService {
	return &ReportService{reports: reports, users: users}
}

func (s *ReportService) ReportUser(ctx context.Context, reporterID, targetID, reason string) (report *model.Report, err error) {
	defer func() { observe("report.create", err) }()

	if reporterID == targetID {
		return nil, util.ErrSelfReport
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, util.ValidationError("reason is required")
	}
	if utf8.RuneCountInString(reason) > maxReportReasonLength {
		return nil, util.ValidationError(fmt.Sprintf("reason must be at most %d characters", maxReportReasonLength))
	}

	exists, err := s.users.UserExists(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("lookup reported user: %w", err)
	}
	if !exists {
		return nil, util.ErrUserNotFound
	}

	report = &model.Report{
		ReporterID: reporterID,
		TargetID:   targetID,
		Reason:     reason,
		Status:     model.ReportOpen,
	}
	if err := s.reports.CreateReport(ctx, report); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	logger.Log.Info("user reported",
		zap.String("report_id", report.ID),
		zap.String("reporter_id", reporterID),
		zap.String("target_id", targetID))
	return report, nil
}
