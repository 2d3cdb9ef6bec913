package service

import (
	"context"
	"fmt"
	"time"

	"chat-insights-go/internal/model"
	"chat-insights-go/internal/pipeline"
	"chat-insights-go/internal/report"
	"chat-insights-go/pkg/log"
)

// ReportService 定义了日报生成的接口。
type ReportService interface {
	Daily(ctx context.Context, day time.Time, mode report.Mode) (*report.Daily, error)
}

type reportService struct {
	logService LogService
}

// NewReportService 创建一个新的 ReportService 实例。
func NewReportService(logService LogService) ReportService {
	return &reportService{logService: logService}
}

// Daily 读取某天的日志并按 mode 构建日报。count 模式只做计数，不做反馈归并。
func (s *reportService) Daily(ctx context.Context, day time.Time, mode report.Mode) (*report.Daily, error) {
	records, err := s.logService.LoadDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load logs: %w", err)
	}
	date := model.DayOf(day)

	out := &report.Daily{Date: date, Mode: mode}
	switch mode {
	case report.ModeCount:
		counts := model.CountRoles(date, records)
		out.Counts = &counts
	case report.ModeFlat:
		out.Rows = pipeline.ReconcileDay(records, pipeline.FeedbackWindow)
	default:
		out.Mode = report.ModeDetail
		out.Pairs = report.DetailRows(pipeline.ReconcileDay(records, pipeline.FeedbackWindow))
	}
	log.Infof("[ReportService] 日报生成完成, date: %s, mode: %s, records: %d", date, out.Mode, len(records))
	return out, nil
}
