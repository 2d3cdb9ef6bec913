package handler

import (
	"fmt"
	"net/http"
	"time"

	"chat-insights-go/internal/report"
	"chat-insights-go/internal/service"
	"chat-insights-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ReportHandler 负责日报查询。
type ReportHandler struct {
	reportService service.ReportService
	now           func() time.Time
}

// NewReportHandler 创建一个新的 ReportHandler 实例。
func NewReportHandler(reportService service.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService, now: time.Now}
}

// Daily 生成某天的日报。date 默认今天（UTC），mode 默认 detail，format 默认 json。
func (h *ReportHandler) Daily(c *gin.Context) {
	day, err := parseDay(c.Query("date"), h.now())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	mode, ok := report.ParseMode(c.Query("mode"))
	if !ok {
		respondError(c, http.StatusBadRequest, "mode 只能是 count、flat 或 detail")
		return
	}
	format, ok := report.ParseFormat(c.Query("format"))
	if !ok {
		respondError(c, http.StatusBadRequest, "format 只能是 json 或 csv")
		return
	}

	daily, err := h.reportService.Daily(c.Request.Context(), day, mode)
	if err != nil {
		log.Errorf("Daily: 生成日报失败, error: %v", err)
		respondServiceError(c, err)
		return
	}

	if format == report.FormatCSV {
		writeCSVHeaders(c, fmt.Sprintf("report-%s-%s.csv", daily.Date, daily.Mode))
		if err := report.WriteDaily(c.Writer, daily, report.FormatCSV); err != nil {
			log.Errorf("Daily: 写出 CSV 失败, error: %v", err)
		}
		return
	}
	respondOK(c, "success", daily)
}
