package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"chat-insights-go/internal/model"
	"chat-insights-go/internal/report"
	"chat-insights-go/internal/service"
	"chat-insights-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// InsightHandler 负责会话聚类与配对查询。
type InsightHandler struct {
	insightService service.InsightService
	now            func() time.Time
}

// NewInsightHandler 创建一个新的 InsightHandler 实例。
func NewInsightHandler(insightService service.InsightService) *InsightHandler {
	return &InsightHandler{insightService: insightService, now: time.Now}
}

// ClusterRequest 是聚类接口的请求体。logs 与 date 二选一，logs 优先。
type ClusterRequest struct {
	Logs          json.RawMessage `json:"logs"`
	Date          string          `json:"date"`
	Threshold     *float64        `json:"threshold"`
	IncludeAnswer bool            `json:"includeAnswer"`
	Method        string          `json:"method"`
	JudgeBudget   *int            `json:"judgeBudget"`
}

// Clusters 对请求中的日志或某天的日志做意图聚类。
func (h *InsightHandler) Clusters(c *gin.Context) {
	var req ClusterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Clusters: Invalid request payload, error: %v", err)
		respondError(c, http.StatusBadRequest, "无效的请求负载")
		return
	}

	in := service.ClusterRequest{
		Threshold:     req.Threshold,
		IncludeAnswer: req.IncludeAnswer,
		Method:        req.Method,
		JudgeBudget:   req.JudgeBudget,
	}
	if logs := bytes.TrimSpace(req.Logs); len(logs) > 0 && !bytes.Equal(logs, []byte("null")) {
		records, err := service.DecodeLogPayload(logs)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		in.Records = records
	} else if req.Date != "" {
		day, err := parseDay(req.Date, h.now())
		if err != nil {
			respondServiceError(c, err)
			return
		}
		in.Day = &day
	}

	result, err := h.insightService.Cluster(c.Request.Context(), in)
	if err != nil {
		log.Errorf("Clusters: 聚类失败, error: %v", err)
		respondServiceError(c, err)
		return
	}
	respondOK(c, "success", result)
}

// Pairs 返回某天的 user→assistant 配对结果，支持 json 与 csv。
func (h *InsightHandler) Pairs(c *gin.Context) {
	day, err := parseDay(c.Query("date"), h.now())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	format, ok := report.ParseFormat(c.Query("format"))
	if !ok {
		respondError(c, http.StatusBadRequest, "format 只能是 json 或 csv")
		return
	}

	pairs, err := h.insightService.Pairs(c.Request.Context(), day)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	date := model.DayOf(day)
	if format == report.FormatCSV {
		writeCSVHeaders(c, "pairs-"+date+".csv")
		if err := report.WritePairs(c.Writer, pairs, report.FormatCSV); err != nil {
			log.Errorf("Pairs: 写出 CSV 失败, error: %v", err)
		}
		return
	}
	if pairs == nil {
		pairs = []model.ExchangePair{}
	}
	respondOK(c, "success", gin.H{"date": date, "pairs": pairs})
}

func writeCSVHeaders(c *gin.Context, filename string) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)
}
