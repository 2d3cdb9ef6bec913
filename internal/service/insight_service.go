package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chat-insights-go/internal/config"
	"chat-insights-go/internal/model"
	"chat-insights-go/internal/pipeline"
	"chat-insights-go/pkg/embedding"
	"chat-insights-go/pkg/log"
)

// ClusterRequest 描述一次聚类请求。Records 为 nil 时从 Day 指定的日期读取日志。
type ClusterRequest struct {
	Records       []model.LogRecord
	Day           *time.Time
	Threshold     *float64
	IncludeAnswer bool
	Method        string
	JudgeBudget   *int
}

// InsightService 定义了会话聚类与配对查询的接口。
type InsightService interface {
	Cluster(ctx context.Context, req ClusterRequest) (*model.ClusterReport, error)
	Pairs(ctx context.Context, day time.Time) ([]model.ExchangePair, error)
}

type insightService struct {
	logService LogService
	embedder   embedding.Client
	judge      pipeline.Judge
	cfg        config.InsightsConfig
}

// NewInsightService 创建一个新的 InsightService 实例。
func NewInsightService(logService LogService, embedder embedding.Client, judge pipeline.Judge, cfg config.InsightsConfig) InsightService {
	return &insightService{
		logService: logService,
		embedder:   embedder,
		judge:      judge,
		cfg:        cfg,
	}
}

// DecodeLogPayload 解析请求中的 logs 字段。非数组返回 ErrInvalidLogs，
// 数组中不合法的记录被静默丢弃。
func DecodeLogPayload(raw json.RawMessage) ([]model.LogRecord, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrInvalidLogs
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, ErrInvalidLogs
	}
	records := make([]model.LogRecord, 0, len(items))
	for _, item := range items {
		var rec model.LogRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *insightService) resolveParams(req ClusterRequest) (float64, pipeline.Method, int) {
	threshold := s.cfg.DefaultThreshold
	if threshold == 0 {
		threshold = pipeline.DefaultThreshold
	}
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	budget := s.cfg.DefaultJudgeBudget
	if req.JudgeBudget != nil {
		budget = *req.JudgeBudget
	}
	if s.cfg.MaxJudgeBudget > 0 && budget > s.cfg.MaxJudgeBudget {
		budget = s.cfg.MaxJudgeBudget
	}
	return pipeline.ClampThreshold(threshold), pipeline.ParseMethod(req.Method), pipeline.ClampJudgeBudget(budget)
}

// Cluster 执行 配对 → 向量化 → 在线聚类。向量化失败时整个请求失败。
func (s *insightService) Cluster(ctx context.Context, req ClusterRequest) (*model.ClusterReport, error) {
	records := req.Records
	if records == nil {
		if req.Day == nil {
			return nil, ErrMissingSource
		}
		loaded, err := s.logService.LoadDay(ctx, *req.Day)
		if err != nil {
			return nil, fmt.Errorf("failed to load logs: %w", err)
		}
		records = loaded
	}

	threshold, method, budget := s.resolveParams(req)
	pairs := pipeline.PairRecords(records)
	log.Infof("[InsightService] 开始聚类, records: %d, pairs: %d, threshold: %.2f, method: %s", len(records), len(pairs), threshold, method)

	report := &model.ClusterReport{
		Clusters: []model.ClusterSummary{},
		Used: model.ClusterUsage{
			Threshold:     threshold,
			IncludeAnswer: req.IncludeAnswer,
			Method:        string(method),
			N:             len(pairs),
		},
	}
	if len(pairs) == 0 {
		return report, nil
	}

	texts := make([]string, len(pairs))
	for i, p := range pairs {
		texts[i] = embeddingText(p, req.IncludeAnswer)
	}
	batchSize := s.cfg.EmbeddingBatchSize
	if batchSize <= 0 {
		batchSize = 128
	}
	vectors, err := embedding.EmbedInBatches(ctx, s.embedder, texts, batchSize)
	if err != nil {
		log.Errorf("[InsightService] 向量化失败, error: %v", err)
		return nil, fmt.Errorf("failed to embed exchanges: %w", err)
	}

	clusters, judgeCalls, err := pipeline.ClusterPairs(ctx, pairs, vectors, pipeline.ClusterOptions{
		Threshold:   threshold,
		Method:      method,
		JudgeBudget: budget,
		Judge:       s.judge,
	})
	if err != nil {
		return nil, err
	}

	report.Clusters = pipeline.Summarize(clusters)
	report.Used.JudgeCalls = judgeCalls
	log.Infof("[InsightService] 聚类完成, clusters: %d, judgeCalls: %d", len(clusters), judgeCalls)
	return report, nil
}

func embeddingText(p model.ExchangePair, includeAnswer bool) string {
	if includeAnswer && p.AssistantText != nil {
		return p.UserText + "\n" + *p.AssistantText
	}
	return p.UserText
}

func (s *insightService) Pairs(ctx context.Context, day time.Time) ([]model.ExchangePair, error) {
	records, err := s.logService.LoadDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load logs: %w", err)
	}
	return pipeline.PairRecords(records), nil
}
