package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-insights-go/internal/model"
	"chat-insights-go/internal/pipeline"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestDecodeLogPayload(t *testing.T) {
	_, err := DecodeLogPayload(json.RawMessage(`{"timestamp":"2025-03-01T09:00:00Z"}`))
	assert.ErrorIs(t, err, ErrInvalidLogs)

	_, err = DecodeLogPayload(nil)
	assert.ErrorIs(t, err, ErrInvalidLogs)

	records, err := DecodeLogPayload(json.RawMessage(`[
		{"timestamp":"2025-03-01T09:00:00Z","sessionId":"s1","role":"user","content":"hi"},
		{"timestamp":"2025-03-01T09:00:01Z","sessionId":"s1","role":"wizard","content":"?"},
		42
	]`))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "hi", records[0].Content)

	records, err = DecodeLogPayload(json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestInsightService_EmptyLogs(t *testing.T) {
	emb := &fakeEmbedder{}
	svc := NewInsightService(&stubLogService{}, emb, nil, testInsightsConfig())

	report, err := svc.Cluster(context.Background(), ClusterRequest{Records: []model.LogRecord{}})
	require.NoError(t, err)
	assert.NotNil(t, report.Clusters)
	assert.Empty(t, report.Clusters)
	assert.Equal(t, 0, report.Used.N)
	assert.Equal(t, 0.80, report.Used.Threshold)
	assert.Equal(t, "embeddings", report.Used.Method)
	assert.Equal(t, 0, emb.calls)

	body, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"clusters":[]`)
}

func TestInsightService_MissingSource(t *testing.T) {
	svc := NewInsightService(&stubLogService{}, &fakeEmbedder{}, nil, testInsightsConfig())
	_, err := svc.Cluster(context.Background(), ClusterRequest{})
	assert.ErrorIs(t, err, ErrMissingSource)
}

func TestInsightService_ClustersInlineLogs(t *testing.T) {
	emb := &fakeEmbedder{
		vectors: map[string][]float32{
			"附近的咖啡店": {1, 0},
			"哪里有咖啡":  {0.99, 0.05},
			"明天天气":   {0, 1},
		},
		fallback: []float32{0.5, 0.5},
	}
	cfg := testInsightsConfig()
	cfg.EmbeddingBatchSize = 2
	svc := NewInsightService(&stubLogService{}, emb, nil, cfg)

	records := []model.LogRecord{
		rec(0, "s1", model.RoleUser, "附近的咖啡店"),
		rec(1, "s1", model.RoleAssistant, "A 店"),
		rec(10, "s2", model.RoleUser, "哪里有咖啡"),
		rec(20, "s3", model.RoleUser, "明天天气"),
		rec(21, "s3", model.RoleAssistant, "晴"),
	}
	report, err := svc.Cluster(context.Background(), ClusterRequest{Records: records})
	require.NoError(t, err)

	assert.Equal(t, 2, emb.calls)
	assert.Equal(t, 3, report.Used.N)
	require.Len(t, report.Clusters, 2)
	assert.Equal(t, 1, report.Clusters[0].Rank)
	assert.Equal(t, 2, report.Clusters[0].Count)
	assert.Equal(t, "附近的咖啡店", report.Clusters[0].Repr)
	assert.Equal(t, []string{"附近的咖啡店", "哪里有咖啡"}, report.Clusters[0].Examples)
	assert.Equal(t, "明天天气", report.Clusters[1].Repr)
}

func TestInsightService_LoadsDayWhenNoLogs(t *testing.T) {
	logs := &stubLogService{records: []model.LogRecord{rec(0, "s1", model.RoleUser, "hi")}}
	emb := &fakeEmbedder{fallback: []float32{1, 0}}
	svc := NewInsightService(logs, emb, nil, testInsightsConfig())

	d := day
	report, err := svc.Cluster(context.Background(), ClusterRequest{Day: &d})
	require.NoError(t, err)
	assert.Equal(t, 1, logs.loads)
	assert.Equal(t, 1, report.Used.N)
	require.Len(t, report.Clusters, 1)
}

func TestInsightService_EmbeddingFailureAborts(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("quota exceeded")}
	svc := NewInsightService(&stubLogService{}, emb, nil, testInsightsConfig())

	_, err := svc.Cluster(context.Background(), ClusterRequest{Records: []model.LogRecord{rec(0, "s1", model.RoleUser, "hi")}})
	assert.Error(t, err)
}

func TestInsightService_ResolveParams(t *testing.T) {
	cfg := testInsightsConfig()
	cfg.MaxJudgeBudget = 100
	svc := &insightService{cfg: cfg}

	tests := []struct {
		name          string
		req           ClusterRequest
		wantThreshold float64
		wantMethod    pipeline.Method
		wantBudget    int
	}{
		{"默认值", ClusterRequest{}, 0.80, pipeline.MethodEmbeddings, 50},
		{"阈值下限", ClusterRequest{Threshold: floatPtr(0.1)}, 0.5, pipeline.MethodEmbeddings, 50},
		{"阈值上限", ClusterRequest{Threshold: floatPtr(1.5)}, 0.98, pipeline.MethodEmbeddings, 50},
		{"judge 预算封顶", ClusterRequest{Method: "judge", JudgeBudget: intPtr(500)}, 0.80, pipeline.MethodJudge, 100},
		{"未知方法回退", ClusterRequest{Method: "kmeans"}, 0.80, pipeline.MethodEmbeddings, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			threshold, method, budget := svc.resolveParams(tt.req)
			assert.InDelta(t, tt.wantThreshold, threshold, 1e-9)
			assert.Equal(t, tt.wantMethod, method)
			assert.Equal(t, tt.wantBudget, budget)
		})
	}
}

func TestEmbeddingText(t *testing.T) {
	answer := "A 店"
	p := model.ExchangePair{UserText: "咖啡", AssistantText: &answer}
	assert.Equal(t, "咖啡", embeddingText(p, false))
	assert.Equal(t, "咖啡\nA 店", embeddingText(p, true))
	assert.Equal(t, "咖啡", embeddingText(model.ExchangePair{UserText: "咖啡"}, true))
}

func TestInsightService_Pairs(t *testing.T) {
	logs := &stubLogService{records: []model.LogRecord{
		rec(1, "s1", model.RoleAssistant, "orphan"),
		rec(2, "s1", model.RoleUser, "q"),
		rec(3, "s1", model.RoleAssistant, "a"),
	}}
	svc := NewInsightService(logs, &fakeEmbedder{}, nil, testInsightsConfig())
	pairs, err := svc.Pairs(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.True(t, pairs[0].Answered())
	assert.Equal(t, "a", *pairs[0].AssistantText)
}
