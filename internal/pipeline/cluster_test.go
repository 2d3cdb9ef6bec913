package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-insights-go/internal/model"
)

type fakeJudge struct {
	verdict bool
	err     error
	calls   int
}

func (f *fakeJudge) SameIntent(_ context.Context, _, _ string) (bool, error) {
	f.calls++
	return f.verdict, f.err
}

func pair(offset time.Duration, text string) model.ExchangePair {
	return model.ExchangePair{SessionID: "s1", Timestamp: at(offset), UserText: text}
}

func TestCosine(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{-2, 0.5, 4}

	assert.Equal(t, Cosine(a, b), Cosine(b, a))
	assert.InDelta(t, 1.0, Cosine(a, a), 1e-12)
	assert.InDelta(t, 1.0, Cosine(b, b), 1e-12)
	assert.Equal(t, 0.0, Cosine(a, []float64{0, 0, 0}))
	assert.Equal(t, 0.0, Cosine([]float64{0, 0, 0}, []float64{0, 0, 0}))
	assert.Equal(t, 0.0, Cosine(a, []float64{1, 2}))
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-12)
}

func TestClampThresholdAndBudget(t *testing.T) {
	assert.Equal(t, MinThreshold, ClampThreshold(0.1))
	assert.Equal(t, MaxThreshold, ClampThreshold(1.5))
	assert.Equal(t, 0.8, ClampThreshold(0.8))
	assert.Equal(t, 0, ClampJudgeBudget(-3))
	assert.Equal(t, MaxJudgeBudget, ClampJudgeBudget(1000))
	assert.Equal(t, 50, ClampJudgeBudget(50))
	assert.Equal(t, MethodJudge, ParseMethod("Judge"))
	assert.Equal(t, MethodEmbeddings, ParseMethod("whatever"))
}

func TestClusterer_SingletonIsNewCluster(t *testing.T) {
	clusters, calls, err := ClusterPairs(context.Background(),
		[]model.ExchangePair{pair(0, "hello")},
		[][]float32{{0.3, 0.4}},
		ClusterOptions{Threshold: 0.8})
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, clusters[0].Count)
	assert.Equal(t, "hello", clusters[0].RepresentativeText)
	assert.Equal(t, 0, clusters[0].RepresentativeIndex)
	assert.Equal(t, []float64{float64(float32(0.3)), float64(float32(0.4))}, clusters[0].Centroid)
}

func TestClusterer_ScenarioNearIdenticalMerge(t *testing.T) {
	records := []model.LogRecord{
		rec("s1", model.RoleUser, 0, "找咖啡"),
		rec("s1", model.RoleAssistant, time.Second, "附近有A店"),
		rec("s1", model.RoleUser, 2*time.Second, "找咖啡"),
		rec("s1", model.RoleAssistant, 3*time.Second, "附近有B店"),
	}
	pairs := PairRecords(records)
	vectors := [][]float32{{1, 0, 0.01}, {1, 0, 0.02}}

	clusters, _, err := ClusterPairs(context.Background(), pairs, vectors, ClusterOptions{Threshold: 0.8, Method: MethodEmbeddings})
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, 2, clusters[0].Count)
	assert.Equal(t, []string{"找咖啡", "找咖啡"}, clusters[0].Examples)
	assert.True(t, clusters[0].LastTimestamp.Equal(at(2*time.Second)))
}

func TestClusterer_ScenarioDivergentSplit(t *testing.T) {
	records := []model.LogRecord{
		rec("s1", model.RoleUser, 0, "找咖啡"),
		rec("s1", model.RoleAssistant, time.Second, "附近有A店"),
		rec("s1", model.RoleUser, 2*time.Second, "找咖啡"),
		rec("s1", model.RoleAssistant, 3*time.Second, "附近有B店"),
	}
	pairs := PairRecords(records)
	vectors := [][]float32{{1, 0, 0}, {0.5, 0.8, 0}}

	clusters, _, err := ClusterPairs(context.Background(), pairs, vectors, ClusterOptions{Threshold: 0.8, Method: MethodEmbeddings})
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, 1, clusters[0].Count)
	assert.Equal(t, 1, clusters[1].Count)
	// 计数相同时最近的簇排在前面
	assert.Equal(t, 1, clusters[0].RepresentativeIndex)
}

func TestClusterer_CentroidIsRunningMean(t *testing.T) {
	vectors := [][]float32{{1, 0.1, 0}, {0.9, 0.2, 0.1}, {1, 0, 0.2}, {0.8, 0.1, 0.1}}
	pairs := []model.ExchangePair{pair(0, "a"), pair(time.Second, "b"), pair(2*time.Second, "c"), pair(3*time.Second, "d")}

	clusters, _, err := ClusterPairs(context.Background(), pairs, vectors, ClusterOptions{Threshold: MinThreshold})
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	require.Equal(t, 4, clusters[0].Count)

	mean := make([]float64, 3)
	for _, v := range vectors {
		for i := range v {
			mean[i] += float64(v[i]) / float64(len(vectors))
		}
	}
	for i := range mean {
		assert.InDelta(t, mean[i], clusters[0].Centroid[i], 1e-9)
	}
}

func TestClusterer_RecentExamplesKeepsLastFive(t *testing.T) {
	c := NewClusterer(ClusterOptions{Threshold: 0.5})
	for i := 0; i < 7; i++ {
		c.Add(context.Background(), i, pair(time.Duration(i)*time.Second, string(rune('a'+i))), []float32{1, 0})
	}
	clusters := c.Clusters()
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Examples, 7)
	assert.Equal(t, []string{"c", "d", "e", "f", "g"}, clusters[0].RecentExamples())
}

func TestClusterer_OrderingByCountThenRecency(t *testing.T) {
	c := NewClusterer(ClusterOptions{Threshold: 0.9})
	c.Add(context.Background(), 0, pair(0, "x1"), []float32{1, 0})
	c.Add(context.Background(), 1, pair(time.Second, "y1"), []float32{0, 1})
	c.Add(context.Background(), 2, pair(2*time.Second, "y2"), []float32{0, 1})
	c.Add(context.Background(), 3, pair(3*time.Second, "z1"), []float32{-1, 0})

	summary := Summarize(c.Clusters())
	require.Len(t, summary, 3)
	assert.Equal(t, "y1", summary[0].Repr)
	assert.Equal(t, 1, summary[0].Rank)
	assert.Equal(t, 2, summary[0].Count)
	assert.Equal(t, "z1", summary[1].Repr)
	assert.Equal(t, "x1", summary[2].Repr)
	assert.Equal(t, 3, summary[2].Rank)
}

func TestClusterer_JudgeTieBreak(t *testing.T) {
	// cos([1,0],[0.8,0.6]) = 0.8，处于 [0.78, 0.83) 复核区间
	near := []float32{0.8, 0.6}

	tests := []struct {
		name         string
		method       Method
		budget       int
		judge        *fakeJudge
		wantClusters int
		wantCalls    int
	}{
		{name: "embeddings never asks judge", method: MethodEmbeddings, budget: 10, judge: &fakeJudge{verdict: true}, wantClusters: 2, wantCalls: 0},
		{name: "positive verdict joins", method: MethodJudge, budget: 10, judge: &fakeJudge{verdict: true}, wantClusters: 1, wantCalls: 1},
		{name: "negative verdict splits", method: MethodJudge, budget: 10, judge: &fakeJudge{verdict: false}, wantClusters: 2, wantCalls: 1},
		{name: "judge error is negative", method: MethodJudge, budget: 10, judge: &fakeJudge{verdict: true, err: errors.New("boom")}, wantClusters: 2, wantCalls: 1},
		{name: "no budget", method: MethodJudge, budget: 0, judge: &fakeJudge{verdict: true}, wantClusters: 2, wantCalls: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clusters, calls, err := ClusterPairs(context.Background(),
				[]model.ExchangePair{pair(0, "a"), pair(time.Second, "b")},
				[][]float32{{1, 0}, near},
				ClusterOptions{Threshold: 0.83, Method: tt.method, JudgeBudget: tt.budget, Judge: tt.judge})
			require.NoError(t, err)
			assert.Len(t, clusters, tt.wantClusters)
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantCalls, tt.judge.calls)
		})
	}
}

func TestClusterer_JudgeOutsideMarginNotCalled(t *testing.T) {
	judge := &fakeJudge{verdict: true}
	clusters, calls, err := ClusterPairs(context.Background(),
		[]model.ExchangePair{pair(0, "a"), pair(time.Second, "b")},
		[][]float32{{1, 0}, {0, 1}},
		ClusterOptions{Threshold: 0.8, Method: MethodJudge, JudgeBudget: 5, Judge: judge})
	require.NoError(t, err)
	assert.Len(t, clusters, 2)
	assert.Equal(t, 0, calls)
}

func TestClusterer_JudgeBudgetConsumed(t *testing.T) {
	judge := &fakeJudge{verdict: false}
	pairs := []model.ExchangePair{pair(0, "a"), pair(time.Second, "b"), pair(2*time.Second, "c"), pair(3*time.Second, "d")}
	vectors := [][]float32{{1, 0}, {0.8, 0.6}, {0.8, -0.6}, {0.8, 0.6}}

	_, calls, err := ClusterPairs(context.Background(), pairs, vectors,
		ClusterOptions{Threshold: 0.83, Method: MethodJudge, JudgeBudget: 1, Judge: judge})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, judge.calls)
}

func TestClusterPairs_LengthMismatch(t *testing.T) {
	_, _, err := ClusterPairs(context.Background(), []model.ExchangePair{pair(0, "a")}, nil, ClusterOptions{})
	assert.Error(t, err)
}
