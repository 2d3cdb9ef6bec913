package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"chat-insights-go/internal/model"
	"chat-insights-go/pkg/log"
)

const (
	MinThreshold       = 0.5
	MaxThreshold       = 0.98
	DefaultThreshold   = 0.80
	DefaultJudgeBudget = 50
	MaxJudgeBudget     = 200

	// judgeMargin 是阈值以下仍允许 judge 复核的区间宽度。
	judgeMargin = 0.05
	// maxExamples 是每个簇对外输出的最近示例数。
	maxExamples = 5
)

// Method 决定是否在阈值附近引入 LLM judge 复核。
type Method string

const (
	MethodEmbeddings Method = "embeddings"
	MethodJudge      Method = "judge"
)

// ParseMethod 解析聚类方法，未知取值回退为 embeddings。
func ParseMethod(s string) Method {
	if Method(strings.ToLower(strings.TrimSpace(s))) == MethodJudge {
		return MethodJudge
	}
	return MethodEmbeddings
}

// ClampThreshold 把阈值限制在 [MinThreshold, MaxThreshold]。
func ClampThreshold(v float64) float64 {
	if v < MinThreshold {
		return MinThreshold
	}
	if v > MaxThreshold {
		return MaxThreshold
	}
	return v
}

// ClampJudgeBudget 把 judge 调用预算限制在 [0, MaxJudgeBudget]。
func ClampJudgeBudget(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxJudgeBudget {
		return MaxJudgeBudget
	}
	return n
}

// Judge 判断两段文本是否表达相同意图。
type Judge interface {
	SameIntent(ctx context.Context, a, b string) (bool, error)
}

// Cluster 是一次聚类运行中的一个簇。Centroid 始终是所有成员向量的滑动均值。
type Cluster struct {
	RepresentativeText  string
	RepresentativeIndex int
	Centroid            []float64
	Count               int
	Examples            []string
	LastTimestamp       time.Time
}

// RecentExamples 返回最近的 maxExamples 条示例。
func (c *Cluster) RecentExamples() []string {
	start := len(c.Examples) - maxExamples
	if start < 0 {
		start = 0
	}
	out := make([]string, len(c.Examples)-start)
	copy(out, c.Examples[start:])
	return out
}

func (c *Cluster) absorb(pair model.ExchangePair, vec []float64) {
	c.Count++
	c.Examples = append(c.Examples, pair.UserText)
	if pair.Timestamp.After(c.LastTimestamp) {
		c.LastTimestamp = pair.Timestamp
	}
	if len(vec) != len(c.Centroid) {
		return
	}
	w := 1 / float64(c.Count)
	for i := range c.Centroid {
		c.Centroid[i] = c.Centroid[i]*(1-w) + vec[i]*w
	}
}

// ClusterOptions 是一次聚类运行的参数。
type ClusterOptions struct {
	Threshold   float64
	Method      Method
	JudgeBudget int
	Judge       Judge
}

// Clusterer 逐条地把交互分配到最近的簇。分配结果依赖处理顺序，不能并行。
type Clusterer struct {
	threshold  float64
	method     Method
	budget     int
	judge      Judge
	judgeCalls int
	clusters   []*Cluster
}

// NewClusterer 创建聚类器，阈值与预算会被钳制到合法区间。
func NewClusterer(opts ClusterOptions) *Clusterer {
	return &Clusterer{
		threshold: ClampThreshold(opts.Threshold),
		method:    opts.Method,
		budget:    ClampJudgeBudget(opts.JudgeBudget),
		judge:     opts.Judge,
	}
}

// JudgeCalls 返回已消耗的 judge 调用次数。
func (c *Clusterer) JudgeCalls() int {
	return c.judgeCalls
}

// Add 处理第 index 条交互，返回其所属簇在内部列表中的下标。
func (c *Clusterer) Add(ctx context.Context, index int, pair model.ExchangePair, vector []float32) int {
	vec := toFloat64(vector)

	best, bestSim := -1, 0.0
	for i, cl := range c.clusters {
		sim := Cosine(vec, cl.Centroid)
		if best == -1 || sim > bestSim {
			best, bestSim = i, sim
		}
	}

	if best >= 0 && bestSim >= c.threshold {
		c.clusters[best].absorb(pair, vec)
		return best
	}

	if best >= 0 && c.method == MethodJudge && c.judge != nil && c.budget > 0 && bestSim >= c.threshold-judgeMargin {
		c.budget--
		c.judgeCalls++
		same, err := c.judge.SameIntent(ctx, pair.UserText, c.clusters[best].RepresentativeText)
		if err != nil {
			log.Warnf("[Clusterer] judge 调用失败，按不同意图处理, index: %d, error: %v", index, err)
			same = false
		}
		if same {
			c.clusters[best].absorb(pair, vec)
			return best
		}
	}

	centroid := make([]float64, len(vec))
	copy(centroid, vec)
	c.clusters = append(c.clusters, &Cluster{
		RepresentativeText:  pair.UserText,
		RepresentativeIndex: index,
		Centroid:            centroid,
		Count:               1,
		Examples:            []string{pair.UserText},
		LastTimestamp:       pair.Timestamp,
	})
	return len(c.clusters) - 1
}

// Clusters 返回按成员数降序、最近时间降序排列的簇快照。
func (c *Clusterer) Clusters() []Cluster {
	out := make([]Cluster, 0, len(c.clusters))
	for _, cl := range c.clusters {
		out = append(out, *cl)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].LastTimestamp.After(out[j].LastTimestamp)
	})
	return out
}

// ClusterPairs 对一组交互及其一一对应的向量执行在线聚类。
func ClusterPairs(ctx context.Context, pairs []model.ExchangePair, vectors [][]float32, opts ClusterOptions) ([]Cluster, int, error) {
	if len(pairs) != len(vectors) {
		return nil, 0, fmt.Errorf("pairs/vectors length mismatch: %d != %d", len(pairs), len(vectors))
	}
	c := NewClusterer(opts)
	for i, pair := range pairs {
		c.Add(ctx, i, pair, vectors[i])
	}
	return c.Clusters(), c.JudgeCalls(), nil
}

// Summarize 把排序后的簇转换为报告条目，rank 从 1 开始。
func Summarize(clusters []Cluster) []model.ClusterSummary {
	out := make([]model.ClusterSummary, 0, len(clusters))
	for i := range clusters {
		cl := &clusters[i]
		out = append(out, model.ClusterSummary{
			Rank:     i + 1,
			Count:    cl.Count,
			Repr:     cl.RepresentativeText,
			LastTs:   model.ISOTime(cl.LastTimestamp),
			Examples: cl.RecentExamples(),
		})
	}
	return out
}
