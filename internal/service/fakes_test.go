package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"chat-insights-go/internal/config"
	"chat-insights-go/internal/model"
	"chat-insights-go/pkg/llm"
	"chat-insights-go/pkg/tasks"
)

var day = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func testInsightsConfig() config.InsightsConfig {
	return config.InsightsConfig{
		LogPrefix:          "logs/",
		DefaultThreshold:   0.80,
		DefaultJudgeBudget: 50,
		MaxJudgeBudget:     200,
		EmbeddingBatchSize: 128,
		FetchConcurrency:   4,
	}
}

type fakeRepo struct {
	mu      sync.Mutex
	objects map[string][]byte
	broken  map[string]bool
	listErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{objects: map[string][]byte{}, broken: map[string]bool{}}
}

func (r *fakeRepo) List(_ context.Context, prefix string) ([]string, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for k := range r.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *fakeRepo) Fetch(_ context.Context, key string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken[key] {
		return nil, errors.New("connection reset")
	}
	data, ok := r.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (r *fakeRepo) Put(_ context.Context, key string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects[key] = body
	return nil
}

type fakePublisher struct {
	events []tasks.LogEvent
	err    error
}

func (p *fakePublisher) PublishLogEvent(_ context.Context, event tasks.LogEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

// fakeEmbedder 按文本查表返回向量，未登记的文本返回 fallback。
type fakeEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	calls    int
	err      error
}

func (e *fakeEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := e.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = e.fallback
		}
	}
	return out, nil
}

type fakeLLM struct {
	reply    string
	err      error
	messages []llm.Message
	gen      *llm.GenerationParams
}

func (f *fakeLLM) Complete(_ context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	f.messages = messages
	f.gen = gen
	return f.reply, f.err
}

type stubLogService struct {
	records []model.LogRecord
	err     error
	loads   int
}

func (s *stubLogService) Ingest(_ context.Context, rec model.LogRecord) (model.LogRecord, string, error) {
	return rec, "", nil
}

func (s *stubLogService) Process(context.Context, tasks.LogEvent) error { return nil }

func (s *stubLogService) LoadDay(context.Context, time.Time) ([]model.LogRecord, error) {
	s.loads++
	return s.records, s.err
}

func rec(sec int, session string, role model.Role, content string) model.LogRecord {
	return model.LogRecord{
		Timestamp: day.Add(9*time.Hour + time.Duration(sec)*time.Second),
		SessionID: session,
		UserID:    "u-" + session,
		Role:      role,
		Content:   content,
	}
}
