package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"chat-insights-go/internal/config"
	"chat-insights-go/internal/model"
	"chat-insights-go/internal/repository"
	"chat-insights-go/pkg/log"
	"chat-insights-go/pkg/tasks"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// LogPublisher 把待落盘的日志事件投递到消息队列。
type LogPublisher interface {
	PublishLogEvent(ctx context.Context, event tasks.LogEvent) error
}

// LogService 定义了日志写入与读取的接口。
type LogService interface {
	// Ingest 校验并补全一条日志，投递到队列后返回补全后的记录与存储 key。
	Ingest(ctx context.Context, rec model.LogRecord) (model.LogRecord, string, error)
	// Process 把队列中的日志事件写入对象存储，供 Kafka 消费者调用。
	Process(ctx context.Context, task tasks.LogEvent) error
	// LoadDay 读取某一天的全部日志；单个对象读取或解析失败时跳过该对象。
	LoadDay(ctx context.Context, day time.Time) ([]model.LogRecord, error)
}

type logService struct {
	repo      repository.LogRepository
	publisher LogPublisher
	cfg       config.InsightsConfig
}

// NewLogService 创建一个新的 LogService。
func NewLogService(repo repository.LogRepository, publisher LogPublisher, cfg config.InsightsConfig) LogService {
	return &logService{repo: repo, publisher: publisher, cfg: cfg}
}

func (s *logService) Ingest(ctx context.Context, rec model.LogRecord) (model.LogRecord, string, error) {
	if rec.Timestamp.IsZero() {
		return rec, "", fmt.Errorf("%w: timestamp is required", ErrInvalidRecord)
	}
	if _, ok := model.ParseRole(string(rec.Role)); !ok {
		return rec, "", fmt.Errorf("%w: unknown role %q", ErrInvalidRecord, rec.Role)
	}
	if rec.EventID == "" {
		rec.EventID = uuid.NewString()
	}

	key := repository.RecordKey(s.cfg.LogPrefix, rec)
	if err := s.publisher.PublishLogEvent(ctx, tasks.LogEvent{Key: key, Record: rec}); err != nil {
		log.Errorf("[LogService] 投递日志事件失败, eventId: %s, error: %v", rec.EventID, err)
		return rec, "", fmt.Errorf("failed to publish log event: %w", err)
	}
	log.Infof("[LogService] 日志已入队, role: %s, session: %s, key: %s", rec.Role, rec.SessionID, key)
	return rec, key, nil
}

func (s *logService) Process(ctx context.Context, task tasks.LogEvent) error {
	key := task.Key
	if key == "" {
		key = repository.RecordKey(s.cfg.LogPrefix, task.Record)
	}
	body, err := json.Marshal(task.Record)
	if err != nil {
		return fmt.Errorf("failed to marshal log record: %w", err)
	}
	if err := s.repo.Put(ctx, key, body); err != nil {
		return err
	}
	log.Infof("[LogService] 日志已落盘, key: %s", key)
	return nil
}

func (s *logService) LoadDay(ctx context.Context, day time.Time) ([]model.LogRecord, error) {
	prefix := repository.DayPrefix(s.cfg.LogPrefix, day)
	keys, err := s.repo.List(ctx, prefix)
	if err != nil {
		log.Errorf("[LogService] 列举日志对象失败, prefix: %s, error: %v", prefix, err)
		return nil, err
	}

	// 对象之间互不依赖，并发读取，结果按下标归位后再统一排序处理
	results := make([][]model.LogRecord, len(keys))
	var skipped, dropped int64
	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.FetchConcurrency > 0 {
		g.SetLimit(s.cfg.FetchConcurrency)
	}
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			data, err := s.repo.Fetch(gctx, key)
			if err != nil {
				log.Warnf("[LogService] 读取日志对象失败，跳过, key: %s, error: %v", key, err)
				atomic.AddInt64(&skipped, 1)
				return nil
			}
			records, bad := model.DecodeLogRecords(data)
			atomic.AddInt64(&dropped, int64(bad))
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []model.LogRecord
	for _, records := range results {
		out = append(out, records...)
	}
	log.Infow("[LogService] 日志读取完成",
		"prefix", prefix,
		"objects", len(keys),
		"records", len(out),
		"skippedObjects", skipped,
		"droppedRecords", dropped,
	)
	return out, nil
}
