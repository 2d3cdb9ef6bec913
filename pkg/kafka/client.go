// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chat-insights-go/internal/config"
	"chat-insights-go/pkg/log"
	"chat-insights-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// TaskProcessor 处理一条日志事件，使 Kafka 消费者与具体的落盘实现解耦。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.LogEvent) error
}

// Publisher 把日志事件写入 Kafka。
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher 初始化 Kafka 生产者。
func NewPublisher(cfg config.KafkaConfig) *Publisher {
	w := &kafka.Writer{
		Addr:     kafka.TCP(splitBrokers(cfg.Brokers)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Publisher{writer: w}
}

// PublishLogEvent 发送一条日志事件，以会话 ID 作为消息 key 保证同一会话有序。
func (p *Publisher) PublishLogEvent(ctx context.Context, event tasks.LogEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal log event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Record.SessionID),
		Value: value,
	})
}

// Close 关闭生产者并刷新缓冲区。
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

const (
	attemptsKeyPrefix = "insights:attempts:"
	attemptsTTL       = 24 * time.Hour
	retryBackoff      = time.Second
	fetchBackoff      = 2 * time.Second
)

// messageReader 是消费循环用到的 kafka.Reader 方法。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// AttemptCounter 记录每条日志事件的落盘失败次数。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type redisAttemptCounter struct {
	rdb *redis.Client
}

// NewRedisAttemptCounter 基于 Redis 创建失败计数器，计数 24 小时后过期。
func NewRedisAttemptCounter(rdb *redis.Client) AttemptCounter {
	return &redisAttemptCounter{rdb: rdb}
}

func (c *redisAttemptCounter) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, attemptsKeyPrefix+key).Result()
	if err != nil {
		return 0, err
	}
	_ = c.rdb.Expire(ctx, attemptsKeyPrefix+key, attemptsTTL).Err()
	return n, nil
}

func (c *redisAttemptCounter) Reset(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, attemptsKeyPrefix+key).Err()
}

type consumer struct {
	reader       messageReader
	attempts     AttemptCounter
	processor    TaskProcessor
	maxAttempts  int64
	retryBackoff time.Duration
	fetchBackoff time.Duration
}

// StartConsumer 启动一个 Kafka 消费者来落盘日志事件，ctx 取消后退出。
// 处理失败的消息在本地退避重试，失败次数记录在 Redis 中；成功或达到 MaxAttempts 后才提交 offset。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, rdb *redis.Client, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  splitBrokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	maxAttempts := int64(cfg.MaxAttempts)
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	c := &consumer{
		reader:       r,
		attempts:     NewRedisAttemptCounter(rdb),
		processor:    processor,
		maxAttempts:  maxAttempts,
		retryBackoff: retryBackoff,
		fetchBackoff: fetchBackoff,
	}
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	c.run(ctx)
	log.Info("Kafka 消费者已停止")
}

func (c *consumer) run(ctx context.Context) {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Errorf("从 Kafka 读取消息失败，稍后重试: %v", err)
			if !sleepCtx(ctx, c.fetchBackoff) {
				return
			}
			continue
		}
		c.handle(ctx, m)
	}
}

// handle 处理单条消息。ctx 在重试期间被取消时不提交，消息会在重启后重新投递。
func (c *consumer) handle(ctx context.Context, m kafka.Message) {
	var task tasks.LogEvent
	if err := json.Unmarshal(m.Value, &task); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Warnf("无法解析 Kafka 消息，丢弃: offset=%d, error=%v", m.Offset, err)
		c.commit(ctx, m)
		return
	}

	for attempt := int64(1); ; attempt++ {
		err := c.processor.Process(ctx, task)
		if err == nil {
			if err := c.attempts.Reset(ctx, task.Key); err != nil {
				log.Warnf("清理失败计数失败: key=%s, error=%v", task.Key, err)
			}
			c.commit(ctx, m)
			return
		}

		failures, incErr := c.attempts.Incr(ctx, task.Key)
		if incErr != nil {
			log.Warnf("记录失败次数失败，使用本地计数: key=%s, error=%v", task.Key, incErr)
			failures = attempt
		}
		log.Errorf("日志落盘失败(%d/%d): key=%s, error=%v", failures, c.maxAttempts, task.Key, err)
		if failures >= c.maxAttempts {
			log.Errorf("日志落盘多次失败，提交 offset 放弃: key=%s", task.Key)
			c.commit(ctx, m)
			return
		}
		if !sleepCtx(ctx, c.retryBackoff*time.Duration(attempt)) {
			return
		}
	}
}

func (c *consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}

// sleepCtx 等待 d，ctx 先结束时返回 false。
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
