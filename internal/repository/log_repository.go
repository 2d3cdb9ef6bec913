// Package repository 提供了数据访问层的实现。
package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"chat-insights-go/internal/model"

	"github.com/minio/minio-go/v7"
)

// LogRepository 定义了日志对象存储的操作接口。
type LogRepository interface {
	// List 返回 prefix 下的全部对象 key。
	List(ctx context.Context, prefix string) ([]string, error)
	// Fetch 读取一个对象的完整内容。
	Fetch(ctx context.Context, key string) ([]byte, error)
	// Put 写入一个对象，已存在时覆盖。
	Put(ctx context.Context, key string, body []byte) error
}

type minioLogRepository struct {
	client *minio.Client
	bucket string
}

// NewLogRepository 创建一个基于 MinIO 的 LogRepository 实例。
func NewLogRepository(client *minio.Client, bucket string) LogRepository {
	return &minioLogRepository{client: client, bucket: bucket}
}

func (r *minioLogRepository) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range r.client.ListObjects(ctx, r.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (r *minioLogRepository) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, err := r.client.GetObject(ctx, r.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

func (r *minioLogRepository) Put(ctx context.Context, key string, body []byte) error {
	_, err := r.client.PutObject(ctx, r.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// DayPrefix 返回某一天日志的对象前缀，形如 logs/2025-03-01/。
func DayPrefix(root string, day time.Time) string {
	return root + model.DayOf(day) + "/"
}

// RecordKey 返回一条日志的对象 key，按记录时间所在的 UTC 日期分区。
func RecordKey(root string, rec model.LogRecord) string {
	ts := rec.Timestamp.UTC().Format("20060102T150405.000000000Z")
	return DayPrefix(root, rec.Timestamp) + ts + "_" + rec.EventID + ".json"
}
