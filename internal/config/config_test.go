package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: "9090"
minio:
  bucket_name: "chat-logs"
insights:
  fetch_concurrency: 4
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	t.Setenv("INSIGHTS_INSIGHTS_DEFAULT_THRESHOLD", "0.9")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "chat-logs", cfg.MinIO.BucketName)
	assert.Equal(t, 4, cfg.Insights.FetchConcurrency)
	assert.Equal(t, 0.9, cfg.Insights.DefaultThreshold)
	assert.Equal(t, 50, cfg.Insights.DefaultJudgeBudget)
	assert.Equal(t, 128, cfg.Insights.EmbeddingBatchSize)
	assert.Equal(t, "logs/", cfg.Insights.LogPrefix)
	assert.Equal(t, 3, cfg.Kafka.MaxAttempts)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
