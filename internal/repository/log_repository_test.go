package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"chat-insights-go/internal/model"
)

func TestDayPrefix(t *testing.T) {
	day := time.Date(2025, 3, 1, 23, 30, 0, 0, time.FixedZone("CST", 8*3600))
	// 按 UTC 分区
	assert.Equal(t, "logs/2025-03-01/", DayPrefix("logs/", day))
	assert.Equal(t, "logs/2025-03-02/", DayPrefix("logs/", time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)))
}

func TestRecordKey(t *testing.T) {
	rec := model.LogRecord{
		Timestamp: time.Date(2025, 3, 1, 9, 15, 30, 123000000, time.UTC),
		EventID:   "ev1",
	}
	assert.Equal(t, "logs/2025-03-01/20250301T091530.123000000Z_ev1.json", RecordKey("logs/", rec))
}
