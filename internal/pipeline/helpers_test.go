package pipeline

import (
	"time"

	"chat-insights-go/internal/model"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func at(offset time.Duration) time.Time {
	return baseTime.Add(offset)
}

func rec(session string, role model.Role, offset time.Duration, content string) model.LogRecord {
	return model.LogRecord{
		Timestamp: at(offset),
		SessionID: session,
		UserID:    "u-" + session,
		Role:      role,
		Content:   content,
	}
}

func withEvent(r model.LogRecord, eventID string) model.LogRecord {
	r.EventID = eventID
	return r
}
