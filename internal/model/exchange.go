package model

import (
	"encoding/json"
	"time"
)

// ExchangePair 是一次 user→assistant 交互的派生视图，不落盘。
// AssistantTimestamp 与 AssistantText 为空表示该用户消息尚未得到回复。
type ExchangePair struct {
	SessionID          string
	Timestamp          time.Time
	UserText           string
	AssistantTimestamp *time.Time
	AssistantText      *string
}

// Answered 报告该交互是否已有助手回复。
func (p ExchangePair) Answered() bool {
	return p.AssistantText != nil
}

// MarshalJSON implements the json.Marshaler interface.
func (p ExchangePair) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		SessionID          string   `json:"sessionId,omitempty"`
		Timestamp          ISOTime  `json:"timestamp"`
		UserText           string   `json:"userText"`
		AssistantTimestamp *ISOTime `json:"assistantTimestamp,omitempty"`
		AssistantText      *string  `json:"assistantText,omitempty"`
	}{
		SessionID:          p.SessionID,
		Timestamp:          ISOTime(p.Timestamp),
		UserText:           p.UserText,
		AssistantTimestamp: isoPtr(p.AssistantTimestamp),
		AssistantText:      p.AssistantText,
	})
}
