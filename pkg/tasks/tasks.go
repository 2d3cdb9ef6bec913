// Package tasks defines the structure for messages that are sent to Kafka.
package tasks

import "chat-insights-go/internal/model"

// LogEvent 是一条待落盘的聊天日志，Key 为其在对象存储中的路径。
type LogEvent struct {
	Key    string          `json:"key"`
	Record model.LogRecord `json:"record"`
}
