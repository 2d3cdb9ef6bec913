// Package model 包含了应用的数据模型定义。
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role 是日志记录的角色，取值封闭。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleFeedback  Role = "feedback"
)

// Roles 按固定顺序列出所有合法角色。
var Roles = []Role{RoleUser, RoleAssistant, RoleSystem, RoleFeedback}

// ParseRole 解析角色字符串，不认识的值返回 false。
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleAssistant, RoleSystem, RoleFeedback:
		return r, true
	}
	return "", false
}

// Rank 用于同一时刻记录的稳定排序：user < assistant < system < feedback。
func (r Role) Rank() int {
	for i, v := range Roles {
		if v == r {
			return i
		}
	}
	return len(Roles)
}

// ErrMalformedRecord 表示记录缺少必填字段或无法解析，读取方应静默丢弃。
var ErrMalformedRecord = errors.New("malformed log record")

// LogRecord 代表一条聊天日志（一次对话轮次或一次反馈动作）。
// Rating 之后的字段仅在反馈合并后出现在 assistant 记录上。
type LogRecord struct {
	Timestamp     time.Time
	SessionID     string
	UserID        string
	Role          Role
	Content       string
	EventID       string
	Rating        *float64
	TargetEventID string

	RatingTimestamp  *time.Time
	RatingEventID    string
	FeedbackTargetID string
}

type logRecordJSON struct {
	Timestamp        string      `json:"timestamp"`
	SessionID        string      `json:"sessionId"`
	UserID           string      `json:"userId"`
	Role             string      `json:"role"`
	Content          *string     `json:"content"`
	EventID          string      `json:"eventId,omitempty"`
	Rating           interface{} `json:"rating,omitempty"`
	TargetEventID    string      `json:"targetEventId,omitempty"`
	RatingTimestamp  *ISOTime    `json:"ratingTimestamp,omitempty"`
	RatingEventID    string      `json:"ratingEventId,omitempty"`
	FeedbackTargetID string      `json:"feedbackTargetId,omitempty"`
}

// UnmarshalJSON 解析并校验一条日志；timestamp、role 缺失或非法时返回 ErrMalformedRecord。
// user/assistant 记录还要求 content 存在。
func (r *LogRecord) UnmarshalJSON(b []byte) error {
	var raw logRecordJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if raw.Timestamp == "" || raw.Role == "" {
		return fmt.Errorf("%w: timestamp and role are required", ErrMalformedRecord)
	}
	ts, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	role, ok := ParseRole(raw.Role)
	if !ok {
		return fmt.Errorf("%w: unknown role %q", ErrMalformedRecord, raw.Role)
	}
	if raw.Content == nil && (role == RoleUser || role == RoleAssistant) {
		return fmt.Errorf("%w: content is required for %s", ErrMalformedRecord, role)
	}

	*r = LogRecord{
		Timestamp:        ts,
		SessionID:        raw.SessionID,
		UserID:           raw.UserID,
		Role:             role,
		EventID:          raw.EventID,
		TargetEventID:    raw.TargetEventID,
		RatingEventID:    raw.RatingEventID,
		FeedbackTargetID: raw.FeedbackTargetID,
	}
	if raw.Content != nil {
		r.Content = *raw.Content
	}
	// 只接受数值型 rating，其余情况交给 content 中的 value= 兜底解析
	if v, ok := raw.Rating.(float64); ok {
		r.Rating = &v
	}
	if raw.RatingTimestamp != nil {
		t := time.Time(*raw.RatingTimestamp)
		r.RatingTimestamp = &t
	}
	return nil
}

// MarshalJSON implements the json.Marshaler interface.
func (r LogRecord) MarshalJSON() ([]byte, error) {
	content := r.Content
	out := logRecordJSON{
		Timestamp:        FormatISO(r.Timestamp),
		SessionID:        r.SessionID,
		UserID:           r.UserID,
		Role:             string(r.Role),
		Content:          &content,
		EventID:          r.EventID,
		TargetEventID:    r.TargetEventID,
		RatingTimestamp:  isoPtr(r.RatingTimestamp),
		RatingEventID:    r.RatingEventID,
		FeedbackTargetID: r.FeedbackTargetID,
	}
	if r.Rating != nil {
		out.Rating = *r.Rating
	}
	return json.Marshal(out)
}

// DecodeLogRecords 解析一个存储对象，对象可以是单条记录或记录数组。
// 不合法的记录被跳过，dropped 返回被丢弃的条数。
func DecodeLogRecords(data []byte) (records []LogRecord, dropped int) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return nil, 1
		}
		for _, item := range items {
			var rec LogRecord
			if err := json.Unmarshal(item, &rec); err != nil {
				dropped++
				continue
			}
			records = append(records, rec)
		}
		return records, dropped
	}

	var rec LogRecord
	if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
		return nil, 1
	}
	return []LogRecord{rec}, 0
}
