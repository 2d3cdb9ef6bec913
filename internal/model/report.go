package model

import "time"

// RoleCounts 是某一天各角色的日志条数。
type RoleCounts struct {
	Date      string `json:"date"`
	User      int    `json:"user"`
	Assistant int    `json:"assistant"`
	System    int    `json:"system"`
	Feedback  int    `json:"feedback"`
	Total     int    `json:"total"`
}

// DetailRow 是日报 detail 视图中的一行：一次交互及其合并后的评分。
type DetailRow struct {
	SessionID          string   `json:"sessionId"`
	UserID             string   `json:"userId"`
	UserTimestamp      ISOTime  `json:"userTimestamp"`
	UserText           string   `json:"userText"`
	AssistantTimestamp *ISOTime `json:"assistantTimestamp,omitempty"`
	AssistantText      *string  `json:"assistantText,omitempty"`
	AssistantEventID   string   `json:"assistantEventId,omitempty"`
	Rating             *float64 `json:"rating,omitempty"`
	RatingTimestamp    *ISOTime `json:"ratingTimestamp,omitempty"`
	RatingEventID      string   `json:"ratingEventId,omitempty"`
	FeedbackTargetID   string   `json:"feedbackTargetId,omitempty"`
}

// NewDetailRow 由 user 记录和可选的 assistant 记录构造一行。
func NewDetailRow(user LogRecord, assistant *LogRecord) DetailRow {
	row := DetailRow{
		SessionID:     user.SessionID,
		UserID:        user.UserID,
		UserTimestamp: ISOTime(user.Timestamp),
		UserText:      user.Content,
	}
	if assistant == nil {
		return row
	}
	ts := ISOTime(assistant.Timestamp)
	text := assistant.Content
	row.AssistantTimestamp = &ts
	row.AssistantText = &text
	row.AssistantEventID = assistant.EventID
	row.Rating = assistant.Rating
	row.RatingTimestamp = isoPtr(assistant.RatingTimestamp)
	row.RatingEventID = assistant.RatingEventID
	row.FeedbackTargetID = assistant.FeedbackTargetID
	return row
}

// CountRoles 统计各角色条数。
func CountRoles(date string, records []LogRecord) RoleCounts {
	counts := RoleCounts{Date: date}
	for _, r := range records {
		switch r.Role {
		case RoleUser:
			counts.User++
		case RoleAssistant:
			counts.Assistant++
		case RoleSystem:
			counts.System++
		case RoleFeedback:
			counts.Feedback++
		}
	}
	counts.Total = counts.User + counts.Assistant + counts.System + counts.Feedback
	return counts
}

// DayOf 返回时间所属的 UTC 日期字符串。
func DayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
