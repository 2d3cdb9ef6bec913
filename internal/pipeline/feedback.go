package pipeline

import (
	"regexp"
	"sort"
	"strconv"
	"time"

	"chat-insights-go/internal/model"
)

// FeedbackWindow 是反馈与助手回复之间允许的最大时间差，固定为两分钟。
const FeedbackWindow = 2 * time.Minute

var (
	feedbackValueRe  = regexp.MustCompile(`value=(-?\d+)`)
	feedbackTargetRe = regexp.MustCompile(`target=([^\s,;&]+)`)
)

// FeedbackEvent 是从 feedback 记录中提取出的一次评分。
type FeedbackEvent struct {
	Timestamp     time.Time
	Rating        float64
	EventID       string
	TargetEventID string
}

// ExtractFeedback 从 feedback 记录中提取评分。优先使用结构化字段，
// 否则从 content 中匹配 value=N 与 target=ID。没有数值评分时返回 false。
func ExtractFeedback(rec model.LogRecord) (FeedbackEvent, bool) {
	ev := FeedbackEvent{
		Timestamp:     rec.Timestamp,
		EventID:       rec.EventID,
		TargetEventID: rec.TargetEventID,
	}
	if rec.Rating != nil {
		ev.Rating = *rec.Rating
	} else {
		m := feedbackValueRe.FindStringSubmatch(rec.Content)
		if m == nil {
			return FeedbackEvent{}, false
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			return FeedbackEvent{}, false
		}
		ev.Rating = float64(v)
	}
	if ev.TargetEventID == "" {
		if m := feedbackTargetRe.FindStringSubmatch(rec.Content); m != nil {
			ev.TargetEventID = m[1]
		}
	}
	return ev, true
}

// ReconcileFeedback 把反馈事件归并到助手回复上，返回新的助手记录副本，输入不被修改。
//
// 每个事件依次尝试：按 targetEventId 直接匹配；在 window 内向前找最近的回复；
// 再在 window 内向后找最近的回复。都找不到时丢弃该事件。事件按时间升序处理，
// 同一回复被多次命中时以最后一次为准。
func ReconcileFeedback(assistants []model.LogRecord, events []FeedbackEvent, window time.Duration) []model.LogRecord {
	out := make([]model.LogRecord, len(assistants))
	copy(out, assistants)

	ordered := make([]FeedbackEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	for _, ev := range ordered {
		idx := matchAssistant(out, ev, window)
		if idx < 0 {
			continue
		}
		rating := ev.Rating
		ts := ev.Timestamp
		out[idx].Rating = &rating
		out[idx].RatingTimestamp = &ts
		out[idx].RatingEventID = ev.EventID
		out[idx].FeedbackTargetID = ev.TargetEventID
	}
	return out
}

func matchAssistant(assistants []model.LogRecord, ev FeedbackEvent, window time.Duration) int {
	if ev.TargetEventID != "" {
		for i, a := range assistants {
			if a.EventID != "" && a.EventID == ev.TargetEventID {
				return i
			}
		}
	}

	best, bestDiff := -1, time.Duration(0)
	for i, a := range assistants {
		if a.Timestamp.After(ev.Timestamp) {
			continue
		}
		diff := ev.Timestamp.Sub(a.Timestamp)
		if diff <= window && (best < 0 || diff < bestDiff) {
			best, bestDiff = i, diff
		}
	}
	if best >= 0 {
		return best
	}

	for i, a := range assistants {
		if a.Timestamp.Before(ev.Timestamp) {
			continue
		}
		diff := a.Timestamp.Sub(ev.Timestamp)
		if diff <= window && (best < 0 || diff < bestDiff) {
			best, bestDiff = i, diff
		}
	}
	return best
}

// ReconcileDay 对一天的全部日志做反馈归并，返回按时间排序的 user/assistant 记录，
// 其中 assistant 记录带上归并后的评分字段。
func ReconcileDay(records []model.LogRecord, window time.Duration) []model.LogRecord {
	var users, assistants []model.LogRecord
	var events []FeedbackEvent
	for _, rec := range records {
		switch rec.Role {
		case model.RoleUser:
			users = append(users, rec)
		case model.RoleAssistant:
			assistants = append(assistants, rec)
		case model.RoleFeedback:
			if ev, ok := ExtractFeedback(rec); ok {
				events = append(events, ev)
			}
		}
	}

	// 先按时间排序，使最近邻匹配在距离相同的情况下选择更早的回复
	sortByTime(assistants)
	merged := append(users, ReconcileFeedback(assistants, events, window)...)
	sortByTime(merged)
	return merged
}

func sortByTime(records []model.LogRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.SessionID != b.SessionID {
			return a.SessionID < b.SessionID
		}
		return a.Role.Rank() < b.Role.Rank()
	})
}
