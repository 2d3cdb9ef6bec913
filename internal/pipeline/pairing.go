// Package pipeline 实现日志分析的核心流程：交互配对、在线聚类与反馈归并。
package pipeline

import (
	"sort"

	"chat-insights-go/internal/model"
)

// Exchange 是同一会话中的一条 user 记录及其后第一条 assistant 记录。
// Assistant 为 nil 表示该用户消息没有回复。
type Exchange struct {
	User      model.LogRecord
	Assistant *model.LogRecord
}

// Pair 转换为对外暴露的 ExchangePair。
func (e Exchange) Pair() model.ExchangePair {
	p := model.ExchangePair{
		SessionID: e.User.SessionID,
		Timestamp: e.User.Timestamp,
		UserText:  e.User.Content,
	}
	if e.Assistant != nil {
		ts := e.Assistant.Timestamp
		text := e.Assistant.Content
		p.AssistantTimestamp = &ts
		p.AssistantText = &text
	}
	return p
}

// SortRecords 返回按 (sessionId, timestamp) 升序排列的副本。
// 同一时刻的记录再按角色、eventId、content 排序，保证任意输入顺序得到同样的结果。
func SortRecords(records []model.LogRecord) []model.LogRecord {
	sorted := make([]model.LogRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.SessionID != b.SessionID {
			return a.SessionID < b.SessionID
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Role != b.Role {
			return a.Role.Rank() < b.Role.Rank()
		}
		if a.EventID != b.EventID {
			return a.EventID < b.EventID
		}
		return a.Content < b.Content
	})
	return sorted
}

// PairExchanges 把一个会话日志集合整理为有序的 user→assistant 交互。
//
// 每个会话只保留一条待回复的 user 记录：新的 user 记录会覆盖之前未回复的那条；
// 没有待回复 user 的 assistant 记录被丢弃。处理完所有记录后，仍在等待的 user
// 记录按会话顺序追加为未回复交互。system 与 feedback 记录不参与配对。
func PairExchanges(records []model.LogRecord) []Exchange {
	sorted := SortRecords(records)

	pending := make(map[string]model.LogRecord)
	var sessions []string
	seen := make(map[string]bool)
	var out []Exchange

	for _, rec := range sorted {
		switch rec.Role {
		case model.RoleUser:
			if !seen[rec.SessionID] {
				seen[rec.SessionID] = true
				sessions = append(sessions, rec.SessionID)
			}
			pending[rec.SessionID] = rec
		case model.RoleAssistant:
			user, ok := pending[rec.SessionID]
			if !ok {
				continue
			}
			assistant := rec
			out = append(out, Exchange{User: user, Assistant: &assistant})
			delete(pending, rec.SessionID)
		}
	}

	for _, sid := range sessions {
		if user, ok := pending[sid]; ok {
			out = append(out, Exchange{User: user})
		}
	}
	return out
}

// PairRecords 是 PairExchanges 的 ExchangePair 视图。
func PairRecords(records []model.LogRecord) []model.ExchangePair {
	exchanges := PairExchanges(records)
	pairs := make([]model.ExchangePair, 0, len(exchanges))
	for _, e := range exchanges {
		pairs = append(pairs, e.Pair())
	}
	return pairs
}
