// Package report 把日志分析结果渲染为 JSON 或 CSV。
package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"chat-insights-go/internal/model"
	"chat-insights-go/internal/pipeline"
)

// Mode 是日报的视图类型。
type Mode string

const (
	ModeCount  Mode = "count"
	ModeFlat   Mode = "flat"
	ModeDetail Mode = "detail"
)

// ParseMode 解析视图类型，未知取值返回 false。空字符串视为 detail。
func ParseMode(s string) (Mode, bool) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeDetail, true
	case ModeCount, ModeFlat, ModeDetail:
		return m, true
	}
	return "", false
}

// Format 是输出格式。
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat 解析输出格式，未知取值返回 false。空字符串视为 json。
func ParseFormat(s string) (Format, bool) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, true
	case FormatJSON, FormatCSV:
		return f, true
	}
	return "", false
}

var (
	countColumns  = []string{"date", "user", "assistant", "system", "feedback", "total"}
	flatColumns   = []string{"timestamp", "sessionId", "userId", "role", "content", "eventId", "rating", "ratingTimestamp", "ratingEventId", "feedbackTargetId"}
	detailColumns = []string{"sessionId", "userId", "userTimestamp", "userText", "assistantTimestamp", "assistantText", "assistantEventId", "rating", "ratingTimestamp", "ratingEventId", "feedbackTargetId"}
	pairColumns   = []string{"sessionId", "timestamp", "userText", "assistantTimestamp", "assistantText"}
)

// Daily 是一份日报，只有与 Mode 对应的字段有值。
type Daily struct {
	Date   string
	Mode   Mode
	Counts *model.RoleCounts
	Rows   []model.LogRecord
	Pairs  []model.DetailRow
}

// MarshalJSON 只输出与 Mode 对应的字段，空的一天输出 [] 而不是省略。
func (d Daily) MarshalJSON() ([]byte, error) {
	switch d.Mode {
	case ModeCount:
		counts := d.Counts
		if counts == nil {
			counts = &model.RoleCounts{Date: d.Date}
		}
		return json.Marshal(struct {
			Date   string            `json:"date"`
			Mode   Mode              `json:"mode"`
			Counts *model.RoleCounts `json:"counts"`
		}{d.Date, d.Mode, counts})
	case ModeFlat:
		rows := d.Rows
		if rows == nil {
			rows = []model.LogRecord{}
		}
		return json.Marshal(struct {
			Date string            `json:"date"`
			Mode Mode              `json:"mode"`
			Rows []model.LogRecord `json:"rows"`
		}{d.Date, d.Mode, rows})
	default:
		pairs := d.Pairs
		if pairs == nil {
			pairs = []model.DetailRow{}
		}
		return json.Marshal(struct {
			Date  string            `json:"date"`
			Mode  Mode              `json:"mode"`
			Pairs []model.DetailRow `json:"pairs"`
		}{d.Date, ModeDetail, pairs})
	}
}

// DetailRows 在反馈归并后的记录上做 user→assistant 配对。
func DetailRows(reconciled []model.LogRecord) []model.DetailRow {
	exchanges := pipeline.PairExchanges(reconciled)
	rows := make([]model.DetailRow, 0, len(exchanges))
	for _, e := range exchanges {
		rows = append(rows, model.NewDetailRow(e.User, e.Assistant))
	}
	return rows
}

// WriteDaily 按 format 输出日报。
func WriteDaily(w io.Writer, d *Daily, format Format) error {
	if format == FormatJSON {
		return writeJSON(w, d)
	}
	switch d.Mode {
	case ModeCount:
		var rows [][]string
		if d.Counts != nil {
			c := d.Counts
			rows = append(rows, []string{c.Date, itoa(c.User), itoa(c.Assistant), itoa(c.System), itoa(c.Feedback), itoa(c.Total)})
		}
		return writeCSV(w, countColumns, rows)
	case ModeFlat:
		rows := make([][]string, 0, len(d.Rows))
		for _, r := range d.Rows {
			rows = append(rows, []string{
				model.FormatISO(r.Timestamp), r.SessionID, r.UserID, string(r.Role), r.Content, r.EventID,
				formatRating(r.Rating), formatTimePtr(r.RatingTimestamp), r.RatingEventID, r.FeedbackTargetID,
			})
		}
		return writeCSV(w, flatColumns, rows)
	default:
		rows := make([][]string, 0, len(d.Pairs))
		for _, p := range d.Pairs {
			rows = append(rows, []string{
				p.SessionID, p.UserID, formatISOTime(&p.UserTimestamp), p.UserText,
				formatISOTime(p.AssistantTimestamp), derefString(p.AssistantText), p.AssistantEventID,
				formatRating(p.Rating), formatISOTime(p.RatingTimestamp), p.RatingEventID, p.FeedbackTargetID,
			})
		}
		return writeCSV(w, detailColumns, rows)
	}
}

// WritePairs 输出配对结果。
func WritePairs(w io.Writer, pairs []model.ExchangePair, format Format) error {
	if format == FormatJSON {
		if pairs == nil {
			pairs = []model.ExchangePair{}
		}
		return writeJSON(w, struct {
			Pairs []model.ExchangePair `json:"pairs"`
		}{pairs})
	}
	rows := make([][]string, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, []string{
			p.SessionID, model.FormatISO(p.Timestamp), p.UserText,
			formatTimePtr(p.AssistantTimestamp), derefString(p.AssistantText),
		})
	}
	return writeCSV(w, pairColumns, rows)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// writeCSV 写出表头与数据行；包含逗号、引号或换行的字段会被加上引号并转义。
func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func itoa(n int) string { return strconv.Itoa(n) }

func formatRating(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return model.FormatISO(*t)
}

func formatISOTime(t *model.ISOTime) string {
	if t == nil {
		return ""
	}
	return model.FormatISO(time.Time(*t))
}
