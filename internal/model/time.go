package model

import (
	"fmt"
	"strings"
	"time"
)

// isoLayout 与前端 Date.toISOString() 的输出保持一致（UTC，毫秒精度）。
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// 无时区的时间戳按 UTC 处理。
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp 解析 ISO-8601 时间戳。
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// FormatISO 将时间格式化为 UTC ISO-8601 字符串。
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ISOTime 在 JSON 中序列化为 UTC ISO-8601 字符串。
type ISOTime time.Time

// MarshalJSON implements the json.Marshaler interface.
func (t ISOTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + FormatISO(time.Time(t)) + `"`), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (t *ISOTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = ISOTime(parsed)
	return nil
}

// isoPtr 将可选时间转换为可选 ISOTime。
func isoPtr(t *time.Time) *ISOTime {
	if t == nil {
		return nil
	}
	v := ISOTime(*t)
	return &v
}
