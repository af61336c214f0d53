package services

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// ParseDate accepts a date-only value in loc or an RFC 3339 timestamp. An
// empty string is no date.
func ParseDate(s string, loc *time.Location) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, invalid("日期格式无效: %s", s)
	}
	return &t, nil
}

// FormatDate renders t as a date in loc, or "" for no date.
func FormatDate(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format(DateLayout)
}
