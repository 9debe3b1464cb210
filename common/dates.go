package common

import (
	"strings"
	"time"
)

var lenientDateLayouts = []string{"20060102", "2006-01-02", "2006/01/02", "2006-01-02 15:04:05", time.RFC3339}

// ParseLenientDate parses an ERP date string in any of the known layouts.
// ok is false when none matched.
func ParseLenientDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range lenientDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return DateOf(t), true
		}
	}
	return time.Time{}, false
}

// DateOf truncates t to midnight of its calendar day, in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
