package series

import (
	"strings"
	"time"
)

// Layouts without a zone offset are read in the caller's location.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp resolves a record timestamp to an instant.
//
// Accepted forms are RFC 3339 with a Z or ±hh:mm offset, 2006-01-02T15:04:05,
// 2006-01-02 15:04:05 and 2006-01-02. Fractional seconds may follow the seconds field.
// Forms without an offset are interpreted in loc (time.Local when nil).
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
