package classify

import (
	"strings"
	"time"
)

const looseDate = "2006-1-2"

// ParseDate reports whether s is a calendar date, either YYYY-M-D with
// optional zero padding or a full RFC 3339 timestamp.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "undefined", "null":
		return time.Time{}, false
	}
	if t, err := time.Parse(looseDate, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// PadDate left pads every component of a three part dash separated date to
// two characters. Any other shape is returned unchanged.
func PadDate(s string) string {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return s
	}
	for i, p := range parts {
		if len(p) < 2 {
			parts[i] = strings.Repeat("0", 2-len(p)) + p
		}
	}
	return strings.Join(parts, "-")
}
