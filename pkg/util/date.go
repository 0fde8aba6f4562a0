package util

import (
	"strconv"
	"time"
)

var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime accepts RFC3339, common exchange export layouts (read as UTC),
// unix seconds and unix milliseconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		// 1e11 seconds is year 5138; anything larger is milliseconds
		if ts > 1e11 {
			return time.UnixMilli(ts).UTC(), true
		}
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// AlignFromTo widens [from, to] outward to whole bars of length d.
func AlignFromTo(from, to time.Time, d time.Duration) (time.Time, time.Time) {
	if d <= 0 {
		d = time.Minute
	}
	from = from.Truncate(d)
	if t := to.Truncate(d); !t.Equal(to) {
		to = t.Add(d)
	}
	return from, to
}
