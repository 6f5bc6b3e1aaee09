package patient

import (
	"strings"
	"time"
)

// dateTimeLayouts are tried first, in order. Layouts with optional
// fractional seconds also accept inputs without a fraction.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// NormalizeTimestamp turns a raw timestamp string of flexible format into an
// instant. Full date-time parsing is tried first; on failure a bare
// time-of-day pattern (hours:minutes:seconds with an optional fractional
// part, comma or dot separator) is combined with the current local date; if
// both fail, the current wall-clock time is substituted. The chain never
// fails; it always produces a usable instant, at the cost of silently
// absorbing garbage input.
func NormalizeTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)

	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t
		}
	}

	// Instruments often emit only the time of day, with either "," or "."
	// as the fractional separator.
	candidate := strings.Replace(raw, ",", ".", 1)
	if t, err := time.ParseInLocation("15:04:05.999999999", candidate, time.Local); err == nil {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(),
			t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.Local)
	}

	return time.Now()
}
