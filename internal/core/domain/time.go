package domain

import "time"

// TimeLayout is the ISO-8601 layout used for every persisted timestamp. The
// fractional part is fixed-width so that lexicographic comparison of stored
// strings matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// DateLayout is the calendar-day layout used by the analytics bucket key.
const DateLayout = "2006-01-02"

// FormatTime renders t as an ISO-8601 UTC string.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// FormatDate renders t's UTC calendar day.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseTime parses a persisted timestamp. Plain RFC3339 values written by
// older schema versions are accepted as well.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
