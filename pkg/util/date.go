package util

import (
    "strconv"
    "time"
)

// ParseDate accepts YYYY-MM-DD, RFC3339 or unix seconds and returns the UTC calendar day.
func ParseDate(s string) (time.Time, bool) {
    if s == "" {
        return time.Time{}, false
    }
    if t, err := time.Parse(time.DateOnly, s); err == nil {
        return Day(t), true
    }
    if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
        return Day(t), true
    }
    if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
        return Day(time.Unix(ts, 0)), true
    }
    return time.Time{}, false
}

// ParseDateDefault parses a date or returns def if empty/invalid.
func ParseDateDefault(s string, def time.Time) time.Time {
    if t, ok := ParseDate(s); ok {
        return t
    }
    return def
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
    y, m, d := t.UTC().Date()
    return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole days from a to b.
func DaysBetween(a, b time.Time) int {
    return int(Day(b).Sub(Day(a)).Hours() / 24)
}
