package util

import (
    "strconv"
    "testing"
    "time"
)

func TestParseDateOnly(t *testing.T) {
    got, ok := ParseDate("2024-10-10")
    if !ok {
        t.Fatalf("expected ok")
    }
    if !got.Equal(time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)) {
        t.Fatalf("unexpected date %v", got)
    }
}

func TestParseDateRFC3339TruncatesToDay(t *testing.T) {
    got, ok := ParseDate("2024-10-10T23:10:10+02:00")
    if !ok {
        t.Fatalf("expected ok")
    }
    if got.Format(time.DateOnly) != "2024-10-10" || got.Hour() != 0 {
        t.Fatalf("unexpected date %v", got)
    }
}

func TestParseDateUnix(t *testing.T) {
    ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
    got, ok := ParseDate(strconv.FormatInt(ts, 10))
    if !ok {
        t.Fatalf("expected ok")
    }
    if got.Format(time.DateOnly) != "2024-10-10" {
        t.Fatalf("unexpected day %v", got)
    }
}

func TestParseDateDefault(t *testing.T) {
    def := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
    if got := ParseDateDefault("yesterday", def); !got.Equal(def) {
        t.Fatalf("expected default")
    }
}

func TestDaysBetween(t *testing.T) {
    a := time.Date(2024, 2, 27, 15, 0, 0, 0, time.UTC)
    b := time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)
    if got := DaysBetween(a, b); got != 3 {
        t.Fatalf("expected 3, got %d", got)
    }
}
