package util

import (
    "testing"
    "time"
)

func TestParseMonthAbbrev(t *testing.T) {
    m, ok := ParseMonthAbbrev("jun")
    if !ok || m != time.June {
        t.Fatalf("expected June, got %v %v", m, ok)
    }
    if _, ok := ParseMonthAbbrev("XXX"); ok {
        t.Fatalf("expected failure for XXX")
    }
}

func TestMonthAbbrevRoundTrip(t *testing.T) {
    for m := time.January; m <= time.December; m++ {
        got, ok := ParseMonthAbbrev(MonthAbbrev(m))
        if !ok || got != m {
            t.Fatalf("round trip failed for %v", m)
        }
    }
}

func TestNextDeliveryYear(t *testing.T) {
    now := time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)
    if y := NextDeliveryYear(now, time.December); y != 2025 {
        t.Fatalf("expected 2025, got %d", y)
    }
    if y := NextDeliveryYear(now, time.June); y != 2026 {
        t.Fatalf("expected 2026, got %d", y)
    }
}

func TestDaysUntil(t *testing.T) {
    now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
    if d := DaysUntil(now, 2025, time.June); d != 31 {
        t.Fatalf("expected 31 days, got %d", d)
    }
    if d := DaysUntil(now, 2025, time.April); d != 0 {
        t.Fatalf("expected clamp to 0, got %d", d)
    }
}
