package recurrence

import (
	"testing"
	"time"
)

func TestPlanSkipsMaterializedDates(t *testing.T) {
	rule := Rule{Type: TypeDaily, Interval: 1}
	from := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	// Same calendar day as the Mar 5 occurrence, different instant.
	existing := []time.Time{time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)}

	got, err := Plan(rule, from, time.UTC, existing, Window{Count: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDates(t, got, []time.Time{
		localMidnight(time.UTC, 2025, 3, 6),
		localMidnight(time.UTC, 2025, 3, 7),
	})
}

func TestPlanIsIdempotent(t *testing.T) {
	rule := Rule{Type: TypeWeekly, Interval: 1}
	from := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

	first, err := Plan(rule, from, time.UTC, nil, Window{Count: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 4 {
		t.Fatalf("expected 4 planned dates, got %d", len(first))
	}

	second, err := Plan(rule, from, time.UTC, first, Window{Count: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("expected nothing left to plan, got %v", second)
	}
}

func TestPlanHorizon(t *testing.T) {
	rule := Rule{Type: TypeDaily, Interval: 1}
	from := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

	got, err := Plan(rule, from, time.UTC, nil, Window{Count: 10, Horizon: 72 * time.Hour})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDates(t, got, []time.Time{
		localMidnight(time.UTC, 2025, 3, 5),
		localMidnight(time.UTC, 2025, 3, 6),
		localMidnight(time.UTC, 2025, 3, 7),
	})
}

func TestPlanDefaultWindow(t *testing.T) {
	rule := Rule{Type: TypeDaily, Interval: 1}
	got, err := Plan(rule, time.Now(), time.UTC, nil, Window{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != DefaultWindowCount {
		t.Errorf("expected %d dates, got %d", DefaultWindowCount, len(got))
	}
}

func TestPlanDedupsInTemplateZone(t *testing.T) {
	tokyo := mustLoc(t, "Asia/Tokyo")
	rule := Rule{Type: TypeDaily, Interval: 1}
	from := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC) // 09:00 in Tokyo
	// 23:30 UTC on Mar 5 is already Mar 6 in Tokyo.
	existing := []time.Time{time.Date(2025, 3, 5, 23, 30, 0, 0, time.UTC)}

	got, err := Plan(rule, from, tokyo, existing, Window{Count: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 planned date, got %v", got)
	}
	if key := DateKey(got[0], tokyo); key != "2025-03-05" {
		t.Errorf("expected 2025-03-05, got %s", key)
	}
}
