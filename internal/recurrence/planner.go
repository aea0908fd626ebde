package recurrence

import "time"

// DefaultWindowCount is how many occurrences a planning pass looks at when
// no window is configured.
const DefaultWindowCount = 5

// Window bounds one planning pass. Count caps the number of calendar
// candidates examined (materialized or not); Horizon, when positive, drops
// candidates later than from+Horizon.
type Window struct {
	Count   int
	Horizon time.Duration
}

// DateKey is the dedup key of an occurrence: its calendar date in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// Plan returns the candidates in the window whose local date has no
// materialized instance yet, in ascending order.
func Plan(rule Rule, from time.Time, loc *time.Location, existing []time.Time, window Window) ([]time.Time, error) {
	seq, err := Occurrences(rule, from, loc)
	if err != nil {
		return nil, err
	}

	count := window.Count
	if count <= 0 {
		count = DefaultWindowCount
	}
	var limit time.Time
	if window.Horizon > 0 {
		limit = from.Add(window.Horizon)
	}

	seen := make(map[string]struct{}, len(existing))
	for _, at := range existing {
		seen[DateKey(at, loc)] = struct{}{}
	}

	planned := make([]time.Time, 0, count)
	examined := 0
	for at := range seq {
		if examined == count {
			break
		}
		examined++
		if !limit.IsZero() && at.After(limit) {
			break
		}
		key := DateKey(at, loc)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		planned = append(planned, at)
	}
	return planned, nil
}
