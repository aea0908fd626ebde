package recurrence

import (
	"iter"
	"time"
)

// civil is a calendar day with no zone attached.
type civil struct {
	year  int
	month time.Month
	day   int
}

func civilOf(t time.Time, loc *time.Location) civil {
	y, m, d := t.In(loc).Date()
	return civil{year: y, month: m, day: d}
}

func (c civil) addDays(n int) civil {
	y, m, d := time.Date(c.year, c.month, c.day+n, 0, 0, 0, 0, time.UTC).Date()
	return civil{year: y, month: m, day: d}
}

// ordinal counts days since the Unix epoch.
func (c civil) ordinal() int {
	return int(time.Date(c.year, c.month, c.day, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

func (c civil) before(o civil) bool {
	return c.ordinal() < o.ordinal()
}

// midnight resolves the zone offset for this particular day, so DST shifts
// between occurrences are honoured.
func (c civil) midnight(loc *time.Location) time.Time {
	return time.Date(c.year, c.month, c.day, 0, 0, 0, 0, loc).UTC()
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func clampDay(year int, month time.Month, day int) int {
	if last := daysInMonth(year, month); day > last {
		return last
	}
	return day
}

// Occurrences returns the lazy sequence of occurrence instants strictly after
// from. Each instant is local midnight in loc expressed in UTC. The sequence is
// finite only when the rule has an EndDate; callers bound it otherwise.
func Occurrences(rule Rule, from time.Time, loc *time.Location) (iter.Seq[time.Time], error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, &TimezoneResolutionError{Err: errNilZone}
	}

	anchor := from
	if !rule.Anchor.IsZero() {
		anchor = rule.Anchor
	}
	start := civilOf(anchor, loc)

	var (
		end    civil
		hasEnd bool
	)
	if rule.EndDate != nil {
		end, hasEnd = civilOf(*rule.EndDate, loc), true
	}

	var days iter.Seq[civil]
	switch rule.Type {
	case TypeDaily:
		days = everyNDays(start, rule.Interval, from, loc)
	case TypeWeekly:
		weekday := int(time.Date(start.year, start.month, start.day, 0, 0, 0, 0, time.UTC).Weekday())
		target := weekday
		if rule.WeekDay != nil {
			target = *rule.WeekDay
		}
		base := start.addDays((target - weekday + 7) % 7)
		days = everyNDays(base, 7*rule.Interval, from, loc)
	case TypeMonthly:
		days = monthlyDays(start, rule.Interval, *rule.MonthDay, from, loc)
	case TypeYearly:
		days = yearlyDays(start, rule.Interval, time.Month(*rule.Month), *rule.MonthDay, from, loc)
	}

	return func(yield func(time.Time) bool) {
		for day := range days {
			if hasEnd && end.before(day) {
				return
			}
			if day.before(start) {
				continue
			}
			at := day.midnight(loc)
			// A target equal to from has already passed.
			if !at.After(from) {
				continue
			}
			if !yield(at) {
				return
			}
		}
	}, nil
}

// NextOccurrences collects at most count occurrences after from.
func NextOccurrences(rule Rule, from time.Time, loc *time.Location, count int) ([]time.Time, error) {
	seq, err := Occurrences(rule, from, loc)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, nil
	}
	out := make([]time.Time, 0, count)
	for at := range seq {
		out = append(out, at)
		if len(out) == count {
			break
		}
	}
	return out, nil
}

// everyNDays yields base + k*step days, starting near from's local date.
func everyNDays(base civil, step int, from time.Time, loc *time.Location) iter.Seq[civil] {
	return func(yield func(civil) bool) {
		k := 0
		if diff := civilOf(from, loc).ordinal() - base.ordinal(); diff > 0 {
			k = diff / step
		}
		for ; ; k++ {
			if !yield(base.addDays(k * step)) {
				return
			}
		}
	}
}

// monthlyDays yields the clamped target day of every interval-th month counted
// from the anchor month, beginning with from's month.
func monthlyDays(start civil, interval, day int, from time.Time, loc *time.Location) iter.Seq[civil] {
	return func(yield func(civil) bool) {
		base := start.year*12 + int(start.month) - 1
		f := civilOf(from, loc)
		idx := f.year*12 + int(f.month) - 1
		if idx < base {
			idx = base
		}
		if off := (idx - base) % interval; off != 0 {
			idx += interval - off
		}
		for ; ; idx += interval {
			year, month := idx/12, time.Month(idx%12+1)
			if !yield(civil{year: year, month: month, day: clampDay(year, month, day)}) {
				return
			}
		}
	}
}

// yearlyDays yields (month, day) of every interval-th year counted from the
// anchor year. Feb 29 lands on Feb 28 in common years.
func yearlyDays(start civil, interval int, month time.Month, day int, from time.Time, loc *time.Location) iter.Seq[civil] {
	return func(yield func(civil) bool) {
		year := civilOf(from, loc).year
		if year < start.year {
			year = start.year
		}
		if off := (year - start.year) % interval; off != 0 {
			year += interval - off
		}
		for ; ; year += interval {
			if !yield(civil{year: year, month: month, day: clampDay(year, month, day)}) {
				return
			}
		}
	}
}
