package recurrence

import (
	"fmt"
	"strings"
	"time"
)

// Type is the cadence of a recurring template.
type Type string

const (
	TypeNone    Type = "none"
	TypeDaily   Type = "daily"
	TypeWeekly  Type = "weekly"
	TypeMonthly Type = "monthly"
	TypeYearly  Type = "yearly"
)

// MaxInterval bounds the step so day, month and year arithmetic stays in range.
const MaxInterval = 1000

// ParseType accepts the stored names plus an empty string for none.
func ParseType(raw string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(raw))); t {
	case "", TypeNone:
		return TypeNone, nil
	case TypeDaily, TypeWeekly, TypeMonthly, TypeYearly:
		return t, nil
	default:
		return "", &InvalidRuleError{Field: "type", Reason: fmt.Sprintf("unknown cadence %q", raw)}
	}
}

// Rule describes when a template recurs.
//
// Anchor is the reference instant the cadence is counted from (the template's
// own due date or creation time). A zero Anchor means "count from the query instant".
type Rule struct {
	Type     Type
	Interval int
	MonthDay *int
	WeekDay  *int
	Month    *int
	EndDate  *time.Time
	Anchor   time.Time
}

// Validate rejects malformed descriptors before any date math runs.
func (r Rule) Validate() error {
	switch r.Type {
	case TypeDaily, TypeWeekly, TypeMonthly, TypeYearly:
	case TypeNone, "":
		return &InvalidRuleError{Field: "type", Reason: "rule has no cadence"}
	default:
		return &InvalidRuleError{Field: "type", Reason: fmt.Sprintf("unknown cadence %q", r.Type)}
	}

	if r.Interval < 1 || r.Interval > MaxInterval {
		return &InvalidRuleError{Field: "interval", Reason: fmt.Sprintf("must be within 1-%d, got %d", MaxInterval, r.Interval)}
	}
	if r.MonthDay != nil && (*r.MonthDay < 1 || *r.MonthDay > 31) {
		return &InvalidRuleError{Field: "month_day", Reason: fmt.Sprintf("must be within 1-31, got %d", *r.MonthDay)}
	}
	if r.WeekDay != nil && (*r.WeekDay < 0 || *r.WeekDay > 6) {
		return &InvalidRuleError{Field: "week_day", Reason: fmt.Sprintf("must be within 0-6, got %d", *r.WeekDay)}
	}
	if r.Month != nil && (*r.Month < 1 || *r.Month > 12) {
		return &InvalidRuleError{Field: "month", Reason: fmt.Sprintf("must be within 1-12, got %d", *r.Month)}
	}

	switch r.Type {
	case TypeMonthly:
		if r.MonthDay == nil {
			return &InvalidRuleError{Field: "month_day", Reason: "required for monthly cadence"}
		}
	case TypeYearly:
		if r.Month == nil {
			return &InvalidRuleError{Field: "month", Reason: "required for yearly cadence"}
		}
		if r.MonthDay == nil {
			return &InvalidRuleError{Field: "month_day", Reason: "required for yearly cadence"}
		}
	}
	return nil
}

// String renders the rule for logs and CLI output.
func (r Rule) String() string {
	var sb strings.Builder
	sb.WriteString(string(r.Type))
	if r.Interval > 1 {
		sb.WriteString(fmt.Sprintf(" every %d", r.Interval))
	}
	if r.Month != nil {
		sb.WriteString(fmt.Sprintf(" month=%d", *r.Month))
	}
	if r.MonthDay != nil {
		sb.WriteString(fmt.Sprintf(" day=%d", *r.MonthDay))
	}
	if r.WeekDay != nil {
		sb.WriteString(fmt.Sprintf(" weekday=%s", time.Weekday(*r.WeekDay)))
	}
	if r.EndDate != nil {
		sb.WriteString(" until=" + r.EndDate.Format("2006-01-02"))
	}
	return sb.String()
}
