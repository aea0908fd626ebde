package recurrence

import "fmt"

// InvalidRuleError reports a malformed recurrence descriptor.
type InvalidRuleError struct {
	Field  string
	Reason string
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("invalid recurrence rule: %s %s", e.Field, e.Reason)
}

// TimezoneResolutionError reports an unknown or empty IANA zone name.
type TimezoneResolutionError struct {
	Name string
	Err  error
}

func (e *TimezoneResolutionError) Error() string {
	return fmt.Sprintf("resolve timezone %q: %v", e.Name, e.Err)
}

func (e *TimezoneResolutionError) Unwrap() error {
	return e.Err
}
