package recurrence

import (
	"errors"
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // zone rules even on hosts without a zoneinfo database
)

var (
	errEmptyZone = errors.New("empty zone name")
	errNilZone   = errors.New("no location supplied")
)

var locations sync.Map

// LoadLocation resolves an IANA zone name. It never falls back to UTC:
// an empty or unknown name is a *TimezoneResolutionError.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &TimezoneResolutionError{Name: name, Err: errEmptyZone}
	}
	if cached, ok := locations.Load(name); ok {
		return cached.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &TimezoneResolutionError{Name: name, Err: err}
	}
	locations.Store(name, loc)
	return loc, nil
}

// PickZone returns the first non-empty zone name.
func PickZone(names ...string) string {
	for _, name := range names {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
