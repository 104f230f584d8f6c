package interval

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// DefaultTimezone is used whenever a zone name cannot be resolved.
const DefaultTimezone = "Europe/Paris"

var (
	locMu    sync.RWMutex
	locCache = map[string]*time.Location{}
)

// LoadLocation resolves an IANA zone name, falling back to DefaultTimezone
// (then UTC) for unknown names. Results are cached.
func LoadLocation(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultTimezone
	}

	locMu.RLock()
	loc, ok := locCache[name]
	locMu.RUnlock()
	if ok {
		return loc
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		if name == DefaultTimezone {
			loc = time.UTC
		} else {
			loc = LoadLocation(DefaultTimezone)
		}
	}

	locMu.Lock()
	locCache[name] = loc
	locMu.Unlock()
	return loc
}

var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime parses s into loc. Strings carrying an offset are converted to
// loc; naive strings are read as wall clock time in loc. Fractional seconds
// are dropped.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if loc == nil {
		loc = LoadLocation("")
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc).Truncate(time.Second), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.Truncate(time.Second), nil
		}
	}
	return time.Time{}, errors.New("unrecognized time format: " + s)
}

// FormatLocal renders t in its own zone without offset, the way dates are
// echoed back to API clients.
func FormatLocal(t time.Time) string {
	return t.Format("2006-01-02T15:04:05")
}

// ParseInterval builds an interval from two time strings in loc.
func ParseInterval(start, end string, loc *time.Location, label, value string) (TimeInterval, error) {
	s, err := ParseTime(start, loc)
	if err != nil {
		return TimeInterval{}, err
	}
	e, err := ParseTime(end, loc)
	if err != nil {
		return TimeInterval{}, err
	}
	if !e.After(s) {
		return TimeInterval{}, errors.New("interval end must be after start")
	}
	return Tagged(s, e, label, value), nil
}

// DateOf returns the calendar date of t in its own zone.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
