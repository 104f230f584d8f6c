package interval

import (
	"fmt"
	"sort"
	"time"
)

// Default tag carried by intervals that were not given one.
const (
	DefaultLabel = "name"
	DefaultValue = "no-name"
)

// TimeInterval is a half-open [Start, End) range with an optional label/value
// tag. Values are never mutated in place; every operation returns new ones.
type TimeInterval struct {
	Start time.Time
	End   time.Time
	Label string
	Value string
}

// New builds an interval tagged with the default label/value.
func New(start, end time.Time) TimeInterval {
	return TimeInterval{Start: start, End: end, Label: DefaultLabel, Value: DefaultValue}
}

// Tagged builds an interval with an explicit tag.
func Tagged(start, end time.Time, label, value string) TimeInterval {
	return TimeInterval{Start: start, End: end, Label: label, Value: value}
}

// Duration returns the length in whole minutes.
func (ti TimeInterval) Duration() int {
	return int(ti.End.Sub(ti.Start) / time.Minute)
}

// Valid reports whether End is strictly after Start.
func (ti TimeInterval) Valid() bool {
	return ti.End.After(ti.Start)
}

// In converts both bounds to loc, keeping the tag.
func (ti TimeInterval) In(loc *time.Location) TimeInterval {
	ti.Start = ti.Start.In(loc)
	ti.End = ti.End.In(loc)
	return ti
}

// Less orders by start, then end.
func (ti TimeInterval) Less(o TimeInterval) bool {
	if !ti.Start.Equal(o.Start) {
		return ti.Start.Before(o.Start)
	}
	return ti.End.Before(o.End)
}

func (ti TimeInterval) String() string {
	return fmt.Sprintf("%s --> %s", ti.Start.Format(time.DateTime), ti.End.Format(time.DateTime))
}

// Sort orders list in place by start, then end.
func Sort(list []TimeInterval) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].Less(list[j]) })
}

// Intersect returns the common part of a and b tagged like a. It reports
// false when the two are disjoint or only touch.
func Intersect(a, b TimeInterval) (TimeInterval, bool) {
	return IntersectTagged(a, b, a.Label, a.Value)
}

// IntersectTagged is Intersect with an explicit tag for the result.
func IntersectTagged(a, b TimeInterval, label, value string) (TimeInterval, bool) {
	if a.Start.After(b.Start) {
		a, b = b, a
	}
	if !a.End.After(b.Start) {
		return TimeInterval{}, false
	}
	end := a.End
	if !a.End.Before(b.End) {
		end = b.End
	}
	return Tagged(b.Start, end, label, value), true
}

// Overlaps reports a strict half-open overlap.
func Overlaps(a, b TimeInterval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Union merges b into a when b starts inside a (touching counts). The result
// keeps a's tag.
func Union(a, b TimeInterval) (TimeInterval, bool) {
	if a.End.Before(b.Start) || !b.Start.After(a.Start) {
		return TimeInterval{}, false
	}
	end := a.End
	if b.End.After(end) {
		end = b.End
	}
	return Tagged(a.Start, end, a.Label, a.Value), true
}

// Diff returns the parts of a not covered by b: zero, one or two intervals.
func Diff(a, b TimeInterval) []TimeInterval {
	common, ok := Intersect(a, b)
	if !ok {
		return []TimeInterval{a}
	}
	out := make([]TimeInterval, 0, 2)
	if common.Start.After(a.Start) {
		out = append(out, Tagged(a.Start, common.Start, a.Label, a.Value))
	}
	if common.End.Before(a.End) {
		out = append(out, Tagged(common.End, a.End, a.Label, a.Value))
	}
	return out
}

// Initial returns the first minutes of ti, tagged with label/value (ti's own
// tag when empty).
func Initial(ti TimeInterval, minutes int, label, value string) (TimeInterval, bool) {
	if minutes <= 0 || minutes > ti.Duration() {
		return TimeInterval{}, false
	}
	label, value = tagOr(ti, label, value)
	return Tagged(ti.Start, ti.Start.Add(time.Duration(minutes)*time.Minute), label, value), true
}

// Reduced drops the first minutes of ti. A zero-length remainder is reported
// as false.
func Reduced(ti TimeInterval, minutes int, label, value string) (TimeInterval, bool) {
	if minutes < 0 || minutes >= ti.Duration() {
		return TimeInterval{}, false
	}
	label, value = tagOr(ti, label, value)
	return Tagged(ti.Start.Add(time.Duration(minutes)*time.Minute), ti.End, label, value), true
}

// Updated keeps the dates of ti and takes hours and minutes from slot.
func Updated(ti, slot TimeInterval) TimeInterval {
	return New(withClock(ti.Start, slot.Start), withClock(ti.End, slot.End))
}

func withClock(day, clock time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), day.Second(), 0, day.Location())
}

// MergedList sorts a copy of list and merges intervals that overlap or touch.
func MergedList(list []TimeInterval) []TimeInterval {
	if len(list) == 0 {
		return nil
	}
	sorted := append([]TimeInterval(nil), list...)
	Sort(sorted)

	out := make([]TimeInterval, 0, len(sorted))
	for _, ti := range sorted {
		if len(out) == 0 {
			out = append(out, ti)
			continue
		}
		last := out[len(out)-1]
		if last.Start.Equal(ti.Start) {
			if ti.End.After(last.End) {
				last.End = ti.End
			}
			out[len(out)-1] = last
			continue
		}
		if merged, ok := Union(last, ti); ok {
			out[len(out)-1] = merged
			continue
		}
		out = append(out, ti)
	}
	return out
}

// TotalDuration sums the durations of list in minutes.
func TotalDuration(list []TimeInterval) int {
	total := 0
	for _, ti := range list {
		total += ti.Duration()
	}
	return total
}

func tagOr(ti TimeInterval, label, value string) (string, string) {
	if label == "" {
		label = ti.Label
	}
	if value == "" {
		value = ti.Value
	}
	return label, value
}
