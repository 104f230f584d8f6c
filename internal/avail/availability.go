package avail

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tcsched/internal/interval"
)

// Default window used when events are folded in without an explicit range.
var (
	DefaultWindowStart = time.Date(2010, time.October, 10, 0, 0, 0, 0, time.UTC)
	DefaultWindowEnd   = time.Date(2100, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// Event is a calendar entry that contributes intervals to an Availability.
// Several versions may share a UID; only the most recently modified one
// counts.
type Event interface {
	UID() string
	LastModified() time.Time
	// Active is false for cancelled events.
	Active() bool
	// Busy events subtract from availability instead of adding to it.
	Busy() bool
	// Intervals expands the event within [start, end).
	Intervals(start, end time.Time) []interval.TimeInterval
}

// State of the cached resolution.
type State int

const (
	Stale State = iota
	Fresh
)

func (s State) String() string {
	if s == Fresh {
		return "fresh"
	}
	return "stale"
}

type resolution struct {
	state     State
	intervals []interval.TimeInterval
}

// Availability is a set of open time intervals for a person or a course,
// built from positive intervals minus negative ones, plus calendar events.
//
// An Availability is not safe for concurrent mutation. Once resolved it can
// be shared for reading.
type Availability struct {
	name   string
	tzName string
	loc    *time.Location

	pos []interval.TimeInterval // sorted, non-overlapping
	neg []interval.TimeInterval // sorted

	events   map[string][]Event
	uidOrder []string

	windowStart time.Time
	windowEnd   time.Time

	res resolution
}

// New creates an empty Availability in the given IANA zone.
func New(name, tzName string) *Availability {
	loc := interval.LoadLocation(tzName)
	return &Availability{
		name:        name,
		tzName:      loc.String(),
		loc:         loc,
		events:      map[string][]Event{},
		windowStart: DefaultWindowStart,
		windowEnd:   DefaultWindowEnd,
	}
}

// FromIntervals creates an Availability holding tis.
func FromIntervals(name, tzName string, tis []interval.TimeInterval) *Availability {
	av := New(name, tzName)
	av.AddIntervals(tis)
	return av
}

// FromEvents creates an Availability resolved from events within
// [start, end). The result holds plain intervals only.
func FromEvents(name, tzName string, events []Event, start, end time.Time) *Availability {
	src := New(name, tzName)
	src.SetWindow(start, end)
	src.AddEvents(events)
	return FromIntervals(name, tzName, src.Intervals())
}

func (a *Availability) Name() string             { return a.name }
func (a *Availability) TZName() string           { return a.tzName }
func (a *Availability) Location() *time.Location { return a.loc }

// State reports whether the cached intervals are current.
func (a *Availability) State() State { return a.res.state }

// SetWindow bounds event expansion.
func (a *Availability) SetWindow(start, end time.Time) {
	if !start.IsZero() {
		a.windowStart = start
	}
	if !end.IsZero() {
		a.windowEnd = end
	}
	a.invalidate()
}

func (a *Availability) invalidate() {
	a.res = resolution{state: Stale}
}

// AddInterval adds ti unless it overlaps an interval already present.
// Touching intervals are kept apart.
func (a *Availability) AddInterval(ti interval.TimeInterval) {
	if !ti.Valid() {
		return
	}
	var ok bool
	a.pos, ok = insertDisjoint(a.pos, ti.In(a.loc))
	if ok {
		a.invalidate()
	}
}

func (a *Availability) AddIntervals(tis []interval.TimeInterval) {
	for _, ti := range tis {
		a.AddInterval(ti)
	}
}

// AddNegInterval marks ti as unavailable. Overlaps are not checked.
func (a *Availability) AddNegInterval(ti interval.TimeInterval) {
	if !ti.Valid() {
		return
	}
	a.neg = insertSorted(a.neg, ti.In(a.loc))
	a.invalidate()
}

func (a *Availability) AddNegIntervals(tis []interval.TimeInterval) {
	for _, ti := range tis {
		a.AddNegInterval(ti)
	}
}

// AddEvent records ev under its UID.
func (a *Availability) AddEvent(ev Event) {
	if ev == nil {
		return
	}
	uid := ev.UID()
	if _, ok := a.events[uid]; !ok {
		a.uidOrder = append(a.uidOrder, uid)
	}
	a.events[uid] = append(a.events[uid], ev)
	a.invalidate()
}

func (a *Availability) AddEvents(events []Event) {
	for _, ev := range events {
		a.AddEvent(ev)
	}
}

// Resolve computes the positive intervals minus the negative ones, with the
// latest active version of every event folded in. The stored sets are not
// modified.
func (a *Availability) Resolve() []interval.TimeInterval {
	if a.res.state == Fresh {
		return a.res.intervals
	}

	pos := append([]interval.TimeInterval(nil), a.pos...)
	neg := append([]interval.TimeInterval(nil), a.neg...)

	for _, uid := range a.uidOrder {
		ev := latest(a.events[uid])
		if ev == nil || !ev.Active() {
			continue
		}
		for _, ti := range ev.Intervals(a.windowStart, a.windowEnd) {
			if !ti.Valid() {
				continue
			}
			ti = ti.In(a.loc)
			if ev.Busy() {
				neg = insertSorted(neg, ti)
			} else {
				pos, _ = insertDisjoint(pos, ti)
			}
		}
	}

	for _, ni := range neg {
		pos = subtract(pos, ni)
	}

	a.res = resolution{state: Fresh, intervals: pos}
	return pos
}

// Intervals returns the resolved intervals, sorted and non-overlapping.
// The returned slice must not be modified.
func (a *Availability) Intervals() []interval.TimeInterval {
	return a.Resolve()
}

// Duration is the total open time in minutes.
func (a *Availability) Duration() int {
	return interval.TotalDuration(a.Intervals())
}

// SegmentDuration counts only whole segments of seg minutes per interval.
func (a *Availability) SegmentDuration(seg int) int {
	if seg <= 0 {
		return a.Duration()
	}
	total := 0
	for _, ti := range a.Intervals() {
		total += (ti.Duration() / seg) * seg
	}
	return total
}

// Start returns the first instant, or the zero time when empty.
func (a *Availability) Start() time.Time {
	tis := a.Intervals()
	if len(tis) == 0 {
		return time.Time{}
	}
	return tis[0].Start
}

// End returns the last instant, or the zero time when empty.
func (a *Availability) End() time.Time {
	tis := a.Intervals()
	if len(tis) == 0 {
		return time.Time{}
	}
	return tis[len(tis)-1].End
}

func (a *Availability) Len() int      { return len(a.Intervals()) }
func (a *Availability) IsEmpty() bool { return a.Len() == 0 }

// DayGrid lays slots of slot minutes, tick minutes apart, on the date of the
// first interval. The grid starts at the whole hour of the earliest time of
// day and ends with the last slot that fits before the latest end time of day.
func (a *Availability) DayGrid(slot, tick int) []interval.TimeInterval {
	tis := a.Intervals()
	if len(tis) == 0 || slot <= 0 || tick <= 0 {
		return nil
	}

	minStart, maxEnd := 24*60, 0
	for _, ti := range tis {
		s := minuteOfDay(ti.Start)
		e := minuteOfDay(ti.End)
		if e <= s {
			e += 24 * 60
		}
		if s < minStart {
			minStart = s
		}
		if e > maxEnd {
			maxEnd = e
		}
	}

	y, m, d := tis[0].Start.Date()
	first := (minStart / 60) * 60

	out := make([]interval.TimeInterval, 0)
	for s := first; s+slot <= maxEnd; s += tick {
		start := time.Date(y, m, d, 0, s, 0, 0, a.loc)
		out = append(out, interval.New(start, start.Add(time.Duration(slot)*time.Minute)))
	}
	return out
}

func (a *Availability) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "AVAIL FOR: %s", a.name)
	for _, ti := range a.Intervals() {
		b.WriteString("\n")
		b.WriteString(ti.String())
	}
	return b.String()
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func latest(versions []Event) Event {
	var out Event
	for _, ev := range versions {
		if out == nil || !ev.LastModified().Before(out.LastModified()) {
			out = ev
		}
	}
	return out
}

// insertDisjoint inserts ti into the sorted non-overlapping list unless it
// overlaps an element.
func insertDisjoint(list []interval.TimeInterval, ti interval.TimeInterval) ([]interval.TimeInterval, bool) {
	i := sort.Search(len(list), func(i int) bool { return list[i].End.After(ti.Start) })
	if i < len(list) && list[i].Start.Before(ti.End) {
		return list, false
	}
	list = append(list, interval.TimeInterval{})
	copy(list[i+1:], list[i:])
	list[i] = ti
	return list, true
}

func insertSorted(list []interval.TimeInterval, ti interval.TimeInterval) []interval.TimeInterval {
	i := sort.Search(len(list), func(i int) bool { return ti.Less(list[i]) })
	list = append(list, interval.TimeInterval{})
	copy(list[i+1:], list[i:])
	list[i] = ti
	return list
}

// subtract removes ni from every overlapping element of the sorted
// non-overlapping list.
func subtract(list []interval.TimeInterval, ni interval.TimeInterval) []interval.TimeInterval {
	lo := sort.Search(len(list), func(i int) bool { return list[i].End.After(ni.Start) })
	hi := lo
	for hi < len(list) && list[hi].Start.Before(ni.End) {
		hi++
	}
	if lo == hi {
		return list
	}

	pieces := make([]interval.TimeInterval, 0, 2)
	for _, ti := range list[lo:hi] {
		pieces = append(pieces, interval.Diff(ti, ni)...)
	}

	out := make([]interval.TimeInterval, 0, len(list)-(hi-lo)+len(pieces))
	out = append(out, list[:lo]...)
	out = append(out, pieces...)
	out = append(out, list[hi:]...)
	return out
}
