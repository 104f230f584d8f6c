package recur

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"tcsched/internal/interval"
)

// Rule is a weekly recurrence describing a group of intervals that share
// the same time of day.
type Rule struct {
	// Option holds FREQ=WEEKLY with DTSTART, BYDAY and either COUNT or UNTIL.
	Option rrule.ROption
	// Weekdays covered by the rule, Monday first.
	Weekdays []time.Weekday
	// Intervals are the input intervals the rule stands for, sorted.
	Intervals []interval.TimeInterval
	// ExDates are generated starts that are not part of Intervals.
	ExDates []time.Time
	// Title is the most common tag value of Intervals.
	Title string
}

// Start is the first occurrence start.
func (r Rule) Start() time.Time { return r.Intervals[0].Start }

// End is the first occurrence end.
func (r Rule) End() time.Time { return r.Intervals[0].End }

// Length is the duration of every occurrence.
func (r Rule) Length() time.Duration { return r.End().Sub(r.Start()) }

// RRule renders the RRULE value without DTSTART. UNTIL is written in UTC.
func (r Rule) RRule() string { return r.Option.RRuleString() }

// Occurrences expands the rule back into intervals.
func (r Rule) Occurrences() ([]interval.TimeInterval, error) {
	starts, err := r.starts()
	if err != nil {
		return nil, err
	}
	length := r.Length()
	out := make([]interval.TimeInterval, 0, len(starts))
	for _, s := range starts {
		out = append(out, interval.Tagged(s, s.Add(length), r.Intervals[0].Label, r.Intervals[0].Value))
	}
	return out, nil
}

func (r Rule) starts() ([]time.Time, error) {
	rr, err := rrule.NewRRule(r.Option)
	if err != nil {
		return nil, err
	}
	set := rrule.Set{}
	set.RRule(rr)
	for _, ex := range r.ExDates {
		set.ExDate(ex)
	}
	return set.All(), nil
}

type clockKey struct {
	sh, sm, eh, em int
}

type weekdayGroup struct {
	weekdays []time.Weekday
	elts     []interval.TimeInterval
}

// Compress turns intervals into as few weekly rules as it can. Intervals
// sharing a start and end time of day form one rule per weekday, or a single
// rule over all their weekdays when the weekdays occur about equally often.
// Expanding the rules reproduces the input exactly. fallbackTitle names
// rules whose intervals carry no tag.
func Compress(tis []interval.TimeInterval, fallbackTitle string) ([]Rule, error) {
	if len(tis) == 0 {
		return nil, nil
	}

	keys := make([]clockKey, 0)
	byKey := map[clockKey]map[time.Weekday][]interval.TimeInterval{}
	dayOrder := map[clockKey][]time.Weekday{}
	for _, ti := range tis {
		if !ti.Valid() {
			return nil, errors.New("recur: invalid interval " + ti.String())
		}
		k := clockKey{ti.Start.Hour(), ti.Start.Minute(), ti.End.Hour(), ti.End.Minute()}
		days, ok := byKey[k]
		if !ok {
			days = map[time.Weekday][]interval.TimeInterval{}
			byKey[k] = days
			keys = append(keys, k)
		}
		wd := ti.Start.Weekday()
		if _, ok := days[wd]; !ok {
			dayOrder[k] = append(dayOrder[k], wd)
		}
		days[wd] = append(days[wd], ti)
	}

	rules := make([]Rule, 0, len(keys))
	for _, k := range keys {
		for _, g := range mergeWeekdays(byKey[k], dayOrder[k]) {
			built, err := build(g, fallbackTitle)
			if err != nil {
				return nil, err
			}
			rules = append(rules, built...)
		}
	}
	return rules, nil
}

// mergeWeekdays collapses the weekdays of one time-of-day key into a single
// group when their counts differ by at most one.
func mergeWeekdays(days map[time.Weekday][]interval.TimeInterval, order []time.Weekday) []weekdayGroup {
	lo, hi := -1, 0
	for _, wd := range order {
		n := len(days[wd])
		if lo < 0 || n < lo {
			lo = n
		}
		if n > hi {
			hi = n
		}
	}

	if hi-lo > 1 {
		out := make([]weekdayGroup, 0, len(order))
		for _, wd := range order {
			out = append(out, weekdayGroup{weekdays: []time.Weekday{wd}, elts: sortedCopy(days[wd])})
		}
		return out
	}

	g := weekdayGroup{}
	for _, wd := range order {
		g.weekdays = append(g.weekdays, wd)
		g.elts = append(g.elts, days[wd]...)
	}
	sort.Slice(g.weekdays, func(i, j int) bool { return mondayFirst(g.weekdays[i]) < mondayFirst(g.weekdays[j]) })
	g.elts = sortedCopy(g.elts)
	return []weekdayGroup{g}
}

// build bounds the group with COUNT when that reproduces it, else with UNTIL
// plus EXDATEs. Intervals the weekly pattern cannot reach get a rule of
// their own.
func build(g weekdayGroup, fallbackTitle string) ([]Rule, error) {
	elts := g.elts
	byday := make([]rrule.Weekday, 0, len(g.weekdays))
	for _, wd := range g.weekdays {
		byday = append(byday, toRRuleWeekday(wd))
	}
	title := CommonTitle(elts)
	if title == "" {
		title = fallbackTitle
	}

	rule := Rule{
		Option: rrule.ROption{
			Freq:      rrule.WEEKLY,
			Dtstart:   elts[0].Start,
			Byweekday: byday,
			Count:     len(elts),
		},
		Weekdays:  g.weekdays,
		Intervals: elts,
		Title:     title,
	}

	gen, err := rule.starts()
	if err != nil {
		return nil, err
	}
	if sameStarts(gen, elts) {
		return []Rule{rule}, nil
	}

	rule.Option.Count = 0
	rule.Option.Until = elts[len(elts)-1].End.UTC()
	gen, err = rule.starts()
	if err != nil {
		return nil, err
	}

	want := make(map[int64]bool, len(elts))
	for _, ti := range elts {
		want[ti.Start.Unix()] = true
	}
	got := make(map[int64]bool, len(gen))
	for _, s := range gen {
		got[s.Unix()] = true
		if !want[s.Unix()] {
			rule.ExDates = append(rule.ExDates, s)
		}
	}

	out := []Rule{rule}
	kept := elts[:0:0]
	for _, ti := range elts {
		if got[ti.Start.Unix()] {
			kept = append(kept, ti)
			continue
		}
		single, err := build(weekdayGroup{weekdays: []time.Weekday{ti.Start.Weekday()}, elts: []interval.TimeInterval{ti}}, fallbackTitle)
		if err != nil {
			return nil, err
		}
		out = append(out, single...)
	}
	out[0].Intervals = kept
	return out, nil
}

func sameStarts(gen []time.Time, elts []interval.TimeInterval) bool {
	if len(gen) != len(elts) {
		return false
	}
	for i := range gen {
		if !gen[i].Equal(elts[i].Start) {
			return false
		}
	}
	return true
}

// CommonTitle returns the most frequent value among tagged intervals. Ties
// go to the value seen first.
func CommonTitle(tis []interval.TimeInterval) string {
	counts := map[string]int{}
	order := make([]string, 0)
	for _, ti := range tis {
		if ti.Label == "" || ti.Value == "" {
			continue
		}
		if _, ok := counts[ti.Value]; !ok {
			order = append(order, ti.Value)
		}
		counts[ti.Value]++
	}
	best := ""
	for _, v := range order {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best
}

func sortedCopy(tis []interval.TimeInterval) []interval.TimeInterval {
	out := append([]interval.TimeInterval(nil), tis...)
	interval.Sort(out)
	return out
}

func mondayFirst(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

func toRRuleWeekday(wd time.Weekday) rrule.Weekday {
	switch wd {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}
