package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"tcsched/internal/avail"
	"tcsched/internal/interval"
)

// SEvent is a calendar event seen as availability: a base VEVENT with its
// overridden instances.
type SEvent struct {
	base      ParsedEvent
	overrides []ParsedEvent
	method    string
	loc       *time.Location
	seen      time.Time
	feed      *Feed
}

// EventsFromFeed parses body and builds one SEvent per base VEVENT.
func EventsFromFeed(src Source, body []byte) ([]*SEvent, error) {
	feed, err := ParseFeed(src, body)
	if err != nil {
		return nil, err
	}
	return feed.SEvents(), nil
}

// SEvents groups the feed's events. Overrides without a base event stand on
// their own.
func (f *Feed) SEvents() []*SEvent {
	now := time.Now()
	byUID := map[string][]ParsedEvent{}
	for _, ev := range f.Events {
		if ev.IsOverride {
			byUID[ev.UID] = append(byUID[ev.UID], ev)
		}
	}

	out := make([]*SEvent, 0, len(f.Events))
	hasBase := map[string]bool{}
	for _, ev := range f.Events {
		if ev.IsOverride {
			continue
		}
		hasBase[ev.UID] = true
		out = append(out, &SEvent{base: ev, overrides: byUID[ev.UID], method: f.Method, loc: f.Location, seen: now, feed: f})
	}
	for _, ev := range f.Events {
		if ev.IsOverride && !hasBase[ev.UID] {
			single := ev
			single.IsOverride = false
			single.Recurrence = nil
			out = append(out, &SEvent{base: single, method: f.Method, loc: f.Location, seen: now, feed: f})
		}
	}
	return out
}

// AsEvents converts to the availability event interface.
func AsEvents(evs []*SEvent) []avail.Event {
	out := make([]avail.Event, len(evs))
	for i, ev := range evs {
		out[i] = ev
	}
	return out
}

func (e *SEvent) UID() string { return e.base.UID }

// Summary is the event title.
func (e *SEvent) Summary() string { return e.base.Summary }

// TZName is the zone of the feed the event came from.
func (e *SEvent) TZName() string { return e.loc.String() }

// LastModified prefers LAST-MODIFIED, then DTSTAMP, then the parse time.
func (e *SEvent) LastModified() time.Time {
	switch {
	case !e.base.LastModified.IsZero():
		return e.base.LastModified
	case !e.base.DtStamp.IsZero():
		return e.base.DtStamp
	default:
		return e.seen
	}
}

// Active is false for cancelled events and cancel messages.
func (e *SEvent) Active() bool {
	return !e.base.Cancelled() && !strings.Contains(e.method, "CANCEL")
}

// Busy marks slots taken by a scheduled course. Generated invites carry a
// status marker such as " **tentative**" in their summary.
func (e *SEvent) Busy() bool {
	return len(strings.Split(e.base.Summary, "*")) >= 5
}

// Intervals expands the event within [start, end) into intervals tagged with
// the summary.
func (e *SEvent) Intervals(start, end time.Time) []interval.TimeInterval {
	events := append([]ParsedEvent{e.base}, e.overrides...)
	res, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation: e.loc,
		RangeStart:      start,
		RangeEnd:        end,
	})
	if err != nil {
		return nil
	}
	out := make([]interval.TimeInterval, 0, len(res.Occurrences))
	for _, occ := range res.Occurrences {
		ti := interval.Tagged(occ.Start, occ.End, interval.DefaultLabel, occ.Summary)
		if ti.Valid() {
			out = append(out, ti)
		}
	}
	return out
}

// Body serializes a VCALENDAR holding the event, its overrides and the
// feed's timezones.
func (e *SEvent) Body() string {
	cal := ical.NewCalendarFor("tcsched")
	if e.method != "" {
		cal.SetMethod(ical.Method(e.method))
	}
	if e.feed != nil {
		for _, tz := range e.feed.Timezones() {
			cal.AddVTimezone(tz)
		}
	}
	for _, ev := range append([]ParsedEvent{e.base}, e.overrides...) {
		if ev.Raw != nil {
			cal.AddVEvent(ev.Raw)
		}
	}
	return strings.TrimSpace(strings.ReplaceAll(cal.Serialize(), "\r\n", "\n"))
}
