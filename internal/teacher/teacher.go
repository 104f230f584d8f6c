package teacher

import (
	"context"
	"strings"
	"sync"
	"time"

	"tcsched/internal/avail"
	"tcsched/internal/ics"
	"tcsched/internal/interval"
	"tcsched/internal/invite"
	appLog "tcsched/internal/log"
)

// Teacher is an instructor with an availability source: either static
// intervals or an ICS feed.
type Teacher struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Timezone  string

	static []interval.TimeInterval

	fetcher *ics.Fetcher
	feed    ics.Source

	mu     sync.Mutex
	loaded bool
	events []*ics.SEvent
	err    error
}

// NewStatic creates a teacher whose availability is a fixed interval list.
func NewStatic(id, email, first, last, tz string, tis []interval.TimeInterval) *Teacher {
	t := &Teacher{ID: id, Email: email, FirstName: first, LastName: last, Timezone: tz}
	t.static = append(t.static, tis...)
	interval.Sort(t.static)
	return t
}

// NewCalendar creates a teacher whose availability is read from an ICS feed.
func NewCalendar(id, email, first, last, tz string, fetcher *ics.Fetcher, feedURL string) *Teacher {
	return &Teacher{
		ID: id, Email: email, FirstName: first, LastName: last, Timezone: tz,
		fetcher: fetcher,
		feed:    ics.Source{ID: id, URL: feedURL},
	}
}

// Name is "First Last".
func (t *Teacher) Name() string {
	return strings.TrimSpace(t.FirstName + " " + t.LastName)
}

// Calendar reports whether the teacher is backed by a feed.
func (t *Teacher) Calendar() bool { return t.fetcher != nil && t.feed.URL != "" }

// Events returns the feed events, fetching them once until Invalidate.
func (t *Teacher) Events(ctx context.Context) ([]*ics.SEvent, error) {
	if !t.Calendar() {
		return nil, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loaded {
		return t.events, t.err
	}

	res, err := t.fetcher.FetchOne(ctx, t.feed)
	if err == nil {
		t.events, err = ics.EventsFromFeed(t.feed, res.Body)
	}
	if err != nil {
		appLog.Warn("teacher feed unavailable", "teacher", t.ID, "reason", err.Error())
		if ctx.Err() != nil {
			// Do not remember a cancelled request.
			return nil, err
		}
	}
	t.loaded, t.err = true, err
	return t.events, err
}

// Invalidate drops fetched events.
func (t *Teacher) Invalidate() {
	t.mu.Lock()
	t.loaded, t.events, t.err = false, nil, nil
	t.mu.Unlock()
}

// Availability returns the teacher's open time within [start, end); zero
// bounds are open. On a feed error the result is empty and the error is
// returned alongside it.
func (t *Teacher) Availability(ctx context.Context, start, end time.Time) (*avail.Availability, error) {
	if !t.Calendar() {
		av := avail.New(t.Name(), t.Timezone)
		for _, ti := range t.static {
			if clipped, ok := clip(ti, start, end); ok {
				av.AddInterval(clipped)
			}
		}
		return av, nil
	}

	events, err := t.Events(ctx)
	if err != nil {
		return avail.New(t.Name(), t.Timezone), err
	}
	return avail.FromEvents(t.Name(), t.Timezone, ics.AsEvents(events), start, end), nil
}

// HasCalendar is true when the teacher has any availability data.
func (t *Teacher) HasCalendar(ctx context.Context) bool {
	if !t.Calendar() {
		return len(t.static) > 0
	}
	events, err := t.Events(ctx)
	return err == nil && len(events) > 0
}

// Invites lists the teacher's availability in [start, end) as iCalendar
// bodies: the feed's active events when it has any, else one unmarked
// request per open interval built from tmpl.
func (t *Teacher) Invites(ctx context.Context, start, end time.Time, tmpl invite.Params) ([]string, error) {
	if t.Calendar() {
		events, err := t.Events(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(events))
		for _, ev := range events {
			if ev.Active() && len(ev.Intervals(start, end)) > 0 {
				out = append(out, ev.Body())
			}
		}
		if len(out) > 0 {
			return out, nil
		}
	}

	av, err := t.Availability(ctx, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, av.Len())
	for _, ti := range av.Intervals() {
		p := tmpl
		p.Start, p.End = ti.Start, ti.End
		p.Summary = "Availability " + t.Name()
		p.Description = ti.Value
		p.Participants = []string{t.Email}
		p.Plain = true
		out = append(out, invite.NewTentative(p).Encode())
	}
	return out, nil
}

func clip(ti interval.TimeInterval, start, end time.Time) (interval.TimeInterval, bool) {
	if !start.IsZero() && ti.Start.Before(start) {
		ti.Start = start.In(ti.Start.Location())
	}
	if !end.IsZero() && ti.End.After(end) {
		ti.End = end.In(ti.End.Location())
	}
	return ti, ti.Valid()
}
