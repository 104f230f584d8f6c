package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"tcsched/internal/interval"
	appLog "tcsched/internal/log"
)

// ParsedEvent is one VEVENT with its times resolved to locations.
type ParsedEvent struct {
	Source Source

	UID string
	Seq int

	Summary     string
	Description string
	Location    string
	Status      string

	Start   time.Time
	End     time.Time
	AllDay  bool
	StartTZ string

	// LastModified and DtStamp are zero when absent.
	LastModified time.Time
	DtStamp      time.Time

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID
	IsOverride bool

	// Raw is the component the event was parsed from.
	Raw *ical.VEvent
}

// Cancelled reports a STATUS of CANCELLED (or any CANCEL variant).
func (ev ParsedEvent) Cancelled() bool {
	return strings.Contains(strings.ToUpper(ev.Status), "CANCEL")
}

// Feed is a parsed VCALENDAR.
type Feed struct {
	Source Source
	// Method is the calendar METHOD, e.g. REQUEST or CANCEL.
	Method string
	// TZID is the first VTIMEZONE id, or the default zone.
	TZID     string
	Location *time.Location
	Events   []ParsedEvent

	cal *ical.Calendar
}

// Timezones returns the VTIMEZONE components of the feed.
func (f *Feed) Timezones() []*ical.VTimezone {
	if f.cal == nil {
		return nil
	}
	return f.cal.Timezones()
}

// ParseFeed parses an ICS payload. Times without a usable TZID are placed in
// the feed's zone: its first VTIMEZONE, else interval.DefaultTimezone.
// Events that fail to parse are logged and skipped.
func ParseFeed(src Source, body []byte) (*Feed, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	feed := &Feed{Source: src, TZID: interval.DefaultTimezone, cal: cal}
	for _, p := range cal.CalendarProperties {
		if p.IANAToken == string(ical.PropertyMethod) {
			feed.Method = strings.ToUpper(strings.TrimSpace(p.Value))
		}
	}
	for _, tz := range cal.Timezones() {
		if p := tz.GetProperty(ical.ComponentPropertyTzid); p != nil && p.Value != "" {
			feed.TZID = p.Value
			break
		}
	}
	feed.Location = interval.LoadLocation(feed.TZID)

	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(src, ve, feed.Location)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "id", src.ID, "url", redactURL(src.URL), "reason", perr.Error())
			continue
		}
		feed.Events = append(feed.Events, ev)
	}

	appLog.Debug("ics parse completed", "id", src.ID, "method", feed.Method, "tzid", feed.TZID, "event_count", len(feed.Events))
	return feed, nil
}

// ParseICS parses a payload and returns its events only.
func ParseICS(src Source, body []byte) ([]ParsedEvent, error) {
	feed, err := ParseFeed(src, body)
	if err != nil {
		return nil, err
	}
	return feed.Events, nil
}

func parseVEvent(src Source, ve *ical.VEvent, fallback *time.Location) (ParsedEvent, error) {
	out := ParsedEvent{Source: src, Raw: ve}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.Seq = n
		}
	}
	out.Summary = textValue(ve, ical.ComponentPropertySummary)
	out.Description = textValue(ve, ical.ComponentPropertyDescription)
	out.Location = textValue(ve, ical.ComponentPropertyLocation)
	out.Status = strings.ToUpper(textValue(ve, ical.ComponentPropertyStatus))

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	out.AllDay = isDate(dtStart)
	out.StartTZ = param(dtStart, "TZID")

	start, err := propTime(dtStart, fallback)
	if err != nil {
		return out, err
	}
	out.Start = start

	switch dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); {
	case dtEnd != nil:
		end, err := propTime(dtEnd, fallback)
		if err != nil {
			return out, err
		}
		out.End = end
	case out.AllDay:
		out.End = start.AddDate(0, 0, 1)
	default:
		out.End = start
	}
	if out.End.Before(out.Start) {
		return out, errors.New("DTEND before DTSTART")
	}

	if p := ve.GetProperty(ical.ComponentPropertyLastModified); p != nil {
		out.LastModified, _ = propTime(p, time.UTC)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDtstamp); p != nil {
		out.DtStamp, _ = propTime(p, time.UTC)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := zoneOf(p, start.Location())
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		if t, err := propTime(p, start.Location()); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

func textValue(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return ical.FromText(p.Value)
	}
	return ""
}

func param(p *ical.IANAProperty, name string) string {
	if vs, ok := p.ICalParameters[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func isDate(p *ical.IANAProperty) bool {
	return strings.EqualFold(param(p, "VALUE"), "DATE") || !strings.Contains(p.Value, "T")
}

// zoneOf resolves a property's TZID, falling back to def for missing or
// unknown ids.
func zoneOf(p *ical.IANAProperty, def *time.Location) *time.Location {
	tzid := param(p, "TZID")
	if tzid == "" {
		return def
	}
	if loc, err := time.LoadLocation(tzid); err == nil {
		return loc
	}
	return def
}

func propTime(p *ical.IANAProperty, def *time.Location) (time.Time, error) {
	return parseICSTime(p.Value, zoneOf(p, def))
}

// parseICSTime parses DATE, floating DATE-TIME and UTC DATE-TIME values.
// Floating values are placed in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
