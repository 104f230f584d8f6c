package invite

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
)

const localLayout = "20060102T150405"

// addTimezone appends a VTIMEZONE for at's location describing the zone in
// effect at at and the one that follows it. Zones without transitions get a
// single STANDARD block from the epoch.
func addTimezone(cal *ical.Calendar, at time.Time) {
	loc := at.Location()
	tz := cal.AddTimezone(loc.String())

	begin, end := at.ZoneBounds()
	if begin.IsZero() && end.IsZero() {
		_, off := at.Zone()
		name, _ := at.Zone()
		std := tz.AddStandard()
		setObservance(&std.ComponentBase, "19700101T000000", off, off, name)
		return
	}

	if !begin.IsZero() {
		appendObservance(tz, begin, loc)
	}
	if !end.IsZero() {
		appendObservance(tz, end, loc)
	}
}

// appendObservance describes the transition happening at t.
func appendObservance(tz *ical.VTimezone, t time.Time, loc *time.Location) {
	after := t.In(loc)
	name, to := after.Zone()
	_, from := t.Add(-time.Second).In(loc).Zone()
	// DTSTART is wall time before the change.
	start := t.In(time.FixedZone("", from)).Format(localLayout)

	if after.IsDST() {
		day := &ical.Daylight{}
		setObservance(&day.ComponentBase, start, from, to, name)
		tz.Components = append(tz.Components, day)
		return
	}
	std := tz.AddStandard()
	setObservance(&std.ComponentBase, start, from, to, name)
}

func setObservance(cb *ical.ComponentBase, start string, from, to int, name string) {
	cb.SetProperty(ical.ComponentPropertyDtStart, start)
	cb.SetProperty(ical.ComponentProperty(ical.PropertyTzoffsetfrom), formatOffset(from))
	cb.SetProperty(ical.ComponentProperty(ical.PropertyTzoffsetto), formatOffset(to))
	cb.SetProperty(ical.ComponentProperty(ical.PropertyTzname), name)
}

// formatOffset renders seconds east of UTC as +hhmm.
func formatOffset(sec int) string {
	sign := '+'
	if sec < 0 {
		sign = '-'
		sec = -sec
	}
	return fmt.Sprintf("%c%02d%02d", sign, sec/3600, (sec%3600)/60)
}
