package invite

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

const productID = "HEG Calendar//EN"

// Status is the lifecycle state an invite announces.
type Status int

const (
	Tentative Status = iota
	Cancelled
	Accepted
)

func (s Status) String() string {
	switch s {
	case Cancelled:
		return "cancelled"
	case Accepted:
		return "accepted"
	default:
		return "tentative"
	}
}

func (s Status) object() ical.ObjectStatus {
	switch s {
	case Cancelled:
		return ical.ObjectStatusCancelled
	case Accepted:
		return ical.ObjectStatusConfirmed
	default:
		return ical.ObjectStatusTentative
	}
}

// Params describes the meeting an invite is about.
type Params struct {
	// Start and End of the first occurrence. Their location is the zone the
	// invite is written in.
	Start time.Time
	End   time.Time

	Summary     string
	Description string
	Location    string

	Organizer     string
	OrganizerName string
	Participants  []string

	// RRule is an RRULE value without DTSTART; empty for single events.
	RRule   string
	ExDates []time.Time

	// Plain leaves summary and description without the status marker that
	// makes readers treat the slot as busy.
	Plain bool
}

// Invite is one iCalendar message.
type Invite struct {
	Params
	Method   ical.Method
	Sequence int
	Status   Status
}

// NewTentative proposes a meeting.
func NewTentative(p Params) Invite {
	return Invite{Params: p, Method: ical.MethodRequest, Sequence: 0, Status: Tentative}
}

// NewCancel withdraws a previously proposed meeting.
func NewCancel(p Params) Invite {
	return Invite{Params: p, Method: ical.MethodCancel, Sequence: 1, Status: Cancelled}
}

// NewAccept confirms a meeting on behalf of all participants.
func NewAccept(p Params) Invite {
	return Invite{Params: p, Method: ical.MethodRequest, Sequence: 0, Status: Accepted}
}

// UID identifies the meeting independently of the message method, so a
// cancel matches its request.
func (inv Invite) UID() string {
	first := ""
	if len(inv.Participants) > 0 {
		first = EmailLocal(inv.Participants[0])
	}
	return strings.Join([]string{
		stamp(inv.Start),
		stamp(inv.End),
		EmailLocal(inv.Organizer),
		first,
	}, ":")
}

// Calendar builds the VCALENDAR for the invite.
func (inv Invite) Calendar() *ical.Calendar {
	cal := ical.NewCalendarFor("tcsched")
	cal.SetProductId(productID)
	cal.SetVersion("2.0")
	cal.SetMethod(inv.Method)
	cal.SetCalscale("GREGORIAN")

	loc := inv.Start.Location()
	utc := loc == time.UTC
	if !utc {
		addTimezone(cal, inv.Start)
	}
	timeParams := func() []ical.PropertyParameter {
		if utc {
			return nil
		}
		return []ical.PropertyParameter{ical.WithTZID(loc.String())}
	}

	ev := ical.NewEvent(inv.UID())
	ev.SetDtStampTime(inv.Start.Add(-24 * time.Hour))
	ev.SetProperty(ical.ComponentPropertyDtStart, stamp(inv.Start), timeParams()...)
	ev.SetProperty(ical.ComponentPropertyDtEnd, stamp(inv.End.In(loc)), timeParams()...)
	ev.SetSummary(inv.marked(inv.Summary))
	ev.SetDescription(inv.marked(inv.Description))
	ev.SetTimeTransparency(ical.TransparencyOpaque)
	if inv.Location != "" {
		ev.SetLocation(inv.Location)
	}
	if inv.RRule != "" {
		ev.AddRrule(inv.RRule)
	}
	for _, ex := range inv.ExDates {
		ev.AddExdate(stamp(ex.In(loc)), timeParams()...)
	}
	ev.SetSequence(inv.Sequence)
	ev.SetStatus(inv.Status.object())

	if inv.Organizer != "" {
		ev.SetOrganizer(inv.Organizer,
			ical.WithCN(inv.OrganizerName),
			ical.ParticipationRoleChair,
			ical.ParticipationStatusAccepted,
		)
	}
	for _, p := range inv.Participants {
		params := []ical.PropertyParameter{ical.WithCN(p), ical.ParticipationRoleReqParticipant}
		if inv.Status == Accepted {
			params = append(params, ical.ParticipationStatusAccepted)
		} else {
			params = append(params, ical.ParticipationStatusNeedsAction, ical.WithRSVP(true))
		}
		ev.AddAttendee(p, params...)
	}

	cal.AddVEvent(ev)
	return cal
}

// Encode serializes the invite with bare newlines.
func (inv Invite) Encode() string {
	body := inv.Calendar().Serialize()
	return strings.TrimSpace(strings.ReplaceAll(body, "\r\n", "\n"))
}

func (inv Invite) marked(s string) string {
	if inv.Plain {
		return s
	}
	return s + " **" + inv.Status.String() + "**"
}

// Pair holds the request for a meeting with the message that cancels it.
type Pair struct {
	Request string `json:"request"`
	Cancel  string `json:"cancel"`
}

// NewPair encodes a tentative request and its cancellation.
func NewPair(p Params) Pair {
	return Pair{
		Request: NewTentative(p).Encode(),
		Cancel:  NewCancel(p).Encode(),
	}
}

// EmailLocal returns the part of an address before '@'.
func EmailLocal(addr string) string {
	addr = strings.TrimPrefix(strings.TrimSpace(addr), "mailto:")
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		return addr[:i]
	}
	return addr
}

func stamp(t time.Time) string {
	if t.Location() == time.UTC {
		return t.Format("20060102T150405Z")
	}
	return t.Format(localLayout)
}
