package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"tcsched/internal/interval"
)

// Occurrence is a single concrete instance of a calendar event, after
// recurrence expansion.
type Occurrence struct {
	SourceID string // feed id
	UID      string // iCalendar UID

	// InstanceKey identifies one occurrence of a recurring event.
	InstanceKey string

	Summary     string
	Description string
	Location    string

	AllDay bool

	Start time.Time
	End   time.Time
}

// DateEntry is an interval on the wire. Its tag is written as a field named
// after the label, e.g. {"activity": "Lecture", "startTime": ..., "endTime": ...}.
type DateEntry struct {
	Label string
	Value string
	Start time.Time
	End   time.Time
}

func (d DateEntry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if d.Label != "" {
		k, _ := json.Marshal(d.Label)
		v, _ := json.Marshal(d.Value)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		buf.WriteByte(',')
	}
	buf.WriteString(`"startTime":`)
	s, _ := json.Marshal(interval.FormatLocal(d.Start))
	buf.Write(s)
	buf.WriteString(`,"endTime":`)
	e, _ := json.Marshal(interval.FormatLocal(d.End))
	buf.Write(e)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Dates converts intervals to wire entries.
func Dates(tis []interval.TimeInterval) []DateEntry {
	out := make([]DateEntry, 0, len(tis))
	for _, ti := range tis {
		out = append(out, DateEntry{Label: ti.Label, Value: ti.Value, Start: ti.Start, End: ti.End})
	}
	return out
}

// FlexID is an identifier sent either as a JSON number or a string.
type FlexID string

func (id *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = FlexID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers.
func (id FlexID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id FlexID) String() string { return string(id) }

// Span is a start/end pair as sent by clients and stored in teacher files.
type Span struct {
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
}

// TeacherRecord is the stored form of a teacher with static availability.
type TeacherRecord struct {
	ID           FlexID `json:"Id"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email,omitempty"`
	TimeZone     string `json:"timeZone,omitempty"`
	Availability []Span `json:"availability"`
}
