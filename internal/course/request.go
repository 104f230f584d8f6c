package course

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"tcsched/internal/apperr"
	"tcsched/internal/avail"
	"tcsched/internal/interval"
)

// FlexBool accepts JSON booleans as well as "true"/"false" strings.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = false
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			// Unknown strings are not intensive.
			*b = false
			return nil
		}
		*b = FlexBool(v)
		return nil
	}
	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = FlexBool(v)
	return nil
}

// ActivityDetail describes one activity in a course request.
type ActivityDetail struct {
	Activity       string `json:"activity" validate:"required"`
	Periods        *int   `json:"periods,omitempty" validate:"omitempty,gt=0"`
	PeriodDuration *int   `json:"periodDuration,omitempty" validate:"omitempty,gt=0"`
	Duration       *int   `json:"duration,omitempty" validate:"omitempty,gt=0"`
}

// DateEntry is an explicit date/time constraint of a course request.
type DateEntry struct {
	Activity  string `json:"activity"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
}

// Definition carries the course constraints.
type Definition struct {
	AdvancedDetails []ActivityDetail `json:"advancedDetails,omitempty" validate:"required,min=1,dive"`
	Dates           []DateEntry      `json:"dates,omitempty" validate:"dive"`
	TimeZone        string           `json:"timeZone,omitempty"`
	IntensiveCourse FlexBool         `json:"intensiveCourse,omitempty"`
	PeriodDuration  *int             `json:"periodDuration,omitempty" validate:"omitempty,gt=0"`
	TickDistance    *int             `json:"tick_dist,omitempty" validate:"omitempty,gt=0"`
}

// Request is a course scheduling request. Definition fields may appear at
// the top level or under classDefinition; classDefinition wins.
type Request struct {
	SSKU string `json:"ssku,omitempty"`
	Definition
	ClassDefinition *Definition `json:"classDefinition,omitempty"`
}

// Merged returns the effective definition.
func (r Request) Merged() Definition {
	out := r.Definition
	cd := r.ClassDefinition
	if cd == nil {
		return out
	}
	if len(cd.AdvancedDetails) > 0 {
		out.AdvancedDetails = cd.AdvancedDetails
	}
	if len(cd.Dates) > 0 {
		out.Dates = cd.Dates
	}
	if cd.TimeZone != "" {
		out.TimeZone = cd.TimeZone
	}
	if cd.IntensiveCourse {
		out.IntensiveCourse = true
	}
	if cd.PeriodDuration != nil {
		out.PeriodDuration = cd.PeriodDuration
	}
	if cd.TickDistance != nil {
		out.TickDistance = cd.TickDistance
	}
	return out
}

var validate = validator.New()

// DecodeRequest parses a JSON course request.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, apperr.Invalid(err, "malformed course request")
	}
	return req, nil
}

// FromRequest builds a Course from a request, applying defaults. Missing or
// non-positive durations and unparsable dates yield a validation error.
func FromRequest(req Request) (*Course, error) {
	def := req.Merged()
	if err := validate.Struct(def); err != nil {
		return nil, apperr.Invalid(err, "invalid course definition")
	}

	c := &Course{
		Name:           req.SSKU,
		PeriodDuration: intOr(def.PeriodDuration, DefaultPeriodDuration),
		TickDistance:   intOr(def.TickDistance, DefaultTickDistance),
		Timezone:       def.TimeZone,
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	loc := interval.LoadLocation(c.Timezone)
	c.Timezone = loc.String()

	seen := map[string]bool{}
	for _, d := range def.AdvancedDetails {
		if seen[d.Activity] {
			return nil, apperr.Clone(apperr.ErrValidation, fmt.Sprintf("activity %q declared twice", d.Activity))
		}
		seen[d.Activity] = true
		// A course-level period overrides the activity's own.
		period := intOr(d.PeriodDuration, c.PeriodDuration)
		if def.PeriodDuration != nil {
			period = c.PeriodDuration
		}
		c.Activities = append(c.Activities, Activity{
			Name:           d.Activity,
			Periods:        intOr(d.Periods, DefaultPeriods),
			PeriodDuration: period,
			Duration:       intOr(d.Duration, DefaultDuration),
		})
	}

	c.Avail = avail.New(c.Name, c.Timezone)
	for i, d := range def.Dates {
		ti, err := interval.ParseInterval(d.StartTime, d.EndTime, loc, LabelActivity, d.Activity)
		if err != nil {
			return nil, apperr.Invalid(err, fmt.Sprintf("dates[%d]", i))
		}
		c.Avail.AddInterval(ti)
	}

	c.classify(bool(def.IntensiveCourse))
	return c, nil
}

// Decode parses and builds a Course in one step.
func Decode(data []byte) (*Course, error) {
	req, err := DecodeRequest(data)
	if err != nil {
		return nil, err
	}
	return FromRequest(req)
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
