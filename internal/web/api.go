package web

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"tcsched/internal/apperr"
	"tcsched/internal/course"
	"tcsched/internal/interval"
	"tcsched/internal/invite"
	appLog "tcsched/internal/log"
	"tcsched/internal/metrics"
	"tcsched/internal/model"
	"tcsched/internal/schedule"
	"tcsched/internal/teacher"
)

const defaultSchedules = 3

type calendarRequest struct {
	TeacherIDs []model.FlexID `json:"teacherIds" validate:"required"`
	StartTime  string         `json:"startTime"`
	EndTime    string         `json:"endTime"`
	TimeZone   string         `json:"timeZone,omitempty"`
}

type calendarAvail struct {
	Dates   []model.DateEntry `json:"dates,omitempty"`
	Invites []string          `json:"invites,omitempty"`
}

type teacherCalendar struct {
	TeacherID model.FlexID  `json:"teacherId"`
	Available calendarAvail `json:"available"`
}

// scheduleRequest is a course request plus the teachers to match it with.
type scheduleRequest struct {
	course.Request
	TeacherIDs []model.FlexID `json:"teacherIds"`
	NSchedules *int           `json:"nSchedules,omitempty"`
}

type scheduleOut struct {
	Dates   []model.DateEntry `json:"dates"`
	Invites []invite.Pair     `json:"invites"`
}

type teacherSchedule struct {
	TeacherID   model.FlexID  `json:"teacherId"`
	Schedules   []scheduleOut `json:"schedules"`
	HasCalendar bool          `json:"hasCalendar"`
	Available   bool          `json:"available"`
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req calendarRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, r, apperr.Invalid(err, "invalid calendar request"))
		return
	}
	start, end, err := s.window(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	appLog.Info("calendar request",
		"request_id", RequestID(ctx),
		"teachers", len(req.TeacherIDs),
		"start", start.Format(time.RFC3339),
		"end", end.Format(time.RFC3339),
	)

	result := make([]teacherCalendar, 0, len(req.TeacherIDs))
	for _, id := range req.TeacherIDs {
		entry := teacherCalendar{TeacherID: id}
		t, err := s.teachers.Get(ctx, id.String())
		if err != nil {
			appLog.Warn("calendar teacher unknown", "teacher", id.String(), "reason", err.Error())
			result = append(result, entry)
			continue
		}

		av, err := t.Availability(ctx, start, end)
		if err != nil {
			appLog.Error("teacher availability failed", err, "teacher", t.ID)
		}
		entry.Available.Dates = model.Dates(av.Intervals())

		invites, err := t.Invites(ctx, start, end, s.inviteParams(t))
		if err != nil {
			appLog.Error("teacher invites failed", err, "teacher", t.ID)
		}
		entry.Available.Invites = invites
		result = append(result, entry)
	}

	writeJSON(w, envelope{Success: true, Message: msgCalendar, Result: result})
}

// window resolves the request bounds. A missing start is now; a missing end
// is the configured horizon after the start.
func (s *Server) window(req calendarRequest) (time.Time, time.Time, error) {
	tz := req.TimeZone
	if tz == "" {
		tz = s.cfg.Timezone
	}
	loc := interval.LoadLocation(tz)

	start := time.Now().In(loc)
	if req.StartTime != "" {
		t, err := interval.ParseTime(req.StartTime, loc)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.Invalid(err, "invalid startTime")
		}
		start = t
	}
	end := start.AddDate(0, 0, s.cfg.HorizonDays)
	if req.EndTime != "" {
		t, err := interval.ParseTime(req.EndTime, loc)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.Invalid(err, "invalid endTime")
		}
		end = t
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, apperr.Clone(apperr.ErrValidation, "endTime must be after startTime")
	}
	return start, end, nil
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req scheduleRequest
	if err := decode(r, &req); err != nil {
		s.metrics.ObserveSchedule(metrics.OutcomeError)
		s.writeError(w, r, err)
		return
	}
	if err := s.validate.Var(req.TeacherIDs, "required"); err != nil {
		s.metrics.ObserveSchedule(metrics.OutcomeError)
		s.writeError(w, r, apperr.Invalid(err, "teacherIds is required"))
		return
	}
	c, err := course.FromRequest(req.Request)
	if err != nil {
		s.metrics.ObserveSchedule(metrics.OutcomeError)
		s.writeError(w, r, err)
		return
	}
	n := defaultSchedules
	if req.NSchedules != nil {
		n = *req.NSchedules
	}

	appLog.Info("schedule request",
		"request_id", RequestID(ctx),
		"course", c.Name,
		"kind", c.Kind.String(),
		"teachers", len(req.TeacherIDs),
		"n", n,
	)

	result, err := s.scheduleAll(ctx, c, req.TeacherIDs, n)
	if err != nil {
		s.metrics.ObserveSchedule(metrics.OutcomeError)
		s.writeError(w, r, err)
		return
	}

	out := envelope{Message: msgNoSchedule, Result: result}
	for _, ts := range result {
		if len(ts.Schedules) > 0 {
			out.Success = true
			out.Message = msgScheduleFound
		}
	}
	if out.Success {
		s.metrics.ObserveSchedule(metrics.OutcomeFound)
	} else {
		s.metrics.ObserveSchedule(metrics.OutcomeNotFound)
	}
	writeJSON(w, out)
}

// scheduleAll runs one scheduler per teacher concurrently. Unknown teachers
// are left out of the result.
func (s *Server) scheduleAll(ctx context.Context, c *course.Course, ids []model.FlexID, n int) ([]teacherSchedule, error) {
	// Shared read-only from here on.
	c.Avail.Resolve()

	slots := make([]*teacherSchedule, len(ids))
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id model.FlexID) {
			defer wg.Done()
			slots[i], errs[i] = s.scheduleTeacher(ctx, c, id, n, s.rng(i))
		}(i, id)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	out := make([]teacherSchedule, 0, len(ids))
	for _, ts := range slots {
		if ts != nil {
			out = append(out, *ts)
		}
	}
	return out, nil
}

func (s *Server) scheduleTeacher(ctx context.Context, c *course.Course, id model.FlexID, n int, rng *rand.Rand) (*teacherSchedule, error) {
	t, err := s.teachers.Get(ctx, id.String())
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			appLog.Warn("schedule teacher unknown", "teacher", id.String())
			return nil, nil
		}
		return nil, err
	}

	av, err := t.Availability(ctx, c.Avail.Start(), c.Avail.End())
	if err != nil {
		appLog.Error("teacher availability failed", err, "teacher", t.ID)
	}

	sch := schedule.NewScheduler(c, av, schedule.Options{
		Candidates:  s.cfg.Scheduler.Candidates,
		Multipliers: s.cfg.Scheduler.Multipliers,
		Rand:        rng,
		Strict:      s.cfg.Scheduler.Strict,
		Invite:      s.inviteParams(t),
	})
	ts := &teacherSchedule{
		TeacherID:   id,
		Schedules:   []scheduleOut{},
		HasCalendar: t.HasCalendar(ctx),
		Available:   sch != nil,
	}
	if sch == nil {
		return ts, nil
	}

	cands, err := sch.Schedules(n)
	if err != nil {
		return nil, err
	}
	for _, cand := range cands {
		pairs, err := cand.Invites()
		if err != nil {
			appLog.Error("invite generation failed", err, "teacher", t.ID, "start", cand.Start())
			pairs = nil
		}
		if pairs == nil {
			pairs = []invite.Pair{}
		}
		ts.Schedules = append(ts.Schedules, scheduleOut{
			Dates:   model.Dates(cand.Intervals()),
			Invites: pairs,
		})
	}
	s.metrics.ObserveCandidates(c.Kind.String(), len(ts.Schedules))
	appLog.Debug("teacher scheduled", "teacher", t.ID, "candidates", len(ts.Schedules))
	return ts, nil
}

// rng returns a random source for the i-th teacher of a request.
func (s *Server) rng(i int) *rand.Rand {
	if seed := s.cfg.Scheduler.Seed; seed != 0 {
		return rand.New(rand.NewSource(seed + int64(i)))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano() + s.seeds.Add(1)))
}

// inviteParams addresses invites to the teacher first, then the configured
// participants.
func (s *Server) inviteParams(t *teacher.Teacher) invite.Params {
	inv := s.cfg.Invite
	participants := make([]string, 0, len(inv.Participants)+1)
	if t.Email != "" {
		participants = append(participants, t.Email)
	}
	participants = append(participants, inv.Participants...)
	return invite.Params{
		Organizer:     inv.Organizer,
		OrganizerName: inv.OrganizerName,
		Participants:  participants,
		Location:      inv.Location,
	}
}
