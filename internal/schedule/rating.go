package schedule

import (
	"fmt"

	"tcsched/internal/avail"
	"tcsched/internal/course"
	appLog "tcsched/internal/log"
)

// Infeasible explains why a candidate was rejected.
type Infeasible struct {
	Reason string
}

func (e *Infeasible) Error() string { return "infeasible: " + e.Reason }

func infeasible(format string, args ...any) error {
	return &Infeasible{Reason: fmt.Sprintf(format, args...)}
}

// Rating checks candidates against a course and a teacher availability.
// It is not safe for concurrent use.
type Rating struct {
	course  *course.Course
	teacher *avail.Availability
	last    string
}

// NewRating creates a Rating for c and teacher.
func NewRating(c *course.Course, teacher *avail.Availability) *Rating {
	return &Rating{course: c, teacher: teacher}
}

// CheckTeacher verifies that every minute of av lies in the teacher's
// availability.
func (r *Rating) CheckTeacher(av *avail.Availability) error {
	if av == nil || av.IsEmpty() {
		return infeasible("empty candidate")
	}
	covered := avail.Intersect(av, r.teacher).Duration()
	if covered < av.Duration() {
		return infeasible("teacher covers %d of %d minutes", covered, av.Duration())
	}
	return nil
}

// CheckCourse verifies av against the course: it must lie within the course
// availability. Every interval needs a known activity and a length that is a
// whole number of course periods and of that activity's sessions. Each
// activity must total exactly its duration.
func (r *Rating) CheckCourse(av *avail.Availability) error {
	if av == nil || av.IsEmpty() {
		return infeasible("empty candidate")
	}
	c := r.course
	if covered := avail.Intersect(c.Avail, av).Duration(); covered < c.Duration() {
		return infeasible("course covers %d of %d minutes", covered, c.Duration())
	}

	totals := map[string]int{}
	for _, ti := range av.Intervals() {
		if ti.Label != course.LabelActivity {
			return infeasible("interval %s has label %q", ti, ti.Label)
		}
		act, ok := c.Activity(ti.Value)
		if !ok {
			return infeasible("unknown activity %q", ti.Value)
		}
		d := ti.Duration()
		if c.PeriodDuration > 0 && d%c.PeriodDuration != 0 {
			return infeasible("%s lasts %d, not a multiple of period %d", act.Name, d, c.PeriodDuration)
		}
		if seg := act.SegmentDuration(); seg > 0 && d%seg != 0 {
			return infeasible("%s lasts %d, not a multiple of session %d", act.Name, d, seg)
		}
		totals[act.Name] += d
	}
	for _, act := range c.Activities {
		if totals[act.Name] != act.Duration {
			return infeasible("%s totals %d, want %d", act.Name, totals[act.Name], act.Duration)
		}
	}
	return nil
}

// IsTeacherFeasible is CheckTeacher as a predicate.
func (r *Rating) IsTeacherFeasible(av *avail.Availability) bool {
	return r.keep(r.CheckTeacher(av))
}

// IsCourseFeasible is CheckCourse as a predicate.
func (r *Rating) IsCourseFeasible(av *avail.Availability) bool {
	return r.keep(r.CheckCourse(av))
}

// LastReason is the reason of the last failed predicate.
func (r *Rating) LastReason() string { return r.last }

func (r *Rating) keep(err error) bool {
	if err == nil {
		return true
	}
	r.last = err.Error()
	appLog.Debug("candidate rejected", "course", r.course.Name, "reason", r.last)
	return false
}
