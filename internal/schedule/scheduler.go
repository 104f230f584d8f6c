package schedule

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"tcsched/internal/avail"
	"tcsched/internal/course"
	"tcsched/internal/interval"
	"tcsched/internal/invite"
	appLog "tcsched/internal/log"
	"tcsched/internal/recur"
)

// ErrInvariant is returned in strict mode when a ranked candidate no longer
// passes the feasibility checks.
var ErrInvariant = errors.New("schedule: candidate failed revalidation")

const DefaultCandidates = 10

// DefaultMultipliers stretch the required duration on successive attempts.
var DefaultMultipliers = []float64{1.3, 1.2, 1.1, 1.0}

// Ranking orders candidates; it reports whether a comes before b.
type Ranking func(a, b *Candidate) bool

// Earliest ranks candidates by their first start.
func Earliest(a, b *Candidate) bool { return a.Start().Before(b.Start()) }

// Options tune a Scheduler.
type Options struct {
	Candidates  int
	Multipliers []float64
	Ranking     Ranking
	Rand        *rand.Rand
	Strict      bool
	// Invite carries organizer, participants and location for generated
	// invites. Times and summary are filled per rule.
	Invite invite.Params
}

func (o Options) withDefaults() Options {
	if o.Candidates <= 0 {
		o.Candidates = DefaultCandidates
	}
	if len(o.Multipliers) == 0 {
		o.Multipliers = DefaultMultipliers
	}
	if o.Ranking == nil {
		o.Ranking = Earliest
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return o
}

// Scheduler samples schedule candidates for one course and one teacher.
type Scheduler struct {
	course  *course.Course
	teacher *avail.Availability
	common  *avail.Availability
	rating  *Rating
	opts    Options
}

// NewScheduler returns nil when either side has no availability or when
// their overlap is shorter than the course.
func NewScheduler(c *course.Course, teacher *avail.Availability, opts Options) *Scheduler {
	if c == nil || c.Avail == nil || c.Avail.IsEmpty() || len(c.Activities) == 0 {
		return nil
	}
	if teacher == nil || teacher.IsEmpty() {
		return nil
	}
	common := avail.Intersect(c.Avail, teacher)
	if common.Duration() < c.Duration() {
		appLog.Debug("scheduler overlap too short",
			"course", c.Name, "teacher", teacher.Name(),
			"overlap", common.Duration(), "need", c.Duration())
		return nil
	}
	return &Scheduler{
		course:  c,
		teacher: teacher,
		common:  common,
		rating:  NewRating(c, teacher),
		opts:    opts.withDefaults(),
	}
}

// Common is the overlap of course and teacher availability.
func (s *Scheduler) Common() *avail.Availability { return s.common }

// Rating exposes the checks used to accept candidates.
func (s *Scheduler) Rating() *Rating { return s.rating }

// Schedules returns up to n ranked candidates. An empty result means no
// feasible schedule was found.
func (s *Scheduler) Schedules(n int) ([]*Candidate, error) {
	if n <= 0 {
		return nil, nil
	}
	target := max(s.opts.Candidates, n)
	need := s.course.Duration()

	seen := map[int64]bool{}
	found := make([]*Candidate, 0, target)
	for round := 0; round < target && len(found) < target; round++ {
		for _, mult := range s.opts.Multipliers {
			if len(found) >= target {
				break
			}
			minutes := int(float64(need) * mult)
			if cand := s.consider(s.course.Shape(s.common, minutes, s.opts.Rand), seen); cand != nil {
				found = append(found, cand)
			}
		}
	}

	sort.SliceStable(found, func(i, j int) bool { return s.opts.Ranking(found[i], found[j]) })
	if len(found) > n {
		found = found[:n]
	}
	return s.verify(found)
}

// consider populates a shaped availability and returns it as a candidate when
// it passes both checks. Only accepted starts are marked in seen, so a
// rejected start may come back on a later attempt.
func (s *Scheduler) consider(shaped *avail.Availability, seen map[int64]bool) *Candidate {
	if shaped == nil || shaped.IsEmpty() {
		return nil
	}
	key := shaped.Start().UnixNano()
	if seen[key] {
		return nil
	}
	populated := s.course.Populate(shaped)
	if populated == nil || populated.IsEmpty() {
		return nil
	}
	if !s.rating.IsTeacherFeasible(populated) || !s.rating.IsCourseFeasible(populated) {
		return nil
	}
	seen[key] = true
	return s.candidate(populated)
}

// verify rechecks ranked candidates, dropping or rejecting the ones that
// fail.
func (s *Scheduler) verify(cands []*Candidate) ([]*Candidate, error) {
	out := cands[:0]
	for _, c := range cands {
		err := s.rating.CheckTeacher(c.Avail)
		if err == nil {
			err = s.rating.CheckCourse(c.Avail)
		}
		if err == nil {
			out = append(out, c)
			continue
		}
		if s.opts.Strict {
			return nil, fmt.Errorf("%w: %v", ErrInvariant, err)
		}
		appLog.Warn("candidate dropped", "course", s.course.Name, "start", c.Start(), "reason", err.Error())
	}
	return out, nil
}

func (s *Scheduler) candidate(av *avail.Availability) *Candidate {
	return &Candidate{Avail: av, course: s.course, tmpl: s.opts.Invite}
}

// Candidate is one feasible schedule. Its recurrence rules and invites are
// computed on first use.
type Candidate struct {
	Avail *avail.Availability

	course *course.Course
	tmpl   invite.Params

	once    sync.Once
	rules   []recur.Rule
	invites []invite.Pair
	err     error
}

// Start is the first session start.
func (c *Candidate) Start() time.Time { return c.Avail.Start() }

// Intervals are the activity-tagged sessions.
func (c *Candidate) Intervals() []interval.TimeInterval { return c.Avail.Intervals() }

// Rules compresses the day-compacted sessions into weekly rules.
func (c *Candidate) Rules() ([]recur.Rule, error) {
	c.compute()
	return c.rules, c.err
}

// Invites returns one request/cancel pair per rule.
func (c *Candidate) Invites() ([]invite.Pair, error) {
	c.compute()
	return c.invites, c.err
}

func (c *Candidate) compute() {
	c.once.Do(func() {
		compact := avail.Compacted(c.Avail)
		title := recur.CommonTitle(c.Avail.Intervals())
		if title == "" {
			title = c.course.Name
		}
		rules, err := recur.Compress(compact.Intervals(), title)
		if err != nil {
			c.err = err
			return
		}
		c.rules = rules
		c.invites = make([]invite.Pair, 0, len(rules))
		for _, r := range rules {
			p := c.tmpl
			p.Start = r.Start()
			p.End = r.End()
			p.Summary = c.course.Name + " " + r.Title
			p.Description = c.course.Name
			p.RRule = r.RRule()
			p.ExDates = r.ExDates
			c.invites = append(c.invites, invite.NewPair(p))
		}
	})
}
