package course

import (
	"math/rand"

	"tcsched/internal/avail"
	"tcsched/internal/interval"
)

// LabelActivity tags intervals that carry an activity name as value.
const LabelActivity = "activity"

const (
	DefaultName           = "unknown course name"
	DefaultPeriodDuration = 60
	DefaultTickDistance   = 30
	DefaultPeriods        = 1
	DefaultDuration       = 60
)

// Kind selects how a course is shaped and populated.
type Kind int

const (
	// Regular courses are spread over the fewest weekdays at a fixed time.
	Regular Kind = iota
	// Intensive courses are packed into a compact random tail of the
	// availability.
	Intensive
	// Advanced courses are fully specified by their dates.
	Advanced
)

func (k Kind) String() string {
	switch k {
	case Advanced:
		return "advanced"
	case Intensive:
		return "intensive"
	default:
		return "regular"
	}
}

// Activity is one kind of session within a course.
type Activity struct {
	Name           string
	Periods        int
	PeriodDuration int
	// Duration is the total minutes the activity needs over the course.
	Duration int
}

// SegmentDuration is the length of one session.
func (a Activity) SegmentDuration() int {
	return a.Periods * a.PeriodDuration
}

// Course holds the time requirements of a class.
type Course struct {
	Name           string
	PeriodDuration int
	TickDistance   int
	Timezone       string
	// Avail is the declared availability, tagged with activity names.
	Avail      *avail.Availability
	Activities []Activity
	Kind       Kind
}

// Duration is the sum of activity durations.
func (c *Course) Duration() int {
	total := 0
	for _, a := range c.Activities {
		total += a.Duration
	}
	return total
}

// SegmentDuration is the longest activity session.
func (c *Course) SegmentDuration() int {
	seg := 0
	for _, a := range c.Activities {
		if s := a.SegmentDuration(); s > seg {
			seg = s
		}
	}
	return seg
}

// Activity looks up an activity by name.
func (c *Course) Activity(name string) (Activity, bool) {
	for _, a := range c.Activities {
		if a.Name == name {
			return a, true
		}
	}
	return Activity{}, false
}

func (c *Course) classify(intensive bool) {
	switch {
	case c.Avail.Duration() == c.Duration():
		c.Kind = Advanced
	case intensive:
		c.Kind = Intensive
	default:
		c.Kind = Regular
	}
}

// Strategy returns the availability shaping strategy of the course kind.
func (c *Course) Strategy() avail.Strategy {
	switch c.Kind {
	case Advanced:
		return avail.Identity
	case Intensive:
		return avail.Random
	default:
		return avail.DaysOfWeek
	}
}

// Shape narrows av down to something that can hold minutes of this course.
func (c *Course) Shape(av *avail.Availability, minutes int, rng *rand.Rand) *avail.Availability {
	return c.Strategy()(av, minutes, c.SegmentDuration(), rng)
}

// Populate assigns activities to a shaped availability. It returns nil when
// no assignment is possible.
func (c *Course) Populate(av *avail.Availability) *avail.Availability {
	if av == nil {
		return nil
	}
	switch c.Kind {
	case Advanced:
		return av
	case Intensive:
		return c.populateIntensive(av)
	default:
		return c.populateRegular(av)
	}
}

// populateIntensive fills each interval front to back, cycling through the
// activities in declaration order until every total is met or the interval
// is used up.
func (c *Course) populateIntensive(av *avail.Availability) *avail.Availability {
	out := avail.New(c.Avail.Name(), c.Timezone)
	totals := map[string]int{}
	need := c.Duration()

	for _, ti := range av.Intervals() {
		if out.Duration() >= need {
			break
		}
		cur, ok := ti, true
		for progress := true; ok && progress; {
			progress = false
			for _, act := range c.Activities {
				if !ok {
					break
				}
				if c.place(out, totals, act, &cur, &ok) {
					progress = true
				}
			}
		}
	}
	return out
}

// populateRegular lays activities into the common time slots of av, one
// pass per slot occurrence.
func (c *Course) populateRegular(av *avail.Availability) *avail.Availability {
	slots := avail.CommonTimeSlots(av, c.Duration(), c.SegmentDuration(), c.TickDistance)
	if len(slots) == 0 {
		return nil
	}

	out := avail.New(av.Name(), c.Timezone)
	totals := map[string]int{}
	need := c.Duration()

	for _, group := range slots {
		if out.Duration() >= need {
			break
		}
		for _, ti := range group.Intervals() {
			cur, ok := ti, true
			for _, act := range c.Activities {
				if !ok {
					break
				}
				c.place(out, totals, act, &cur, &ok)
			}
		}
	}
	return out
}

// place puts one session of act at the head of cur, then shrinks cur.
func (c *Course) place(out *avail.Availability, totals map[string]int, act Activity, cur *interval.TimeInterval, ok *bool) bool {
	seg := act.SegmentDuration()
	if totals[act.Name] >= act.Duration || seg > cur.Duration() {
		return false
	}
	head, fits := interval.Initial(*cur, seg, LabelActivity, act.Name)
	if !fits {
		return false
	}
	out.AddInterval(head)
	totals[act.Name] += head.Duration()
	*cur, *ok = interval.Reduced(*cur, seg, "", "")
	return true
}
