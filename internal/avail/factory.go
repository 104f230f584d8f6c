package avail

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"tcsched/internal/interval"
)

// Strategy narrows an availability down to a shape that can hold minutes,
// counting only whole segments of seg minutes. It returns nil when that is
// not possible. Strategies never modify their input.
type Strategy func(av *Availability, minutes, seg int, rng *rand.Rand) *Availability

// Compacted merges touching or overlapping intervals that fall on the same
// calendar date.
func Compacted(av *Availability) *Availability {
	byDate := map[time.Time][]interval.TimeInterval{}
	dates := make([]time.Time, 0)
	for _, ti := range av.Intervals() {
		d := interval.DateOf(ti.Start)
		if _, ok := byDate[d]; !ok {
			dates = append(dates, d)
		}
		byDate[d] = append(byDate[d], ti)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := New(av.Name(), av.TZName())
	for _, d := range dates {
		out.AddIntervals(interval.MergedList(byDate[d]))
	}
	return out
}

// Intersect returns the pairwise intersection of a and b, tagged like a.
func Intersect(a, b *Availability) *Availability {
	out := New(a.Name(), a.TZName())
	bs := b.Intervals()
	for _, ta := range a.Intervals() {
		for _, tb := range bs {
			if tb.Start.After(ta.End) {
				break
			}
			if tab, ok := interval.Intersect(ta, tb); ok {
				out.AddInterval(tab)
			}
		}
	}
	return out
}

// FromIndex returns the intervals of av in [from, to). A negative to means
// the end of the list.
func FromIndex(av *Availability, from, to int) *Availability {
	tis := av.Intervals()
	if to < 0 || to > len(tis) {
		to = len(tis)
	}
	if from < 0 {
		from = 0
	}
	out := New(av.Name(), av.TZName())
	if from < to {
		out.AddIntervals(tis[from:to])
	}
	return out
}

// Identity returns av itself when it can hold minutes.
func Identity(av *Availability, minutes, seg int, _ *rand.Rand) *Availability {
	if av.SegmentDuration(seg) < minutes {
		return nil
	}
	return av
}

// Random picks start indices uniformly without replacement and returns the
// first suffix of av that can hold minutes.
func Random(av *Availability, minutes, seg int, rng *rand.Rand) *Availability {
	if av.SegmentDuration(seg) < minutes {
		return nil
	}
	n := av.Len()
	for _, i := range perm(rng, n) {
		if out := FromIndex(av, i, -1); out.SegmentDuration(seg) >= minutes {
			return out
		}
	}
	// Unreachable: index 0 is the whole of av.
	return FromIndex(av, 0, -1)
}

// DaysOfWeek accumulates whole weekdays, largest first, until minutes fit.
// Weekdays of equal duration are taken in random order.
func DaysOfWeek(av *Availability, minutes, seg int, rng *rand.Rand) *Availability {
	type day struct {
		weekday time.Weekday
		av      *Availability
	}
	days := make([]day, 0, 7)
	index := map[time.Weekday]int{}
	for _, ti := range av.Intervals() {
		wd := ti.Start.Weekday()
		i, ok := index[wd]
		if !ok {
			i = len(days)
			index[wd] = i
			days = append(days, day{weekday: wd, av: New(av.Name(), av.TZName())})
		}
		days[i].av.AddInterval(ti)
	}

	sort.SliceStable(days, func(i, j int) bool { return days[i].av.Duration() > days[j].av.Duration() })
	for lo := 0; lo < len(days); {
		hi := lo + 1
		for hi < len(days) && days[hi].av.Duration() == days[lo].av.Duration() {
			hi++
		}
		if hi-lo > 1 && rng != nil {
			run := days[lo:hi]
			rng.Shuffle(len(run), func(i, j int) { run[i], run[j] = run[j], run[i] })
		}
		lo = hi
	}

	out := New(av.Name(), av.TZName())
	for _, d := range days {
		out.AddIntervals(d.av.Intervals())
		if out.SegmentDuration(seg) >= minutes {
			return out
		}
	}
	return nil
}

// CommonTimeSlots finds times of day at which a slot of slot minutes fits
// into the intervals of av, probing a day grid with tick minutes between
// slots. Each returned Availability holds the matches for one time of day,
// named "hh:mm". Groups are taken largest first, skipping any that overlaps
// an accepted one, until their total reaches minutes. The result is empty
// when minutes cannot be reached.
func CommonTimeSlots(av *Availability, minutes, slot, tick int) []*Availability {
	groups := make([]*Availability, 0)
	byKey := map[int]*Availability{}

	tis := av.Intervals()
	for _, gs := range av.DayGrid(slot, tick) {
		key := minuteOfDay(gs.Start)
		for _, tia := range tis {
			tii, ok := interval.Intersect(tia, interval.Updated(tia, gs))
			if !ok || tii.Duration() != slot {
				continue
			}
			g, ok := byKey[key]
			if !ok {
				g = New(fmt.Sprintf("%02d:%02d", key/60, key%60), av.TZName())
				byKey[key] = g
				groups = append(groups, g)
			}
			g.AddInterval(tii)
		}
	}

	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Duration() > groups[j].Duration() })

	out := make([]*Availability, 0)
	total := 0
	for _, g := range groups {
		if total >= minutes {
			break
		}
		clash := false
		for _, prev := range out {
			if Intersect(g, prev).Duration() > 0 {
				clash = true
				break
			}
		}
		if !clash {
			out = append(out, g)
			total += g.Duration()
		}
	}
	if total < minutes {
		return nil
	}
	return out
}

func perm(rng *rand.Rand, n int) []int {
	if rng == nil {
		return rand.Perm(n)
	}
	return rng.Perm(n)
}
