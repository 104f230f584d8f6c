package avail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcsched/internal/interval"
)

const chicago = "America/Chicago"

func ti(t *testing.T, tz, start, end string) interval.TimeInterval {
	t.Helper()
	out, err := interval.ParseInterval(start, end, interval.LoadLocation(tz), interval.DefaultLabel, interval.DefaultValue)
	require.NoError(t, err)
	return out
}

type stubEvent struct {
	uid      string
	modified time.Time
	active   bool
	busy     bool
	tis      []interval.TimeInterval
}

func (e stubEvent) UID() string             { return e.uid }
func (e stubEvent) LastModified() time.Time { return e.modified }
func (e stubEvent) Active() bool            { return e.active }
func (e stubEvent) Busy() bool              { return e.busy }

func (e stubEvent) Intervals(start, end time.Time) []interval.TimeInterval {
	out := make([]interval.TimeInterval, 0, len(e.tis))
	for _, ti := range e.tis {
		if ti.Start.Before(end) && ti.End.After(start) {
			out = append(out, ti)
		}
	}
	return out
}

func TestStartEnd(t *testing.T) {
	av := New("Class Schedule", chicago)
	av.AddIntervals([]interval.TimeInterval{
		ti(t, chicago, "2021-07-05T10:00:00", "2021-07-05T13:00:00"),
		ti(t, chicago, "2021-07-20T10:00:00", "2021-07-20T12:00:00"),
		ti(t, chicago, "2021-07-12T10:00:00", "2021-07-12T13:00:00"),
	})

	assert.Equal(t, "2021-07-05 10:00:00 -0500 CDT", av.Start().String())
	assert.Equal(t, "2021-07-20 12:00:00 -0500 CDT", av.End().String())
	assert.True(t, New("empty", chicago).Start().IsZero())
}

func TestAddIntervalRejectsOverlap(t *testing.T) {
	av := New("aa", chicago)
	av.AddInterval(ti(t, chicago, "2021-05-13 08:00:00", "2021-05-13 11:00:00"))
	av.AddInterval(ti(t, chicago, "2021-05-13 10:00:00", "2021-05-13 12:00:00"))
	av.AddInterval(ti(t, chicago, "2021-05-13 11:00:00", "2021-05-13 12:00:00"))

	require.Equal(t, 2, av.Len())
	assert.Equal(t, 240, av.Duration())
}

func TestResolutionState(t *testing.T) {
	av := New("aa", chicago)
	assert.Equal(t, Stale, av.State())

	av.AddInterval(ti(t, chicago, "2021-05-13 08:00:00", "2021-05-13 11:00:00"))
	assert.Equal(t, Stale, av.State())
	assert.Equal(t, 180, av.Duration())
	assert.Equal(t, Fresh, av.State())

	av.AddNegInterval(ti(t, chicago, "2021-05-13 08:00:00", "2021-05-13 09:00:00"))
	assert.Equal(t, Stale, av.State())
	assert.Equal(t, 120, av.Duration())
}

func TestSegmentDuration(t *testing.T) {
	av := New("aa", chicago)
	av.AddIntervals([]interval.TimeInterval{
		ti(t, chicago, "2021-05-13 08:00:00", "2021-05-13 11:00:00"),
		ti(t, chicago, "2021-05-14 09:00:00", "2021-05-14 12:00:00"),
	})

	assert.Equal(t, 360, av.SegmentDuration(60))
	assert.Equal(t, 240, av.SegmentDuration(120))
	assert.Equal(t, 360, av.SegmentDuration(180))
	assert.Equal(t, 0, av.SegmentDuration(240))
}

func TestNegativeSubtraction(t *testing.T) {
	av := New("aa", chicago)
	pos := []interval.TimeInterval{
		ti(t, chicago, "2021-05-13 08:00:00", "2021-05-13 11:00:00"),
		ti(t, chicago, "2021-05-13 11:00:00", "2021-05-13 15:00:00"),
		ti(t, chicago, "2021-05-13 15:00:00", "2021-05-13 17:00:00"),
		ti(t, chicago, "2021-05-20 09:00:00", "2021-05-20 12:00:00"),
	}
	neg := []interval.TimeInterval{
		ti(t, chicago, "2021-05-13 09:00:00", "2021-05-13 10:00:00"),
		ti(t, chicago, "2021-05-13 11:00:00", "2021-05-13 15:00:00"),
		ti(t, chicago, "2021-05-13 15:00:00", "2021-05-13 16:00:00"),
		ti(t, chicago, "2021-05-20 11:00:00", "2021-05-20 12:00:00"),
	}
	av.AddIntervals(pos)
	av.AddNegIntervals(neg)

	assert.Equal(t, interval.TotalDuration(pos)-interval.TotalDuration(neg), av.Duration())
	// The first interval splits in two, the second disappears.
	assert.Equal(t, 4, av.Len())

	tis := av.Intervals()
	for i := 1; i < len(tis); i++ {
		assert.False(t, interval.Overlaps(tis[i-1], tis[i]))
		assert.True(t, tis[i-1].Start.Before(tis[i].Start))
	}
}

func TestEventsLatestVersionWins(t *testing.T) {
	base := time.Date(2021, time.May, 1, 0, 0, 0, 0, time.UTC)
	open := ti(t, chicago, "2021-05-13 08:00:00", "2021-05-13 12:00:00")
	lunch := ti(t, chicago, "2021-05-13 10:00:00", "2021-05-13 11:00:00")
	later := ti(t, chicago, "2021-05-14 08:00:00", "2021-05-14 10:00:00")

	av := New("teacher", chicago)
	av.AddEvents([]Event{
		stubEvent{uid: "open", modified: base, active: true, tis: []interval.TimeInterval{open}},
		stubEvent{uid: "busy", modified: base, active: true, busy: true, tis: []interval.TimeInterval{lunch}},
		stubEvent{uid: "moved", modified: base, active: true, tis: []interval.TimeInterval{open}},
		stubEvent{uid: "moved", modified: base.Add(time.Hour), active: true, tis: []interval.TimeInterval{later}},
		stubEvent{uid: "gone", modified: base, active: true, tis: []interval.TimeInterval{later}},
		stubEvent{uid: "gone", modified: base.Add(time.Hour), active: false, tis: []interval.TimeInterval{later}},
	})

	assert.Equal(t, 3*60+2*60, av.Duration())
	assert.Equal(t, 3, av.Len())
}

func TestFromEventsWindow(t *testing.T) {
	base := time.Date(2021, time.May, 1, 0, 0, 0, 0, time.UTC)
	ev := stubEvent{uid: "open", modified: base, active: true, tis: []interval.TimeInterval{
		ti(t, chicago, "2021-05-13 08:00:00", "2021-05-13 12:00:00"),
		ti(t, chicago, "2021-06-13 08:00:00", "2021-06-13 12:00:00"),
	}}

	av := FromEvents("teacher", chicago, []Event{ev},
		time.Date(2021, time.May, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 1, av.Len())
	assert.Equal(t, 240, av.Duration())
}

func TestDayGrid(t *testing.T) {
	av := getAA(t)
	const slot, tick = 120, 15

	grid := av.DayGrid(slot, tick)
	require.NotEmpty(t, grid)

	dates := map[time.Time]bool{}
	for i, g := range grid {
		assert.Equal(t, slot, g.Duration())
		if i > 0 {
			assert.Equal(t, time.Duration(tick)*time.Minute, g.Start.Sub(grid[i-1].Start))
		}
		dates[interval.DateOf(g.Start)] = true
	}
	assert.Len(t, dates, 1)

	assert.Equal(t, 8, grid[0].Start.Hour())
	assert.Equal(t, 16, grid[len(grid)-1].End.Hour())
}

// getAA is three weeks of Thursday 08-15 and Friday 09-16.
func getAA(t *testing.T) *Availability {
	av := New("aa", chicago)
	av.AddIntervals([]interval.TimeInterval{
		ti(t, chicago, "2021-05-13 08:00:00", "2021-05-13 15:00:00"),
		ti(t, chicago, "2021-05-14 09:00:00", "2021-05-14 16:00:00"),
		ti(t, chicago, "2021-05-20 08:00:00", "2021-05-20 15:00:00"),
		ti(t, chicago, "2021-05-21 09:00:00", "2021-05-21 16:00:00"),
		ti(t, chicago, "2021-05-27 08:00:00", "2021-05-27 15:00:00"),
		ti(t, chicago, "2021-05-28 09:00:00", "2021-05-28 16:00:00"),
	})
	return av
}
