package avail

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcsched/internal/interval"
)

func TestIntersectAvailabilities(t *testing.T) {
	aa := New("aa", chicago)
	aa.AddIntervals([]interval.TimeInterval{
		ti(t, chicago, "2021-05-20 08:00:00", "2021-05-20 12:00:00"),
		ti(t, chicago, "2021-05-20 13:00:00", "2021-05-20 15:00:00"),
		ti(t, chicago, "2021-05-21 09:00:00", "2021-05-21 15:00:00"),
		ti(t, chicago, "2021-05-22 07:00:00", "2021-05-22 15:00:00"),
	})
	ab := New("ab", chicago)
	ab.AddIntervals([]interval.TimeInterval{
		ti(t, chicago, "2021-05-20 09:00:00", "2021-05-20 13:00:00"),
		ti(t, chicago, "2021-05-20 14:00:00", "2021-05-20 16:00:00"),
		ti(t, chicago, "2021-05-21 10:00:00", "2021-05-21 16:00:00"),
		ti(t, chicago, "2021-05-22 08:00:00", "2021-05-22 16:00:00"),
	})

	assert.Equal(t, 16*60, Intersect(aa, ab).Duration())
	assert.Equal(t, Intersect(aa, ab).Duration(), Intersect(ab, aa).Duration())
	assert.Equal(t, "aa", Intersect(aa, ab).Name())
}

func TestIntersectAcrossZones(t *testing.T) {
	const ny = "America/New_York"
	aa := New("aa", ny)
	aa.AddIntervals([]interval.TimeInterval{
		ti(t, ny, "2021-05-20 08:00:00", "2021-05-20 12:00:00"),
		ti(t, ny, "2021-05-20 13:00:00", "2021-05-20 15:00:00"),
		ti(t, ny, "2021-05-21 09:00:00", "2021-05-21 15:00:00"),
		ti(t, ny, "2021-05-22 07:00:00", "2021-05-22 15:00:00"),
	})
	ab := New("ab", chicago)
	ab.AddIntervals([]interval.TimeInterval{
		ti(t, chicago, "2021-05-20 08:00:00", "2021-05-20 12:00:00"),
		ti(t, chicago, "2021-05-20 13:00:00", "2021-05-20 15:00:00"),
		ti(t, chicago, "2021-05-21 09:00:00", "2021-05-21 15:00:00"),
		ti(t, chicago, "2021-05-22 07:00:00", "2021-05-22 15:00:00"),
	})

	assert.Equal(t, 960, Intersect(aa, ab).Duration())
}

func TestCompacted(t *testing.T) {
	av := New("aa", chicago)
	av.AddIntervals([]interval.TimeInterval{
		ti(t, chicago, "2021-05-13 08:00:00", "2021-05-13 11:00:00"),
		ti(t, chicago, "2021-05-13 11:00:00", "2021-05-13 15:00:00"),
		ti(t, chicago, "2021-05-13 15:00:00", "2021-05-13 17:00:00"),
		ti(t, chicago, "2021-05-20 09:00:00", "2021-05-20 12:00:00"),
		ti(t, chicago, "2021-05-20 12:00:00", "2021-05-20 15:00:00"),
		ti(t, chicago, "2021-05-20 15:00:00", "2021-05-20 18:00:00"),
	})

	compact := Compacted(av)
	tis := compact.Intervals()
	require.Len(t, tis, 2)
	assert.Equal(t, 9*60, tis[0].Duration())
	assert.Equal(t, 9*60, tis[1].Duration())

	again := Compacted(compact).Intervals()
	assert.Equal(t, len(tis), len(again))
	for i := range tis {
		assert.True(t, tis[i].Start.Equal(again[i].Start))
		assert.True(t, tis[i].End.Equal(again[i].End))
	}
	// Input untouched.
	assert.Equal(t, 6, av.Len())
}

func TestFromIndex(t *testing.T) {
	av := getAA(t)

	assert.Equal(t, 4, FromIndex(av, 2, -1).Len())
	assert.Equal(t, 2, FromIndex(av, 1, 3).Len())
	assert.True(t, FromIndex(av, 5, 2).IsEmpty())
}

func TestIdentity(t *testing.T) {
	av := getAA(t)

	assert.Same(t, av, Identity(av, 6*420, 60, nil))
	assert.Nil(t, Identity(av, 6*420+1, 60, nil))
}

func TestRandom(t *testing.T) {
	av := getAA(t)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 20; i++ {
		got := Random(av, 3*360, 120, rng)
		require.NotNil(t, got)
		assert.GreaterOrEqual(t, got.SegmentDuration(120), 3*360)
		assert.True(t, got.End().Equal(av.End()))
	}
	assert.Nil(t, Random(av, 10000, 120, rng))
}

func TestDaysOfWeekSingleDay(t *testing.T) {
	const duration = 6 * 3 * 60
	for seed := int64(1); seed <= 5; seed++ {
		got := DaysOfWeek(getAA(t), duration, 120, rand.New(rand.NewSource(seed)))
		require.NotNil(t, got)

		tis := got.Intervals()
		require.Len(t, tis, 3)
		assert.GreaterOrEqual(t, got.Duration(), duration)
		assert.Equal(t, tis[0].Start.Weekday(), tis[1].Start.Weekday())
		assert.Equal(t, tis[1].Start.Weekday(), tis[2].Start.Weekday())
	}
}

func TestDaysOfWeekBothDays(t *testing.T) {
	const duration = 10 * 3 * 60
	got := DaysOfWeek(getAA(t), duration, 120, rand.New(rand.NewSource(3)))
	require.NotNil(t, got)
	assert.Equal(t, 6, got.Len())
	assert.GreaterOrEqual(t, got.Duration(), duration)

	assert.Nil(t, DaysOfWeek(getAA(t), 100*60, 120, rand.New(rand.NewSource(3))))
}

func TestDaysOfWeekPrefersLongerDays(t *testing.T) {
	av := New("aa", chicago)
	av.AddIntervals([]interval.TimeInterval{
		ti(t, chicago, "2021-05-17 08:00:00", "2021-05-17 10:00:00"), // Monday
		ti(t, chicago, "2021-05-19 08:00:00", "2021-05-19 16:00:00"), // Wednesday
	})

	got := DaysOfWeek(av, 240, 60, rand.New(rand.NewSource(1)))
	require.NotNil(t, got)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, time.Wednesday, got.Start().Weekday())
}

func TestCommonTimeSlots(t *testing.T) {
	const slot, tick = 120, 15

	dow := DaysOfWeek(getAA(t), 3*slot, slot, rand.New(rand.NewSource(11)))
	res := CommonTimeSlots(dow, 3*slot, slot, tick)
	require.Len(t, res, 1)
	assert.Equal(t, 3, res[0].Len())

	dow = DaysOfWeek(getAA(t), 6*slot, slot, rand.New(rand.NewSource(11)))
	res = CommonTimeSlots(dow, 6*slot, slot, tick)
	require.Len(t, res, 2)
	assert.Equal(t, 3, res[0].Len())
	assert.Equal(t, 3, res[1].Len())
	assert.Zero(t, Intersect(res[0], res[1]).Duration())
}

func TestCommonTimeSlotsWeekScenario(t *testing.T) {
	av := New("week", "Europe/Paris")
	av.AddIntervals([]interval.TimeInterval{
		ti(t, "Europe/Paris", "2021-09-06 09:00:00", "2021-09-06 13:00:00"), // Monday
		ti(t, "Europe/Paris", "2021-09-08 10:00:00", "2021-09-08 14:00:00"), // Wednesday
		ti(t, "Europe/Paris", "2021-09-10 11:00:00", "2021-09-10 15:00:00"), // Friday
	})

	res := CommonTimeSlots(av, 360, 120, 60)
	require.Len(t, res, 1)
	assert.Equal(t, "11:00", res[0].Name())
	assert.Equal(t, 3, res[0].Len())

	res = CommonTimeSlots(av, 600, 120, 60)
	require.Len(t, res, 3)
	names := []string{res[0].Name(), res[1].Name(), res[2].Name()}
	assert.Equal(t, []string{"11:00", "09:00", "13:00"}, names)

	total := 0
	for i, g := range res {
		total += g.Duration()
		for _, prev := range res[:i] {
			assert.Zero(t, Intersect(g, prev).Duration())
		}
	}
	assert.GreaterOrEqual(t, total, 600)

	assert.Empty(t, CommonTimeSlots(av, 5000, 120, 60))
}
