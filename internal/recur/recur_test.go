package recur

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcsched/internal/interval"
)

var chicago = interval.LoadLocation("America/Chicago")

type entry struct {
	activity, start, end string
}

func intervals(t *testing.T, entries []entry) []interval.TimeInterval {
	t.Helper()
	out := make([]interval.TimeInterval, 0, len(entries))
	for _, e := range entries {
		label := "activity"
		if e.activity == "" {
			label = ""
		}
		ti, err := interval.ParseInterval(e.start, e.end, chicago, label, e.activity)
		require.NoError(t, err)
		out = append(out, ti)
	}
	interval.Sort(out)
	return out
}

func assertRoundTrip(t *testing.T, tis []interval.TimeInterval, rules []Rule) {
	t.Helper()
	var expanded []interval.TimeInterval
	for _, r := range rules {
		occ, err := r.Occurrences()
		require.NoError(t, err)
		expanded = append(expanded, occ...)
	}
	interval.Sort(expanded)

	require.Len(t, expanded, len(tis))
	assert.Equal(t, interval.TotalDuration(tis), interval.TotalDuration(expanded))
	for i := range tis {
		assert.True(t, tis[i].Start.Equal(expanded[i].Start), "start %d: %s vs %s", i, tis[i].Start, expanded[i].Start)
		assert.True(t, tis[i].End.Equal(expanded[i].End), "end %d", i)
	}
}

func TestCompressWeeklyPlusSingle(t *testing.T) {
	tis := intervals(t, []entry{
		{"", "2021-07-05T10:00:00", "2021-07-05T13:00:00"},
		{"", "2021-07-12T10:00:00", "2021-07-12T13:00:00"},
		{"", "2021-07-19T10:00:00", "2021-07-19T13:00:00"},
		{"", "2021-07-20T10:00:00", "2021-07-20T12:00:00"},
	})

	rules, err := Compress(tis, "Office hours")
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, []time.Weekday{time.Monday}, rules[0].Weekdays)
	assert.Equal(t, 3, rules[0].Option.Count)
	assert.Equal(t, "Office hours", rules[0].Title)
	assert.Equal(t, 1, rules[1].Option.Count)
	assertRoundTrip(t, tis, rules)
}

func TestCompressMergesWeekdays(t *testing.T) {
	tis := intervals(t, []entry{
		{"Lecture", "2021-09-06T13:00:00", "2021-09-06T15:00:00"},
		{"Tutorials", "2021-09-08T14:00:00", "2021-09-08T16:00:00"},
		{"Lecture", "2021-09-10T14:00:00", "2021-09-10T16:00:00"},
		{"Lecture", "2021-09-13T13:00:00", "2021-09-13T15:00:00"},
		{"Tutorials", "2021-09-15T14:00:00", "2021-09-15T16:00:00"},
		{"Lecture", "2021-09-17T14:00:00", "2021-09-17T16:00:00"},
		{"Lecture", "2021-09-20T13:00:00", "2021-09-20T15:00:00"},
		{"Tutorials", "2021-09-22T14:00:00", "2021-09-22T16:00:00"},
		{"Lecture", "2021-09-24T14:00:00", "2021-09-24T16:00:00"},
		{"Lecture", "2021-09-27T13:00:00", "2021-09-27T15:00:00"},
		{"Tutorials", "2021-09-29T14:00:00", "2021-09-29T16:00:00"},
		{"Exam", "2021-10-01T10:00:00", "2021-10-01T12:00:00"},
		{"Lecture", "2021-10-01T14:00:00", "2021-10-01T16:00:00"},
	})

	rules, err := Compress(tis, "fallback")
	require.NoError(t, err)
	require.Len(t, rules, 3)

	byTitle := map[string]Rule{}
	for _, r := range rules {
		byTitle[r.Title] = r
	}
	require.Contains(t, byTitle, "Exam")

	lecture := byTitle["Lecture"]
	assert.Equal(t, []time.Weekday{time.Monday}, lecture.Weekdays)

	var wedFri Rule
	for _, r := range rules {
		if len(r.Weekdays) == 2 {
			wedFri = r
		}
	}
	require.Len(t, wedFri.Intervals, 8)
	assert.Equal(t, []time.Weekday{time.Wednesday, time.Friday}, wedFri.Weekdays)
	assert.Contains(t, wedFri.RRule(), "FREQ=WEEKLY")
	assert.Contains(t, wedFri.RRule(), "BYDAY=WE,FR")

	assertRoundTrip(t, tis, rules)
}

func TestCompressUntilWithExDates(t *testing.T) {
	tis := intervals(t, []entry{
		{"Lecture", "2021-09-06T13:00:00", "2021-09-06T15:00:00"},
		{"Lecture", "2021-09-13T13:00:00", "2021-09-13T15:00:00"},
		{"Lecture", "2021-09-27T13:00:00", "2021-09-27T15:00:00"},
	})

	rules, err := Compress(tis, "")
	require.NoError(t, err)
	require.Len(t, rules, 1)

	r := rules[0]
	assert.Zero(t, r.Option.Count)
	assert.True(t, r.Option.Until.Equal(tis[2].End))
	require.Len(t, r.ExDates, 1)
	assert.Equal(t, 20, r.ExDates[0].Day())

	rr := r.RRule()
	assert.Contains(t, rr, "UNTIL=20210927T200000Z")
	assert.False(t, strings.Contains(rr, "COUNT"))

	assertRoundTrip(t, tis, rules)
}

func TestCompressEmpty(t *testing.T) {
	rules, err := Compress(nil, "x")
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestCommonTitle(t *testing.T) {
	tis := intervals(t, []entry{
		{"Lab", "2021-09-06T13:00:00", "2021-09-06T15:00:00"},
		{"Lecture", "2021-09-07T13:00:00", "2021-09-07T15:00:00"},
		{"", "2021-09-08T13:00:00", "2021-09-08T15:00:00"},
		{"", "2021-09-09T13:00:00", "2021-09-09T15:00:00"},
	})

	assert.Equal(t, "Lab", CommonTitle(tis))
	assert.Equal(t, "", CommonTitle(tis[2:]))
}
