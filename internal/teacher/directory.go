package teacher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"tcsched/internal/apperr"
	"tcsched/internal/config"
	"tcsched/internal/ics"
	"tcsched/internal/interval"
	appLog "tcsched/internal/log"
	"tcsched/internal/model"
)

// Directory resolves teachers by id.
type Directory interface {
	Get(ctx context.Context, id string) (*Teacher, error)
	All(ctx context.Context) ([]*Teacher, error)
	// Reload rereads the underlying source.
	Reload(ctx context.Context) error
}

// ErrNotFound is returned for unknown teacher ids.
var ErrNotFound = apperr.Clone(apperr.ErrNotFound, "teacher not found")

type registry struct {
	mu    sync.RWMutex
	byID  map[string]*Teacher
	order []string
}

func (r *registry) get(id string) (*Teacher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, apperr.Wrap(fmt.Errorf("id %q", id), ErrNotFound.Code, ErrNotFound.Status, ErrNotFound.Message)
	}
	return t, nil
}

func (r *registry) all() []*Teacher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Teacher, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *registry) replace(ts []*Teacher) {
	byID := make(map[string]*Teacher, len(ts))
	order := make([]string, 0, len(ts))
	for _, t := range ts {
		if _, dup := byID[t.ID]; dup {
			appLog.Warn("duplicate teacher id ignored", "teacher", t.ID)
			continue
		}
		byID[t.ID] = t
		order = append(order, t.ID)
	}
	r.mu.Lock()
	r.byID, r.order = byID, order
	r.mu.Unlock()
}

// MockDirectory reads teacher records with static availability from JSON
// files. A file holds one record or an array of records.
type MockDirectory struct {
	registry
	glob     string
	timezone string
}

// NewMockDirectory loads the files matching glob. tz is used for records
// without a zone.
func NewMockDirectory(glob, tz string) (*MockDirectory, error) {
	d := &MockDirectory{glob: glob, timezone: tz}
	if err := d.Reload(context.Background()); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *MockDirectory) Get(_ context.Context, id string) (*Teacher, error) { return d.get(id) }

func (d *MockDirectory) All(_ context.Context) ([]*Teacher, error) { return d.all(), nil }

func (d *MockDirectory) Reload(_ context.Context) error {
	files, err := filepath.Glob(d.glob)
	if err != nil {
		return err
	}
	sort.Strings(files)

	var teachers []*Teacher
	for _, f := range files {
		records, err := readRecords(f)
		if err != nil {
			appLog.Error("teacher file skipped", err, "file", f)
			continue
		}
		for _, rec := range records {
			t, err := fromRecord(rec, d.timezone)
			if err != nil {
				appLog.Error("teacher record skipped", err, "file", f, "teacher", rec.ID.String())
				continue
			}
			teachers = append(teachers, t)
		}
	}
	d.replace(teachers)
	appLog.Info("mock teachers loaded", "glob", d.glob, "files", len(files), "teachers", len(teachers))
	return nil
}

func readRecords(path string) ([]model.TeacherRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var recs []model.TeacherRecord
		err = json.Unmarshal(data, &recs)
		return recs, err
	}
	var rec model.TeacherRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return []model.TeacherRecord{rec}, nil
}

func fromRecord(rec model.TeacherRecord, defaultTZ string) (*Teacher, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("record without Id")
	}
	tz := rec.TimeZone
	if tz == "" {
		tz = defaultTZ
	}
	loc := interval.LoadLocation(tz)

	tis := make([]interval.TimeInterval, 0, len(rec.Availability))
	for i, span := range rec.Availability {
		ti, err := interval.ParseInterval(span.StartTime, span.EndTime, loc, interval.DefaultLabel, interval.DefaultValue)
		if err != nil {
			return nil, fmt.Errorf("availability[%d]: %w", i, err)
		}
		tis = append(tis, ti)
	}

	email := rec.Email
	if email == "" {
		email = DefaultEmail(rec.FirstName, rec.LastName)
	}
	return NewStatic(rec.ID.String(), email, rec.FirstName, rec.LastName, loc.String(), tis), nil
}

// DefaultEmail builds first.last@some.com.
func DefaultEmail(first, last string) string {
	return strings.ToLower(strings.ReplaceAll(first+"."+last, " ", "")) + "@some.com"
}

// CalendarDirectory builds teachers from configured ICS feeds.
type CalendarDirectory struct {
	registry
	fetcher  *ics.Fetcher
	entries  []config.TeacherEntry
	timezone string
}

// NewCalendarDirectory creates teachers for entries, fetching through f.
func NewCalendarDirectory(entries []config.TeacherEntry, f *ics.Fetcher, tz string) *CalendarDirectory {
	d := &CalendarDirectory{fetcher: f, entries: entries, timezone: tz}
	d.build()
	return d
}

func (d *CalendarDirectory) build() {
	teachers := make([]*Teacher, 0, len(d.entries))
	for _, e := range d.entries {
		tz := e.Timezone
		if tz == "" {
			tz = d.timezone
		}
		email := e.Email
		if email == "" {
			email = DefaultEmail(e.FirstName, e.LastName)
		}
		id := strconv.Itoa(e.ID)
		teachers = append(teachers, NewCalendar(id, email, e.FirstName, e.LastName, interval.LoadLocation(tz).String(), d.fetcher, e.CalendarURL))
	}
	d.replace(teachers)
}

func (d *CalendarDirectory) Get(_ context.Context, id string) (*Teacher, error) { return d.get(id) }

func (d *CalendarDirectory) All(_ context.Context) ([]*Teacher, error) { return d.all(), nil }

// Reload refetches every feed into the disk cache and drops parsed events.
func (d *CalendarDirectory) Reload(ctx context.Context) error {
	sources := make([]ics.Source, 0, len(d.entries))
	for _, t := range d.all() {
		sources = append(sources, t.feed)
		t.Invalidate()
	}
	results, errs := d.fetcher.FetchAll(ctx, sources)
	appLog.Info("teacher feeds refreshed", "ok", len(results), "failed", len(errs))
	if len(results) == 0 && len(errs) > 0 {
		return errs[0]
	}
	return nil
}
