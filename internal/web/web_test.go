package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tcsched/internal/config"
	appLog "tcsched/internal/log"
	"tcsched/internal/metrics"
	"tcsched/internal/teacher"
)

func TestMain(m *testing.M) {
	appLog.Use(zap.NewNop())
	os.Exit(m.Run())
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"Message"`
	Result  json.RawMessage `json:"Result"`
	Details map[string]any  `json:"Details"`
}

func newTestServer(t *testing.T, apiKey string) (*Server, *metrics.Metrics) {
	t.Helper()
	dir, err := teacher.NewMockDirectory("../teacher/testdata/mock/*.json", "Europe/Paris")
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.APIKey = apiKey
	cfg.Scheduler.Seed = 7
	cfg.Invite.Organizer = "sched@example.edu"
	m := metrics.New()
	return NewServer(cfg, teacher.NewCache(dir, 0), m), m
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthAndPing(t *testing.T) {
	s, _ := newTestServer(t, "secret")
	h := s.Handler()

	rec, _ := do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))

	rec, out := do(t, h, http.MethodPost, "/api/v1/ping", "{}", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, out.Success)
	assert.Equal(t, msgUnauthorized, out.Message)

	_, out = do(t, h, http.MethodPost, "/api/v1/ping", "{}", map[string]string{headerAPIKey: "wrong!"})
	assert.False(t, out.Success)

	rec, out = do(t, h, http.MethodPost, "/api/v1/ping", "{}", map[string]string{headerAPIKey: "secret", headerRequestID: "req-1"})
	assert.True(t, out.Success)
	assert.Equal(t, msgUp, out.Message)
	assert.Equal(t, "req-1", rec.Header().Get(headerRequestID))

	rec, _ = do(t, h, http.MethodGet, "/api/v1/ping", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

const historyCourse = `{
  "ssku": "HIST",
  "timeZone": "Europe/Paris",
  "advancedDetails": [{"activity": "Lecture", "periods": 2, "duration": 360}],
  "dates": [{"startTime": "2021-09-01T08:00:00", "endTime": "2021-09-30T18:00:00"}],
  "teacherIds": [12, "13", 99]
}`

func TestScheduleEndpoint(t *testing.T) {
	s, m := newTestServer(t, "")
	h := s.Handler()

	_, out := do(t, h, http.MethodPost, "/api/v1/schedule", historyCourse, nil)
	require.True(t, out.Success, out.Message)
	assert.Equal(t, msgScheduleFound, out.Message)

	var result []struct {
		TeacherID   json.RawMessage `json:"teacherId"`
		HasCalendar bool            `json:"hasCalendar"`
		Available   bool            `json:"available"`
		Schedules   []struct {
			Dates []map[string]string `json:"dates"`
			Pairs []map[string]string `json:"invites"`
		} `json:"schedules"`
	}
	require.NoError(t, json.Unmarshal(out.Result, &result))
	require.Len(t, result, 2)

	ada := result[0]
	assert.Equal(t, "12", string(ada.TeacherID))
	assert.True(t, ada.Available)
	assert.True(t, ada.HasCalendar)
	require.Len(t, ada.Schedules, 1)

	dates := ada.Schedules[0].Dates
	require.Len(t, dates, 3)
	assert.Equal(t, "Lecture", dates[0]["activity"])
	assert.Equal(t, "2021-09-06T09:00:00", dates[0]["startTime"])
	assert.Equal(t, "2021-09-06T11:00:00", dates[0]["endTime"])
	assert.Equal(t, "2021-09-10T09:00:00", dates[2]["startTime"])

	require.Len(t, ada.Schedules[0].Pairs, 1)
	pair := ada.Schedules[0].Pairs[0]
	assert.Contains(t, pair["request"], "METHOD:REQUEST")
	assert.Contains(t, pair["request"], "BYDAY=MO,WE,FR")
	assert.Contains(t, pair["request"], ":sched:ada")
	assert.Contains(t, pair["cancel"], "METHOD:CANCEL")

	grace := result[1]
	assert.Equal(t, "13", string(grace.TeacherID))
	assert.False(t, grace.Available)
	assert.True(t, grace.HasCalendar)
	assert.Empty(t, grace.Schedules)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `schedule_requests_total{outcome="found"} 1`)
	assert.Contains(t, string(body), `schedule_candidates_total{kind="regular"} 1`)
	assert.Contains(t, string(body), `http_requests_total{method="POST",path="POST /api/v1/schedule",status="200"} 1`)
	assert.NotNil(t, m)
}

func TestScheduleWithoutAvailableTeacher(t *testing.T) {
	s, _ := newTestServer(t, "")
	body := strings.Replace(historyCourse, `[12, "13", 99]`, `[14]`, 1)

	_, out := do(t, s.Handler(), http.MethodPost, "/api/v1/schedule", body, nil)
	assert.False(t, out.Success)
	assert.Equal(t, msgNoSchedule, out.Message)

	var result []map[string]any
	require.NoError(t, json.Unmarshal(out.Result, &result))
	require.Len(t, result, 1)
	assert.Equal(t, false, result[0]["available"])
	assert.Equal(t, false, result[0]["hasCalendar"])
	assert.Equal(t, []any{}, result[0]["schedules"])
}

func TestScheduleBadRequests(t *testing.T) {
	s, _ := newTestServer(t, "")
	h := s.Handler()

	for name, body := range map[string]string{
		"malformed":   `{`,
		"no teachers": `{"advancedDetails": [{"activity": "Lecture"}]}`,
		"no details":  `{"teacherIds": [12], "dates": []}`,
		"bad date":    `{"teacherIds": [12], "advancedDetails": [{"activity": "Lecture"}], "dates": [{"startTime": "soon", "endTime": "later"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec, out := do(t, h, http.MethodPost, "/api/v1/schedule", body, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.False(t, out.Success)
			assert.Equal(t, msgBadRequest, out.Message)
			assert.NotEmpty(t, out.Details["code"])
		})
	}
}

func TestCalendarEndpoint(t *testing.T) {
	s, _ := newTestServer(t, "")
	body := `{"teacherIds": [12, 99], "startTime": "2021-09-06T10:00:00", "endTime": "2021-09-08T11:00:00", "timeZone": "Europe/Paris"}`

	_, out := do(t, s.Handler(), http.MethodPost, "/api/v1/calendar", body, nil)
	require.True(t, out.Success)
	assert.Equal(t, msgCalendar, out.Message)

	var result []struct {
		TeacherID int `json:"teacherId"`
		Available struct {
			Dates   []map[string]string `json:"dates"`
			Invites []string            `json:"invites"`
		} `json:"available"`
	}
	require.NoError(t, json.Unmarshal(out.Result, &result))
	require.Len(t, result, 2)

	ada := result[0]
	assert.Equal(t, 12, ada.TeacherID)
	require.Len(t, ada.Available.Dates, 2)
	assert.Equal(t, "2021-09-06T10:00:00", ada.Available.Dates[0]["startTime"])
	assert.Equal(t, "2021-09-08T11:00:00", ada.Available.Dates[1]["endTime"])
	require.Len(t, ada.Available.Invites, 2)
	assert.Contains(t, ada.Available.Invites[0], "BEGIN:VCALENDAR")
	assert.NotContains(t, ada.Available.Invites[0], "**tentative**")

	assert.Equal(t, 99, result[1].TeacherID)
	assert.Empty(t, result[1].Available.Dates)
	assert.Empty(t, result[1].Available.Invites)
}

func TestCalendarBadRequests(t *testing.T) {
	s, _ := newTestServer(t, "")
	h := s.Handler()

	for name, body := range map[string]string{
		"no teachers": `{"startTime": "2021-09-06T10:00:00"}`,
		"reversed":    `{"teacherIds": [12], "startTime": "2021-09-08T10:00:00", "endTime": "2021-09-06T10:00:00"}`,
		"bad start":   `{"teacherIds": [12], "startTime": "yesterday"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, out := do(t, h, http.MethodPost, "/api/v1/calendar", body, nil)
			assert.False(t, out.Success)
			assert.Equal(t, msgBadRequest, out.Message)
		})
	}
}

func TestPanicIsUnknownError(t *testing.T) {
	cfg := config.DefaultConfig()
	s := NewServer(cfg, nil, nil)
	h := s.Handler()

	rec, out := do(t, h, http.MethodPost, "/api/v1/calendar", `{"teacherIds": [1], "startTime": "2021-09-06T10:00:00", "endTime": "2021-09-07T10:00:00"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, out.Success)
	assert.Equal(t, msgUnknown, out.Message)
	assert.Equal(t, "internal", out.Details["type"])

	rec, _ = do(t, h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
