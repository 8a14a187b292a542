package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atracker/internal/activity"
	"atracker/internal/aggregate"
	"atracker/internal/bundle"
	"atracker/internal/health"
	"atracker/internal/logging"
	"atracker/internal/metrics"
	"atracker/internal/pattern"
	"atracker/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

type fixture struct {
	srv     *Server
	store   *store.Store
	current *activity.Current
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	st, err := store.OpenWithOptions(filepath.Join(t.TempDir(), "test.db"), store.Options{Location: time.UTC})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	seg := activity.NewSegment("dev1", activity.Identity{App: "firefox", Title: "Docs", PID: 42}, testNow.Add(-90*time.Second))
	current := activity.Fixed(&seg)
	cache := pattern.NewCache()
	m := metrics.New(nil)

	engine := aggregate.New(st, current,
		aggregate.WithClock(func() time.Time { return testNow }),
		aggregate.WithLocation(time.UTC),
		aggregate.WithMetrics(m),
		aggregate.WithPatternCache(cache),
	)

	checker := health.NewChecker()
	checker.RegisterFunc("database", true, health.DatabaseCheck(st.Ping))
	checker.SetReady(true)

	logger, err := logging.New(&logging.Config{Level: logging.LevelError, Format: logging.FormatText, Writer: &bytes.Buffer{}, Component: "test"})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.PushInterval = time.Hour
	for _, fn := range mutate {
		fn(&cfg)
	}

	srv := New(cfg, Deps{
		Store:    st,
		Engine:   engine,
		Current:  current,
		Health:   checker,
		Metrics:  m,
		Patterns: cache,
		Logger:   logger,
		DeviceID: "abc123def456",
	})
	return &fixture{srv: srv, store: st, current: current}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (f *fixture) insert(t *testing.T, app, title string, start time.Time, secs int) {
	t.Helper()
	seg := activity.NewSegment("dev1", activity.Identity{App: app, Title: title}, start)
	ev := seg.Close(start.Add(time.Duration(secs) * time.Second))
	require.NoError(t, f.store.InsertEvent(context.Background(), &ev))
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	resp := decode[StatusResponse](t, w)
	assert.Equal(t, "abc123def456", resp.DeviceID)
	assert.Equal(t, f.store.Path(), resp.DBPath)
	require.NotNil(t, resp.Current)
	assert.Equal(t, "firefox", resp.Current.App)
	assert.False(t, resp.Paused)
	assert.Equal(t, health.StatusHealthy, resp.Status)
	assert.Contains(t, resp.Components, "database")
}

func TestRequestIDEchoed(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/current", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
}

func TestCurrent(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/current", nil)
	require.Equal(t, http.StatusOK, w.Code)

	v := decode[CurrentView](t, w)
	require.NotNil(t, v.Segment)
	assert.Equal(t, "Docs", v.Segment.Title)
	assert.Equal(t, 90.0, v.ElapsedSecs)
	assert.Equal(t, "1m", v.ElapsedFormatted)
	assert.Equal(t, "Browser", v.Category)
	assert.False(t, v.Paused)
}

func TestCurrentWithoutSegment(t *testing.T) {
	f := newFixture(t)
	f.current.Publish(nil)
	w := f.do(t, http.MethodGet, "/api/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[CurrentView](t, w)
	assert.Nil(t, v.Segment)
	assert.Zero(t, v.ElapsedSecs)
}

func TestViewsRejectBadDate(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/events", "/api/summary", "/api/timeline", "/api/focus", "/api/categories/totals"} {
		path := path
		t.Run(path, func(t *testing.T) {
			w := f.do(t, http.MethodGet, path+"?date=2026-13-40", nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "INVALID_DATE", decode[ErrorResponse](t, w).Code)

			w = f.do(t, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestSummaryGroups(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "code", "main.go", testNow.Add(-2*time.Hour), 600)
	f.insert(t, "code", "util.go", testNow.Add(-time.Hour), 300)

	w := f.do(t, http.MethodGet, "/api/summary?group=app", nil)
	require.Equal(t, http.StatusOK, w.Code)
	groups := decode[[]aggregate.Group](t, w)
	require.Len(t, groups, 2)
	assert.Equal(t, "code", groups[0].App)
	assert.Equal(t, 900.0, groups[0].TotalSecs)
	assert.Equal(t, "firefox", groups[1].App)
	assert.True(t, groups[1].Live)

	w = f.do(t, http.MethodGet, "/api/summary?date=2026-03-02", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]aggregate.Group](t, w), 3)

	w = f.do(t, http.MethodGet, "/api/summary?group=window", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventsAndTimeline(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "code", "main.go", testNow.Add(-time.Hour), 600)

	w := f.do(t, http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	events := decode[[]aggregate.EnrichedEvent](t, w)
	require.Len(t, events, 1)
	assert.Equal(t, "Editor", events[0].Category)

	w = f.do(t, http.MethodGet, "/api/timeline", nil)
	require.Equal(t, http.StatusOK, w.Code)
	blocks := decode[[]aggregate.Block](t, w)
	require.Len(t, blocks, 2)
	assert.True(t, blocks[1].Live)

	w = f.do(t, http.MethodGet, "/api/focus", nil)
	require.Equal(t, http.StatusOK, w.Code)
	focus := decode[aggregate.FocusReport](t, w)
	assert.Equal(t, 1, focus.Switches)
}

func TestHistoryDays(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/history?days=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]aggregate.DayHistory](t, w), 3)

	for _, days := range []string{"0", "-1", "x", "400"} {
		w = f.do(t, http.MethodGet, "/api/history?days="+days, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, days)
	}
}

func TestCategoryCRUD(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/categories", map[string]any{
		"name": "Reading", "title_pattern": "arxiv", "color": "#112233", "daily_goal_secs": 1800,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[activity.Category](t, w)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, 7, created.Position)

	cases := []struct {
		name string
		body any
		want int
	}{
		{"duplicate name", map[string]any{"name": "Reading", "app_pattern": "x"}, http.StatusBadRequest},
		{"bad pattern", map[string]any{"name": "Broken", "app_pattern": "("}, http.StatusBadRequest},
		{"missing name", map[string]any{"app_pattern": "x"}, http.StatusBadRequest},
		{"no pattern", map[string]any{"name": "Empty"}, http.StatusBadRequest},
		{"bad color", map[string]any{"name": "Color", "app_pattern": "x", "color": "blue"}, http.StatusBadRequest},
		{"negative goal", map[string]any{"name": "Goal", "app_pattern": "x", "daily_goal_secs": -1}, http.StatusBadRequest},
		{"malformed json", `{"name":`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/categories", tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}

	w = f.do(t, http.MethodPut, "/api/categories/"+created.ID, map[string]any{
		"name": "Papers", "title_pattern": "arxiv|pdf",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[activity.Category](t, w)
	assert.Equal(t, "Papers", updated.Name)
	assert.Equal(t, 7, updated.Position)

	w = f.do(t, http.MethodPut, "/api/categories/missing", map[string]any{"name": "X", "app_pattern": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/categories/reorder", map[string]any{"ids": []string{created.ID}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cats := decode[[]activity.Category](t, w)
	require.Len(t, cats, 8)
	assert.Equal(t, created.ID, cats[0].ID)

	w = f.do(t, http.MethodPost, "/api/categories/reorder", map[string]any{"ids": []string{"nope"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(t, http.MethodPost, "/api/categories/reorder", map[string]any{"ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodDelete, "/api/categories/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodDelete, "/api/categories/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/categories", nil)
	assert.Len(t, decode[[]activity.Category](t, w), 7)
}

func TestFilterCRUD(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/filters", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))

	w = f.do(t, http.MethodPost, "/api/filters", map[string]any{"rule_type": "redact", "app_pattern": "keepassxc"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rule := decode[activity.FilterRule](t, w)

	w = f.do(t, http.MethodPost, "/api/filters", map[string]any{"rule_type": "drop", "app_pattern": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(t, http.MethodPost, "/api/filters", map[string]any{"rule_type": "ignore", "title_pattern": "[a-"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, "/api/filters/"+rule.ID, map[string]any{"rule_type": "ignore", "title_pattern": "Private"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, activity.RuleIgnore, decode[activity.FilterRule](t, w).Type)

	w = f.do(t, http.MethodPost, "/api/filters/reorder", map[string]any{"ids": []string{rule.ID}})
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/api/filters/"+rule.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodPut, "/api/filters/"+rule.ID, map[string]any{"rule_type": "ignore", "app_pattern": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSettings(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[SettingsResponse](t, w)
	assert.Equal(t, 5.0, got.PollIntervalSecs)
	assert.Equal(t, 120.0, got.IdleThresholdSecs)

	w = f.do(t, http.MethodPut, "/api/settings", map[string]any{"poll_interval_secs": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got = decode[SettingsResponse](t, w)
	assert.Equal(t, 10.0, got.PollIntervalSecs)
	assert.Equal(t, 120.0, got.IdleThresholdSecs)

	kv, err := f.store.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10", kv[activity.SettingPollInterval])

	for _, body := range []map[string]any{
		{"poll_interval_secs": 0.5},
		{"poll_interval_secs": 301},
		{"idle_threshold_secs": 5},
		{"idle_threshold_secs": 90000},
	} {
		w = f.do(t, http.MethodPut, "/api/settings", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/pause", map[string]any{"minutes": 30})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	state := decode[activity.PauseState](t, w)
	assert.True(t, state.Paused)
	assert.Equal(t, testNow.Add(30*time.Minute), state.Until.UTC())

	w = f.do(t, http.MethodGet, "/api/status", nil)
	status := decode[StatusResponse](t, w)
	assert.True(t, status.Paused)
	require.NotNil(t, status.PausedUntil)

	w = f.do(t, http.MethodPost, "/api/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodGet, "/api/current", nil)
	assert.False(t, decode[CurrentView](t, w).Paused)

	w = f.do(t, http.MethodPost, "/api/pause", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[activity.PauseState](t, w).Indefinite)

	w = f.do(t, http.MethodPost, "/api/pause", map[string]any{"minutes": -5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "code", "main.go", testNow.Add(-time.Hour), 600)
	f.insert(t, "code", "old.go", testNow.AddDate(0, 0, -3), 60)

	w := f.do(t, http.MethodGet, "/api/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "atracker-2026-03-02-2026-03-02.csv")
	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, aggregate.ExportHeader, records[0])

	w = f.do(t, http.MethodGet, "/api/export?start=2026-02-27&end=2026-03-02&format=json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Len(t, lines, 2)

	w = f.do(t, http.MethodGet, "/api/export?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(t, http.MethodGet, "/api/export?start=2026-03-02&end=2026-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(t, http.MethodGet, "/api/export?start=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImport(t *testing.T) {
	f := newFixture(t)

	doc := bundle.Bundle{
		Version:    bundle.Version,
		ExportedAt: testNow,
		Categories: []activity.Category{{Name: "Work", AppPattern: "code", Color: "#000000"}},
		Filters:    []activity.FilterRule{{Type: activity.RuleIgnore, AppPattern: "steam"}},
	}
	w := f.do(t, http.MethodPost, "/api/import", doc)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[bundle.Result](t, w)
	assert.Equal(t, 1, res.Categories)
	assert.Equal(t, 1, res.Filters)

	w = f.do(t, http.MethodGet, "/api/categories", nil)
	cats := decode[[]activity.Category](t, w)
	require.Len(t, cats, 1)
	assert.Equal(t, "Work", cats[0].Name)

	w = f.do(t, http.MethodPost, "/api/import", `{"version": 9, "categories": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(t, http.MethodPost, "/api/import", `{"version": 1, "categories": [{"name": "X", "app_pattern": "("}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	big := `{"version": 1, "categories": [], "device_id": "` + strings.Repeat("x", MaxImportBytes) + `"}`
	w = f.do(t, http.MethodPost, "/api/import", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", nil).Code)

	f.do(t, http.MethodGet, "/api/summary", nil)
	w := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "atracker_query_duration_seconds")

	off := newFixture(t, func(c *Config) { c.MetricsEnabled = false })
	assert.Equal(t, http.StatusNotFound, off.do(t, http.MethodGet, "/metrics", nil).Code)
}

func TestWebSocketPushesChanges(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	read := func() WSMessage {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	first := read()
	assert.Equal(t, "current", first.Type)
	require.NotNil(t, first.Segment)
	assert.Equal(t, "firefox", first.Segment.App)
	assert.False(t, first.Paused)

	seg := activity.NewSegment("dev1", activity.Identity{App: "code", Title: "main.go"}, testNow)
	f.current.Publish(&seg)
	second := read()
	require.NotNil(t, second.Segment)
	assert.Equal(t, "code", second.Segment.App)
	assert.Equal(t, "Editor", second.Category)

	w := f.do(t, http.MethodPost, "/api/pause", map[string]any{"minutes": 10})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, read().Paused)
}

func TestCheckOrigin(t *testing.T) {
	cases := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "127.0.0.1:8932", true},
		{"http://localhost:3000", "127.0.0.1:8932", true},
		{"http://127.0.0.1:5173", "127.0.0.1:8932", true},
		{"http://[::1]:5173", "127.0.0.1:8932", true},
		{"http://box.lan:8932", "box.lan:8932", true},
		{"https://evil.example", "127.0.0.1:8932", false},
		{"::not a url", "127.0.0.1:8932", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
		req.Host = tc.host
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		assert.Equal(t, tc.want, checkOrigin(req), tc.origin)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx, ln, time.Second) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestClient(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "code", "main.go", testNow.Add(-time.Hour), 600)
	ts := httptest.NewServer(f.srv.Handler())
	t.Cleanup(ts.Close)

	c := NewClient(ts.URL, time.Second)
	ctx := context.Background()

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc123def456", status.DeviceID)

	cur, err := c.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Browser", cur.Category)

	groups, err := c.AppSummary(ctx, "")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Empty(t, groups[0].Title)

	totals, err := c.CategoryTotals(ctx, "2026-03-02")
	require.NoError(t, err)
	assert.NotEmpty(t, totals)

	focus, err := c.Focus(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, focus.Switches)

	state, err := c.Pause(ctx, 0)
	require.NoError(t, err)
	assert.True(t, state.Indefinite)
	require.NoError(t, c.Resume(ctx))

	_, err = c.Focus(ctx, "bogus")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "INVALID_DATE", apiErr.Code)
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8932", BaseURL("0.0.0.0:8932"))
	assert.Equal(t, "http://127.0.0.1:8932", BaseURL(":8932"))
	assert.Equal(t, "http://127.0.0.1:8932", BaseURL("[::]:8932"))
	assert.Equal(t, "http://10.0.0.2:9000", BaseURL("10.0.0.2:9000"))
	assert.Equal(t, "http://[::1]:80", BaseURL("[::1]:80"))
}
