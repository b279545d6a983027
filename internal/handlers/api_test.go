package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binwatch/internal/alerts"
	"binwatch/internal/config"
	"binwatch/internal/models"
	"binwatch/internal/notifier"
	"binwatch/internal/storage"
)

type stubNotifier struct {
	mu     sync.Mutex
	result notifier.Result
	calls  int
}

func (s *stubNotifier) Send(ctx context.Context, bin models.BinName, level int) notifier.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.result
}

func (s *stubNotifier) set(result notifier.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = result
}

func (s *stubNotifier) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	*httptest.Server
	store    *storage.SQLStore
	notifier *stubNotifier
	clock    *testClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := storage.Open(context.Background(), config.StorageConfig{Driver: "sqlite3", DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, store.EnsureBins(context.Background(), models.AllBins))

	ts := &testServer{
		store:    store,
		notifier: &stubNotifier{result: notifier.Result{Sent: true, SID: "SM99"}},
		clock:    &testClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)},
	}

	engine := alerts.NewEngine(alerts.Config{
		Store:    store,
		Settings: store,
		Notifier: ts.notifier,
		Rule:     alerts.Rule{Threshold: 80, Cooldown: time.Minute},
		Now:      ts.clock.Now,
	})

	router := NewRouter(RouterConfig{
		API:   NewAPIHandler(APIConfig{Service: engine}),
		Pages: NewPageHandler(PageConfig{Service: engine, Timezone: "UTC", Threshold: 80}),
	})
	ts.Server = httptest.NewServer(router)

	t.Cleanup(func() {
		ts.Close()
		store.Close()
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestUpdateLevel_AlertThenCooldown(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/update_level/yellow", `{"level": 85}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"success","bin":"yellow","level":85,"alert_sent":true}`, string(body))

	ts.clock.Advance(5 * time.Second)
	status, body = ts.do(t, http.MethodPost, "/update_level/yellow", `{"level": 85}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"success","bin":"yellow","level":85,"alert_sent":false}`, string(body))
	assert.Equal(t, 1, ts.notifier.count())
}

func TestUpdateLevel_LenientPayloads(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		level int
	}{
		{name: "level key", body: `{"level": 42}`, level: 42},
		{name: "value fallback", body: `{"value": 17}`, level: 17},
		{name: "null level uses value", body: `{"level": null, "value": 33}`, level: 33},
		{name: "numeric string", body: `{"level": "64"}`, level: 64},
		{name: "float truncates", body: `{"level": 55.9}`, level: 55},
		{name: "above range", body: `{"level": 250}`, level: 100},
		{name: "below range", body: `{"level": -5}`, level: 0},
		{name: "garbage string", body: `{"level": "full"}`, level: 0},
		{name: "not json", body: `level=50`, level: 0},
		{name: "empty body", body: ``, level: 0},
		{name: "array body", body: `[1,2,3]`, level: 0},
	}

	ts := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ts.do(t, http.MethodPost, "/update_level/green", tt.body)
			require.Equal(t, http.StatusOK, status)

			var resp UpdateLevelResponse
			require.NoError(t, json.Unmarshal(body, &resp))
			assert.Equal(t, "success", resp.Status)
			assert.Equal(t, "green", resp.Bin)
			assert.Equal(t, tt.level, resp.Level)
		})
	}
}

func TestInvalidBin(t *testing.T) {
	ts := newTestServer(t)

	for _, req := range []struct{ method, path string }{
		{http.MethodPost, "/update_level/red"},
		{http.MethodGet, "/readings/red"},
		{http.MethodPost, "/trigger_alert/Yellow"},
	} {
		status, body := ts.do(t, req.method, req.path, `{"level": 50}`)
		assert.Equal(t, http.StatusBadRequest, status, req.path)
		assert.JSONEq(t, `{"error":"invalid bin"}`, string(body), req.path)
	}

	readings, err := ts.store.LatestReadings(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestLevels(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodPost, "/update_level/blue", `{"level": 12}`)

	status, body := ts.do(t, http.MethodGet, "/levels", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"yellow":0,"green":0,"blue":12}`, string(body))
}

func TestReadings_ChronologicalAndLimited(t *testing.T) {
	ts := newTestServer(t)

	for _, level := range []string{"10", "20", "30", "40"} {
		ts.do(t, http.MethodPost, "/update_level/yellow", `{"level": `+level+`}`)
		ts.clock.Advance(time.Second)
	}

	status, body := ts.do(t, http.MethodGet, "/readings/yellow?n=2", "")
	require.Equal(t, http.StatusOK, status)

	var readings []ReadingResponse
	require.NoError(t, json.Unmarshal(body, &readings))
	require.Len(t, readings, 2)
	assert.Equal(t, 30, readings[0].Level)
	assert.Equal(t, 40, readings[1].Level)
	assert.True(t, readings[0].Timestamp.Before(readings[1].Timestamp))

	status, body = ts.do(t, http.MethodGet, "/readings/yellow?n=abc", "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &readings))
	assert.Len(t, readings, 4)
}

func TestConfig_PatchThenGet(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodGet, "/config", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"simulator_paused":false}`, string(body))

	status, body = ts.do(t, http.MethodPatch, "/config", `{"simulator_paused": true}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok","simulator_paused":true,"changed":["simulator_paused=true"]}`, string(body))

	status, body = ts.do(t, http.MethodGet, "/config", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"simulator_paused":true}`, string(body))

	status, body = ts.do(t, http.MethodPatch, "/config", `{"unrelated": 1}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok","simulator_paused":true,"changed":[]}`, string(body))

	status, body = ts.do(t, http.MethodPatch, "/config", `{"simulator_paused": "false"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok","simulator_paused":false,"changed":["simulator_paused=false"]}`, string(body))
}

func TestActions_NewestFirst(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodPatch, "/config", `{"simulator_paused": true}`)
	ts.clock.Advance(time.Second)
	ts.do(t, http.MethodPost, "/update_level/blue", `{"level": 95}`)

	status, body := ts.do(t, http.MethodGet, "/actions", "")
	require.Equal(t, http.StatusOK, status)

	var actions []ActionResponse
	require.NoError(t, json.Unmarshal(body, &actions))
	require.Len(t, actions, 2)
	assert.Equal(t, models.ActionAutoAlertSent, actions[0].Action)
	assert.Equal(t, "blue level=95 sid=SM99", actions[0].Detail)
	assert.Equal(t, models.ActionSimulatorPaused, actions[1].Action)
	assert.Equal(t, "paused=true", actions[1].Detail)

	status, body = ts.do(t, http.MethodGet, "/actions?n=1", "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &actions))
	assert.Len(t, actions, 1)
}

func TestTriggerAlert(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/trigger_alert/green", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"alert_sent","sid":"SM99"}`, string(body))

	ts.notifier.set(notifier.Result{Error: notifier.ReasonNotConfigured})
	status, body = ts.do(t, http.MethodPost, "/trigger_alert/green", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.JSONEq(t, `{"status":"alert_failed","error":"twilio_not_configured"}`, string(body))
	assert.Equal(t, 2, ts.notifier.count())
}

func TestTriggerAlert_MissingBinRow(t *testing.T) {
	store, err := storage.Open(context.Background(), config.StorageConfig{Driver: "sqlite3", DSN: ":memory:"})
	require.NoError(t, err)
	defer store.Close()

	engine := alerts.NewEngine(alerts.Config{Store: store, Settings: store, Notifier: &stubNotifier{}})
	srv := httptest.NewServer(NewRouter(RouterConfig{API: NewAPIHandler(APIConfig{Service: engine})}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/trigger_alert/blue", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"bin not found"}`, string(body))
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.JSONEq(t, `{"error":"not found"}`, string(body))

	status, _ = ts.do(t, http.MethodDelete, "/config", "")
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestPages(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/update_level/yellow", `{"level": 91}`)

	status, body := ts.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "Yellow")
	assert.Contains(t, string(body), "91% full")

	status, body = ts.do(t, http.MethodGet, "/history", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "2024-03-10 12:00:00")
	assert.Contains(t, string(body), "yellow")
}

func TestPageHandler_DefaultsToIST(t *testing.T) {
	h := NewPageHandler(PageConfig{Timezone: "Not/AZone"})
	assert.Equal(t, "IST", h.location.String())

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-01 05:30:00", at.In(h.location).Format(historyTimeLayout))
}
