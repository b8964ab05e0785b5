package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwardrive/piwardrive/internal/config"
	"github.com/piwardrive/piwardrive/internal/core/domain"
	"github.com/piwardrive/piwardrive/internal/core/services/auth"
	syncsvc "github.com/piwardrive/piwardrive/internal/core/services/sync"
)

type memUserStore struct {
	users map[string]*domain.User
}

func (m *memUserStore) SaveUser(_ context.Context, user *domain.User) error {
	copied := *user
	m.users[user.Username] = &copied
	return nil
}

func (m *memUserStore) UserByUsername(_ context.Context, username string) (*domain.User, error) {
	if u, ok := m.users[username]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, errors.New("not found")
}

func (m *memUserStore) UserByTokenHash(_ context.Context, hash string) (*domain.User, error) {
	for _, u := range m.users {
		if u.TokenHash != "" && u.TokenHash == hash {
			copied := *u
			return &copied, nil
		}
	}
	return nil, errors.New("not found")
}

type fakeHealthStore struct{ samples []*domain.HealthSample }

func (f *fakeHealthStore) Recent(_ context.Context, n int) ([]*domain.HealthSample, error) {
	if n < len(f.samples) {
		return f.samples[:n], nil
	}
	return f.samples, nil
}

type fakeAPStore struct{ entries []*domain.APCacheEntry }

func (f *fakeAPStore) APCache(context.Context) ([]*domain.APCacheEntry, error) {
	return f.entries, nil
}

type memStateStore struct {
	dashboard *domain.DashboardSettings
	fences    map[string]*domain.Geofence
}

func newMemStateStore() *memStateStore {
	return &memStateStore{fences: make(map[string]*domain.Geofence)}
}

func (m *memStateStore) Dashboard(context.Context) (*domain.DashboardSettings, error) {
	return m.dashboard, nil
}

func (m *memStateStore) SaveDashboard(_ context.Context, settings *domain.DashboardSettings) error {
	m.dashboard = settings
	return nil
}

func (m *memStateStore) Geofences(context.Context) ([]*domain.Geofence, error) {
	out := make([]*domain.Geofence, 0, len(m.fences))
	for _, f := range m.fences {
		out = append(out, f)
	}
	return out, nil
}

func (m *memStateStore) GeofenceByName(_ context.Context, name string) (*domain.Geofence, error) {
	if f, ok := m.fences[name]; ok {
		return f, nil
	}
	return nil, errors.New("not found")
}

func (m *memStateStore) SaveGeofence(_ context.Context, g *domain.Geofence) error {
	m.fences[g.Name] = g
	return nil
}

func (m *memStateStore) DeleteGeofence(_ context.Context, name string) error {
	delete(m.fences, name)
	return nil
}

type fakeSyncer struct {
	count int
	err   error
}

func (f *fakeSyncer) SyncNewRecords(context.Context, int) (int, error) {
	return f.count, f.err
}

type testEnv struct {
	server *httptest.Server
	token  string
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	store := &memUserStore{users: make(map[string]*domain.User)}
	authSvc := auth.NewService(store)
	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)
	require.NoError(t, authSvc.Bootstrap(context.Background(), "admin", hash))

	settings, err := config.NewManager(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)

	cfg := &config.Config{Addr: ":0", CORSOrigins: []string{"http://ui.local"}}
	health := &fakeHealthStore{samples: []*domain.HealthSample{
		{Time: time.Now().UTC(), CPUPercent: 12.5, MemoryPercent: 40, DiskPercent: 55},
	}}
	aps := &fakeAPStore{entries: []*domain.APCacheEntry{
		{BSSID: "AA:BB:CC:DD:EE:FF", SSID: "HomeNet",
			Latitude: domain.Float64Ptr(41.38), Longitude: domain.Float64Ptr(2.17),
			LastTime: time.Now().UTC()},
	}}

	base := []Option{WithStreamInterval(10 * time.Millisecond)}
	srv := NewServer(cfg, settings, authSvc, health, aps, newMemStateStore(), append(base, opts...)...)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	form := url.Values{"username": {"admin"}, "password": {"hunter2"}}
	resp, err := http.PostForm(ts.URL+"/token", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tokenBody struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tokenBody))
	require.Equal(t, "bearer", tokenBody.TokenType)

	return &testEnv{server: ts, token: tokenBody.AccessToken}
}

func (e *testEnv) request(t *testing.T, method, path string, body string) *http.Response {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+e.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestTokenFlow(t *testing.T) {
	env := newTestEnv(t)

	// Wrong password is rejected with the structured error payload.
	resp, err := http.PostForm(env.server.URL+"/token",
		url.Values{"username": {"admin"}, "password": {"wrong"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var payload errorPayload
	decodeBody(t, resp, &payload)
	assert.Equal(t, "401", payload.Code)
	assert.Equal(t, "Unauthorized", payload.Message)

	// Protected route without the header.
	resp, err = http.Get(env.server.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// And with it.
	resp = env.request(t, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var samples []map[string]any
	decodeBody(t, resp, &samples)
	assert.Len(t, samples, 1)
}

func TestConfigRejectsUnknownKeys(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/config", `{"no_such_key": 1}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/config", `{"health_poll_interval": 30}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var settings map[string]any
	decodeBody(t, resp, &settings)
	assert.Equal(t, 30.0, settings["health_poll_interval"])
}

func TestWebhooksRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/webhooks", `{"urls":["http://hook.local/a"]}`)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/webhooks", "")
	var body map[string][]string
	decodeBody(t, resp, &body)
	assert.Equal(t, []string{"http://hook.local/a"}, body["urls"])
}

func TestGeofenceCRUD(t *testing.T) {
	env := newTestEnv(t)
	fence := `{"name":"depot","points":[{"lat":0,"lon":0},{"lat":0,"lon":1},{"lat":1,"lon":1}]}`

	resp := env.request(t, http.MethodPost, "/geofences", fence)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Duplicate create conflicts.
	resp = env.request(t, http.MethodPost, "/geofences", fence)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/geofences", "")
	var fences []map[string]any
	decodeBody(t, resp, &fences)
	require.Len(t, fences, 1)

	update := `{"points":[{"lat":0,"lon":0},{"lat":0,"lon":2},{"lat":2,"lon":2}],"enter_message":"hi"}`
	resp = env.request(t, http.MethodPut, "/geofences/depot", update)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodDelete, "/geofences/depot", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodDelete, "/geofences/depot", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGeofenceValidation(t *testing.T) {
	env := newTestEnv(t)

	// Too few vertices.
	resp := env.request(t, http.MethodPost, "/geofences",
		`{"name":"line","points":[{"lat":0,"lon":0},{"lat":1,"lon":1}]}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Path separator in the name.
	resp = env.request(t, http.MethodPost, "/geofences",
		`{"name":"a/b","points":[{"lat":0,"lon":0},{"lat":0,"lon":1},{"lat":1,"lon":1}]}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExportAPs(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodGet, "/export/aps?fmt=geojson", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var collection map[string]any
	decodeBody(t, resp, &collection)
	assert.Equal(t, "FeatureCollection", collection["type"])

	resp = env.request(t, http.MethodGet, "/export/aps?fmt=bogus", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServiceControl(t *testing.T) {
	var gotArgs []string
	runner := func(_ context.Context, args ...string) ([]byte, error) {
		gotArgs = args
		return []byte("active\n"), nil
	}
	env := newTestEnv(t, WithServiceRunner(runner))

	resp := env.request(t, http.MethodGet, "/service/gpsd", "")
	var status map[string]any
	decodeBody(t, resp, &status)
	assert.Equal(t, true, status["active"])
	assert.Equal(t, []string{"is-active", "gpsd"}, gotArgs)

	resp = env.request(t, http.MethodPost, "/service/gpsd/restart", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"restart", "gpsd"}, gotArgs)

	resp = env.request(t, http.MethodGet, "/service/sshd", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/service/gpsd/mask", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogsAllowList(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(logPath, []byte("one\ntwo\nthree\n"), 0o644))
	env := newTestEnv(t, WithLogAllowList([]string{logPath}))

	resp := env.request(t, http.MethodGet, "/logs?lines=2&path="+url.QueryEscape(logPath), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Lines []string `json:"lines"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, []string{"two", "three"}, body.Lines)

	resp = env.request(t, http.MethodGet, "/logs?path=/etc/passwd", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSyncEndpoint(t *testing.T) {
	env := newTestEnv(t, WithSyncer(&fakeSyncer{count: 3}))
	resp := env.request(t, http.MethodPost, "/sync?limit=5", "")
	var body map[string]int
	decodeBody(t, resp, &body)
	assert.Equal(t, 3, body["synced"])

	env = newTestEnv(t, WithSyncer(&fakeSyncer{err: syncsvc.ErrNoRemote}))
	resp = env.request(t, http.MethodPost, "/sync", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDashboardRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodGet, "/api/widgets", "")
	var widgets map[string][]string
	decodeBody(t, resp, &widgets)
	assert.Contains(t, widgets["widgets"], "gps-status")

	layout := `{"widgets":["gps-status","cpu-temp"]}`
	resp = env.request(t, http.MethodPost, "/dashboard-settings", layout)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/dashboard-settings", "")
	var saved domain.DashboardSettings
	decodeBody(t, resp, &saved)
	assert.Equal(t, []string{"gps-status", "cpu-temp"}, saved.Widgets)

	resp = env.request(t, http.MethodPost, "/dashboard-settings", `{"widgets":["../evil"]}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/token", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://ui.local")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://ui.local", resp.Header.Get("Access-Control-Allow-Origin"))

	// Unknown origins get no CORS headers.
	req.Header.Set("Origin", "http://evil.local")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSSEStatusFeed(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/sse/status", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+env.token)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	var line string
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "data: ") {
			line = strings.TrimPrefix(scanner.Text(), "data: ")
			break
		}
	}
	require.NotEmpty(t, line)

	var msg streamMessage
	require.NoError(t, json.Unmarshal([]byte(line), &msg))
	assert.Equal(t, uint64(1), msg.Seq)
	assert.NotNil(t, msg.Payload)
}

func TestWSAPsFeed(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/aps"
	header := http.Header{"Authorization": {"Bearer " + env.token}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg streamMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, uint64(1), msg.Seq)

	// Sequence numbers increase per message.
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, uint64(2), msg.Seq)
}

func TestTokenRateLimit(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{"username": {"admin"}, "password": {"wrong"}}
	var last int
	for i := 0; i < 7; i++ {
		resp, err := http.PostForm(env.server.URL+"/token", form)
		require.NoError(t, err)
		resp.Body.Close()
		last = resp.StatusCode
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
