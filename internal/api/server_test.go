package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocular/pkg/button"
	"ocular/pkg/config"
	"ocular/pkg/db"
	"ocular/pkg/device"
	"ocular/pkg/geo"
	"ocular/pkg/model"
	"ocular/pkg/speech"
	"ocular/pkg/store"
)

type testEnv struct {
	state   *device.State
	store   *store.SQLiteStore
	control *button.Virtual
	speech  *speech.Scripted
	srv     *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	st := store.NewSQLiteStore(d)
	state := device.New("en")
	t.Cleanup(state.Close)

	cfg := config.DefaultConfig()
	prov := config.NewProvider(cfg, st)
	trail := geo.NewTrail(100, 1)

	env := &testEnv{
		state:   state,
		store:   st,
		control: button.NewVirtual(),
		speech:  speech.NewScripted(time.Second),
	}
	h := Handlers{
		Status:  NewStatusHandler(state),
		Config:  NewConfigHandler(st, prov, state),
		History: NewHistoryHandler(st, st),
		Route:   NewRouteHandler(state, trail),
		Mock:    NewMockHandler(env.control, nil, env.speech, nil),
	}
	env.srv = httptest.NewServer(newMux(h, func() {}))
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) get(t *testing.T, path string, v any) int {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func (e *testEnv) post(t *testing.T, method, path, body string) int {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	env.state.SetPosition(geo.Point{Lat: 12.97, Lon: 77.59}, time.Now())

	var got StatusResponse
	require.Equal(t, http.StatusOK, env.get(t, "/api/status", &got))
	assert.Equal(t, 12.97, got.Position.Lat)
	assert.Equal(t, "en", got.Language)
	assert.Equal(t, device.ModeIdle, got.Mode)
	assert.NotEmpty(t, got.Software)
}

func TestStream(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first StatusResponse
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "en", first.Language)

	env.state.SetLanguage("kn")
	var next StatusResponse
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "kn", next.Language)
	assert.Greater(t, next.Version, first.Version)
}

func TestConfig(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"language and owner", `{"language":"hi","owner_name":"Asha"}`, http.StatusOK},
		{"tolerance", `{"align_tolerance":15}`, http.StatusOK},
		{"no motion off", `{"no_motion_enabled":false}`, http.StatusOK},
		{"tolerance out of range", `{"align_tolerance":200}`, http.StatusBadRequest},
		{"unknown provider", `{"device_provider":"toaster"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, env.post(t, http.MethodPut, "/api/config", tt.body))
		})
	}

	var got ConfigResponse
	require.Equal(t, http.StatusOK, env.get(t, "/api/config", &got))
	assert.Equal(t, "hi", got.Language)
	assert.Equal(t, "Asha", got.OwnerName)
	assert.Equal(t, 15.0, got.AlignTolerance)
	assert.False(t, got.NoMotionEnabled)
	assert.Equal(t, "hi", env.state.Language())
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, env.store.SaveIncident(ctx, &model.Incident{ID: "old", Reason: "button", StartedAt: now.AddDate(0, 0, -30)}))
	require.NoError(t, env.store.SaveIncident(ctx, &model.Incident{ID: "new", Reason: "no_motion", StartedAt: now.Add(-time.Hour)}))
	require.NoError(t, env.store.SaveTrip(ctx, &model.Trip{ID: "t1", Destination: "Cubbon Park", StartedAt: now, EndedAt: now}))

	var incidents []model.Incident
	require.Equal(t, http.StatusOK, env.get(t, "/api/incidents", &incidents))
	require.Len(t, incidents, 1)
	assert.Equal(t, "new", incidents[0].ID)

	require.Equal(t, http.StatusOK, env.get(t, "/api/incidents?days=60", &incidents))
	assert.Len(t, incidents, 2)
	assert.Equal(t, http.StatusBadRequest, env.get(t, "/api/incidents?days=x", nil))

	var trips []model.Trip
	require.Equal(t, http.StatusOK, env.get(t, "/api/trips?limit=5", &trips))
	require.Len(t, trips, 1)
	assert.Equal(t, "Cubbon Park", trips[0].Destination)
}

func TestRoute(t *testing.T) {
	env := newTestEnv(t)
	env.state.SetPosition(geo.Point{Lat: 12.9700, Lon: 77.5900}, time.Now())
	require.NoError(t, env.state.BeginNavigation(device.Navigation{
		ID:          "n1",
		Destination: "Library",
		Steps:       2,
		Waypoints:   []geo.Point{{Lat: 12.9700, Lon: 77.5900}, {Lat: 12.9710, Lon: 77.5900}, {Lat: 12.9710, Lon: 77.5910}},
	}))

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.Equal(t, http.StatusOK, env.get(t, "/api/route", &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)

	kinds := map[string]bool{}
	for _, f := range fc.Features {
		if k, ok := f.Properties["kind"].(string); ok {
			kinds[k] = true
		}
	}
	assert.True(t, kinds["route"])
	assert.True(t, kinds["target"])
}

func TestMock(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusOK, env.post(t, http.MethodPost, "/api/mock/button/control", `{"action":"press"}`))
	assert.True(t, env.control.Pressed())
	assert.Equal(t, http.StatusOK, env.post(t, http.MethodPost, "/api/mock/button/control", `{"action":"release"}`))
	assert.False(t, env.control.Pressed())

	assert.Equal(t, http.StatusNotFound, env.post(t, http.MethodPost, "/api/mock/button/emergency", `{"action":"press"}`))
	assert.Equal(t, http.StatusBadRequest, env.post(t, http.MethodPost, "/api/mock/button/control", `{"action":"spin"}`))
	assert.Equal(t, http.StatusNotFound, env.post(t, http.MethodPost, "/api/mock/walker", `{"command":"walk"}`))

	assert.Equal(t, http.StatusOK, env.post(t, http.MethodPost, "/api/mock/say", `{"text":"navigate"}`))
	got, err := env.speech.Listen(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "navigate", got)
}

func TestHealthAndVersion(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusOK, env.get(t, "/health", nil))

	var v map[string]string
	require.Equal(t, http.StatusOK, env.get(t, "/api/version", &v))
	assert.NotEmpty(t, v["version"])
}
