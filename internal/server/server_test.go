package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/healthos/internal/app"
	"github.com/sakif/healthos/internal/auth"
	"github.com/sakif/healthos/internal/config"
)

// fakeWhoop serves a tiny, fixed data set for every endpoint the sync uses.
func fakeWhoop(t *testing.T) *httptest.Server {
	t.Helper()
	bodies := map[string]string{
		"/developer/v1/user/profile/basic":    `{"user_id":10129,"email":"jane@example.com","first_name":"Jane","last_name":"Doe"}`,
		"/developer/v1/user/measurement/body": `{"height_meter":1.8288,"weight_kilogram":90.7185,"max_heart_rate":200}`,
		"/developer/v2/cycle": `{"records":[
			{"id":93845,"start":"2025-03-08T06:25:14.059Z","end":"2025-03-09T06:25:14.059Z","timezone_offset":"-05:00","score_state":"SCORED","score":{"strain":5.29,"kilojoule":8288.3,"average_heart_rate":68,"max_heart_rate":141}},
			{"id":93846,"start":"2025-03-09T06:25:14.059Z","timezone_offset":"-05:00","score_state":"PENDING_SCORE"}
		],"next_token":null}`,
		"/developer/v2/recovery":         `{"records":[{"cycle_id":93845,"sleep_id":"ecfc6a15","score_state":"SCORED","score":{"user_calibrating":false,"recovery_score":44,"resting_heart_rate":64,"hrv_rmssd_milli":31.8}}],"next_token":null}`,
		"/developer/v2/activity/sleep":   `{"records":[],"next_token":null}`,
		"/developer/v2/activity/workout": `{"records":[],"next_token":null}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer stored-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, ok := bodies[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	app    *app.App
	server *httptest.Server
}

func newTestEnv(t *testing.T, jwtSecret string) *testEnv {
	t.Helper()
	upstream := fakeWhoop(t)

	cfg := &config.Config{
		Server:   config.ServerConfig{Port: 8080, ShutdownTimeout: time.Second, SyncRequestsPerMinute: 100},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "healthos.db")},
		Whoop: config.WhoopConfig{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURI:  "http://localhost:8080/auth/callback",
			AuthURL:      upstream.URL + "/oauth/oauth2/auth",
			TokenURL:     upstream.URL + "/oauth/oauth2/token",
			APIBaseURL:   upstream.URL + "/developer",
		},
		Sync: config.SyncConfig{MaxPerMinute: 90, MaxPerDay: 9500, MaxAttempts: 5},
		Auth: config.AuthConfig{JWTSecret: jwtSecret, SessionTTL: time.Hour},
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	a, err := app.New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	srv := httptest.NewServer(New(a).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{app: a, server: srv}
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	require.NoError(t, e.app.DB.SaveCredential(context.Background(), "stored-access", "stored-refresh", 3600, "offline"))
}

func (e *testEnv) do(t *testing.T, method, path string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, nil)
	require.NoError(t, err)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	readJSON(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(9500), body["day_remaining"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodGet, "/healthz")

	resp := env.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "healthos_http_requests_total")
}

func TestLoginRedirectsToWhoop(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodGet, "/auth/login")
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)

	loc := resp.Header.Get("Location")
	assert.True(t, strings.HasPrefix(loc, env.app.Config.Whoop.AuthURL), loc)
	assert.Contains(t, loc, "client_id=client-id")
	assert.Contains(t, loc, "response_type=code")
	assert.Contains(t, loc, "offline")
}

func TestAPI_RequiresConnectedAccount(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodGet, "/api/cycles")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	env.login(t)
	resp = env.do(t, http.MethodGet, "/api/cycles")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_RequiresSessionWhenSecretSet(t *testing.T) {
	env := newTestEnv(t, "0123456789abcdef0123456789abcdef")
	env.login(t)

	resp := env.do(t, http.MethodGet, "/api/sync/status")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := env.app.Sessions.Generate("session-1")
	require.NoError(t, err)
	resp = env.do(t, http.MethodGet, "/api/sync/status", &http.Cookie{Name: auth.SessionCookie, Value: token})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSyncAllThenRead(t *testing.T) {
	env := newTestEnv(t, "")
	env.login(t)

	resp := env.do(t, http.MethodPost, "/api/sync/all")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sync struct {
		Results []struct {
			Type   string `json:"type"`
			Status string `json:"status"`
			Count  int    `json:"count"`
			Error  string `json:"error"`
		} `json:"results"`
	}
	readJSON(t, resp, &sync)
	require.Len(t, sync.Results, 6)
	wantCounts := map[string]int{
		"profile": 1, "body_measurements": 1, "cycles": 2,
		"recovery": 1, "sleep": 0, "workouts": 0,
	}
	for _, r := range sync.Results {
		assert.Equal(t, "completed", r.Status, "%s: %s", r.Type, r.Error)
		assert.Equal(t, wantCounts[r.Type], r.Count, r.Type)
	}

	resp = env.do(t, http.MethodGet, "/api/cycles?limit=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cycles struct {
		Data []struct {
			ID int64 `json:"id"`
		} `json:"data"`
		Total int `json:"total"`
		Limit int `json:"limit"`
	}
	readJSON(t, resp, &cycles)
	assert.Equal(t, 2, cycles.Total)
	assert.Equal(t, 1, cycles.Limit)
	require.Len(t, cycles.Data, 1)
	assert.Equal(t, int64(93846), cycles.Data[0].ID)

	resp = env.do(t, http.MethodGet, "/api/profile")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "jane@example.com")

	resp = env.do(t, http.MethodGet, "/api/sync/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status struct {
		Status []struct {
			DataType    string `json:"data_type"`
			Status      string `json:"status"`
			RecordCount int    `json:"record_count"`
		} `json:"status"`
	}
	readJSON(t, resp, &status)
	require.Len(t, status.Status, 6)
	for _, s := range status.Status {
		assert.Equal(t, "completed", s.Status, s.DataType)
	}
}

func TestSyncType_Invalid(t *testing.T) {
	env := newTestEnv(t, "")
	env.login(t)

	resp := env.do(t, http.MethodPost, "/api/sync/heartbeats")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPService_StopsOnCancel(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	svc := newHTTPService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("http service did not stop")
	}
	assert.Equal(t, "http-server", svc.String())
}
