package whoop

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/healthos/internal/apperror"
	"github.com/sakif/healthos/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLimiter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeLimiter) Acquire(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

// fakeTokens hands out "token-N" where N is the number of refreshes so far.
type fakeTokens struct {
	refreshes  int
	refreshErr error
}

func (f *fakeTokens) ValidToken(context.Context) (string, error) {
	return fmt.Sprintf("token-%d", f.refreshes), nil
}

func (f *fakeTokens) Refresh(context.Context) error {
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.refreshes++
	return nil
}

type recordedRequest struct {
	path  string
	query url.Values
	auth  string
}

// upstream is a scripted fake of the WHOOP API.
type upstream struct {
	mu       sync.Mutex
	requests []recordedRequest
	handle   func(n int, r *http.Request, w http.ResponseWriter)
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.requests = append(u.requests, recordedRequest{path: r.URL.Path, query: r.URL.Query(), auth: r.Header.Get("Authorization")})
	n := len(u.requests)
	u.mu.Unlock()
	u.handle(n, r, w)
}

type testEnv struct {
	client   *Client
	limiter  *fakeLimiter
	tokens   *fakeTokens
	upstream *upstream
	sleeps   []time.Duration
}

func newTestEnv(t *testing.T, handle func(n int, r *http.Request, w http.ResponseWriter)) *testEnv {
	t.Helper()
	env := &testEnv{
		limiter:  &fakeLimiter{},
		tokens:   &fakeTokens{},
		upstream: &upstream{handle: handle},
	}
	srv := httptest.NewServer(env.upstream)
	t.Cleanup(srv.Close)

	env.client = New(Config{BaseURL: srv.URL, MaxAttempts: 10}, srv.Client(), env.limiter, env.tokens, testLogger())
	env.client.sleep = func(_ context.Context, d time.Duration) error {
		env.sleeps = append(env.sleeps, d)
		return nil
	}
	return env
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

// =========================================================================
// PAGINATION
// =========================================================================

func TestFetchPaginated_FollowsNextToken(t *testing.T) {
	env := newTestEnv(t, func(n int, r *http.Request, w http.ResponseWriter) {
		next := ""
		if n < 4 {
			next = fmt.Sprintf(`"page-%d"`, n+1)
		} else {
			next = "null"
		}
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"records":[{"id":%d}],"next_token":%s}`, n, next))
	})

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	params := windowParams(model.Window{Start: &start, End: start.Add(24 * time.Hour)})

	records, err := env.client.FetchPaginated(context.Background(), PathCycles, params)
	require.NoError(t, err)

	require.Len(t, env.upstream.requests, 4)
	require.Len(t, records, 4)
	assert.JSONEq(t, `{"id":1}`, string(records[0]))
	assert.JSONEq(t, `{"id":4}`, string(records[3]))

	first := env.upstream.requests[0]
	assert.Equal(t, "/v2/cycle", first.path)
	assert.Equal(t, "25", first.query.Get("limit"))
	assert.Equal(t, "2025-03-01T00:00:00.000Z", first.query.Get("start"))
	assert.Equal(t, "2025-03-02T00:00:00.000Z", first.query.Get("end"))
	assert.Empty(t, first.query.Get("nextToken"))

	for i, req := range env.upstream.requests[1:] {
		assert.Equal(t, fmt.Sprintf("page-%d", i+2), req.query.Get("nextToken"))
		assert.Equal(t, "2025-03-01T00:00:00.000Z", req.query.Get("start"))
	}
	assert.Equal(t, 4, env.limiter.calls)
}

func TestFetchPaginated_EmptyCollection(t *testing.T) {
	env := newTestEnv(t, func(n int, r *http.Request, w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, `{"records":[]}`)
	})

	records, err := env.client.FetchPaginated(context.Background(), PathSleep, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Len(t, env.upstream.requests, 1)
}

func TestWindowParams_NoStartForFullHistory(t *testing.T) {
	end := time.Date(2025, 3, 1, 10, 30, 0, 0, time.FixedZone("EST", -5*3600))
	q := windowParams(model.Window{End: end})

	assert.False(t, q.Has("start"))
	assert.Equal(t, "2025-03-01T15:30:00.000Z", q.Get("end"))
}

// =========================================================================
// RETRIES
// =========================================================================

func TestCall_RetriesAfter429(t *testing.T) {
	env := newTestEnv(t, func(n int, r *http.Request, w http.ResponseWriter) {
		if n == 1 {
			w.Header().Set("Retry-After", "3")
			writeJSON(w, http.StatusTooManyRequests, `{}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"user_id": 1}`)
	})

	var out map[string]any
	require.NoError(t, env.client.Call(context.Background(), PathProfile, nil, &out))

	assert.Equal(t, []time.Duration{3 * time.Second}, env.sleeps)
	assert.Len(t, env.upstream.requests, 2)
	assert.Equal(t, 2, env.limiter.calls, "every attempt consumes a token")
	assert.Equal(t, float64(1), out["user_id"])
}

func TestCall_429WithoutRetryAfterWaitsSixtySeconds(t *testing.T) {
	env := newTestEnv(t, func(n int, r *http.Request, w http.ResponseWriter) {
		if n == 1 {
			writeJSON(w, http.StatusTooManyRequests, `{}`)
			return
		}
		writeJSON(w, http.StatusOK, `{}`)
	})

	require.NoError(t, env.client.Call(context.Background(), PathProfile, nil, nil))
	assert.Equal(t, []time.Duration{60 * time.Second}, env.sleeps)
}

func TestCall_RefreshesOnceOn401(t *testing.T) {
	env := newTestEnv(t, func(n int, r *http.Request, w http.ResponseWriter) {
		if r.Header.Get("Authorization") == "Bearer token-0" {
			writeJSON(w, http.StatusUnauthorized, `{}`)
			return
		}
		writeJSON(w, http.StatusOK, `{}`)
	})

	require.NoError(t, env.client.Call(context.Background(), PathProfile, nil, nil))

	assert.Equal(t, 1, env.tokens.refreshes)
	require.Len(t, env.upstream.requests, 2)
	assert.Equal(t, "Bearer token-1", env.upstream.requests[1].auth)
}

func TestCall_Second401IsAuthFatal(t *testing.T) {
	env := newTestEnv(t, func(n int, r *http.Request, w http.ResponseWriter) {
		writeJSON(w, http.StatusUnauthorized, `{}`)
	})

	err := env.client.Call(context.Background(), PathProfile, nil, nil)

	require.ErrorIs(t, err, apperror.ErrReauthenticate)
	assert.Contains(t, err.Error(), "re-authenticate")
	assert.Equal(t, 1, env.tokens.refreshes)
	assert.Len(t, env.upstream.requests, 2)
}

func TestCall_RefreshFailureIsReturned(t *testing.T) {
	env := newTestEnv(t, func(n int, r *http.Request, w http.ResponseWriter) {
		writeJSON(w, http.StatusUnauthorized, `{}`)
	})
	env.tokens.refreshErr = apperror.Reauthenticate("Refresh token invalid")

	err := env.client.Call(context.Background(), PathProfile, nil, nil)

	require.ErrorIs(t, err, apperror.ErrReauthenticate)
	assert.Len(t, env.upstream.requests, 1)
}

func TestCall_AttemptCap(t *testing.T) {
	env := newTestEnv(t, func(n int, r *http.Request, w http.ResponseWriter) {
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, `{}`)
	})
	env.client.maxAttempts = 3

	err := env.client.Call(context.Background(), PathCycles, nil, nil)

	require.ErrorIs(t, err, apperror.ErrUpstream)
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
	assert.Len(t, env.upstream.requests, 3)
}

// =========================================================================
// ERRORS
// =========================================================================

func TestCall_NonSuccessIsUpstreamError(t *testing.T) {
	env := newTestEnv(t, func(n int, r *http.Request, w http.ResponseWriter) {
		writeJSON(w, http.StatusNotFound, `no such thing`)
	})

	err := env.client.Call(context.Background(), PathRecovery, nil, nil)

	require.ErrorIs(t, err, apperror.ErrUpstream)
	assert.Equal(t, "WHOOP API error 404 on /v2/recovery: no such thing", err.Error())
}

func TestCall_DailyLimitMakesNoRequest(t *testing.T) {
	env := newTestEnv(t, func(n int, r *http.Request, w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, `{}`)
	})
	env.limiter.err = apperror.DailyLimit()

	err := env.client.Call(context.Background(), PathCycles, nil, nil)

	require.ErrorIs(t, err, apperror.ErrRateLimited)
	assert.Empty(t, env.upstream.requests)
}

func TestCall_BreakerOpensAfterServerErrors(t *testing.T) {
	env := newTestEnv(t, func(n int, r *http.Request, w http.ResponseWriter) {
		writeJSON(w, http.StatusBadGateway, `upstream down`)
	})

	for i := 0; i < 5; i++ {
		err := env.client.Call(context.Background(), PathCycles, nil, nil)
		require.ErrorIs(t, err, apperror.ErrUpstream)
		assert.Contains(t, err.Error(), "502")
	}

	err := env.client.Call(context.Background(), PathCycles, nil, nil)
	require.ErrorIs(t, err, apperror.ErrUpstream)
	assert.Contains(t, err.Error(), "unavailable")
	assert.Len(t, env.upstream.requests, 5, "open breaker short-circuits")
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "seconds", value: "10", want: 10 * time.Second},
		{name: "zero", value: "0", want: 0},
		{name: "missing", value: "", want: 60 * time.Second},
		{name: "garbage", value: "soon", want: 60 * time.Second},
		{name: "http date", value: now.Add(5 * time.Second).Format(http.TimeFormat), want: 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRetryAfter(tt.value, now))
		})
	}
}

// =========================================================================
// TYPED FETCHERS
// =========================================================================

func TestFetchCycles_DecodesAndKeepsRaw(t *testing.T) {
	env := newTestEnv(t, func(n int, r *http.Request, w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, `{"records":[{"id":10,"start":"2025-03-01T05:00:00.000Z","end":null,"timezone_offset":"-05:00","score":{"strain":11.2}}]}`)
	})

	cycles, err := env.client.FetchCycles(context.Background(), model.Window{End: time.Now()})
	require.NoError(t, err)
	require.Len(t, cycles, 1)

	c := cycles[0]
	assert.Equal(t, int64(10), c.ID)
	assert.Nil(t, c.End)
	require.NotNil(t, c.Score)
	assert.InDelta(t, 11.2, *c.Score.Strain, 0.0001)
	assert.JSONEq(t, `{"id":10,"start":"2025-03-01T05:00:00.000Z","end":null,"timezone_offset":"-05:00","score":{"strain":11.2}}`, string(c.Raw))
}

func TestFetchProfile(t *testing.T) {
	env := newTestEnv(t, func(n int, r *http.Request, w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, `{"user_id":7,"email":"a@b.c","first_name":"A","last_name":"B"}`)
	})

	p, err := env.client.FetchProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.UserID)
	assert.Equal(t, "A", p.FirstName)
	assert.NotEmpty(t, p.Raw)
	assert.Equal(t, PathProfile, env.upstream.requests[0].path)
}
