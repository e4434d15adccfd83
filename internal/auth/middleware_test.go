package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireSession(t *testing.T) {
	ts := newTestTokenService(t)
	valid, err := ts.Generate("session-1")
	require.NoError(t, err)

	var gotID string
	h := RequireSession(ts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = SessionIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		cookie     *http.Cookie
		wantStatus int
	}{
		{name: "no cookie", wantStatus: http.StatusUnauthorized},
		{name: "bad cookie", cookie: &http.Cookie{Name: SessionCookie, Value: "junk"}, wantStatus: http.StatusUnauthorized},
		{name: "valid cookie", cookie: &http.Cookie{Name: SessionCookie, Value: valid}, wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/cycles", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	assert.Equal(t, "session-1", gotID)
}
