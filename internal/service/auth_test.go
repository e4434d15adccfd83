package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sakif/healthos/internal/apperror"
	"github.com/sakif/healthos/internal/auth"
	"github.com/sakif/healthos/internal/repository/sqlite"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

type fakeProvider struct {
	codes []string
	tok   *oauth2.Token
	err   error
}

func (p *fakeProvider) AuthURL(state string) string {
	return "https://whoop.test/oauth/oauth2/auth?state=" + state
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	p.codes = append(p.codes, code)
	return p.tok, p.err
}

func newTestAuthService(t *testing.T, provider *fakeProvider) (*AuthService, *sqlite.DB) {
	t.Helper()
	sessions, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	require.NoError(t, err)

	db := newTestDB(t)
	return NewAuthService(provider, db, sessions, testLogger()), db
}

func validToken() *oauth2.Token {
	return (&oauth2.Token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresIn:    3600,
	}).WithExtra(map[string]any{"scope": "read:recovery offline"})
}

// =========================================================================
// LoginURL / CompleteLogin
// =========================================================================

func TestLoginURL_CarriesState(t *testing.T) {
	svc, _ := newTestAuthService(t, &fakeProvider{})

	u, state, err := svc.LoginURL()
	require.NoError(t, err)
	assert.Len(t, state, 8)
	assert.Contains(t, u, "state="+state)

	_, other, err := svc.LoginURL()
	require.NoError(t, err)
	assert.NotEqual(t, state, other)
}

func TestCompleteLogin_StoresCredentialAndIssuesSession(t *testing.T) {
	provider := &fakeProvider{tok: validToken()}
	svc, db := newTestAuthService(t, provider)
	ctx := context.Background()

	res, err := svc.CompleteLogin(ctx, "the-code", "abcd1234", "abcd1234")
	require.NoError(t, err)
	assert.Equal(t, []string{"the-code"}, provider.codes)

	cred, err := db.GetCredential(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-1", cred.AccessToken)
	assert.Equal(t, "refresh-1", cred.RefreshToken)
	assert.Equal(t, "read:recovery offline", cred.Scope)

	id, err := svc.ValidateSession(res.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, id)
}

func TestCompleteLogin_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		state    string
		expected string
		wantErr  error
	}{
		{"missing code", "", "s", "s", apperror.ErrValidation},
		{"missing state", "c", "", "s", apperror.ErrForbidden},
		{"state mismatch", "c", "s1", "s2", apperror.ErrForbidden},
		{"no state cookie", "c", "s1", "", apperror.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{tok: validToken()}
			svc, _ := newTestAuthService(t, provider)

			_, err := svc.CompleteLogin(context.Background(), tt.code, tt.state, tt.expected)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, provider.codes, "no exchange on bad input")
		})
	}
}

func TestCompleteLogin_ExchangeRejected(t *testing.T) {
	provider := &fakeProvider{err: &oauth2.RetrieveError{
		Response: &http.Response{StatusCode: http.StatusBadRequest},
		Body:     []byte("invalid_grant"),
	}}
	svc, db := newTestAuthService(t, provider)

	_, err := svc.CompleteLogin(context.Background(), "c", "s", "s")
	require.ErrorIs(t, err, apperror.ErrUpstream)
	assert.Contains(t, err.Error(), "invalid_grant")

	_, err = db.GetCredential(context.Background())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCompleteLogin_NetworkFailure(t *testing.T) {
	svc, _ := newTestAuthService(t, &fakeProvider{err: errors.New("dial tcp: refused")})

	_, err := svc.CompleteLogin(context.Background(), "c", "s", "s")
	require.ErrorIs(t, err, apperror.ErrUpstream)
	assert.Contains(t, err.Error(), "Token exchange failed")
}

// =========================================================================
// Status / Logout
// =========================================================================

func TestStatus_NotConnected(t *testing.T) {
	svc, _ := newTestAuthService(t, &fakeProvider{})

	st, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Authenticated)
	assert.Nil(t, st.ExpiresAt)
}

func TestStatus_Connected(t *testing.T) {
	svc, db := newTestAuthService(t, &fakeProvider{})
	ctx := context.Background()
	require.NoError(t, db.SaveCredential(ctx, "a", "r", 3600, "read:sleep read:cycles"))

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Authenticated)
	assert.False(t, st.Expired)
	require.NotNil(t, st.ExpiresAt)
	assert.Equal(t, []string{"read:sleep", "read:cycles"}, st.Scopes)

	svc.now = func() time.Time { return st.ExpiresAt.Add(time.Second) }
	st, err = svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Authenticated)
	assert.True(t, st.Expired)
}

func TestLogout_DeletesCredential(t *testing.T) {
	svc, db := newTestAuthService(t, &fakeProvider{})
	ctx := context.Background()
	require.NoError(t, db.SaveCredential(ctx, "a", "r", 3600, ""))

	require.NoError(t, svc.Logout(ctx))
	require.NoError(t, svc.Logout(ctx), "logout is idempotent")

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Authenticated)
}

func TestValidateSession_RejectsGarbage(t *testing.T) {
	svc, _ := newTestAuthService(t, &fakeProvider{})

	_, err := svc.ValidateSession("not-a-jwt")
	assert.Error(t, err)
}
