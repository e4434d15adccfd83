package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("credential", "1"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("limit", "limit must be positive"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Reauthenticate wraps ErrReauthenticate",
			err:       Reauthenticate("Refresh token invalid"),
			target:    ErrReauthenticate,
			wantMatch: true,
		},
		{
			name:      "DailyLimit wraps ErrRateLimited",
			err:       DailyLimit(),
			target:    ErrRateLimited,
			wantMatch: true,
		},
		{
			name:      "Upstream wraps ErrUpstream",
			err:       Upstream(500, "/v2/cycle", "boom"),
			target:    ErrUpstream,
			wantMatch: true,
		},
		{
			name:      "RefreshFailed is not auth-fatal",
			err:       RefreshFailed(503, "down"),
			target:    ErrReauthenticate,
			wantMatch: false,
		},
		{
			name:      "wrapped Reauthenticate still matches",
			err:       fmt.Errorf("fetching cycles: %w", Reauthenticate("Not authenticated")),
			target:    ErrReauthenticate,
			wantMatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("credential", "1"),
			wantMessage: "credential not found with id 1",
		},
		{
			name:        "Reauthenticate appends the instruction",
			err:         Reauthenticate("Refresh token invalid"),
			wantMessage: "Refresh token invalid: user must re-authenticate",
		},
		{
			name:        "Upstream carries status, path and body",
			err:         Upstream(404, "/v2/recovery", "missing"),
			wantMessage: "WHOOP API error 404 on /v2/recovery: missing",
		},
		{
			name:        "RefreshFailed carries status and body",
			err:         RefreshFailed(500, "oops"),
			wantMessage: "Token refresh failed (500): oops",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestIsAuthFatal(t *testing.T) {
	if !IsAuthFatal(fmt.Errorf("sync: %w", Reauthenticate("x"))) {
		t.Error("wrapped Reauthenticate should be auth-fatal")
	}
	if IsAuthFatal(DailyLimit()) {
		t.Error("DailyLimit should not be auth-fatal")
	}
	if IsAuthFatal(nil) {
		t.Error("nil should not be auth-fatal")
	}
}

func TestUpstreamStatusCode(t *testing.T) {
	err := Upstream(502, "/v2/cycle", "bad gateway")

	if err.StatusCode != 502 {
		t.Errorf("StatusCode = %d, want %d", err.StatusCode, 502)
	}
}
