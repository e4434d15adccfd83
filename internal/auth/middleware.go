package auth

import (
	"context"
	"net/http"
)

// SessionCookie is the name of the browser session cookie.
const SessionCookie = "healthos_session"

// contextKey is private to this package, so no other package can read or
// overwrite the session ID stored in a request context.
type contextKey string

const sessionIDKey contextKey = "sessionID"

// RequireSession rejects requests without a valid session cookie.
//
// It wraps next the usual chi way:
//
//	r.Use(auth.RequireSession(tokens))
//	  request → RequireSession → (401 and stop) or (ctx += sessionID) → next
//
// Handlers further down can read the session with SessionIDFromContext.
func RequireSession(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID, err := extractSessionID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"Not authenticated"}`))
				return
			}

			ctx := context.WithValue(r.Context(), sessionIDKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}

// HasSession reports whether r carries a valid session cookie.
func HasSession(r *http.Request, tokens *TokenService) bool {
	_, err := extractSessionID(r, tokens)
	return err == nil
}

func extractSessionID(r *http.Request, tokens *TokenService) (string, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", err
	}
	return tokens.Validate(cookie.Value)
}
