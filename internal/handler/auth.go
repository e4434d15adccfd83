package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/healthos/internal/auth"
	"github.com/sakif/healthos/internal/service"
)

const stateCookie = "oauth_state"

// AuthService is the part of *service.AuthService the handler needs.
type AuthService interface {
	LoginURL() (string, string, error)
	CompleteLogin(ctx context.Context, code, state, expectedState string) (*service.LoginResult, error)
	Status(ctx context.Context) (*service.AuthStatus, error)
	Logout(ctx context.Context) error
}

// AuthHandler serves the WHOOP OAuth flow under /auth.
type AuthHandler struct {
	auth       AuthService
	sessionTTL time.Duration
	logger     *slog.Logger
}

func NewAuthHandler(svc AuthService, sessionTTL time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:       svc,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

// HandleLogin redirects to the WHOOP consent page. The state goes into a
// short-lived cookie and is checked on the callback.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	url, state, err := h.auth.LoginURL()
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// HandleCallback finishes the authorization-code flow and starts a session.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	expected := ""
	if c, err := r.Cookie(stateCookie); err == nil {
		expected = c.Value
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("auth callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	res, err := h.auth.CompleteLogin(r.Context(), q.Get("code"), q.Get("state"), expected)
	if err != nil {
		h.logger.Warn("auth callback failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    res.SessionToken,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/#dashboard", http.StatusSeeOther)
}

func (h *AuthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.auth.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleLogout deletes the stored credential and the session cookie.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
