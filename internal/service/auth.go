package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"
	"golang.org/x/oauth2"

	"github.com/sakif/healthos/internal/apperror"
	"github.com/sakif/healthos/internal/auth"
	"github.com/sakif/healthos/internal/repository"
)

// OAuthProvider is the authorization-code side of the WHOOP OAuth flow.
// *auth.WhoopProvider satisfies it.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// AuthService connects the single WHOOP account and issues the browser
// session that guards the local API.
//
//	AuthHandler (HTTP) → AuthService → OAuthProvider (WHOOP token endpoint)
//	                                 ↘ CredentialRepository (auth_tokens row)
//	                                 ↘ TokenService (session JWT)
type AuthService struct {
	provider    OAuthProvider
	credentials repository.CredentialRepository
	sessions    *auth.TokenService
	now         func() time.Time
	logger      *slog.Logger
}

func NewAuthService(
	provider OAuthProvider,
	credentials repository.CredentialRepository,
	sessions *auth.TokenService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		provider:    provider,
		credentials: credentials,
		sessions:    sessions,
		now:         time.Now,
		logger:      logger,
	}
}

// LoginURL returns the WHOOP authorization URL and the state value the
// callback must echo back.
func (s *AuthService) LoginURL() (string, string, error) {
	state, err := auth.NewState()
	if err != nil {
		return "", "", fmt.Errorf("service/auth: generating state: %w", err)
	}
	return s.provider.AuthURL(state), state, nil
}

// LoginResult is what a completed OAuth callback produces: the session JWT
// to put in the cookie.
type LoginResult struct {
	SessionID    string
	SessionToken string
}

// CompleteLogin validates the callback state, exchanges the code for tokens,
// stores the credential and starts a session.
func (s *AuthService) CompleteLogin(ctx context.Context, code, state, expectedState string) (*LoginResult, error) {
	if code == "" {
		return nil, apperror.ValidationFailed("code", "Missing authorization code")
	}
	if state == "" || state != expectedState {
		return nil, apperror.Forbidden("Invalid OAuth state")
	}

	tok, err := s.provider.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, apperror.Upstream(re.Response.StatusCode, "token exchange", string(re.Body))
		}
		return nil, apperror.Unavailable("Token exchange failed: " + err.Error())
	}

	expiresIn := auth.TokenExpiresIn(tok, s.now())
	scope := auth.TokenScope(tok)
	if err := s.credentials.SaveCredential(ctx, tok.AccessToken, tok.RefreshToken, expiresIn, scope); err != nil {
		return nil, fmt.Errorf("service/auth: saving credential: %w", err)
	}

	sessionID := xid.New().String()
	session, err := s.sessions.Generate(sessionID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating session: %w", err)
	}

	s.logger.Info("WHOOP account connected",
		slog.String("session_id", sessionID),
		slog.Int64("expires_in", expiresIn),
		slog.String("scope", scope),
	)
	return &LoginResult{SessionID: sessionID, SessionToken: session}, nil
}

// AuthStatus describes the stored credential without exposing the tokens.
type AuthStatus struct {
	Authenticated bool       `json:"authenticated"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Expired       bool       `json:"expired"`
	Scopes        []string   `json:"scopes,omitempty"`
}

func (s *AuthService) Status(ctx context.Context) (*AuthStatus, error) {
	cred, err := s.credentials.GetCredential(ctx)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return &AuthStatus{}, nil
		}
		return nil, fmt.Errorf("service/auth: loading credential: %w", err)
	}

	expiresAt := time.Unix(cred.ExpiresAt, 0).UTC()
	return &AuthStatus{
		Authenticated: true,
		ExpiresAt:     &expiresAt,
		// an expired access token is refreshed on the next call, so the
		// account is still connected
		Expired: !expiresAt.After(s.now()),
		Scopes:  strings.Fields(cred.Scope),
	}, nil
}

// Logout forgets the WHOOP credential. Cached health data is kept.
func (s *AuthService) Logout(ctx context.Context) error {
	if err := s.credentials.DeleteCredential(ctx); err != nil {
		return fmt.Errorf("service/auth: deleting credential: %w", err)
	}
	s.logger.Info("WHOOP account disconnected")
	return nil
}

// ValidateSession returns the session ID carried by a session JWT.
func (s *AuthService) ValidateSession(token string) (string, error) {
	id, err := s.sessions.Validate(token)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return id, nil
}
