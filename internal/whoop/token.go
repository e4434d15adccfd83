package whoop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/healthos/internal/apperror"
	"github.com/sakif/healthos/internal/auth"
	"github.com/sakif/healthos/internal/metrics"
	"github.com/sakif/healthos/internal/model"
	"github.com/sakif/healthos/internal/repository"
)

// RefreshMargin is how close to expiry an access token gets refreshed
// before use.
const RefreshMargin = 60 * time.Second

// Refresher runs the OAuth refresh_token grant. *auth.WhoopProvider
// satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// TokenManager hands out valid access tokens and rotates the stored
// credential when they expire.
//
// Refreshes are serialized: WHOOP invalidates a refresh token once it has
// been used, so two concurrent refreshes with the same token would log the
// user out.
//
// REFRESH TOKEN ROTATION:
// Every refresh_token grant returns a NEW access token AND a NEW refresh
// token. The old refresh token stops working the moment WHOOP answers:
//
//	goroutine A: read refresh=R1 → POST R1 → gets (A2, R2) → save R2
//	goroutine B: read refresh=R1 → POST R1 → 400 invalid_grant
//
// Without the mutex, B would see invalid_grant, treat it as a revoked login
// and delete the credential A just saved. With the mutex, B waits, re-reads
// the credential, finds A2 still fresh and never calls the token endpoint.
type TokenManager struct {
	mu        sync.Mutex
	store     repository.CredentialRepository
	refresher Refresher
	now       func() time.Time
	logger    *slog.Logger
}

func NewTokenManager(store repository.CredentialRepository, refresher Refresher, logger *slog.Logger) *TokenManager {
	return &TokenManager{
		store:     store,
		refresher: refresher,
		now:       time.Now,
		logger:    logger,
	}
}

// ValidToken returns an access token that is good for at least RefreshMargin,
// refreshing the credential first when needed.
func (m *TokenManager) ValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.credential(ctx)
	if err != nil {
		return "", err
	}
	if !cred.ExpiresWithin(m.now(), RefreshMargin) {
		return cred.AccessToken, nil
	}

	m.logger.Info("access token near expiry, refreshing",
		slog.Int64("expires_at", cred.ExpiresAt))
	cred, err = m.refreshLocked(ctx, cred)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// Refresh forces a refresh, used after the API rejected the access token.
func (m *TokenManager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.credential(ctx)
	if err != nil {
		return err
	}
	_, err = m.refreshLocked(ctx, cred)
	return err
}

func (m *TokenManager) credential(ctx context.Context) (*model.Credential, error) {
	cred, err := m.store.GetCredential(ctx)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Reauthenticate("Not authenticated")
		}
		return nil, fmt.Errorf("whoop: loading credential: %w", err)
	}
	return cred, nil
}

// refreshLocked exchanges the refresh token and stores the rotated pair.
// A 400/401 from the token endpoint means the refresh token is dead: the
// credential is deleted and the error is auth-fatal. Anything else is
// transient and the credential is kept.
func (m *TokenManager) refreshLocked(ctx context.Context, cred *model.Credential) (*model.Credential, error) {
	tok, err := m.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			status := re.Response.StatusCode
			if status == http.StatusBadRequest || status == http.StatusUnauthorized {
				metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
				m.logger.Warn("refresh token rejected, deleting credential",
					slog.Int("status", status))
				if delErr := m.store.DeleteCredential(ctx); delErr != nil {
					m.logger.Error("failed to delete credential",
						slog.String("error", delErr.Error()))
				}
				return nil, apperror.Reauthenticate("Refresh token invalid")
			}
			metrics.TokenRefreshes.WithLabelValues("failed").Inc()
			return nil, apperror.RefreshFailed(status, string(re.Body))
		}

		metrics.TokenRefreshes.WithLabelValues("failed").Inc()
		return nil, apperror.Unavailable("Token refresh failed: " + err.Error())
	}

	now := m.now()
	scope := cred.Scope
	if s, ok := tok.Extra("scope").(string); ok && s != "" {
		scope = s
	}
	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = cred.RefreshToken
	}
	expiresIn := auth.TokenExpiresIn(tok, now)

	if err := m.store.SaveCredential(ctx, tok.AccessToken, refreshToken, expiresIn, scope); err != nil {
		return nil, fmt.Errorf("whoop: saving refreshed credential: %w", err)
	}
	metrics.TokenRefreshes.WithLabelValues("ok").Inc()
	m.logger.Info("access token refreshed", slog.Int64("expires_in", expiresIn))

	return &model.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Unix() + expiresIn,
		Scope:        scope,
		UpdatedAt:    now,
	}, nil
}
