// Package auth handles the WHOOP OAuth flow and the browser session cookie.
//
// OAUTH FLOW:
//  1. /auth/login redirects to AuthURL(state) with a random state cookie
//  2. WHOOP redirects back to /auth/callback?code=...&state=...
//  3. Exchange(code) trades the code for an access + refresh token pair
//  4. Refresh(refreshToken) is used by the sync client whenever the access
//     token is about to expire; WHOOP rotates the refresh token every time
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// WHOOP endpoints and the scopes this application asks for.
const (
	DefaultAuthURL  = "https://api.prod.whoop.com/oauth/oauth2/auth"
	DefaultTokenURL = "https://api.prod.whoop.com/oauth/oauth2/token"
)

var Scopes = []string{
	"read:recovery",
	"read:cycles",
	"read:workout",
	"read:sleep",
	"read:profile",
	"read:body_measurement",
	"offline",
}

type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
}

// WhoopProvider wraps an oauth2.Config for the WHOOP authorization server.
type WhoopProvider struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewWhoopProvider builds the provider. A nil httpClient uses http.DefaultClient.
func NewWhoopProvider(cfg ProviderConfig, httpClient *http.Client) *WhoopProvider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WhoopProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
				// WHOOP expects client credentials in the form body.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

// AuthURL returns the authorization URL carrying client_id, redirect_uri,
// response_type=code, scope and state.
func (p *WhoopProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token pair.
func (p *WhoopProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := p.config.Exchange(p.clientContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}
	return tok, nil
}

// Refresh runs the refresh_token grant. Errors are returned unwrapped so the
// caller can inspect *oauth2.RetrieveError for the HTTP status.
func (p *WhoopProvider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := p.config.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}

func (p *WhoopProvider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// TokenScope returns the granted scope string from the token response.
func TokenScope(tok *oauth2.Token) string {
	if s, ok := tok.Extra("scope").(string); ok {
		return s
	}
	return strings.Join(Scopes, " ")
}

// TokenExpiresIn returns the token lifetime in seconds as reported by the
// token endpoint, falling back to the parsed expiry.
func TokenExpiresIn(tok *oauth2.Token, now time.Time) int64 {
	if tok.ExpiresIn > 0 {
		return tok.ExpiresIn
	}
	if tok.Expiry.IsZero() {
		return 0
	}
	return int64(tok.Expiry.Sub(now).Seconds())
}
