// Package app is the composition root: it builds the dependency graph shared
// by the HTTP server and the healthctl CLI.
//
//	config → sqlite.DB → ratelimit.Limiter ─┐
//	       → auth.WhoopProvider → whoop.TokenManager → whoop.Client → SyncService
//	                                                    sqlite.DB ─┘
package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/healthos/internal/auth"
	"github.com/sakif/healthos/internal/config"
	"github.com/sakif/healthos/internal/ratelimit"
	"github.com/sakif/healthos/internal/repository/sqlite"
	"github.com/sakif/healthos/internal/service"
	"github.com/sakif/healthos/internal/whoop"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger

	DB       *sqlite.DB
	Limiter  *ratelimit.Limiter
	Provider *auth.WhoopProvider
	Sessions *auth.TokenService
	Tokens   *whoop.TokenManager
	Client   *whoop.Client

	Auth *service.AuthService
	Sync *service.SyncService
	Data *service.DataService

	// SessionsRequired is false when no JWT secret is configured. The API
	// is then open to anyone who can reach the port.
	SessionsRequired bool
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "." && cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("app: creating database directory %s: %w", dir, err)
		}
	}

	db, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("app: opening database: %w", err)
	}

	secret := cfg.Auth.JWTSecret
	sessionsRequired := secret != ""
	if !sessionsRequired {
		logger.Warn("JWT_SECRET not set: API sessions are disabled")
		if secret, err = randomSecret(); err != nil {
			db.Close()
			return nil, err
		}
	}
	sessions, err := auth.NewTokenService(secret, cfg.Auth.SessionTTL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("app: session tokens: %w", err)
	}

	if !cfg.Whoop.Configured() {
		logger.Warn("WHOOP_CLIENT_ID / WHOOP_CLIENT_SECRET not set: login will fail")
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	provider := auth.NewWhoopProvider(auth.ProviderConfig{
		ClientID:     cfg.Whoop.ClientID,
		ClientSecret: cfg.Whoop.ClientSecret,
		RedirectURL:  cfg.Whoop.RedirectURI,
		AuthURL:      cfg.Whoop.AuthURL,
		TokenURL:     cfg.Whoop.TokenURL,
	}, httpClient)

	limiter := ratelimit.New(ratelimit.Config{
		PerMinute: cfg.Sync.MaxPerMinute,
		PerDay:    cfg.Sync.MaxPerDay,
	}, logger)
	tokens := whoop.NewTokenManager(db, provider, logger)
	client := whoop.New(whoop.Config{
		BaseURL:     cfg.Whoop.APIBaseURL,
		MaxAttempts: cfg.Sync.MaxAttempts,
	}, httpClient, limiter, tokens, logger)

	return &App{
		Config:           cfg,
		Logger:           logger,
		DB:               db,
		Limiter:          limiter,
		Provider:         provider,
		Sessions:         sessions,
		Tokens:           tokens,
		Client:           client,
		Auth:             service.NewAuthService(provider, db, sessions, logger),
		Sync:             service.NewSyncService(client, db, db, logger),
		Data:             service.NewDataService(db, logger),
		SessionsRequired: sessionsRequired,
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("app: generating session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
