// Package server wires HTTP routes and runs the process under a suture
// supervisor.
//
// Supervision tree:
//
//	healthos (root)
//	├── http-server     (chi router)
//	└── sync-scheduler  (only when sync.interval > 0)
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/sakif/healthos/internal/app"
	"github.com/sakif/healthos/internal/auth"
	"github.com/sakif/healthos/internal/handler"
	"github.com/sakif/healthos/internal/middleware"
	"github.com/sakif/healthos/internal/scheduler"
)

type Server struct {
	app    *app.App
	router *chi.Mux
	logger *slog.Logger
}

func New(a *app.App) *Server {
	s := &Server{
		app:    a,
		router: chi.NewRouter(),
		logger: a.Logger,
	}
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	a := s.app
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	authHandler := handler.NewAuthHandler(a.Auth, a.Config.Auth.SessionTTL, s.logger)
	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", authHandler.HandleLogin)
		r.Get("/callback", authHandler.HandleCallback)
		r.Get("/status", authHandler.HandleStatus)
		r.Post("/logout", authHandler.HandleLogout)
	})

	syncHandler := handler.NewSyncHandler(a.Sync, s.logger)
	dataHandler := handler.NewDataHandler(a.Data, s.logger)
	r.Route("/api", func(r chi.Router) {
		if a.SessionsRequired {
			r.Use(auth.RequireSession(a.Sessions))
		}
		r.Use(handler.RequireCredential(a.DB))

		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", syncHandler.HandleStatus)
			r.Group(func(r chi.Router) {
				r.Use(httprate.LimitByIP(a.Config.Server.SyncRequestsPerMinute, time.Minute))
				r.Post("/all", syncHandler.HandleSyncAll)
				r.Get("/stream", syncHandler.HandleStream)
				r.Post("/{type}", syncHandler.HandleSyncType)
			})
		})

		r.Get("/dashboard", dataHandler.HandleDashboard)
		r.Get("/context", dataHandler.HandleContext)
		r.Get("/profile", dataHandler.HandleProfile)
		r.Get("/cycles", dataHandler.HandleCycles)
		r.Get("/recovery", dataHandler.HandleRecovery)
		r.Get("/sleep", dataHandler.HandleSleep)
		r.Get("/workouts", dataHandler.HandleWorkouts)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.app.DB.Ping(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, `{"status":"unavailable"}`)
		return
	}
	snap := s.app.Limiter.Snapshot()
	fmt.Fprintf(w, `{"status":"ok","sync_running":%t,"minute_remaining":%d,"day_remaining":%d}`,
		s.app.Sync.Running(), snap.MinuteRemaining, snap.DayRemaining)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.app.Config

	hook := &sutureslog.Handler{Logger: s.logger}
	root := suture.New("healthos", suture.Spec{
		EventHook: hook.MustHook(),
		Timeout:   cfg.Server.ShutdownTimeout,
	})

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// no WriteTimeout: sync requests and event streams run for minutes
		IdleTimeout: 60 * time.Second,
	}
	root.Add(newHTTPService(httpSrv, cfg.Server.ShutdownTimeout))

	if cfg.Sync.Interval > 0 {
		root.Add(scheduler.New(s.app.Sync, s.app.DB, cfg.Sync.Interval, s.logger))
	}

	s.logger.Info("server starting",
		slog.Int("port", cfg.Server.Port),
		slog.String("url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port)),
		slog.String("database", cfg.Database.Path),
		slog.Duration("sync_interval", cfg.Sync.Interval),
	)

	err := root.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("server: %w", err)
	}
	s.logger.Info("server stopped gracefully")
	return nil
}
