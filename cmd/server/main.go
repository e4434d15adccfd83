// Package main is the entry point for the healthos server.
//
// The main package stays small: load configuration, build the logger and the
// application graph, then hand control to the server until a signal arrives.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sakif/healthos/internal/app"
	"github.com/sakif/healthos/internal/config"
	"github.com/sakif/healthos/internal/logging"
	"github.com/sakif/healthos/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if !cfg.Whoop.Configured() {
		logger.Warn("WHOOP credentials missing; set WHOOP_CLIENT_ID, WHOOP_CLIENT_SECRET and WHOOP_REDIRECT_URI to enable login")
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.New(a).Run(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		a.Close()
		os.Exit(1)
	}
}
