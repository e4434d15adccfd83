// Package scheduler runs the periodic background sync.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sakif/healthos/internal/apperror"
	"github.com/sakif/healthos/internal/model"
)

type Syncer interface {
	SyncAll(ctx context.Context, events chan<- model.SyncEvent) ([]model.SyncResult, error)
}

// CredentialReader tells the scheduler whether an account is connected.
type CredentialReader interface {
	GetCredential(ctx context.Context) (*model.Credential, error)
}

// Service is a suture.Service that runs a full sync every interval.
// Ticks are skipped while no account is connected or a sync started
// elsewhere is still running.
type Service struct {
	syncer      Syncer
	credentials CredentialReader
	interval    time.Duration
	logger      *slog.Logger
}

func New(syncer Syncer, credentials CredentialReader, interval time.Duration, logger *slog.Logger) *Service {
	return &Service{
		syncer:      syncer,
		credentials: credentials,
		interval:    interval,
		logger:      logger,
	}
}

// Serve implements suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sync scheduler started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one scheduled sync and reports whether it ran.
func (s *Service) RunOnce(ctx context.Context) bool {
	if _, err := s.credentials.GetCredential(ctx); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Debug("scheduled sync skipped: not authenticated")
		} else {
			s.logger.Error("scheduled sync skipped", slog.String("error", err.Error()))
		}
		return false
	}

	results, err := s.syncer.SyncAll(ctx, nil)
	switch {
	case errors.Is(err, apperror.ErrConflict):
		s.logger.Info("scheduled sync skipped: sync already running")
		return false
	case apperror.IsAuthFatal(err):
		s.logger.Warn("scheduled sync stopped, re-authentication required",
			slog.String("error", err.Error()))
	case errors.Is(err, context.Canceled):
		s.logger.Info("scheduled sync interrupted by shutdown",
			slog.Int("completed_types", len(results)))
		return true
	case err != nil:
		s.logger.Error("scheduled sync failed", slog.String("error", err.Error()))
	}

	failed := 0
	for _, r := range results {
		if r.Status == model.StatusError {
			failed++
		}
	}
	s.logger.Info("scheduled sync finished",
		slog.Int("types", len(results)),
		slog.Int("failed", failed))
	return true
}

func (s *Service) String() string {
	return "sync-scheduler"
}
