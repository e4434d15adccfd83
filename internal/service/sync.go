// Package service holds the business logic between the HTTP handlers and
// the repositories:
//
//	Handler (HTTP) → Service (rules, orchestration) → Repository (SQLite)
//	                         ↘ whoop.Client (upstream)
//
// Services take interfaces and primitive arguments so they can be driven
// from the HTTP API, the background scheduler and the CLI alike.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/healthos/internal/apperror"
	"github.com/sakif/healthos/internal/metrics"
	"github.com/sakif/healthos/internal/model"
	"github.com/sakif/healthos/internal/repository"
)

// Overlap is how far before the last successful sync an incremental window
// starts. Scores are often finalized hours after a record first appears.
const Overlap = 2 * time.Hour

// Fetcher is the upstream side of a sync. *whoop.Client satisfies it.
type Fetcher interface {
	FetchProfile(ctx context.Context) (*model.Profile, error)
	FetchBodyMeasurements(ctx context.Context) (*model.BodyMeasurements, error)
	FetchCycles(ctx context.Context, w model.Window) ([]model.Cycle, error)
	FetchRecovery(ctx context.Context, w model.Window) ([]model.Recovery, error)
	FetchSleep(ctx context.Context, w model.Window) ([]model.Sleep, error)
	FetchWorkouts(ctx context.Context, w model.Window) ([]model.Workout, error)
}

// SyncService pulls data from the upstream API into the local store and
// keeps the per-type sync_metadata checkpoints.
//
// Only one sync runs at a time. A second SyncAll or SyncDataType while one
// is in flight fails with apperror.ErrConflict.
type SyncService struct {
	fetcher  Fetcher
	records  repository.RecordRepository
	metadata repository.SyncMetadataRepository
	now      func() time.Time
	logger   *slog.Logger

	running sync.Mutex
}

func NewSyncService(
	fetcher Fetcher,
	records repository.RecordRepository,
	metadata repository.SyncMetadataRepository,
	logger *slog.Logger,
) *SyncService {
	return &SyncService{
		fetcher:  fetcher,
		records:  records,
		metadata: metadata,
		now:      time.Now,
		logger:   logger,
	}
}

var errSyncInProgress = &apperror.AppError{
	Err:     apperror.ErrConflict,
	Message: "sync already in progress",
}

// run is the state of one SyncAll or SyncDataType call.
type run struct {
	id     string
	events chan<- model.SyncEvent
}

func (s *SyncService) begin(events chan<- model.SyncEvent) (*run, error) {
	if !s.running.TryLock() {
		return nil, errSyncInProgress
	}
	return &run{id: xid.New().String(), events: events}, nil
}

func (s *SyncService) end() {
	s.running.Unlock()
}

// SyncDataType syncs a single data type. The per-type outcome, including
// failures, is in the returned SyncResult. The error is only non-nil when
// the sync could not start.
func (s *SyncService) SyncDataType(ctx context.Context, dt model.DataType, events chan<- model.SyncEvent) (model.SyncResult, error) {
	if _, err := model.ParseDataType(string(dt)); err != nil {
		return model.SyncResult{}, apperror.ValidationFailed("type", err.Error())
	}
	r, err := s.begin(events)
	if err != nil {
		return model.SyncResult{}, err
	}
	defer s.end()

	return s.syncOne(ctx, r, dt), nil
}

// SyncAll syncs every data type in model.SyncOrder. A failed type is
// recorded and the next one runs; an auth-fatal failure stops the sequence
// and is returned alongside the results gathered so far.
//
// Cancelling ctx stops the sequence before the next type starts. Types that
// never started keep the status of their last real attempt.
func (s *SyncService) SyncAll(ctx context.Context, events chan<- model.SyncEvent) ([]model.SyncResult, error) {
	r, err := s.begin(events)
	if err != nil {
		return nil, err
	}
	defer s.end()

	s.logger.Info("[sync] starting full sync", slog.String("run_id", r.id))

	results := make([]model.SyncResult, 0, len(model.SyncOrder))
	for _, dt := range model.SyncOrder {
		if err := ctx.Err(); err != nil {
			s.logger.Info("[sync] full sync interrupted",
				slog.String("run_id", r.id),
				slog.String("next", string(dt)))
			return results, err
		}

		res := s.syncOne(ctx, r, dt)
		results = append(results, res)

		if apperror.IsAuthFatal(res.Err) {
			s.logger.Warn("[sync] aborting full sync",
				slog.String("run_id", r.id),
				slog.String("data_type", string(dt)),
				slog.String("error", res.Error))
			return results, res.Err
		}
	}

	s.logger.Info("[sync] full sync finished", slog.String("run_id", r.id))
	return results, nil
}

// Window returns the fetch window the next sync of dt would use.
func (s *SyncService) Window(ctx context.Context, dt model.DataType) (model.Window, error) {
	meta, err := s.metadata.GetSyncStatus(ctx, dt)
	if err != nil {
		return model.Window{}, err
	}
	return windowFor(meta, s.now()), nil
}

// Status returns the sync_metadata rows for all data types.
func (s *SyncService) Status(ctx context.Context) ([]model.SyncMetadata, error) {
	return s.metadata.ListSyncStatus(ctx)
}

// Running reports whether a sync is in flight.
func (s *SyncService) Running() bool {
	if s.running.TryLock() {
		s.running.Unlock()
		return false
	}
	return true
}

func windowFor(meta *model.SyncMetadata, now time.Time) model.Window {
	w := model.Window{End: now}
	if meta.Status == model.StatusNever || meta.LastSyncedAt == nil {
		return w
	}
	start := meta.LastSyncedAt.Add(-Overlap)
	w.Start = &start
	return w
}

// syncOne runs the metadata state machine for one type:
// never|completed|error → syncing → completed|error.
func (s *SyncService) syncOne(ctx context.Context, r *run, dt model.DataType) model.SyncResult {
	started := s.now()
	log := s.logger.With(slog.String("run_id", r.id), slog.String("data_type", string(dt)))

	s.emit(ctx, r, model.EventStarted, dt, "Starting...", 0)

	count, err := s.fetchAndStore(ctx, r, dt, log)
	if err != nil {
		return s.fail(ctx, r, dt, log, err)
	}

	if err := s.metadata.MarkCompleted(ctx, dt, s.now()); err != nil {
		return s.fail(ctx, r, dt, log, fmt.Errorf("marking %s completed: %w", dt, err))
	}

	metrics.SyncDuration.WithLabelValues(string(dt)).Observe(s.now().Sub(started).Seconds())
	metrics.SyncRecords.WithLabelValues(string(dt)).Add(float64(count))
	metrics.SyncLastSuccess.WithLabelValues(string(dt)).Set(float64(s.now().Unix()))

	msg := fmt.Sprintf("Completed: %d records processed", count)
	log.Info("[sync] "+msg, slog.Int("count", count))
	s.emit(ctx, r, model.EventCompleted, dt, msg, count)

	return model.SyncResult{DataType: dt, Status: model.StatusCompleted, Count: count}
}

func (s *SyncService) fetchAndStore(ctx context.Context, r *run, dt model.DataType, log *slog.Logger) (int, error) {
	// Read the checkpoint before marking syncing so the window is based on
	// the last completed sync.
	meta, err := s.metadata.GetSyncStatus(ctx, dt)
	if err != nil {
		return 0, err
	}
	if err := s.metadata.MarkSyncing(ctx, dt); err != nil {
		return 0, err
	}

	if !dt.Windowed() {
		return s.syncSingleton(ctx, dt)
	}

	w := windowFor(meta, s.now())
	msg := "Fetching full history"
	if w.Start != nil {
		msg = fmt.Sprintf("Fetching from %s to %s",
			w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
	}
	log.Info("[sync] " + msg)
	s.emit(ctx, r, model.EventProgress, dt, msg, 0)

	switch dt {
	case model.DataCycles:
		return fetchUpsert(ctx, w, s.fetcher.FetchCycles, s.records.UpsertCycle)
	case model.DataRecovery:
		return fetchUpsert(ctx, w, s.fetcher.FetchRecovery, s.records.UpsertRecovery)
	case model.DataSleep:
		return fetchUpsert(ctx, w, s.fetcher.FetchSleep, s.records.UpsertSleep)
	case model.DataWorkouts:
		return fetchUpsert(ctx, w, s.fetcher.FetchWorkouts, s.records.UpsertWorkout)
	}
	return 0, apperror.ValidationFailed("type", "unknown data type: "+string(dt))
}

func (s *SyncService) syncSingleton(ctx context.Context, dt model.DataType) (int, error) {
	switch dt {
	case model.DataProfile:
		p, err := s.fetcher.FetchProfile(ctx)
		if err != nil {
			return 0, err
		}
		if err := s.records.UpsertProfile(ctx, p); err != nil {
			return 0, err
		}
	case model.DataBodyMeasurements:
		b, err := s.fetcher.FetchBodyMeasurements(ctx)
		if err != nil {
			return 0, err
		}
		if err := s.records.ReplaceBodyMeasurements(ctx, b); err != nil {
			return 0, err
		}
	}
	return 1, nil
}

// fetchUpsert fetches every record in the window, then upserts them one by
// one. The count is records processed, not rows newly inserted.
func fetchUpsert[T any](
	ctx context.Context,
	w model.Window,
	fetch func(context.Context, model.Window) ([]T, error),
	upsert func(context.Context, *T) error,
) (int, error) {
	records, err := fetch(ctx, w)
	if err != nil {
		return 0, err
	}
	for i := range records {
		if err := upsert(ctx, &records[i]); err != nil {
			return i, err
		}
	}
	return len(records), nil
}

func (s *SyncService) fail(ctx context.Context, r *run, dt model.DataType, log *slog.Logger, err error) model.SyncResult {
	msg := err.Error()
	metrics.SyncErrors.WithLabelValues(string(dt)).Inc()
	log.Error("[sync] failed", slog.String("error", msg))

	// The caller's context may be what failed; the error state must still
	// be recorded.
	markCtx := context.WithoutCancel(ctx)
	if mErr := s.metadata.MarkFailed(markCtx, dt, msg); mErr != nil {
		log.Error("[sync] recording failure", slog.String("error", mErr.Error()))
	}

	s.emit(ctx, r, model.EventFailed, dt, msg, 0)
	return model.SyncResult{DataType: dt, Status: model.StatusError, Error: msg, Err: err}
}

// emit delivers a progress event. Sends block until the receiver reads or
// ctx is done; a nil channel disables events.
func (s *SyncService) emit(ctx context.Context, r *run, kind model.EventKind, dt model.DataType, msg string, count int) {
	if r.events == nil {
		return
	}
	ev := model.SyncEvent{
		RunID:    r.id,
		Kind:     kind,
		DataType: dt,
		Message:  msg,
		Count:    count,
		Time:     s.now(),
	}
	select {
	case r.events <- ev:
	case <-ctx.Done():
	}
}
