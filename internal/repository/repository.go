package repository

import (
	"context"
	"time"

	"github.com/sakif/healthos/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// CredentialRepository stores the single OAuth credential.
// GetCredential returns apperror.ErrNotFound when nobody is logged in.
type CredentialRepository interface {
	SaveCredential(ctx context.Context, accessToken, refreshToken string, expiresIn int64, scope string) error
	GetCredential(ctx context.Context) (*model.Credential, error)
	DeleteCredential(ctx context.Context) error
}

// RecordRepository upserts fetched records keyed by their upstream id.
type RecordRepository interface {
	UpsertProfile(ctx context.Context, p *model.Profile) error
	ReplaceBodyMeasurements(ctx context.Context, b *model.BodyMeasurements) error
	UpsertCycle(ctx context.Context, c *model.Cycle) error
	UpsertRecovery(ctx context.Context, r *model.Recovery) error
	UpsertSleep(ctx context.Context, s *model.Sleep) error
	UpsertWorkout(ctx context.Context, w *model.Workout) error
}

type SyncMetadataRepository interface {
	GetSyncStatus(ctx context.Context, dt model.DataType) (*model.SyncMetadata, error)
	ListSyncStatus(ctx context.Context) ([]model.SyncMetadata, error)
	MarkSyncing(ctx context.Context, dt model.DataType) error
	MarkCompleted(ctx context.Context, dt model.DataType, syncedAt time.Time) error
	MarkFailed(ctx context.Context, dt model.DataType, message string) error
}

// QueryRepository serves the read side over the local cache.
type QueryRepository interface {
	ListCycles(ctx context.Context, opts ListOptions) ([]model.CycleRow, error)
	ListRecoveries(ctx context.Context, opts ListOptions) ([]model.RecoveryRow, error)
	ListSleeps(ctx context.Context, opts ListOptions) ([]model.SleepRow, error)
	ListWorkouts(ctx context.Context, opts ListOptions) ([]model.WorkoutRow, error)
	CountRecords(ctx context.Context, dt model.DataType) (int, error)
	GetProfile(ctx context.Context) (*model.ProfileRow, error)
	GetBodyMeasurements(ctx context.Context) (*model.BodyMeasurementsRow, error)
	LatestRecovery(ctx context.Context) (*model.RecoveryRow, error)
	LatestCycle(ctx context.Context) (*model.CycleRow, error)
	LatestSleep(ctx context.Context) (*model.SleepRow, error)
	// Series returns points with start_time >= since, oldest first.
	// A nil since returns the full history.
	Series(ctx context.Context, since *time.Time, workoutLimit int) (*model.Series, error)
}
