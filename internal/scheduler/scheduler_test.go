package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/healthos/internal/apperror"
	"github.com/sakif/healthos/internal/model"
)

type fakeSyncer struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSyncer) SyncAll(context.Context, chan<- model.SyncEvent) ([]model.SyncResult, error) {
	f.calls.Add(1)
	return []model.SyncResult{{DataType: model.DataProfile, Status: model.StatusCompleted, Count: 1}}, f.err
}

type fakeCredentials struct {
	err error
}

func (f fakeCredentials) GetCredential(context.Context) (*model.Credential, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Credential{AccessToken: "a"}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRunOnce(t *testing.T) {
	tests := []struct {
		name      string
		credErr   error
		syncErr   error
		wantRan   bool
		wantCalls int32
	}{
		{"connected", nil, nil, true, 1},
		{"not connected", apperror.NotFound("credential", "1"), nil, false, 0},
		{"store failure", errors.New("disk gone"), nil, false, 0},
		{"already running", nil, apperror.Conflict("sync", "x"), false, 1},
		{"auth fatal", nil, apperror.Reauthenticate("Refresh token invalid"), true, 1},
		{"interrupted", nil, context.Canceled, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &fakeSyncer{err: tt.syncErr}
			s := New(syncer, fakeCredentials{err: tt.credErr}, time.Hour, testLogger())

			assert.Equal(t, tt.wantRan, s.RunOnce(context.Background()))
			assert.Equal(t, tt.wantCalls, syncer.calls.Load())
		})
	}
}

func TestServe_TicksUntilCancelled(t *testing.T) {
	syncer := &fakeSyncer{}
	s := New(syncer, fakeCredentials{}, 5*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	require.Eventually(t, func() bool { return syncer.calls.Load() >= 2 },
		time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Equal(t, "sync-scheduler", s.String())
}
