package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/healthos/internal/apperror"
	"github.com/sakif/healthos/internal/model"
	"github.com/sakif/healthos/internal/repository"
)

var _ repository.SyncMetadataRepository = (*DB)(nil)

// tables maps each data type to the table holding its records.
var tables = map[model.DataType]string{
	model.DataProfile:          "profile",
	model.DataBodyMeasurements: "body_measurements",
	model.DataCycles:           "cycles",
	model.DataRecovery:         "recovery",
	model.DataSleep:            "sleep",
	model.DataWorkouts:         "workouts",
}

func tableFor(dt model.DataType) (string, error) {
	table, ok := tables[dt]
	if !ok {
		return "", apperror.ValidationFailed("data_type", fmt.Sprintf("unknown data type: %s", dt))
	}
	return table, nil
}

func (db *DB) GetSyncStatus(ctx context.Context, dt model.DataType) (*model.SyncMetadata, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT data_type, last_synced_at, status, error_message, record_count, updated_at
		 FROM sync_metadata WHERE data_type = ?`, string(dt))
	m, err := scanMetadata(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("sync metadata", string(dt))
		}
		return nil, fmt.Errorf("sqlite: getting sync status %s: %w", dt, err)
	}
	return m, nil
}

// ListSyncStatus returns every metadata row ordered by data type.
func (db *DB) ListSyncStatus(ctx context.Context) ([]model.SyncMetadata, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT data_type, last_synced_at, status, error_message, record_count, updated_at
		 FROM sync_metadata ORDER BY data_type`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing sync status: %w", err)
	}
	defer rows.Close()

	out := make([]model.SyncMetadata, 0, len(tables))
	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning sync status row: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating sync status: %w", err)
	}
	return out, nil
}

// MarkSyncing flips the status and leaves last_synced_at alone.
func (db *DB) MarkSyncing(ctx context.Context, dt model.DataType) error {
	return db.updateStatus(ctx, dt, model.StatusSyncing, nil, nil)
}

// MarkCompleted is the only transition that advances last_synced_at.
func (db *DB) MarkCompleted(ctx context.Context, dt model.DataType, syncedAt time.Time) error {
	return db.updateStatus(ctx, dt, model.StatusCompleted, &syncedAt, nil)
}

func (db *DB) MarkFailed(ctx context.Context, dt model.DataType, message string) error {
	return db.updateStatus(ctx, dt, model.StatusError, nil, &message)
}

// updateStatus writes a status transition and refreshes record_count from
// the type's table in the same statement.
func (db *DB) updateStatus(ctx context.Context, dt model.DataType, status model.SyncStatus, syncedAt *time.Time, message *string) error {
	table, err := tableFor(dt)
	if err != nil {
		return err
	}

	// table comes from the fixed map above, never from input.
	query := fmt.Sprintf(
		`UPDATE sync_metadata
		 SET status = ?, error_message = ?, record_count = (SELECT COUNT(*) FROM %s),
		     last_synced_at = COALESCE(?, last_synced_at), updated_at = ?
		 WHERE data_type = ?`, table)

	var synced any
	if syncedAt != nil {
		synced = timestamp(*syncedAt)
	}

	res, err := db.conn.ExecContext(ctx, query,
		string(status), message, synced, timestamp(db.now()), string(dt))
	if err != nil {
		return fmt.Errorf("sqlite: updating sync status %s: %w", dt, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("sync metadata", string(dt))
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMetadata(s scanner) (*model.SyncMetadata, error) {
	var (
		m         model.SyncMetadata
		dt        string
		status    string
		lastSync  sql.NullString
		errMsg    sql.NullString
		updatedAt string
	)
	if err := s.Scan(&dt, &lastSync, &status, &errMsg, &m.RecordCount, &updatedAt); err != nil {
		return nil, err
	}
	m.DataType = model.DataType(dt)
	m.Status = model.SyncStatus(status)
	if lastSync.Valid {
		t, err := parseTimestamp(lastSync.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_synced_at: %w", err)
		}
		m.LastSyncedAt = &t
	}
	if errMsg.Valid {
		msg := errMsg.String
		m.ErrorMessage = &msg
	}
	t, err := parseTimestamp(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	m.UpdatedAt = t
	return &m, nil
}
