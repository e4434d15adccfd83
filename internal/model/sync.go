// Package model defines the data structures used throughout the application.
package model

import (
	"fmt"
	"time"
)

// DataType names one category of WHOOP data. Each has its own table and
// one sync_metadata row.
type DataType string

const (
	DataProfile          DataType = "profile"
	DataBodyMeasurements DataType = "body_measurements"
	DataCycles           DataType = "cycles"
	DataRecovery         DataType = "recovery"
	DataSleep            DataType = "sleep"
	DataWorkouts         DataType = "workouts"
)

// SyncOrder is the order a full sync walks the data types in.
var SyncOrder = []DataType{
	DataProfile,
	DataBodyMeasurements,
	DataCycles,
	DataRecovery,
	DataSleep,
	DataWorkouts,
}

// ParseDataType validates a data type coming from a URL or CLI flag.
func ParseDataType(s string) (DataType, error) {
	for _, dt := range SyncOrder {
		if string(dt) == s {
			return dt, nil
		}
	}
	return "", fmt.Errorf("unknown data type: %s", s)
}

// Windowed reports whether the type is fetched as a paginated, time-windowed list.
// Profile and body measurements are single-object endpoints.
func (d DataType) Windowed() bool {
	return d != DataProfile && d != DataBodyMeasurements
}

type SyncStatus string

const (
	StatusNever     SyncStatus = "never"
	StatusSyncing   SyncStatus = "syncing"
	StatusCompleted SyncStatus = "completed"
	StatusError     SyncStatus = "error"
)

// SyncMetadata is the per-type sync checkpoint.
// LastSyncedAt only moves forward on a completed sync.
type SyncMetadata struct {
	DataType     DataType   `json:"data_type"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	Status       SyncStatus `json:"status"`
	ErrorMessage *string    `json:"error_message"`
	RecordCount  int        `json:"record_count"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Window is the time range requested from the upstream API.
// A nil Start means "full history".
type Window struct {
	Start *time.Time `json:"start"`
	End   time.Time  `json:"end"`
}

// SyncResult is what a single data type sync resolves to.
// Err keeps the typed error so callers can use errors.Is.
type SyncResult struct {
	DataType DataType   `json:"type"`
	Status   SyncStatus `json:"status"`
	Count    int        `json:"count"`
	Error    string     `json:"error,omitempty"`
	Err      error      `json:"-"`
}

type EventKind string

const (
	EventStarted   EventKind = "started"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
)

// SyncEvent is one progress message emitted while a sync runs.
type SyncEvent struct {
	RunID    string    `json:"run_id"`
	Kind     EventKind `json:"kind"`
	DataType DataType  `json:"data_type"`
	Message  string    `json:"message"`
	Count    int       `json:"count,omitempty"`
	Time     time.Time `json:"time"`
}
