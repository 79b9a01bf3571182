// Package store provides persistence for the operator's trade log, P&L
// snapshots and the action audit trail.
package store

import (
	"context"
	"time"

	"botwatch/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Trade log
	SaveLogEntry(ctx context.Context, entry models.LogEntry) error
	GetLogEntries(ctx context.Context, filter LogFilter) ([]models.LogEntry, error)

	// P&L history
	SavePnLSnapshot(ctx context.Context, snap models.PnLSnapshot) error
	GetPnLSnapshots(ctx context.Context, filter DateRange) ([]models.PnLSnapshot, error)

	// Action audit
	SaveAction(ctx context.Context, rec models.ActionRecord) error
	GetActions(ctx context.Context, filter ActionFilter) ([]models.ActionRecord, error)

	// Sync
	GetLastSync(dataType string) time.Time
	SetLastSync(dataType string, t time.Time) error

	// Lifecycle
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

// DateRange bounds a query in time. Zero values are open ends.
type DateRange struct {
	Start time.Time
	End   time.Time
	Limit int
}

// LogFilter represents filters for querying trade log entries.
type LogFilter struct {
	DateRange
	Levels []models.LogLevel
	// Contains matches a substring of the message.
	Contains string
}

// ActionFilter represents filters for querying audited actions.
type ActionFilter struct {
	DateRange
	Kind    string
	Outcome string
}

// SyncPoll is the sync key of the last successful poll cycle.
const SyncPoll = "poll"
