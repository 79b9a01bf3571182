package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "botwatch/internal/errors"
	"botwatch/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	syncTimes map[string]time.Time
}

var _ DataStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-based data store, creating the parent
// directory when needed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabaseError, fmt.Sprintf("create database directory: %v", err))
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		syncTimes: make(map[string]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Operator trade log
	CREATE TABLE IF NOT EXISTS trade_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL
	);

	-- Aggregated P&L after each poll cycle that changed it
	CREATE TABLE IF NOT EXISTS pnl_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		gross_pl REAL NOT NULL,
		total_charges REAL NOT NULL,
		net_pl REAL NOT NULL,
		bot_status TEXT NOT NULL
	);

	-- Confirmed, failed and denied operator actions
	CREATE TABLE IF NOT EXISTS actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		kind TEXT NOT NULL,
		target TEXT,
		outcome TEXT NOT NULL,
		message TEXT
	);

	-- Sync metadata table
	CREATE TABLE IF NOT EXISTS sync_meta (
		data_type TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trade_log_ts ON trade_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_pnl_snapshots_ts ON pnl_snapshots(timestamp);
	CREATE INDEX IF NOT EXISTS idx_actions_ts ON actions(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func dbErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, apperrors.ErrDatabaseError, err)
}

// rangeClause appends the time bounds of r to query.
func rangeClause(query string, args []interface{}, r DateRange) (string, []interface{}) {
	if !r.Start.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, r.Start.UTC())
	}
	if !r.End.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, r.End.UTC())
	}
	return query, args
}

func limitClause(query string, args []interface{}, limit int) (string, []interface{}) {
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return query, args
}

// SaveLogEntry persists one trade log entry.
func (s *SQLiteStore) SaveLogEntry(ctx context.Context, entry models.LogEntry) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO trade_log (timestamp, level, message) VALUES (?, ?, ?)",
		entry.Timestamp.UTC(), string(entry.Level), entry.Message)
	if err != nil {
		return dbErr("save log entry", err)
	}
	return nil
}

// GetLogEntries returns log entries, newest first.
func (s *SQLiteStore) GetLogEntries(ctx context.Context, filter LogFilter) ([]models.LogEntry, error) {
	query := "SELECT timestamp, level, message FROM trade_log WHERE 1=1"
	args := []interface{}{}

	query, args = rangeClause(query, args, filter.DateRange)
	if len(filter.Levels) > 0 {
		placeholders := make([]string, len(filter.Levels))
		for i, lvl := range filter.Levels {
			placeholders[i] = "?"
			args = append(args, string(lvl))
		}
		query += " AND level IN (" + strings.Join(placeholders, ",") + ")"
	}
	if filter.Contains != "" {
		query += " AND message LIKE ?"
		args = append(args, "%"+filter.Contains+"%")
	}
	query += " ORDER BY timestamp DESC, id DESC"
	query, args = limitClause(query, args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbErr("query log entries", err)
	}
	defer rows.Close()

	entries := []models.LogEntry{}
	for rows.Next() {
		var e models.LogEntry
		var level string
		if err := rows.Scan(&e.Timestamp, &level, &e.Message); err != nil {
			return nil, dbErr("scan log entry", err)
		}
		e.Level = models.LogLevel(level)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SavePnLSnapshot persists one P&L snapshot.
func (s *SQLiteStore) SavePnLSnapshot(ctx context.Context, snap models.PnLSnapshot) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO pnl_snapshots (timestamp, gross_pl, total_charges, net_pl, bot_status) VALUES (?, ?, ?, ?, ?)",
		snap.Timestamp.UTC(), snap.GrossPL, snap.TotalCharges, snap.NetPL, string(snap.BotStatus))
	if err != nil {
		return dbErr("save pnl snapshot", err)
	}
	return nil
}

// GetPnLSnapshots returns snapshots in chronological order.
func (s *SQLiteStore) GetPnLSnapshots(ctx context.Context, filter DateRange) ([]models.PnLSnapshot, error) {
	query := "SELECT timestamp, gross_pl, total_charges, net_pl, bot_status FROM pnl_snapshots WHERE 1=1"
	args := []interface{}{}
	query, args = rangeClause(query, args, filter)
	query += " ORDER BY timestamp ASC, id ASC"
	query, args = limitClause(query, args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbErr("query pnl snapshots", err)
	}
	defer rows.Close()

	snaps := []models.PnLSnapshot{}
	for rows.Next() {
		var snap models.PnLSnapshot
		var status string
		if err := rows.Scan(&snap.Timestamp, &snap.GrossPL, &snap.TotalCharges, &snap.NetPL, &status); err != nil {
			return nil, dbErr("scan pnl snapshot", err)
		}
		snap.BotStatus = models.BotStatus(status)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// SaveAction persists one audited action.
func (s *SQLiteStore) SaveAction(ctx context.Context, rec models.ActionRecord) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO actions (timestamp, kind, target, outcome, message) VALUES (?, ?, ?, ?, ?)",
		rec.Timestamp.UTC(), rec.Kind, rec.Target, rec.Outcome, rec.Message)
	if err != nil {
		return dbErr("save action", err)
	}
	return nil
}

// GetActions returns audited actions, newest first.
func (s *SQLiteStore) GetActions(ctx context.Context, filter ActionFilter) ([]models.ActionRecord, error) {
	query := "SELECT timestamp, kind, COALESCE(target, ''), outcome, COALESCE(message, '') FROM actions WHERE 1=1"
	args := []interface{}{}
	query, args = rangeClause(query, args, filter.DateRange)
	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, filter.Kind)
	}
	if filter.Outcome != "" {
		query += " AND outcome = ?"
		args = append(args, filter.Outcome)
	}
	query += " ORDER BY timestamp DESC, id DESC"
	query, args = limitClause(query, args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbErr("query actions", err)
	}
	defer rows.Close()

	recs := []models.ActionRecord{}
	for rows.Next() {
		var r models.ActionRecord
		if err := rows.Scan(&r.Timestamp, &r.Kind, &r.Target, &r.Outcome, &r.Message); err != nil {
			return nil, dbErr("scan action", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Prune deletes log entries and snapshots older than before. The action
// audit is kept.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, dbErr("begin prune", err)
	}
	defer tx.Rollback()

	var total int64
	for _, table := range []string{"trade_log", "pnl_snapshots"} {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE timestamp < ?", before.UTC())
		if err != nil {
			return 0, dbErr("prune "+table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, dbErr("commit prune", err)
	}
	return total, nil
}

// GetLastSync returns the last sync time for a data type.
func (s *SQLiteStore) GetLastSync(dataType string) time.Time {
	s.mu.RLock()
	if t, ok := s.syncTimes[dataType]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var t time.Time
	err := s.db.QueryRow("SELECT last_sync FROM sync_meta WHERE data_type = ?", dataType).Scan(&t)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.syncTimes[dataType] = t
	s.mu.Unlock()
	return t
}

// SetLastSync sets the last sync time for a data type.
func (s *SQLiteStore) SetLastSync(dataType string, t time.Time) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO sync_meta (data_type, last_sync) VALUES (?, ?)",
		dataType, t.UTC())
	if err != nil {
		return dbErr("set last sync", err)
	}

	s.mu.Lock()
	s.syncTimes[dataType] = t
	s.mu.Unlock()
	return nil
}
