package logging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"botwatch/internal/models"
)

// DefaultTradeLogSize is the number of entries kept in memory.
const DefaultTradeLogSize = 100

// EntrySink persists trade log entries.
type EntrySink interface {
	SaveLogEntry(ctx context.Context, entry models.LogEntry) error
}

// Sink is the interface components use to report operator-facing events.
type Sink interface {
	Info(format string, args ...interface{})
	Success(format string, args ...interface{})
	Warning(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// TradeLog is the operator's event log: a bounded, newest-first list of
// timestamped entries, mirrored to zerolog and optionally persisted.
type TradeLog struct {
	mu        sync.RWMutex
	entries   []models.LogEntry
	size      int
	logger    zerolog.Logger
	sink      EntrySink
	now       func() time.Time
	listeners map[int]func(models.LogEntry)
	nextID    int
	added     uint64
}

// NewTradeLog creates a trade log writing through to logger.
func NewTradeLog(logger zerolog.Logger) *TradeLog {
	return &TradeLog{
		size:      DefaultTradeLogSize,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]func(models.LogEntry)),
	}
}

// SetSink attaches a persistence sink. Persistence failures are logged
// to zerolog only.
func (t *TradeLog) SetSink(sink EntrySink) {
	t.mu.Lock()
	t.sink = sink
	t.mu.Unlock()
}

// SetClock overrides the timestamp source.
func (t *TradeLog) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Subscribe registers fn for every new entry and returns an unsubscribe func.
func (t *TradeLog) Subscribe(fn func(models.LogEntry)) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// Add appends an entry.
func (t *TradeLog) Add(level models.LogLevel, message string) models.LogEntry {
	t.mu.Lock()
	entry := models.LogEntry{Timestamp: t.now(), Level: level, Message: message}
	t.entries = append([]models.LogEntry{entry}, t.entries...)
	t.added++
	if len(t.entries) > t.size {
		t.entries = t.entries[:t.size]
	}
	sink := t.sink
	listeners := make([]func(models.LogEntry), 0, len(t.listeners))
	for _, fn := range t.listeners {
		listeners = append(listeners, fn)
	}
	t.mu.Unlock()

	t.mirror(entry)
	if sink != nil {
		if err := sink.SaveLogEntry(context.Background(), entry); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to persist trade log entry")
		}
	}
	for _, fn := range listeners {
		fn(entry)
	}
	return entry
}

// Count returns the number of entries added so far, including those no
// longer held.
func (t *TradeLog) Count() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.added
}

func (t *TradeLog) mirror(entry models.LogEntry) {
	var event *zerolog.Event
	switch entry.Level {
	case models.LogError:
		event = t.logger.Error()
	case models.LogWarning:
		event = t.logger.Warn()
	default:
		event = t.logger.Info()
	}
	event.Str("event", "trade_log").Str("type", string(entry.Level)).Msg(entry.Message)
}

// Info logs an informational entry.
func (t *TradeLog) Info(format string, args ...interface{}) {
	t.Add(models.LogInfo, fmt.Sprintf(format, args...))
}

// Success logs a success entry.
func (t *TradeLog) Success(format string, args ...interface{}) {
	t.Add(models.LogSuccess, fmt.Sprintf(format, args...))
}

// Warning logs a warning entry.
func (t *TradeLog) Warning(format string, args ...interface{}) {
	t.Add(models.LogWarning, fmt.Sprintf(format, args...))
}

// Error logs an error entry.
func (t *TradeLog) Error(format string, args ...interface{}) {
	t.Add(models.LogError, fmt.Sprintf(format, args...))
}

// Entries returns a copy of the entries, newest first.
func (t *TradeLog) Entries() []models.LogEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.LogEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Latest returns the newest entry, if any.
func (t *TradeLog) Latest() (models.LogEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.entries) == 0 {
		return models.LogEntry{}, false
	}
	return t.entries[0], true
}
