// Package sqlite persists reminder scheduling state in a local SQLite file.
// The reminder baseline must survive process restarts; everything else the
// engine holds is derived and rebuilt from pushes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/YatraLedger/yatra-ledger-backend/errors"
	"github.com/YatraLedger/yatra-ledger-backend/logger"
	"github.com/YatraLedger/yatra-ledger-backend/types"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS reminder_state (
    trip_id          TEXT PRIMARY KEY,
    interval_minutes INTEGER NOT NULL,
    last_notified    TEXT NOT NULL
);`

// ReminderStore is a durable ReminderStateStore backed by a SQLite file.
type ReminderStore struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// NewReminderStore opens (or creates) the database at dbPath and ensures the
// schema exists.
func NewReminderStore(dbPath string) (*ReminderStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &ReminderStore{
		db:  db,
		log: logger.GetLogger().Named("sqlite_reminders"),
	}, nil
}

// Get returns the reminder record for a trip, reporting whether one exists.
func (s *ReminderStore) Get(ctx context.Context, tripID string) (types.ReminderState, bool, error) {
	var (
		state        types.ReminderState
		lastNotified string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT interval_minutes, last_notified FROM reminder_state WHERE trip_id = ?",
		tripID,
	).Scan(&state.IntervalMinutes, &lastNotified)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ReminderState{}, false, nil
	}
	if err != nil {
		return types.ReminderState{}, false, apperrors.NewStorageError(err, "failed to read reminder state")
	}

	state.LastNotified, err = time.Parse(time.RFC3339Nano, lastNotified)
	if err != nil {
		return types.ReminderState{}, false, apperrors.NewStorageError(err, "corrupt reminder timestamp")
	}
	return state, true, nil
}

// Set writes the reminder record for a trip, replacing any existing one.
func (s *ReminderStore) Set(ctx context.Context, tripID string, state types.ReminderState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminder_state (trip_id, interval_minutes, last_notified)
		 VALUES (?, ?, ?)
		 ON CONFLICT(trip_id) DO UPDATE SET
		     interval_minutes = excluded.interval_minutes,
		     last_notified    = excluded.last_notified`,
		tripID, state.IntervalMinutes, state.LastNotified.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return apperrors.NewStorageError(err, "failed to persist reminder state")
	}
	return nil
}

// Delete removes the reminder record for a trip. Deleting a missing record
// is not an error.
func (s *ReminderStore) Delete(ctx context.Context, tripID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM reminder_state WHERE trip_id = ?", tripID)
	if err != nil {
		return apperrors.NewStorageError(err, "failed to remove reminder state")
	}
	return nil
}

// Close closes the underlying database.
func (s *ReminderStore) Close() error {
	return s.db.Close()
}
