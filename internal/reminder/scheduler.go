// Package reminder implements the per-trip reminder scheduling state
// machine. Each enabled trip carries a durable {interval, lastNotified}
// record; a fixed-cadence poll fires at most one notification per elapsed
// interval and persists the new baseline immediately, so a crash right
// after firing cannot cause an immediate duplicate (a late one is
// acceptable). Polls that were missed while the process was suspended
// collapse into at most one catch-up fire on resumption.
package reminder

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/YatraLedger/yatra-ledger-backend/errors"
	"github.com/YatraLedger/yatra-ledger-backend/logger"
	"github.com/YatraLedger/yatra-ledger-backend/store"
	"github.com/YatraLedger/yatra-ledger-backend/store/memory"
	"github.com/YatraLedger/yatra-ledger-backend/types"
	"go.uber.org/zap"
)

// Config holds configuration for the Scheduler.
type Config struct {
	// PollInterval is the check cadence. The cadence is an implementation
	// choice, not a correctness requirement; the interval math is driven by
	// the durable lastNotified baseline.
	PollInterval time.Duration
	// Clock supplies the current instant; injected for tests.
	Clock func() time.Time
}

// DefaultConfig returns default configuration values.
func DefaultConfig() Config {
	return Config{
		PollInterval: time.Minute,
		Clock:        time.Now,
	}
}

// tripWatch is the running poll loop for one enabled trip.
type tripWatch struct {
	cancel context.CancelFunc
	name   string
}

// Scheduler runs one poll loop per enabled trip. It assumes a single
// scheduler instance per trip per process: the durable record is read then
// written as a single unit per check, and concurrent checks for different
// trips never conflict.
type Scheduler struct {
	states   store.ReminderStateStore
	notifier store.Notifier
	log      *zap.SugaredLogger
	metrics  *schedulerMetrics
	config   Config

	mu      sync.Mutex
	watches map[string]*tripWatch
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler. When states is nil the scheduler
// degrades to in-memory bookkeeping: the no-duplicate guarantee then only
// holds within the process lifetime.
func NewScheduler(states store.ReminderStateStore, notifier store.Notifier, cfg ...Config) *Scheduler {
	config := DefaultConfig()
	if len(cfg) > 0 {
		config = cfg[0]
		if config.PollInterval <= 0 {
			config.PollInterval = time.Minute
		}
		if config.Clock == nil {
			config.Clock = time.Now
		}
	}

	log := logger.GetLogger().Named("reminder_scheduler")
	if states == nil {
		log.Warn("No durable reminder store available, degrading to in-memory state")
		states = memory.NewReminderStore()
	}

	return &Scheduler{
		states:   states,
		notifier: notifier,
		log:      log,
		metrics:  newSchedulerMetrics(),
		config:   config,
		watches:  make(map[string]*tripWatch),
	}
}

// Enable turns reminders on for a trip, or updates the interval of an
// already enabled one. A fresh enable records lastNotified = now, so the
// first reminder fires one full interval later; changing the interval keeps
// the existing baseline and applies prospectively. Permission is requested
// up front because this is an explicit user action: denial is surfaced as
// PermissionDenied and nothing is enabled.
func (s *Scheduler) Enable(ctx context.Context, tripID, tripName string, intervalMinutes int) error {
	if intervalMinutes <= 0 {
		return apperrors.ValidationFailed("invalid reminder interval", "interval must be a positive number of minutes")
	}

	granted, err := s.notifier.RequestPermission(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.PermissionDenied, "could not determine notification permission")
	}
	if !granted {
		return apperrors.NewPermissionDeniedError("enable notifications to receive reminders")
	}

	state, exists, err := s.states.Get(ctx, tripID)
	if err != nil {
		return apperrors.NewStorageError(err, "failed to read reminder state")
	}

	if exists {
		state.IntervalMinutes = intervalMinutes
	} else {
		state = types.ReminderState{
			IntervalMinutes: intervalMinutes,
			LastNotified:    s.config.Clock().UTC(),
		}
	}
	if err := s.states.Set(ctx, tripID, state); err != nil {
		return apperrors.NewStorageError(err, "failed to persist reminder state")
	}

	s.ensureWatch(tripID, tripName)
	s.log.Infow("Reminder enabled", "tripId", tripID, "intervalMinutes", intervalMinutes)
	return nil
}

// Disable turns reminders off for a trip: the poll loop stops and the
// durable record is removed entirely. Re-enabling later starts a fresh
// baseline.
func (s *Scheduler) Disable(ctx context.Context, tripID string) error {
	s.stopWatch(tripID)

	if err := s.states.Delete(ctx, tripID); err != nil {
		return apperrors.NewStorageError(err, "failed to remove reminder state")
	}
	s.log.Infow("Reminder disabled", "tripId", tripID)
	return nil
}

// Sync reconciles the running poll loops against the current trip list.
// It restores loops for trips whose reminders survived a restart (seeding a
// fresh baseline when the durable record is gone) and stops loops for trips
// that are no longer enabled or no longer present. Permission is not
// requested here: background reconciliation stays silent, the next poll
// checks permission anyway.
func (s *Scheduler) Sync(ctx context.Context, trips []types.Trip) {
	enabled := make(map[string]bool, len(trips))

	for _, trip := range trips {
		if !trip.ReminderEnabled() {
			continue
		}
		enabled[trip.ID] = true

		_, exists, err := s.states.Get(ctx, trip.ID)
		if err != nil {
			s.log.Errorw("Failed to read reminder state during sync", "tripId", trip.ID, "error", err)
			continue
		}
		if !exists {
			state := types.ReminderState{
				IntervalMinutes: *trip.ReminderIntervalMinutes,
				LastNotified:    s.config.Clock().UTC(),
			}
			if err := s.states.Set(ctx, trip.ID, state); err != nil {
				s.log.Errorw("Failed to seed reminder state during sync", "tripId", trip.ID, "error", err)
				continue
			}
		}
		s.ensureWatch(trip.ID, trip.Name)
	}

	s.mu.Lock()
	var stale []string
	for tripID := range s.watches {
		if !enabled[tripID] {
			stale = append(stale, tripID)
		}
	}
	s.mu.Unlock()

	for _, tripID := range stale {
		s.stopWatch(tripID)
	}
}

// Check performs a single poll for a trip and reports whether a reminder
// fired. Exposed so ticks and tests share one code path.
func (s *Scheduler) Check(ctx context.Context, tripID, tripName string) (bool, error) {
	s.metrics.checks.Inc()

	state, exists, err := s.states.Get(ctx, tripID)
	if err != nil {
		s.log.Errorw("Failed to read reminder state", "tripId", tripID, "error", err)
		return false, err
	}
	if !exists {
		// Disabled between ticks; nothing to do.
		return false, nil
	}

	now := s.config.Clock().UTC()
	if !state.Due(now) {
		return false, nil
	}

	granted, err := s.notifier.RequestPermission(ctx)
	if err != nil || !granted {
		// Terminal no-op for this attempt; the next poll retries without
		// penalty and lastNotified does not advance.
		s.metrics.skipped.WithLabelValues("permission").Inc()
		return false, nil
	}

	if err := s.notifier.Notify(ctx,
		"Log your expenses",
		"It has been a while since you updated expenses for "+tripName+".",
		"reminder-"+tripID,
	); err != nil {
		s.metrics.skipped.WithLabelValues("delivery").Inc()
		s.log.Warnw("Reminder delivery failed", "tripId", tripID, "error", err)
		return false, nil
	}

	// Persist the new baseline immediately: a crash from here on causes at
	// worst a late reminder, never an immediate duplicate.
	state.LastNotified = now
	if err := s.states.Set(ctx, tripID, state); err != nil {
		s.log.Errorw("Failed to persist reminder baseline", "tripId", tripID, "error", err)
		return true, err
	}

	s.metrics.fired.Inc()
	s.log.Infow("Reminder fired", "tripId", tripID, "intervalMinutes", state.IntervalMinutes)
	return true, nil
}

// Shutdown stops all poll loops and waits for them to exit.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for tripID, watch := range s.watches {
		watch.cancel()
		delete(s.watches, tripID)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Reminder scheduler shutdown complete")
		return nil
	case <-ctx.Done():
		s.log.Warn("Reminder scheduler shutdown timed out")
		return ctx.Err()
	}
}

// Watching reports whether a poll loop is running for the trip.
func (s *Scheduler) Watching(tripID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watches[tripID]
	return ok
}

func (s *Scheduler) ensureWatch(tripID, tripName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if watch, exists := s.watches[tripID]; exists {
		watch.name = tripName
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.watches[tripID] = &tripWatch{cancel: cancel, name: tripName}
	s.metrics.activeWatches.Inc()

	s.wg.Add(1)
	go s.run(ctx, tripID)
}

func (s *Scheduler) stopWatch(tripID string) {
	s.mu.Lock()
	watch, exists := s.watches[tripID]
	if exists {
		watch.cancel()
		delete(s.watches, tripID)
	}
	s.mu.Unlock()

	if exists {
		s.metrics.activeWatches.Dec()
	}
}

// run is the poll loop for one trip.
func (s *Scheduler) run(ctx context.Context, tripID string) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debugw("Reminder poll stopped", "tripId", tripID)
			return
		case <-ticker.C:
			s.mu.Lock()
			watch, exists := s.watches[tripID]
			var name string
			if exists {
				name = watch.name
			}
			s.mu.Unlock()
			if !exists {
				return
			}
			if _, err := s.Check(ctx, tripID, name); err != nil {
				// Logged inside Check; the loop keeps polling.
				continue
			}
		}
	}
}
