// Package engine composes the collection watchers, the snapshot derivation,
// the budget alert evaluator and the reminder scheduler into one reactive
// unit: every applied push recomputes downstream state, there is no separate
// refresh path.
package engine

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/YatraLedger/yatra-ledger-backend/errors"
	"github.com/YatraLedger/yatra-ledger-backend/internal/aggregate"
	"github.com/YatraLedger/yatra-ledger-backend/internal/alerts"
	"github.com/YatraLedger/yatra-ledger-backend/internal/normalize"
	"github.com/YatraLedger/yatra-ledger-backend/internal/reminder"
	"github.com/YatraLedger/yatra-ledger-backend/internal/subscriber"
	"github.com/YatraLedger/yatra-ledger-backend/logger"
	"github.com/YatraLedger/yatra-ledger-backend/store"
	"github.com/YatraLedger/yatra-ledger-backend/types"
	"go.uber.org/zap"
)

// callbackTimeout bounds the work done on a single push callback.
const callbackTimeout = 10 * time.Second

// Config holds configuration for the Engine.
type Config struct {
	// Location is the calendar used for daily grouping. Nil means UTC.
	Location *time.Location
}

// DefaultConfig returns default configuration values.
func DefaultConfig() Config {
	return Config{Location: time.UTC}
}

// Engine tracks one owner's trip collection and at most one selected trip's
// expense collection. Each expense push derives a fresh snapshot for the
// selected trip and feeds it to the budget alert evaluator; each trip push
// reconciles the reminder scheduler.
type Engine struct {
	trips     *subscriber.TripWatcher
	expenses  *subscriber.ExpenseWatcher
	alerts    *alerts.Evaluator
	scheduler *reminder.Scheduler
	log       *zap.SugaredLogger
	loc       *time.Location

	mu       sync.Mutex
	ownerID  string
	selected string
	snapshot *types.TripSnapshot
}

// New creates an Engine over the given source. The scheduler is owned by the
// engine from here on: Shutdown stops it.
func New(source store.CollectionSource, notifier store.Notifier, scheduler *reminder.Scheduler, cfg ...Config) *Engine {
	config := DefaultConfig()
	if len(cfg) > 0 {
		config = cfg[0]
	}
	if config.Location == nil {
		config.Location = time.UTC
	}

	e := &Engine{
		alerts:    alerts.NewEvaluator(notifier),
		scheduler: scheduler,
		log:       logger.GetLogger().Named("engine"),
		loc:       config.Location,
	}

	norm := normalize.New()
	e.trips = subscriber.NewTripWatcher(source, norm, e.onTrips)
	e.expenses = subscriber.NewExpenseWatcher(source, norm, e.onExpenses)
	return e
}

// Start points the engine at an owner's trip collection. Calling it again
// switches owners: the previous selection is dropped and both subscriptions
// are replaced. An empty ownerID stops all watching.
func (e *Engine) Start(ctx context.Context, ownerID string) error {
	e.mu.Lock()
	previousSelected := e.selected
	e.ownerID = ownerID
	e.selected = ""
	e.snapshot = nil
	e.mu.Unlock()

	if previousSelected != "" {
		e.alerts.Forget(previousSelected)
		_ = e.expenses.SetTrip(ctx, "", "")
	}

	return e.trips.SetOwner(ctx, ownerID)
}

// SelectTrip switches the expense subscription to the given trip. An empty
// tripID clears the selection. The snapshot is unavailable until the first
// expense push for the new trip arrives.
func (e *Engine) SelectTrip(ctx context.Context, tripID string) error {
	e.mu.Lock()
	ownerID := e.ownerID
	e.mu.Unlock()

	if tripID != "" && ownerID == "" {
		return apperrors.ValidationFailed("no active owner", "start the engine before selecting a trip")
	}

	e.mu.Lock()
	previous := e.selected
	e.selected = tripID
	e.snapshot = nil
	e.mu.Unlock()

	if previous != "" && previous != tripID {
		e.alerts.Forget(previous)
	}

	if tripID == "" {
		return e.expenses.SetTrip(ctx, "", "")
	}
	return e.expenses.SetTrip(ctx, ownerID, tripID)
}

// Trips returns the current trip collection view.
func (e *Engine) Trips() subscriber.TripState {
	return e.trips.State()
}

// Expenses returns the current expense collection view for the selected trip.
func (e *Engine) Expenses() subscriber.ExpenseState {
	return e.expenses.State()
}

// Snapshot returns the derived snapshot for the selected trip, if one has
// been computed since the selection was made.
func (e *Engine) Snapshot() (types.TripSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snapshot == nil {
		return types.TripSnapshot{}, false
	}
	return *e.snapshot, true
}

// SelectedTripID returns the currently selected trip, or empty.
func (e *Engine) SelectedTripID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

// Owner returns the owner the engine is currently subscribed for, or empty.
func (e *Engine) Owner() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ownerID
}

// Shutdown tears down both subscriptions and stops the reminder scheduler.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.expenses.Close(ctx)
	e.trips.Close(ctx)
	return e.scheduler.Shutdown(ctx)
}

// onTrips runs after every applied trip push. Reminder watches reconcile
// against the fresh list, and the selected trip's snapshot is recomputed in
// case its own fields (budget, name) changed.
func (e *Engine) onTrips(state subscriber.TripState) {
	if state.Loading {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	if state.Err == nil {
		e.scheduler.Sync(ctx, state.Trips)
	}

	e.mu.Lock()
	selected := e.selected
	e.mu.Unlock()
	if selected == "" {
		return
	}

	trip, ok := findTrip(state.Trips, selected)
	if !ok {
		if state.Err != nil {
			// Transient source failure; keep the selection and wait.
			return
		}
		e.log.Infow("Selected trip no longer present, clearing selection", "tripId", selected)
		e.clearSelection(ctx, selected)
		return
	}

	e.recompute(ctx, trip)
}

// onExpenses runs after every applied expense push.
func (e *Engine) onExpenses(state subscriber.ExpenseState) {
	if state.Loading || state.Err != nil || state.TripID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	trip, ok := findTrip(e.trips.State().Trips, state.TripID)
	if !ok {
		// Trip list has not caught up yet; the next trip push recomputes.
		return
	}
	e.recompute(ctx, trip)
}

// recompute derives a fresh snapshot for trip from the current expense view
// and feeds it to the alert evaluator. Skipped when the expense view belongs
// to a different trip or is still loading.
func (e *Engine) recompute(ctx context.Context, trip types.Trip) {
	expenseState := e.expenses.State()
	if expenseState.TripID != trip.ID || expenseState.Loading || expenseState.Err != nil {
		return
	}

	snap := aggregate.Derive(trip, expenseState.Expenses, e.loc)

	e.mu.Lock()
	if e.selected != trip.ID {
		e.mu.Unlock()
		return
	}
	e.snapshot = &snap
	e.mu.Unlock()

	e.alerts.Observe(ctx, snap)
}

func (e *Engine) clearSelection(ctx context.Context, tripID string) {
	e.mu.Lock()
	if e.selected == tripID {
		e.selected = ""
		e.snapshot = nil
	}
	e.mu.Unlock()

	e.alerts.Forget(tripID)
	_ = e.expenses.SetTrip(ctx, "", "")
}

func findTrip(trips []types.Trip, tripID string) (types.Trip, bool) {
	for _, trip := range trips {
		if trip.ID == tripID {
			return trip, true
		}
	}
	return types.Trip{}, false
}
