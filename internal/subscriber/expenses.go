package subscriber

import (
	"context"
	"sync"

	apperrors "github.com/YatraLedger/yatra-ledger-backend/errors"
	"github.com/YatraLedger/yatra-ledger-backend/internal/normalize"
	"github.com/YatraLedger/yatra-ledger-backend/logger"
	"github.com/YatraLedger/yatra-ledger-backend/store"
	"github.com/YatraLedger/yatra-ledger-backend/types"
	"go.uber.org/zap"
)

// ExpenseState is the current view of one trip's expense collection.
type ExpenseState struct {
	TripID   string
	Expenses []types.Expense
	Loading  bool
	// Err is non-nil after a subscription-level failure. The last successful
	// list is retained alongside it (stale but available).
	Err error
}

// ExpenseWatcher subscribes to one trip's expense collection at a time.
// Switching trips tears the previous subscription down; pushes that arrive
// late from the torn-down subscription are discarded by generation.
type ExpenseWatcher struct {
	source  store.CollectionSource
	norm    *normalize.Normalizer
	log     *zap.SugaredLogger
	metrics *subscriberMetrics

	onChange func(ExpenseState)

	mu      sync.Mutex
	gen     uint64
	scope   store.Scope
	state   ExpenseState
}

// NewExpenseWatcher creates a watcher with no active scope. onChange may be
// nil.
func NewExpenseWatcher(source store.CollectionSource, norm *normalize.Normalizer, onChange func(ExpenseState)) *ExpenseWatcher {
	return &ExpenseWatcher{
		source:   source,
		norm:     norm,
		log:      logger.GetLogger().Named("expense_watcher"),
		metrics:  newSubscriberMetrics(),
		onChange: onChange,
	}
}

// SetTrip switches the watcher to a new trip scope. An empty tripID
// deactivates the watcher: the list empties and loading is false, which is
// not an error state (no trip selected).
func (w *ExpenseWatcher) SetTrip(ctx context.Context, ownerID, tripID string) error {
	w.mu.Lock()
	w.gen++
	gen := w.gen
	previous := w.scope

	if tripID == "" {
		w.scope = store.Scope{}
		w.state = ExpenseState{}
	} else {
		w.scope = store.Scope{OwnerID: ownerID, TripID: tripID}
		w.state = ExpenseState{TripID: tripID, Loading: true}
	}
	w.mu.Unlock()

	if previous.TripID != "" {
		if err := w.source.Unsubscribe(ctx, previous); err != nil {
			w.log.Debugw("Unsubscribe from previous trip scope failed", "scope", previous.String(), "error", err)
		}
	}

	if tripID == "" {
		w.notify()
		return nil
	}

	ch, err := w.source.SubscribeExpenses(ctx, ownerID, tripID)
	if err != nil {
		w.mu.Lock()
		if gen == w.gen {
			w.state = ExpenseState{TripID: tripID, Err: apperrors.NewSourceError(err)}
		}
		w.mu.Unlock()
		w.notify()
		return apperrors.NewSourceError(err)
	}

	go w.consume(gen, tripID, ch)
	return nil
}

func (w *ExpenseWatcher) consume(gen uint64, tripID string, ch <-chan store.ExpensePush) {
	for push := range ch {
		w.apply(gen, tripID, push)
	}
}

func (w *ExpenseWatcher) apply(gen uint64, tripID string, push store.ExpensePush) {
	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		w.metrics.discardedPushes.WithLabelValues("expenses").Inc()
		w.log.Debugw("Discarded stale expense push", "tripId", tripID, "gen", gen)
		return
	}

	if push.Err != nil {
		w.state.Err = apperrors.NewSourceError(push.Err)
		w.state.Loading = false
		w.metrics.sourceErrors.WithLabelValues("expenses").Inc()
		w.log.Warnw("Expense subscription error", "tripId", tripID, "error", push.Err)
	} else {
		w.state = ExpenseState{TripID: tripID, Expenses: w.norm.Expenses(tripID, push.Records)}
		w.metrics.appliedPushes.WithLabelValues("expenses").Inc()
	}
	w.mu.Unlock()

	w.notify()
}

func (w *ExpenseWatcher) notify() {
	if w.onChange == nil {
		return
	}
	w.onChange(w.State())
}

// State returns a copy of the current view.
func (w *ExpenseWatcher) State() ExpenseState {
	w.mu.Lock()
	defer w.mu.Unlock()
	state := w.state
	state.Expenses = append([]types.Expense(nil), w.state.Expenses...)
	return state
}

// Close tears down the active subscription, if any.
func (w *ExpenseWatcher) Close(ctx context.Context) {
	_ = w.SetTrip(ctx, "", "")
}
