// Package subscriber maintains continuously-updated, ordered entity lists
// driven by the storage collaborator's push subscriptions. Every push
// replaces the whole list (no incremental patching). Scope switches bump a
// generation counter; pushes from a torn-down subscription carry a stale
// generation and are discarded, so a late-arriving push from a previous
// scope can never be applied to the current one.
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

// TripState is the current view of an owner's trip collection.
type TripState struct {
	Trips   []types.Trip
	Loading bool
	// Err is non-nil after a subscription-level failure. The last successful
	// list is retained alongside it (stale but available).
	Err error
}

// TripWatcher subscribes to one owner's trip collection at a time.
type TripWatcher struct {
	source  store.CollectionSource
	norm    *normalize.Normalizer
	log     *zap.SugaredLogger
	metrics *subscriberMetrics

	// onChange is invoked with a copy of the state after every applied push.
	onChange func(TripState)

	mu      sync.Mutex
	gen     uint64
	ownerID string
	state   TripState
}

// NewTripWatcher creates a watcher with no active scope. onChange may be nil.
func NewTripWatcher(source store.CollectionSource, norm *normalize.Normalizer, onChange func(TripState)) *TripWatcher {
	return &TripWatcher{
		source:   source,
		norm:     norm,
		log:      logger.GetLogger().Named("trip_watcher"),
		metrics:  newSubscriberMetrics(),
		onChange: onChange,
	}
}

// SetOwner switches the watcher to a new owner scope, tearing down any
// previous subscription first. An empty ownerID deactivates the watcher:
// the list empties and loading is false, which is not an error state.
func (w *TripWatcher) SetOwner(ctx context.Context, ownerID string) error {
	w.mu.Lock()
	w.gen++
	gen := w.gen
	previous := w.ownerID
	w.ownerID = ownerID

	if ownerID == "" {
		w.state = TripState{}
	} else {
		w.state = TripState{Loading: true}
	}
	w.mu.Unlock()

	if previous != "" {
		if err := w.source.Unsubscribe(ctx, store.Scope{OwnerID: previous}); err != nil {
			w.log.Debugw("Unsubscribe from previous owner scope failed", "ownerId", previous, "error", err)
		}
	}

	if ownerID == "" {
		w.notify()
		return nil
	}

	ch, err := w.source.SubscribeTrips(ctx, ownerID)
	if err != nil {
		w.mu.Lock()
		if gen == w.gen {
			w.state = TripState{Err: apperrors.NewSourceError(err)}
		}
		w.mu.Unlock()
		w.notify()
		return apperrors.NewSourceError(err)
	}

	go w.consume(gen, ch)
	return nil
}

// consume applies pushes from one subscription until its channel closes.
func (w *TripWatcher) consume(gen uint64, ch <-chan store.TripPush) {
	for push := range ch {
		w.apply(gen, push)
	}
}

func (w *TripWatcher) apply(gen uint64, push store.TripPush) {
	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		w.metrics.discardedPushes.WithLabelValues("trips").Inc()
		w.log.Debugw("Discarded stale trip push", "gen", gen)
		return
	}

	if push.Err != nil {
		// Keep the last successful list; surface the failure as status only.
		w.state.Err = apperrors.NewSourceError(push.Err)
		w.state.Loading = false
		w.metrics.sourceErrors.WithLabelValues("trips").Inc()
		w.log.Warnw("Trip subscription error", "ownerId", w.ownerID, "error", push.Err)
	} else {
		w.state = TripState{Trips: w.norm.Trips(push.Records)}
		w.metrics.appliedPushes.WithLabelValues("trips").Inc()
	}
	w.mu.Unlock()

	w.notify()
}

func (w *TripWatcher) notify() {
	if w.onChange == nil {
		return
	}
	w.onChange(w.State())
}

// State returns a copy of the current view.
func (w *TripWatcher) State() TripState {
	w.mu.Lock()
	defer w.mu.Unlock()
	state := w.state
	state.Trips = append([]types.Trip(nil), w.state.Trips...)
	return state
}

// Close tears down the active subscription, if any.
func (w *TripWatcher) Close(ctx context.Context) {
	_ = w.SetOwner(ctx, "")
}
