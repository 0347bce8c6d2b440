// Package store defines the collaborator interfaces the engine depends on:
// the live collection event source, the durable reminder-state store, the
// receipt image storage, and the notification surface. The engine works
// against these interfaces only, so it runs unchanged whether the source is
// an in-memory list, Redis, or Postgres.
package store

import (
	"context"

	"github.com/YatraLedger/yatra-ledger-backend/types"
)

// RawRecord is the loosely-typed shape every source pushes. Fields carries
// whatever the backend stored; the normalizer converts it into a domain
// entity, defaulting what it safely can.
type RawRecord struct {
	ID     string
	Fields map[string]interface{}
}

// Scope identifies which live collection a subscription targets: an owner's
// trips, or one trip's expenses when TripID is set.
type Scope struct {
	OwnerID string
	TripID  string
}

func (s Scope) String() string {
	if s.TripID == "" {
		return s.OwnerID + "/trips"
	}
	return s.OwnerID + "/trips/" + s.TripID + "/expenses"
}

// TripPush delivers the complete current ordered trip record set for a
// scope, or a subscription-level error. Sources always replace, never diff.
type TripPush struct {
	Records []RawRecord
	Err     error
}

// ExpensePush delivers the complete current ordered expense record set for
// a trip scope, or a subscription-level error.
type ExpensePush struct {
	Records []RawRecord
	Err     error
}

// CollectionSource is the push-based subscription capability of the storage
// collaborator. Each Subscribe call delivers an initial push with the
// current record set, then a full-replace push on every change. Trips are
// ordered by start date ascending, expenses by event timestamp descending;
// ties are broken by the source's natural order. The returned channel is
// closed after Unsubscribe or context cancellation.
type CollectionSource interface {
	SubscribeTrips(ctx context.Context, ownerID string) (<-chan TripPush, error)
	SubscribeExpenses(ctx context.Context, ownerID, tripID string) (<-chan ExpensePush, error)
	Unsubscribe(ctx context.Context, scope Scope) error
}

// TripStore is the write side of the storage collaborator.
type TripStore interface {
	CreateTrip(ctx context.Context, ownerID string, params types.CreateTripParams) (string, error)
	// UpdateTripBudget replaces the trip's budget.
	UpdateTripBudget(ctx context.Context, ownerID, tripID string, budget float64) error
	// UpdateTripReminder sets or clears (nil) the trip's reminder interval.
	UpdateTripReminder(ctx context.Context, ownerID, tripID string, intervalMinutes *int) error
	AddExpense(ctx context.Context, ownerID, tripID string, params types.CreateExpenseParams) (string, error)
	// DeleteExpense removes the expense and returns the receipt image URL
	// that was attached to it, if any, so the caller can release it.
	DeleteExpense(ctx context.Context, ownerID, tripID, expenseID string) (string, error)
}

// ReminderStateStore is the durable local key-value collaborator holding
// per-trip reminder bookkeeping. Implementations must support synchronous
// access; when none is available the scheduler degrades to in-memory state.
type ReminderStateStore interface {
	Get(ctx context.Context, tripID string) (types.ReminderState, bool, error)
	Set(ctx context.Context, tripID string, state types.ReminderState) error
	Delete(ctx context.Context, tripID string) error
}

// ReceiptStorage stores receipt images. Handles are opaque to the engine.
type ReceiptStorage interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
	Delete(ctx context.Context, url string) error
	GetURL(ctx context.Context, key string) (string, error)
}

// Notifier is the notification permission/delivery collaborator. A denied
// permission is a terminal no-op for the attempt; callers retry only on
// their next natural poll.
type Notifier interface {
	RequestPermission(ctx context.Context) (bool, error)
	Notify(ctx context.Context, title, body, tag string) error
}
