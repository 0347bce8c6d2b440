// Package memory provides an in-memory storage collaborator. It backs local
// single-process deployments and doubles as the engine's test double: it
// implements the same full-replace push contract as the Redis and Postgres
// sources.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/YatraLedger/yatra-ledger-backend/logger"
	"github.com/YatraLedger/yatra-ledger-backend/store"
	"github.com/YatraLedger/yatra-ledger-backend/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const pushBuffer = 16

// Source keeps trip and expense records in process memory and fans out a
// full-replace push to the scope's subscriber on every mutation. Records are
// kept in insertion order; that order is the tie-breaker the ordering
// contract leaves to the source.
type Source struct {
	log   *zap.SugaredLogger
	clock func() time.Time

	mu       sync.Mutex
	trips    map[string][]store.RawRecord          // ownerID -> records
	expenses map[string]map[string][]store.RawRecord // ownerID -> tripID -> records

	tripSubs    map[store.Scope]chan store.TripPush
	expenseSubs map[store.Scope]chan store.ExpensePush
}

// NewSource creates an empty in-memory source.
func NewSource() *Source {
	return &Source{
		log:         logger.GetLogger().Named("memory_source"),
		clock:       time.Now,
		trips:       make(map[string][]store.RawRecord),
		expenses:    make(map[string]map[string][]store.RawRecord),
		tripSubs:    make(map[store.Scope]chan store.TripPush),
		expenseSubs: make(map[store.Scope]chan store.ExpensePush),
	}
}

// SubscribeTrips registers the single subscriber for an owner's trip
// collection and immediately delivers the current set.
func (s *Source) SubscribeTrips(ctx context.Context, ownerID string) (<-chan store.TripPush, error) {
	scope := store.Scope{OwnerID: ownerID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tripSubs[scope]; exists {
		return nil, fmt.Errorf("subscription already exists for scope %s", scope)
	}

	ch := make(chan store.TripPush, pushBuffer)
	s.tripSubs[scope] = ch
	ch <- store.TripPush{Records: s.tripRecordsLocked(ownerID)}
	return ch, nil
}

// SubscribeExpenses registers the single subscriber for a trip's expense
// collection and immediately delivers the current set.
func (s *Source) SubscribeExpenses(ctx context.Context, ownerID, tripID string) (<-chan store.ExpensePush, error) {
	scope := store.Scope{OwnerID: ownerID, TripID: tripID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expenseSubs[scope]; exists {
		return nil, fmt.Errorf("subscription already exists for scope %s", scope)
	}

	ch := make(chan store.ExpensePush, pushBuffer)
	s.expenseSubs[scope] = ch
	ch <- store.ExpensePush{Records: s.expenseRecordsLocked(ownerID, tripID)}
	return ch, nil
}

// Unsubscribe tears down the subscription for a scope and closes its channel.
func (s *Source) Unsubscribe(ctx context.Context, scope store.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if scope.TripID == "" {
		ch, exists := s.tripSubs[scope]
		if !exists {
			return fmt.Errorf("no subscription found for scope %s", scope)
		}
		delete(s.tripSubs, scope)
		close(ch)
		return nil
	}

	ch, exists := s.expenseSubs[scope]
	if !exists {
		return fmt.Errorf("no subscription found for scope %s", scope)
	}
	delete(s.expenseSubs, scope)
	close(ch)
	return nil
}

// CreateTrip stores a new trip record and pushes the owner's updated set.
func (s *Source) CreateTrip(ctx context.Context, ownerID string, params types.CreateTripParams) (string, error) {
	id := uuid.New().String()
	fields := map[string]interface{}{
		"name":        params.Name,
		"destination": params.Destination,
		"startDate":   params.StartDate.UTC(),
		"endDate":     params.EndDate.UTC(),
		"budget":      params.Budget,
		"currency":    params.Currency,
		"createdAt":   s.clock().UTC(),
	}
	if params.GradientSeed != "" {
		fields["gradientSeed"] = params.GradientSeed
	}

	s.mu.Lock()
	s.trips[ownerID] = append(s.trips[ownerID], store.RawRecord{ID: id, Fields: fields})
	s.pushTripsLocked(ownerID)
	s.mu.Unlock()

	return id, nil
}

// UpdateTripBudget replaces the trip's budget and pushes the updated set.
func (s *Source) UpdateTripBudget(ctx context.Context, ownerID, tripID string, budget float64) error {
	return s.updateTrip(ownerID, tripID, func(fields map[string]interface{}) {
		fields["budget"] = budget
	})
}

// UpdateTripReminder sets or clears the trip's reminder interval and pushes
// the updated set.
func (s *Source) UpdateTripReminder(ctx context.Context, ownerID, tripID string, intervalMinutes *int) error {
	return s.updateTrip(ownerID, tripID, func(fields map[string]interface{}) {
		if intervalMinutes == nil {
			delete(fields, "reminderIntervalMinutes")
			return
		}
		fields["reminderIntervalMinutes"] = *intervalMinutes
	})
}

func (s *Source) updateTrip(ownerID, tripID string, mutate func(map[string]interface{})) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rec := range s.trips[ownerID] {
		if rec.ID != tripID {
			continue
		}
		fields := make(map[string]interface{}, len(rec.Fields))
		for k, v := range rec.Fields {
			fields[k] = v
		}
		mutate(fields)
		s.trips[ownerID][i] = store.RawRecord{ID: tripID, Fields: fields}
		s.pushTripsLocked(ownerID)
		return nil
	}
	return fmt.Errorf("trip %s not found for owner %s", tripID, ownerID)
}

// AddExpense stores a new expense record and pushes the trip's updated set.
func (s *Source) AddExpense(ctx context.Context, ownerID, tripID string, params types.CreateExpenseParams) (string, error) {
	id := uuid.New().String()
	fields := map[string]interface{}{
		"amount":    params.Amount,
		"category":  string(params.Category),
		"timestamp": params.Timestamp.UTC(),
		"notes":     params.Notes,
		"createdAt": s.clock().UTC(),
	}
	if params.ImageURL != "" {
		fields["imageUrl"] = params.ImageURL
	}
	if params.Location != nil {
		loc := map[string]interface{}{}
		if params.Location.Lat != nil {
			loc["lat"] = *params.Location.Lat
		}
		if params.Location.Lng != nil {
			loc["lng"] = *params.Location.Lng
		}
		if params.Location.Label != "" {
			loc["label"] = params.Location.Label
		}
		fields["location"] = loc
	}

	s.mu.Lock()
	if s.expenses[ownerID] == nil {
		s.expenses[ownerID] = make(map[string][]store.RawRecord)
	}
	s.expenses[ownerID][tripID] = append(s.expenses[ownerID][tripID], store.RawRecord{ID: id, Fields: fields})
	s.pushExpensesLocked(ownerID, tripID)
	s.mu.Unlock()

	return id, nil
}

// DeleteExpense removes an expense record, pushes the trip's updated set and
// returns the receipt URL the record held, if any.
func (s *Source) DeleteExpense(ctx context.Context, ownerID, tripID, expenseID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.expenses[ownerID][tripID]
	for i, rec := range records {
		if rec.ID != expenseID {
			continue
		}
		imageURL, _ := rec.Fields["imageUrl"].(string)
		s.expenses[ownerID][tripID] = append(records[:i:i], records[i+1:]...)
		s.pushExpensesLocked(ownerID, tripID)
		return imageURL, nil
	}
	return "", fmt.Errorf("expense %s not found in trip %s", expenseID, tripID)
}

// tripRecordsLocked snapshots the owner's trip records, ordered per the
// source contract. Caller holds s.mu.
func (s *Source) tripRecordsLocked(ownerID string) []store.RawRecord {
	records := append([]store.RawRecord(nil), s.trips[ownerID]...)
	store.SortTripRecords(records)
	return records
}

func (s *Source) expenseRecordsLocked(ownerID, tripID string) []store.RawRecord {
	records := append([]store.RawRecord(nil), s.expenses[ownerID][tripID]...)
	store.SortExpenseRecords(records)
	return records
}

func (s *Source) pushTripsLocked(ownerID string) {
	scope := store.Scope{OwnerID: ownerID}
	ch, exists := s.tripSubs[scope]
	if !exists {
		return
	}
	if !store.OfferLatest(ch, store.TripPush{Records: s.tripRecordsLocked(ownerID)}) {
		s.log.Warnw("Dropped trip push, subscriber channel full", "scope", scope.String())
	}
}

func (s *Source) pushExpensesLocked(ownerID, tripID string) {
	scope := store.Scope{OwnerID: ownerID, TripID: tripID}
	ch, exists := s.expenseSubs[scope]
	if !exists {
		return
	}
	if !store.OfferLatest(ch, store.ExpensePush{Records: s.expenseRecordsLocked(ownerID, tripID)}) {
		s.log.Warnw("Dropped expense push, subscriber channel full", "scope", scope.String())
	}
}
