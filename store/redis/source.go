// Package redis provides a Redis-backed storage collaborator. Records live
// in per-scope hashes as JSON; every mutation publishes an invalidation on
// the scope's channel and subscribers re-read the hash, so each delivery is
// a full replace of the scope's record set.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/YatraLedger/yatra-ledger-backend/logger"
	"github.com/YatraLedger/yatra-ledger-backend/store"
	"github.com/YatraLedger/yatra-ledger-backend/types"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config holds configuration for the Source.
type Config struct {
	PublishTimeout time.Duration
	PushBufferSize int
}

// DefaultConfig returns default configuration values.
func DefaultConfig() Config {
	return Config{
		PublishTimeout: 5 * time.Second,
		PushBufferSize: 16,
	}
}

type subscription struct {
	pubsub    *redis.PubSub
	cancelCtx context.CancelFunc
	closeOnce sync.Once
}

// Source implements the collection source and trip store contracts on Redis.
type Source struct {
	rdb    *redis.Client
	log    *zap.SugaredLogger
	config Config
	clock  func() time.Time
	newID  func() string

	mu          sync.Mutex
	tripSubs    map[store.Scope]*subscription
	expenseSubs map[store.Scope]*subscription
	wg          sync.WaitGroup
}

// NewSource creates a Source over an existing Redis client.
func NewSource(rdb *redis.Client, cfg ...Config) *Source {
	config := DefaultConfig()
	if len(cfg) > 0 {
		config = cfg[0]
		if config.PublishTimeout <= 0 {
			config.PublishTimeout = 5 * time.Second
		}
		if config.PushBufferSize <= 0 {
			config.PushBufferSize = 16
		}
	}

	return &Source{
		rdb:         rdb,
		log:         logger.GetLogger().Named("redis_source"),
		config:      config,
		clock:       time.Now,
		newID:       func() string { return uuid.New().String() },
		tripSubs:    make(map[store.Scope]*subscription),
		expenseSubs: make(map[store.Scope]*subscription),
	}
}

func tripsKey(ownerID string) string {
	return fmt.Sprintf("yl:trips:%s", ownerID)
}

func expensesKey(ownerID, tripID string) string {
	return fmt.Sprintf("yl:expenses:%s:%s", ownerID, tripID)
}

// SubscribeTrips registers the single subscriber for an owner's trip
// collection. The current set is delivered immediately; afterwards every
// invalidation triggers a re-read and a full-replace push.
func (s *Source) SubscribeTrips(ctx context.Context, ownerID string) (<-chan store.TripPush, error) {
	scope := store.Scope{OwnerID: ownerID}

	s.mu.Lock()
	if _, exists := s.tripSubs[scope]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("subscription already exists for scope %s", scope)
	}

	pubsub := s.rdb.Subscribe(ctx, tripsKey(ownerID))
	subCtx, cancel := context.WithCancel(context.Background())
	s.tripSubs[scope] = &subscription{pubsub: pubsub, cancelCtx: cancel}
	s.mu.Unlock()

	out := make(chan store.TripPush, s.config.PushBufferSize)

	records, err := s.readRecords(ctx, tripsKey(ownerID), store.SortTripRecords)
	if err != nil {
		out <- store.TripPush{Err: err}
	} else {
		out <- store.TripPush{Records: records}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				records, err := s.readRecords(subCtx, tripsKey(ownerID), store.SortTripRecords)
				if err != nil {
					s.deliverTrips(out, store.TripPush{Err: err}, scope)
					continue
				}
				s.deliverTrips(out, store.TripPush{Records: records}, scope)
			}
		}
	}()

	return out, nil
}

// SubscribeExpenses registers the single subscriber for a trip's expense
// collection, with the same delivery contract as SubscribeTrips.
func (s *Source) SubscribeExpenses(ctx context.Context, ownerID, tripID string) (<-chan store.ExpensePush, error) {
	scope := store.Scope{OwnerID: ownerID, TripID: tripID}

	s.mu.Lock()
	if _, exists := s.expenseSubs[scope]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("subscription already exists for scope %s", scope)
	}

	pubsub := s.rdb.Subscribe(ctx, expensesKey(ownerID, tripID))
	subCtx, cancel := context.WithCancel(context.Background())
	s.expenseSubs[scope] = &subscription{pubsub: pubsub, cancelCtx: cancel}
	s.mu.Unlock()

	out := make(chan store.ExpensePush, s.config.PushBufferSize)

	records, err := s.readRecords(ctx, expensesKey(ownerID, tripID), store.SortExpenseRecords)
	if err != nil {
		out <- store.ExpensePush{Err: err}
	} else {
		out <- store.ExpensePush{Records: records}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				records, err := s.readRecords(subCtx, expensesKey(ownerID, tripID), store.SortExpenseRecords)
				if err != nil {
					s.deliverExpenses(out, store.ExpensePush{Err: err}, scope)
					continue
				}
				s.deliverExpenses(out, store.ExpensePush{Records: records}, scope)
			}
		}
	}()

	return out, nil
}

func (s *Source) deliverTrips(out chan store.TripPush, push store.TripPush, scope store.Scope) {
	if !store.OfferLatest(out, push) {
		s.log.Warnw("Dropped trip push, subscriber channel full", "scope", scope.String())
	}
}

func (s *Source) deliverExpenses(out chan store.ExpensePush, push store.ExpensePush, scope store.Scope) {
	if !store.OfferLatest(out, push) {
		s.log.Warnw("Dropped expense push, subscriber channel full", "scope", scope.String())
	}
}

// Unsubscribe tears down the subscription for a scope.
func (s *Source) Unsubscribe(ctx context.Context, scope store.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.tripSubs
	if scope.TripID != "" {
		subs = s.expenseSubs
	}

	sub, exists := subs[scope]
	if !exists {
		return fmt.Errorf("no subscription found for scope %s", scope)
	}

	sub.cancelCtx()
	sub.closeOnce.Do(func() {
		if err := sub.pubsub.Close(); err != nil {
			s.log.Errorw("Error closing pubsub during unsubscribe", "scope", scope.String(), "error", err)
		}
	})
	delete(subs, scope)
	return nil
}

// readRecords loads every record in a scope hash and returns them in the
// scope's canonical order.
func (s *Source) readRecords(ctx context.Context, key string, sortFn func([]store.RawRecord)) ([]store.RawRecord, error) {
	raw, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	records := make([]store.RawRecord, 0, len(raw))
	for id, payload := range raw {
		var fields map[string]interface{}
		if err := json.Unmarshal([]byte(payload), &fields); err != nil {
			s.log.Errorw("Skipping undecodable record", "key", key, "id", id, "error", err)
			continue
		}
		records = append(records, store.RawRecord{ID: id, Fields: fields})
	}
	sortFn(records)
	return records, nil
}

func (s *Source) writeRecord(ctx context.Context, key, id string, fields map[string]interface{}) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := s.rdb.HSet(ctx, key, id, string(payload)).Err(); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return s.invalidate(ctx, key)
}

// invalidate publishes the scope's channel so subscribers re-read. The
// payload is irrelevant; the message is a ping.
func (s *Source) invalidate(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.PublishTimeout)
	defer cancel()
	if err := s.rdb.Publish(ctx, key, "invalidate").Err(); err != nil {
		return fmt.Errorf("publish invalidation for %s: %w", key, err)
	}
	return nil
}

// CreateTrip stores a new trip record and invalidates the owner's scope.
func (s *Source) CreateTrip(ctx context.Context, ownerID string, params types.CreateTripParams) (string, error) {
	id := s.newID()
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

	if err := s.writeRecord(ctx, tripsKey(ownerID), id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateTripBudget replaces the trip's budget.
func (s *Source) UpdateTripBudget(ctx context.Context, ownerID, tripID string, budget float64) error {
	return s.updateTrip(ctx, ownerID, tripID, func(fields map[string]interface{}) {
		fields["budget"] = budget
	})
}

// UpdateTripReminder sets or clears the trip's reminder interval.
func (s *Source) UpdateTripReminder(ctx context.Context, ownerID, tripID string, intervalMinutes *int) error {
	return s.updateTrip(ctx, ownerID, tripID, func(fields map[string]interface{}) {
		if intervalMinutes == nil {
			delete(fields, "reminderIntervalMinutes")
			return
		}
		fields["reminderIntervalMinutes"] = *intervalMinutes
	})
}

func (s *Source) updateTrip(ctx context.Context, ownerID, tripID string, mutate func(map[string]interface{})) error {
	key := tripsKey(ownerID)
	payload, err := s.rdb.HGet(ctx, key, tripID).Result()
	if err == redis.Nil {
		return fmt.Errorf("trip %s not found for owner %s", tripID, ownerID)
	}
	if err != nil {
		return fmt.Errorf("read trip %s: %w", tripID, err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return fmt.Errorf("decode trip %s: %w", tripID, err)
	}
	mutate(fields)
	return s.writeRecord(ctx, key, tripID, fields)
}

// AddExpense stores a new expense record and invalidates the trip's scope.
func (s *Source) AddExpense(ctx context.Context, ownerID, tripID string, params types.CreateExpenseParams) (string, error) {
	id := s.newID()
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

	if err := s.writeRecord(ctx, expensesKey(ownerID, tripID), id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// DeleteExpense removes an expense record and returns the receipt URL the
// record held, if any.
func (s *Source) DeleteExpense(ctx context.Context, ownerID, tripID, expenseID string) (string, error) {
	key := expensesKey(ownerID, tripID)
	payload, err := s.rdb.HGet(ctx, key, expenseID).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("expense %s not found in trip %s", expenseID, tripID)
	}
	if err != nil {
		return "", fmt.Errorf("read expense %s: %w", expenseID, err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return "", fmt.Errorf("decode expense %s: %w", expenseID, err)
	}
	imageURL, _ := fields["imageUrl"].(string)

	if err := s.rdb.HDel(ctx, key, expenseID).Err(); err != nil {
		return "", fmt.Errorf("delete expense %s: %w", expenseID, err)
	}
	if err := s.invalidate(ctx, key); err != nil {
		return "", err
	}
	return imageURL, nil
}

// Shutdown cancels all subscriptions and waits for their goroutines.
func (s *Source) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for scope, sub := range s.tripSubs {
		sub.cancelCtx()
		sub.closeOnce.Do(func() { _ = sub.pubsub.Close() })
		delete(s.tripSubs, scope)
	}
	for scope, sub := range s.expenseSubs {
		sub.cancelCtx()
		sub.closeOnce.Do(func() { _ = sub.pubsub.Close() })
		delete(s.expenseSubs, scope)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Redis source shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
