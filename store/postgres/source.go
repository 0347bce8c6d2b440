// Package postgres provides a Postgres-backed storage collaborator. Records
// live in relational tables; mutations raise a NOTIFY on a shared channel
// and each subscription's listener re-reads its scope and delivers a
// full-replace push.
package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/YatraLedger/yatra-ledger-backend/logger"
	"github.com/YatraLedger/yatra-ledger-backend/store"
	"github.com/YatraLedger/yatra-ledger-backend/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	tripsChannel    = "yl_trips"
	expensesChannel = "yl_expenses"
	pushBuffer      = 16
)

// DB is the query surface the source needs. *pgxpool.Pool satisfies it, as
// does the pgxmock pool used in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type subscription struct {
	cancelCtx context.CancelFunc
}

// Source implements the collection source and trip store contracts on
// Postgres. Each subscription holds a dedicated listener connection.
type Source struct {
	db    DB
	pool  *pgxpool.Pool
	log   *zap.SugaredLogger
	clock func() time.Time
	newID func() string

	mu          sync.Mutex
	tripSubs    map[store.Scope]*subscription
	expenseSubs map[store.Scope]*subscription
	wg          sync.WaitGroup
}

// NewSource creates a Source over an existing connection pool.
func NewSource(pool *pgxpool.Pool) *Source {
	s := newSourceWithDB(pool)
	s.pool = pool
	return s
}

func newSourceWithDB(db DB) *Source {
	return &Source{
		db:          db,
		log:         logger.GetLogger().Named("postgres_source"),
		clock:       time.Now,
		newID:       func() string { return uuid.New().String() },
		tripSubs:    make(map[store.Scope]*subscription),
		expenseSubs: make(map[store.Scope]*subscription),
	}
}

// SubscribeTrips registers the single subscriber for an owner's trip
// collection. The current set is delivered immediately; afterwards every
// notification for the owner triggers a re-read and a full-replace push.
func (s *Source) SubscribeTrips(ctx context.Context, ownerID string) (<-chan store.TripPush, error) {
	scope := store.Scope{OwnerID: ownerID}

	s.mu.Lock()
	if _, exists := s.tripSubs[scope]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("subscription already exists for scope %s", scope)
	}
	subCtx, cancel := context.WithCancel(context.Background())
	s.tripSubs[scope] = &subscription{cancelCtx: cancel}
	s.mu.Unlock()

	out := make(chan store.TripPush, pushBuffer)

	records, err := s.readTripRecords(ctx, ownerID)
	if err != nil {
		out <- store.TripPush{Err: err}
	} else {
		out <- store.TripPush{Records: records}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)
		s.listen(subCtx, tripsChannel, ownerID, func(listenCtx context.Context) {
			records, err := s.readTripRecords(listenCtx, ownerID)
			push := store.TripPush{Records: records}
			if err != nil {
				push = store.TripPush{Err: err}
			}
			s.deliverTrips(out, push, scope)
		})
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
	subCtx, cancel := context.WithCancel(context.Background())
	s.expenseSubs[scope] = &subscription{cancelCtx: cancel}
	s.mu.Unlock()

	out := make(chan store.ExpensePush, pushBuffer)

	records, err := s.readExpenseRecords(ctx, ownerID, tripID)
	if err != nil {
		out <- store.ExpensePush{Err: err}
	} else {
		out <- store.ExpensePush{Records: records}
	}

	payload := ownerID + "/" + tripID
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)
		s.listen(subCtx, expensesChannel, payload, func(listenCtx context.Context) {
			records, err := s.readExpenseRecords(listenCtx, ownerID, tripID)
			push := store.ExpensePush{Records: records}
			if err != nil {
				push = store.ExpensePush{Err: err}
			}
			s.deliverExpenses(out, push, scope)
		})
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

// listen holds a dedicated connection on LISTEN channel and invokes onNotify
// for every notification whose payload matches. Returns when ctx is
// cancelled or the connection fails.
func (s *Source) listen(ctx context.Context, channel, payload string, onNotify func(context.Context)) {
	if s.pool == nil {
		// No pool means no live notifications (mocked query surface).
		<-ctx.Done()
		return
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		s.log.Errorw("Failed to acquire listener connection", "channel", channel, "error", err)
		return
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		s.log.Errorw("LISTEN failed", "channel", channel, "error", err)
		return
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Errorw("Listener connection lost", "channel", channel, "error", err)
			return
		}
		if notification.Payload != payload {
			continue
		}
		onNotify(ctx)
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
	delete(subs, scope)
	return nil
}

func (s *Source) readTripRecords(ctx context.Context, ownerID string) ([]store.RawRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, destination, start_date, end_date, budget, currency,
		       gradient_seed, reminder_interval_minutes, created_at
		FROM trips
		WHERE owner_id = $1
		ORDER BY start_date ASC, created_at ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()

	var records []store.RawRecord
	for rows.Next() {
		var (
			id, name, destination, currency string
			startDate, endDate, createdAt   time.Time
			budget                          float64
			gradientSeed                    *string
			reminderInterval                *int
		)
		if err := rows.Scan(&id, &name, &destination, &startDate, &endDate,
			&budget, &currency, &gradientSeed, &reminderInterval, &createdAt); err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}

		fields := map[string]interface{}{
			"name":        name,
			"destination": destination,
			"startDate":   startDate,
			"endDate":     endDate,
			"budget":      budget,
			"currency":    currency,
			"createdAt":   createdAt,
		}
		if gradientSeed != nil {
			fields["gradientSeed"] = *gradientSeed
		}
		if reminderInterval != nil {
			fields["reminderIntervalMinutes"] = *reminderInterval
		}
		records = append(records, store.RawRecord{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trips: %w", err)
	}
	return records, nil
}

func (s *Source) readExpenseRecords(ctx context.Context, ownerID, tripID string) ([]store.RawRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, amount, category, ts, lat, lng, location_label, notes,
		       image_url, created_at
		FROM expenses
		WHERE owner_id = $1 AND trip_id = $2
		ORDER BY ts DESC, created_at DESC`,
		ownerID, tripID,
	)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var records []store.RawRecord
	for rows.Next() {
		var (
			id, category, notes string
			amount              float64
			ts, createdAt       time.Time
			lat, lng            *float64
			label, imageURL     *string
		)
		if err := rows.Scan(&id, &amount, &category, &ts, &lat, &lng,
			&label, &notes, &imageURL, &createdAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}

		fields := map[string]interface{}{
			"amount":    amount,
			"category":  category,
			"timestamp": ts,
			"notes":     notes,
			"createdAt": createdAt,
		}
		if imageURL != nil {
			fields["imageUrl"] = *imageURL
		}
		if lat != nil || lng != nil || (label != nil && *label != "") {
			loc := map[string]interface{}{}
			if lat != nil {
				loc["lat"] = *lat
			}
			if lng != nil {
				loc["lng"] = *lng
			}
			if label != nil && *label != "" {
				loc["label"] = *label
			}
			fields["location"] = loc
		}
		records = append(records, store.RawRecord{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return records, nil
}

func (s *Source) notify(ctx context.Context, channel, payload string) error {
	if _, err := s.db.Exec(ctx, "SELECT pg_notify($1, $2)", channel, payload); err != nil {
		return fmt.Errorf("notify %s: %w", channel, err)
	}
	return nil
}

// CreateTrip inserts a new trip row and notifies the owner's scope.
func (s *Source) CreateTrip(ctx context.Context, ownerID string, params types.CreateTripParams) (string, error) {
	id := s.newID()
	var gradientSeed *string
	if params.GradientSeed != "" {
		gradientSeed = &params.GradientSeed
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO trips (id, owner_id, name, destination, start_date, end_date,
		                   budget, currency, gradient_seed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, ownerID, params.Name, params.Destination,
		params.StartDate.UTC(), params.EndDate.UTC(),
		params.Budget, params.Currency, gradientSeed, s.clock().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert trip: %w", err)
	}
	if err := s.notify(ctx, tripsChannel, ownerID); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateTripBudget replaces the trip's budget.
func (s *Source) UpdateTripBudget(ctx context.Context, ownerID, tripID string, budget float64) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE trips SET budget = $1 WHERE id = $2 AND owner_id = $3",
		budget, tripID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("update trip budget: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trip %s not found for owner %s", tripID, ownerID)
	}
	return s.notify(ctx, tripsChannel, ownerID)
}

// UpdateTripReminder sets or clears the trip's reminder interval.
func (s *Source) UpdateTripReminder(ctx context.Context, ownerID, tripID string, intervalMinutes *int) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE trips SET reminder_interval_minutes = $1 WHERE id = $2 AND owner_id = $3",
		intervalMinutes, tripID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("update trip reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trip %s not found for owner %s", tripID, ownerID)
	}
	return s.notify(ctx, tripsChannel, ownerID)
}

// AddExpense inserts a new expense row and notifies the trip's scope.
func (s *Source) AddExpense(ctx context.Context, ownerID, tripID string, params types.CreateExpenseParams) (string, error) {
	id := s.newID()

	var (
		lat, lng *float64
		label    *string
		imageURL *string
	)
	if params.Location != nil {
		lat = params.Location.Lat
		lng = params.Location.Lng
		if params.Location.Label != "" {
			label = &params.Location.Label
		}
	}
	if params.ImageURL != "" {
		imageURL = &params.ImageURL
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO expenses (id, owner_id, trip_id, amount, category, ts,
		                      lat, lng, location_label, notes, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id, ownerID, tripID, params.Amount, string(params.Category),
		params.Timestamp.UTC(), lat, lng, label, params.Notes, imageURL, s.clock().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert expense: %w", err)
	}
	if err := s.notify(ctx, expensesChannel, ownerID+"/"+tripID); err != nil {
		return "", err
	}
	return id, nil
}

// DeleteExpense removes an expense row and returns the receipt URL it held,
// if any.
func (s *Source) DeleteExpense(ctx context.Context, ownerID, tripID, expenseID string) (string, error) {
	var imageURL *string
	err := s.db.QueryRow(ctx, `
		DELETE FROM expenses
		WHERE id = $1 AND owner_id = $2 AND trip_id = $3
		RETURNING image_url`,
		expenseID, ownerID, tripID,
	).Scan(&imageURL)
	if err == pgx.ErrNoRows {
		return "", fmt.Errorf("expense %s not found in trip %s", expenseID, tripID)
	}
	if err != nil {
		return "", fmt.Errorf("delete expense: %w", err)
	}

	if err := s.notify(ctx, expensesChannel, ownerID+"/"+tripID); err != nil {
		return "", err
	}
	if imageURL == nil {
		return "", nil
	}
	return *imageURL, nil
}

// Shutdown cancels all subscriptions and waits for their listeners.
func (s *Source) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for scope, sub := range s.tripSubs {
		sub.cancelCtx()
		delete(s.tripSubs, scope)
	}
	for scope, sub := range s.expenseSubs {
		sub.cancelCtx()
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
		s.log.Info("Postgres source shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
