package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "github.com/YatraLedger/yatra-ledger-backend/errors"
	"github.com/YatraLedger/yatra-ledger-backend/internal/reminder"
	"github.com/YatraLedger/yatra-ledger-backend/store/memory"
	"github.com/YatraLedger/yatra-ledger-backend/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu      sync.Mutex
	granted bool
	sent    []string
}

func (f *fakeNotifier) RequestPermission(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.granted, nil
}

func (f *fakeNotifier) Notify(ctx context.Context, title, body, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tag)
	return nil
}

func (f *fakeNotifier) sentTags() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newTestEngine(t *testing.T) (*Engine, *memory.Source, *fakeNotifier, *reminder.Scheduler) {
	t.Helper()

	source := memory.NewSource()
	notifier := &fakeNotifier{granted: true}
	scheduler := reminder.NewScheduler(memory.NewReminderStore(), notifier, reminder.Config{
		PollInterval: time.Hour,
		Clock:        time.Now,
	})
	e := New(source, notifier, scheduler)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e, source, notifier, scheduler
}

func createTrip(t *testing.T, source *memory.Source, ownerID, name string, budget float64) string {
	t.Helper()
	id, err := source.CreateTrip(context.Background(), ownerID, types.CreateTripParams{
		Name:      name,
		StartDate: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
		Budget:    budget,
		Currency:  "EUR",
	})
	require.NoError(t, err)
	return id
}

func addExpense(t *testing.T, source *memory.Source, ownerID, tripID string, amount float64) {
	t.Helper()
	_, err := source.AddExpense(context.Background(), ownerID, tripID, types.CreateExpenseParams{
		Amount:    amount,
		Category:  types.CategoryFood,
		Timestamp: time.Date(2025, 7, 2, 14, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

func awaitTotal(t *testing.T, e *Engine, total float64) types.TripSnapshot {
	t.Helper()
	var snap types.TripSnapshot
	require.Eventually(t, func() bool {
		s, ok := e.Snapshot()
		if ok && s.TotalSpend == total {
			snap = s
			return true
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	return snap
}

func TestEngine_TripListFollowsSource(t *testing.T) {
	e, source, _, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, "user-1"))
	id := createTrip(t, source, "user-1", "Rome", 500)

	require.Eventually(t, func() bool {
		state := e.Trips()
		return !state.Loading && len(state.Trips) == 1 && state.Trips[0].ID == id
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_SnapshotTracksExpensePushes(t *testing.T) {
	e, source, _, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, "user-1"))
	tripID := createTrip(t, source, "user-1", "Rome", 500)
	require.NoError(t, e.SelectTrip(ctx, tripID))

	awaitTotal(t, e, 0)

	addExpense(t, source, "user-1", tripID, 120)
	snap := awaitTotal(t, e, 120)
	assert.Equal(t, 24.0, snap.BudgetUtilization)
	assert.Equal(t, 120.0, snap.CategoryTotals[types.CategoryFood])
	assert.Equal(t, 120.0, snap.DailyTotals["2025-07-02"])
}

func TestEngine_BudgetEditRecomputesSnapshot(t *testing.T) {
	e, source, _, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, "user-1"))
	tripID := createTrip(t, source, "user-1", "Rome", 500)
	require.NoError(t, e.SelectTrip(ctx, tripID))

	addExpense(t, source, "user-1", tripID, 100)
	awaitTotal(t, e, 100)

	require.NoError(t, source.UpdateTripBudget(ctx, "user-1", tripID, 200))
	require.Eventually(t, func() bool {
		snap, ok := e.Snapshot()
		return ok && snap.BudgetUtilization == 50.0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_AlertsFireOnUpwardCrossings(t *testing.T) {
	e, source, notifier, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, "user-1"))
	tripID := createTrip(t, source, "user-1", "Rome", 100)
	require.NoError(t, e.SelectTrip(ctx, tripID))

	// The empty initial push establishes the normal baseline silently.
	awaitTotal(t, e, 0)
	assert.Empty(t, notifier.sentTags())

	addExpense(t, source, "user-1", tripID, 80)
	awaitTotal(t, e, 80)
	require.Eventually(t, func() bool {
		return len(notifier.sentTags()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "budget-warning-"+tripID, notifier.sentTags()[0])

	addExpense(t, source, "user-1", tripID, 15)
	awaitTotal(t, e, 95)
	require.Eventually(t, func() bool {
		return len(notifier.sentTags()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "budget-critical-"+tripID, notifier.sentTags()[1])
}

func TestEngine_ReminderWatchFollowsTripField(t *testing.T) {
	e, source, _, scheduler := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, "user-1"))
	tripID := createTrip(t, source, "user-1", "Rome", 500)

	interval := 60
	require.NoError(t, source.UpdateTripReminder(ctx, "user-1", tripID, &interval))
	require.Eventually(t, func() bool {
		return scheduler.Watching(tripID)
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, source.UpdateTripReminder(ctx, "user-1", tripID, nil))
	require.Eventually(t, func() bool {
		return !scheduler.Watching(tripID)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_SwitchingTripsReplacesSnapshot(t *testing.T) {
	e, source, _, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, "user-1"))
	tripA := createTrip(t, source, "user-1", "Rome", 500)
	tripB := createTrip(t, source, "user-1", "Oslo", 300)

	require.NoError(t, e.SelectTrip(ctx, tripA))
	addExpense(t, source, "user-1", tripA, 50)
	awaitTotal(t, e, 50)

	require.NoError(t, e.SelectTrip(ctx, tripB))
	assert.Equal(t, tripB, e.SelectedTripID())

	// The stale snapshot is gone immediately; the new one arrives with B's
	// initial (empty) push.
	snap := awaitTotal(t, e, 0)
	assert.Equal(t, tripB, snap.ID)
}

func TestEngine_SelectTripRequiresOwner(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	err := e.SelectTrip(context.Background(), "trip-1")
	require.Error(t, err)
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ValidationError, appErr.Type)
}
