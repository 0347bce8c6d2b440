package services

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

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

type fakeNotifier struct {
	granted bool
}

func (f *fakeNotifier) RequestPermission(ctx context.Context) (bool, error) { return f.granted, nil }
func (f *fakeNotifier) Notify(ctx context.Context, title, body, tag string) error {
	return nil
}

type fakeReceipts struct {
	mu      sync.Mutex
	saved   map[string][]byte
	deleted []string
}

func newFakeReceipts() *fakeReceipts {
	return &fakeReceipts{saved: make(map[string][]byte)}
}

func (f *fakeReceipts) Save(ctx context.Context, key string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[key] = data
	return "https://receipts/" + key, nil
}

func (f *fakeReceipts) Delete(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
	return nil
}

func (f *fakeReceipts) GetURL(ctx context.Context, key string) (string, error) {
	return "https://receipts/" + key + "?signed", nil
}

func newTestService(t *testing.T) (*TripService, *memory.Source, *fakeReceipts, *reminder.Scheduler, *memory.ReminderStore) {
	t.Helper()
	source := memory.NewSource()
	receipts := newFakeReceipts()
	states := memory.NewReminderStore()
	scheduler := reminder.NewScheduler(states, &fakeNotifier{granted: true}, reminder.Config{
		PollInterval: time.Hour,
		Clock:        time.Now,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = scheduler.Shutdown(ctx)
	})
	return NewTripService(source, receipts, scheduler), source, receipts, scheduler, states
}

func validTripParams() types.CreateTripParams {
	return types.CreateTripParams{
		Name:      "Rome",
		StartDate: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
		Budget:    500,
		Currency:  "EUR",
	}
}

func TestCreateTrip_Validation(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*types.CreateTripParams)
	}{
		{"empty name", func(p *types.CreateTripParams) { p.Name = "  " }},
		{"missing dates", func(p *types.CreateTripParams) { p.StartDate = time.Time{} }},
		{"end before start", func(p *types.CreateTripParams) { p.EndDate = p.StartDate.AddDate(0, 0, -1) }},
		{"negative budget", func(p *types.CreateTripParams) { p.Budget = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validTripParams()
			tt.mutate(&params)
			_, err := svc.CreateTrip(ctx, "user-1", params)
			require.Error(t, err)
			appErr, ok := err.(*apperrors.AppError)
			require.True(t, ok)
			assert.Equal(t, apperrors.ValidationError, appErr.Type)
		})
	}
}

func TestCreateTrip_Succeeds(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	id, err := svc.CreateTrip(context.Background(), "user-1", validTripParams())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestAddExpense_ValidationAndReceipt(t *testing.T) {
	svc, source, receipts, _, _ := newTestService(t)
	ctx := context.Background()

	tripID, err := source.CreateTrip(ctx, "user-1", validTripParams())
	require.NoError(t, err)

	// Non-positive amount rejected.
	_, err = svc.AddExpense(ctx, "user-1", tripID, types.CreateExpenseParams{
		Amount: 0, Category: types.CategoryFood, Timestamp: time.Now(),
	}, nil)
	require.Error(t, err)

	// Unknown category rejected.
	_, err = svc.AddExpense(ctx, "user-1", tripID, types.CreateExpenseParams{
		Amount: 10, Category: "groceries", Timestamp: time.Now(),
	}, nil)
	require.Error(t, err)

	// Non-image receipt rejected; nothing stored.
	_, err = svc.AddExpense(ctx, "user-1", tripID, types.CreateExpenseParams{
		Amount: 10, Category: types.CategoryFood, Timestamp: time.Now(),
	}, []byte("%PDF-1.4 not an image"))
	require.Error(t, err)
	assert.Empty(t, receipts.saved)

	// Image receipt stored and linked.
	id, err := svc.AddExpense(ctx, "user-1", tripID, types.CreateExpenseParams{
		Amount: 10, Category: types.CategoryFood, Timestamp: time.Now(),
	}, pngHeader)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Len(t, receipts.saved, 1)
}

func TestDeleteExpense_ReleasesReceipt(t *testing.T) {
	svc, source, receipts, _, _ := newTestService(t)
	ctx := context.Background()

	tripID, err := source.CreateTrip(ctx, "user-1", validTripParams())
	require.NoError(t, err)

	expenseID, err := svc.AddExpense(ctx, "user-1", tripID, types.CreateExpenseParams{
		Amount: 10, Category: types.CategoryFood, Timestamp: time.Now(),
	}, pngHeader)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteExpense(ctx, "user-1", tripID, expenseID))
	require.Len(t, receipts.deleted, 1)
	assert.Contains(t, receipts.deleted[0], "receipts/user-1/"+tripID)
}

func TestSetTripReminder_EnableDisable(t *testing.T) {
	svc, source, _, scheduler, states := newTestService(t)
	ctx := context.Background()

	tripID, err := source.CreateTrip(ctx, "user-1", validTripParams())
	require.NoError(t, err)

	interval := 60
	require.NoError(t, svc.SetTripReminder(ctx, "user-1", tripID, "Rome", &interval))
	assert.True(t, scheduler.Watching(tripID))

	_, exists, err := states.Get(ctx, tripID)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, svc.SetTripReminder(ctx, "user-1", tripID, "Rome", nil))
	assert.False(t, scheduler.Watching(tripID))

	_, exists, err = states.Get(ctx, tripID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSetTripReminder_PermissionDeniedLeavesTripUntouched(t *testing.T) {
	source := memory.NewSource()
	states := memory.NewReminderStore()
	scheduler := reminder.NewScheduler(states, &fakeNotifier{granted: false}, reminder.Config{
		PollInterval: time.Hour,
		Clock:        time.Now,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = scheduler.Shutdown(ctx)
	}()
	svc := NewTripService(source, nil, scheduler)
	ctx := context.Background()

	tripID, err := source.CreateTrip(ctx, "user-1", validTripParams())
	require.NoError(t, err)

	interval := 60
	err = svc.SetTripReminder(ctx, "user-1", tripID, "Rome", &interval)
	require.Error(t, err)
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.PermissionDenied, appErr.Type)
	assert.False(t, scheduler.Watching(tripID))
}

func TestAddExpense_ReceiptWithoutStorageRejected(t *testing.T) {
	source := memory.NewSource()
	scheduler := reminder.NewScheduler(memory.NewReminderStore(), &fakeNotifier{granted: true})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = scheduler.Shutdown(ctx)
	}()
	svc := NewTripService(source, nil, scheduler)
	ctx := context.Background()

	tripID, err := source.CreateTrip(ctx, "user-1", validTripParams())
	require.NoError(t, err)

	_, err = svc.AddExpense(ctx, "user-1", tripID, types.CreateExpenseParams{
		Amount: 10, Category: types.CategoryFood, Timestamp: time.Now(),
	}, pngHeader)
	require.Error(t, err)
}
