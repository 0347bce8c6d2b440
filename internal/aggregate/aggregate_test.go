package aggregate

import (
	"math"
	"testing"
	"time"

	"github.com/YatraLedger/yatra-ledger-backend/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-9

func expense(id string, amount float64, category types.ExpenseCategory, ts time.Time) types.Expense {
	return types.Expense{
		ID:        id,
		TripID:    "trip-1",
		Amount:    amount,
		Category:  category,
		Timestamp: ts,
	}
}

func sampleExpenses() []types.Expense {
	day1 := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 6, 11, 21, 30, 0, 0, time.UTC)
	return []types.Expense{
		expense("e1", 40, types.CategoryFood, day1),
		expense("e2", 15.5, types.CategoryDrinks, day1.Add(8*time.Hour)),
		expense("e3", 120, types.CategoryShopping, day2),
		expense("e4", 24.5, types.CategoryFood, day2),
	}
}

func TestDerive_Totals(t *testing.T) {
	trip := types.Trip{ID: "trip-1", Budget: 1000}
	snap := Derive(trip, sampleExpenses(), time.UTC)

	assert.InDelta(t, 200.0, snap.TotalSpend, epsilon)
	assert.Equal(t, map[string]float64{
		"2025-06-10": 55.5,
		"2025-06-11": 144.5,
	}, snap.DailyTotals)
	assert.Equal(t, map[types.ExpenseCategory]float64{
		types.CategoryFood:     64.5,
		types.CategoryDrinks:   15.5,
		types.CategoryShopping: 120,
	}, snap.CategoryTotals)
	assert.InDelta(t, 20.0, snap.BudgetUtilization, epsilon)
}

func TestDerive_EmptyExpenses(t *testing.T) {
	snap := Derive(types.Trip{ID: "trip-1", Budget: 500}, nil, time.UTC)

	assert.Zero(t, snap.TotalSpend)
	assert.Empty(t, snap.DailyTotals)
	assert.Empty(t, snap.CategoryTotals)
	assert.Zero(t, snap.BudgetUtilization)
}

// Totals must reconcile: daily, category and overall sums agree for any
// expense set, floating-point epsilon aside.
func TestDerive_SumInvariant(t *testing.T) {
	snap := Derive(types.Trip{ID: "trip-1", Budget: 1000}, sampleExpenses(), time.UTC)

	var dailySum, categorySum float64
	for _, v := range snap.DailyTotals {
		dailySum += v
	}
	for _, v := range snap.CategoryTotals {
		categorySum += v
	}

	assert.InDelta(t, snap.TotalSpend, dailySum, epsilon)
	assert.InDelta(t, snap.TotalSpend, categorySum, epsilon)
}

func TestDerive_Pure(t *testing.T) {
	trip := types.Trip{ID: "trip-1", Budget: 750}
	expenses := sampleExpenses()

	first := Derive(trip, expenses, time.UTC)
	second := Derive(trip, expenses, time.UTC)

	assert.Equal(t, first, second)
}

func TestDerive_IdempotentOnUnchangedReplace(t *testing.T) {
	trip := types.Trip{ID: "trip-1", Budget: 750}
	before := Derive(trip, sampleExpenses(), time.UTC)
	// Simulate a full-replace push delivering the same records again.
	after := Derive(trip, sampleExpenses(), time.UTC)

	assert.Equal(t, before, after)
}

func TestBudgetUtilization(t *testing.T) {
	tests := []struct {
		name     string
		budget   float64
		total    float64
		expected float64
	}{
		{"zero budget with spend", 0, 300, 0},
		{"quarter spent", 1000, 250, 25.00},
		{"exactly on budget", 1000, 1000, 100.00},
		{"overspend not clamped", 1000, 1500, 150.00},
		{"rounded to two decimals", 300, 100, 33.33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trip := types.Trip{ID: "trip-1", Budget: tt.budget}
			expenses := []types.Expense{expense("e1", tt.total, types.CategoryTravel, time.Now().UTC())}
			snap := Derive(trip, expenses, time.UTC)
			assert.InDelta(t, tt.expected, snap.BudgetUtilization, epsilon)
		})
	}
}

func TestDerive_LocationGroupsByLocalDate(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 23:00 UTC on June 10 is already June 11 in Tokyo.
	lateNight := time.Date(2025, 6, 10, 23, 0, 0, 0, time.UTC)
	expenses := []types.Expense{expense("e1", 10, types.CategoryFood, lateNight)}

	utcSnap := Derive(types.Trip{ID: "trip-1"}, expenses, time.UTC)
	tokyoSnap := Derive(types.Trip{ID: "trip-1"}, expenses, tokyo)

	assert.Contains(t, utcSnap.DailyTotals, "2025-06-10")
	assert.Contains(t, tokyoSnap.DailyTotals, "2025-06-11")
}

func TestSnapshotSummaries(t *testing.T) {
	snap := Derive(types.Trip{ID: "trip-1", Budget: 1000}, sampleExpenses(), time.UTC)

	assert.InDelta(t, 100.0, snap.AverageDailySpend(), epsilon)
	assert.InDelta(t, 144.5, snap.PeakDailySpend(), epsilon)
	assert.InDelta(t, 800.0, snap.BudgetRemaining(), epsilon)

	overspent := Derive(types.Trip{ID: "trip-1", Budget: 100}, sampleExpenses(), time.UTC)
	assert.Zero(t, overspent.BudgetRemaining(), "remaining clamps at zero on overspend")

	empty := Derive(types.Trip{ID: "trip-1", Budget: 100}, nil, time.UTC)
	assert.Zero(t, empty.AverageDailySpend())
	assert.Zero(t, empty.PeakDailySpend())
	assert.False(t, math.IsNaN(empty.AverageDailySpend()))
}
