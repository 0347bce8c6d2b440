// Package aggregate derives summary analytics from a trip's current expense
// set. Derivation is a pure function over its inputs: no hidden state, no
// randomness, no ambient clock or locale. The grouping location is an
// explicit parameter so identical inputs always produce identical snapshots.
package aggregate

import (
	"time"

	"github.com/YatraLedger/yatra-ledger-backend/types"
	"github.com/shopspring/decimal"
)

// Derive computes the TripSnapshot for a trip and its expenses. Daily totals
// group by the calendar date of each expense's event timestamp rendered in
// loc (nil means UTC). Runs in O(len(expenses)).
func Derive(trip types.Trip, expenses []types.Expense, loc *time.Location) types.TripSnapshot {
	if loc == nil {
		loc = time.UTC
	}

	snapshot := types.TripSnapshot{
		Trip:           trip,
		DailyTotals:    make(map[string]float64),
		CategoryTotals: make(map[types.ExpenseCategory]float64),
	}

	for _, exp := range expenses {
		snapshot.TotalSpend += exp.Amount
		snapshot.DailyTotals[exp.Timestamp.In(loc).Format(types.DateKey)] += exp.Amount
		snapshot.CategoryTotals[exp.Category] += exp.Amount
	}

	snapshot.BudgetUtilization = utilization(snapshot.TotalSpend, trip.Budget)
	return snapshot
}

// utilization is spend as a percentage of budget, rounded to two decimal
// places. A zero budget yields 0; overspend values above 100 are valid and
// not clamped here (clamping is a presentation concern).
func utilization(totalSpend, budget float64) float64 {
	if budget == 0 {
		return 0
	}
	pct := decimal.NewFromFloat(totalSpend).
		Div(decimal.NewFromFloat(budget)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	f, _ := pct.Float64()
	return f
}
