package types

// DateKey is the calendar-date key format used in DailyTotals, rendered in
// the engine's configured location.
const DateKey = "2006-01-02"

// TripSnapshot is a Trip enriched with analytics derived from its current
// expense set. Snapshots are engine-owned values; deriving twice from
// identical inputs yields identical snapshots.
type TripSnapshot struct {
	Trip
	TotalSpend float64 `json:"totalSpend"`
	// DailyTotals maps a calendar date (DateKey format) to the summed amount
	// for that day. Dates without expenses never appear.
	DailyTotals map[string]float64 `json:"dailyTotals"`
	// CategoryTotals maps a category to its summed amount. Categories without
	// expenses never appear, not even as zero entries.
	CategoryTotals map[ExpenseCategory]float64 `json:"categoryTotals"`
	// BudgetUtilization is spend as a percentage of budget, rounded to two
	// decimal places, 0 when the budget is 0, and unbounded above 100.
	BudgetUtilization float64 `json:"budgetUtilization"`
}

// AverageDailySpend is the total spend divided by the number of recorded
// days, or the total itself when no day has been recorded yet.
func (s *TripSnapshot) AverageDailySpend() float64 {
	days := len(s.DailyTotals)
	if days == 0 {
		return s.TotalSpend
	}
	return s.TotalSpend / float64(days)
}

// PeakDailySpend is the highest single-day total, 0 when there are none.
func (s *TripSnapshot) PeakDailySpend() float64 {
	var peak float64
	for _, v := range s.DailyTotals {
		if v > peak {
			peak = v
		}
	}
	return peak
}

// BudgetRemaining is the unspent budget, clamped at 0 on overspend.
func (s *TripSnapshot) BudgetRemaining() float64 {
	remaining := s.Budget - s.TotalSpend
	if remaining < 0 {
		return 0
	}
	return remaining
}
