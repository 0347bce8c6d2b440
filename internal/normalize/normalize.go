// Package normalize converts raw, loosely-typed storage records into
// strongly-typed domain entities. Normalization is pure and total: no raw
// record, however malformed, causes an error. Optional fields resolve to
// documented defaults; fields the source is contractually required to
// provide (amount, category) are passed through as their zero values when
// absent rather than fabricated.
package normalize

import (
	"time"

	"github.com/YatraLedger/yatra-ledger-backend/store"
	"github.com/YatraLedger/yatra-ledger-backend/types"
)

// Normalizer builds domain entities from raw records. Clock supplies the
// instant used when a record has no creation timestamp; injecting it keeps
// normalization deterministic under test.
type Normalizer struct {
	Clock func() time.Time
}

// New returns a Normalizer using the wall clock.
func New() *Normalizer {
	return &Normalizer{Clock: time.Now}
}

func (n *Normalizer) now() time.Time {
	if n.Clock != nil {
		return n.Clock().UTC()
	}
	return time.Now().UTC()
}

// Trip normalizes a raw trip record.
//
// Defaults: gradient seed falls back to destination, then to the record id;
// a missing reminder interval means disabled (nil); a missing creation
// timestamp defaults to the normalization instant.
func (n *Normalizer) Trip(rec store.RawRecord) types.Trip {
	trip := types.Trip{
		ID:          rec.ID,
		Name:        stringField(rec.Fields, "name"),
		Destination: stringField(rec.Fields, "destination"),
		StartDate:   timeField(rec.Fields, "startDate"),
		EndDate:     timeField(rec.Fields, "endDate"),
		Budget:      floatField(rec.Fields, "budget"),
		Currency:    stringField(rec.Fields, "currency"),
	}

	trip.GradientSeed = stringField(rec.Fields, "gradientSeed")
	if trip.GradientSeed == "" {
		trip.GradientSeed = trip.Destination
	}
	if trip.GradientSeed == "" {
		trip.GradientSeed = rec.ID
	}

	if minutes, ok := intFieldOK(rec.Fields, "reminderIntervalMinutes"); ok && minutes > 0 {
		trip.ReminderIntervalMinutes = &minutes
	}

	trip.CreatedAt = timeField(rec.Fields, "createdAt")
	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = n.now()
	}

	return trip
}

// Expense normalizes a raw expense record.
//
// Defaults: notes to the empty string, location and image to absent, a
// missing creation timestamp to the normalization instant. Amount and
// category are required from the source; when absent they surface as zero
// values so the contract violation stays visible downstream.
func (n *Normalizer) Expense(tripID string, rec store.RawRecord) types.Expense {
	exp := types.Expense{
		ID:        rec.ID,
		TripID:    tripID,
		Amount:    floatField(rec.Fields, "amount"),
		Category:  types.ExpenseCategory(stringField(rec.Fields, "category")),
		Timestamp: timeField(rec.Fields, "timestamp"),
		Notes:     stringField(rec.Fields, "notes"),
		ImageURL:  stringField(rec.Fields, "imageUrl"),
	}

	exp.Location = locationField(rec.Fields, "location")

	exp.CreatedAt = timeField(rec.Fields, "createdAt")
	if exp.CreatedAt.IsZero() {
		exp.CreatedAt = n.now()
	}

	return exp
}

// Trips normalizes a full-replace trip record set, preserving order.
func (n *Normalizer) Trips(records []store.RawRecord) []types.Trip {
	trips := make([]types.Trip, 0, len(records))
	for _, rec := range records {
		trips = append(trips, n.Trip(rec))
	}
	return trips
}

// Expenses normalizes a full-replace expense record set, preserving order.
func (n *Normalizer) Expenses(tripID string, records []store.RawRecord) []types.Expense {
	expenses := make([]types.Expense, 0, len(records))
	for _, rec := range records {
		expenses = append(expenses, n.Expense(tripID, rec))
	}
	return expenses
}
