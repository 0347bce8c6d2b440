package types

import "time"

// Trip represents a traveler's trip with its budget settings.
// Instances are read-only copies of the storage collaborator's records,
// rebuilt on every push; the engine never mutates them in place.
type Trip struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Destination string    `json:"destination"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	Budget      float64   `json:"budget"`
	Currency    string    `json:"currency"` // ISO-4217-like code, opaque to the engine
	// GradientSeed drives the presentation gradient. It is derived at
	// normalization time (destination, falling back to the record id) and
	// carried through untouched.
	GradientSeed string `json:"gradientSeed"`
	// ReminderIntervalMinutes is nil when reminders are disabled for the trip.
	ReminderIntervalMinutes *int      `json:"reminderIntervalMinutes,omitempty"`
	CreatedAt               time.Time `json:"createdAt"`
}

// ReminderEnabled reports whether the trip has a usable reminder interval.
func (t *Trip) ReminderEnabled() bool {
	return t.ReminderIntervalMinutes != nil && *t.ReminderIntervalMinutes > 0
}

// CreateTripParams holds the caller-supplied fields for creating a trip.
type CreateTripParams struct {
	Name         string    `json:"name"`
	Destination  string    `json:"destination"`
	StartDate    time.Time `json:"startDate"`
	EndDate      time.Time `json:"endDate"`
	Budget       float64   `json:"budget"`
	Currency     string    `json:"currency"`
	GradientSeed string    `json:"gradientSeed,omitempty"`
}
