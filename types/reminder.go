package types

import "time"

// ReminderState is the durable per-trip bookkeeping for the reminder
// scheduler. It is the only engine-owned state persisted across restarts,
// because it encodes a timing guarantee that must not reset on restart:
// while enabled, a reminder never fires twice within IntervalMinutes,
// measured from LastNotified.
type ReminderState struct {
	IntervalMinutes int       `json:"interval"`
	LastNotified    time.Time `json:"lastNotified"`
}

// Interval returns the reminder interval as a duration.
func (r ReminderState) Interval() time.Duration {
	return time.Duration(r.IntervalMinutes) * time.Minute
}

// Due reports whether enough time has elapsed since the last notification
// for another reminder to fire at instant now.
func (r ReminderState) Due(now time.Time) bool {
	return now.Sub(r.LastNotified) >= r.Interval()
}
