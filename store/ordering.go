package store

import (
	"sort"
	"time"
)

// sortKey coerces a raw field value into a lexically sortable string.
// Backends store instants either as time.Time or as RFC3339 / ISO date
// strings; both sort correctly as strings once formatted.
func sortKey(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case string:
		return t
	default:
		return ""
	}
}

// SortTripRecords orders trip records by start date ascending, preserving
// the source's natural order for ties.
func SortTripRecords(records []RawRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return sortKey(records[i].Fields["startDate"]) < sortKey(records[j].Fields["startDate"])
	})
}

// SortExpenseRecords orders expense records by event timestamp descending,
// preserving the source's natural order for ties.
func SortExpenseRecords(records []RawRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return sortKey(records[i].Fields["timestamp"]) > sortKey(records[j].Fields["timestamp"])
	})
}
