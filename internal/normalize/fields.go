package normalize

import (
	"encoding/json"
	"time"

	"github.com/YatraLedger/yatra-ledger-backend/types"
)

// stringField returns the field as a string, or "" when absent or not a
// string.
func stringField(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

// floatField coerces numeric field representations (float64, int variants,
// json.Number) into a float64, defaulting to 0.
func floatField(fields map[string]interface{}, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// intFieldOK coerces a numeric field into an int, reporting presence.
func intFieldOK(fields map[string]interface{}, key string) (int, bool) {
	switch v := fields[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// timeField converts any backend-native timestamp representation into a
// canonical UTC instant: time.Time values pass through, strings are parsed
// as RFC3339 then as bare dates, numbers are treated as unix milliseconds,
// and {seconds, nanos} maps are unpacked. Anything else yields the zero
// instant for the caller to default.
func timeField(fields map[string]interface{}, key string) time.Time {
	switch v := fields[key].(type) {
	case time.Time:
		return v.UTC()
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t.UTC()
		}
		if t, err := time.Parse(types.DateKey, v); err == nil {
			return t.UTC()
		}
		return time.Time{}
	case float64:
		return time.UnixMilli(int64(v)).UTC()
	case int64:
		return time.UnixMilli(v).UTC()
	case json.Number:
		ms, err := v.Int64()
		if err != nil {
			return time.Time{}
		}
		return time.UnixMilli(ms).UTC()
	case map[string]interface{}:
		secs := floatField(v, "seconds")
		nanos := floatField(v, "nanos")
		if secs == 0 && nanos == 0 {
			return time.Time{}
		}
		return time.Unix(int64(secs), int64(nanos)).UTC()
	default:
		return time.Time{}
	}
}

// locationField unpacks an optional geotag; any subset of lat/lng/label may
// be present. A missing or empty map means no location.
func locationField(fields map[string]interface{}, key string) *types.Location {
	raw, ok := fields[key].(map[string]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}

	loc := &types.Location{Label: stringField(raw, "label")}
	if _, present := raw["lat"]; present {
		lat := floatField(raw, "lat")
		loc.Lat = &lat
	}
	if _, present := raw["lng"]; present {
		lng := floatField(raw, "lng")
		loc.Lng = &lng
	}

	if loc.Lat == nil && loc.Lng == nil && loc.Label == "" {
		return nil
	}
	return loc
}
