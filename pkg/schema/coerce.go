package schema

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/raterudder/hanbridge/pkg/types"
)

// Float extracts a number. Numeric strings are parsed; null, booleans,
// objects and unparseable strings are a miss.
func Float(snap types.Snapshot, path FieldPath) (float64, bool) {
	v, ok := Extract(snap, path)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// FloatOr is Float with def substituted on a miss.
func FloatOr(snap types.Snapshot, path FieldPath, def float64) float64 {
	if f, ok := Float(snap, path); ok {
		return f
	}
	return def
}

// Bool is true exactly when the raw value is the JSON literal true.
func Bool(snap types.Snapshot, path FieldPath) bool {
	v, ok := Extract(snap, path)
	if !ok {
		return false
	}
	b, isBool := v.(bool)
	return isBool && b
}

// String extracts a scalar as text. Numbers are formatted in their shortest
// form; null, objects and arrays are a miss.
func String(snap types.Snapshot, path FieldPath) (string, bool) {
	v, ok := Extract(snap, path)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	case json.Number:
		return s.String(), true
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

// Time extracts epoch seconds as a UTC time. Zero, negative and non-finite
// values are a miss.
func Time(snap types.Snapshot, path FieldPath) (time.Time, bool) {
	f, ok := Float(snap, path)
	if !ok || f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC(), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
