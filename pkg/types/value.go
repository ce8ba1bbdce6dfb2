package types

import (
	"encoding/json"
	"time"
)

// ValueKind is the type of a reader's output.
type ValueKind int

const (
	// ValueNone means the reader has no value right now.
	ValueNone ValueKind = iota
	ValueFloat
	ValueString
	ValueBool
	ValueTime
)

// String implements fmt.Stringer.
func (k ValueKind) String() string {
	switch k {
	case ValueFloat:
		return "float"
	case ValueString:
		return "string"
	case ValueBool:
		return "bool"
	case ValueTime:
		return "time"
	default:
		return "none"
	}
}

// Value is the typed, possibly absent output of a reader.
type Value struct {
	Kind   ValueKind
	Float  float64
	String string
	Bool   bool
	Time   time.Time
}

// NoValue is returned when a reader cannot produce a value.
var NoValue = Value{}

func FloatValue(f float64) Value {
	return Value{Kind: ValueFloat, Float: f}
}

func StringValue(s string) Value {
	return Value{Kind: ValueString, String: s}
}

func BoolValue(b bool) Value {
	return Value{Kind: ValueBool, Bool: b}
}

func TimeValue(t time.Time) Value {
	return Value{Kind: ValueTime, Time: t}
}

// Present reports whether the value is set.
func (v Value) Present() bool {
	return v.Kind != ValueNone
}

// Interface returns the value as a plain Go value, or nil when absent.
func (v Value) Interface() any {
	switch v.Kind {
	case ValueFloat:
		return v.Float
	case ValueString:
		return v.String
	case ValueBool:
		return v.Bool
	case ValueTime:
		return v.Time
	default:
		return nil
	}
}

// MarshalJSON encodes the value as its plain JSON form (null when absent).
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == ValueTime {
		return json.Marshal(v.Time.UTC().Format(time.RFC3339))
	}
	return json.Marshal(v.Interface())
}
