// Package sensor projects typed values out of the derived state. Readers are
// configured once and evaluated on every read; the only state they touch is
// the daily maxima kept by the store.
package sensor

import (
	"github.com/raterudder/hanbridge/pkg/schema"
	"github.com/raterudder/hanbridge/pkg/types"
)

// Kind selects how a Reader evaluates.
type Kind int

const (
	// Plain is a numeric field, e.g. an energy total. Missing is no value
	// unless the reader has a default.
	Plain Kind = iota + 1
	// Array is an element of a per-phase array. Missing reads as 0.
	Array
	// Text is a string or number rendered as text.
	Text
	// Flag is true only for the JSON literal true.
	Flag
	// Timestamp converts epoch seconds to a time.
	Timestamp
	// Maximum is the daily maximum of a numeric source.
	Maximum
	// Static is resolved once at startup.
	Static
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Plain:
		return "plain"
	case Array:
		return "array"
	case Text:
		return "text"
	case Flag:
		return "flag"
	case Timestamp:
		return "timestamp"
	case Maximum:
		return "maximum"
	case Static:
		return "static"
	default:
		return "unknown"
	}
}

// State is what readers read from. *store.Store implements it.
type State interface {
	Snapshot() types.Snapshot
	RecordIfGreater(metric string, v float64) float64
	Maximum(metric string) (float64, bool)
}

// Reader projects one value out of State.
type Reader struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Unit        string `json:"unit,omitempty"`
	DeviceClass string `json:"deviceClass,omitempty"`
	StateClass  string `json:"stateClass,omitempty"`
	Diagnostic  bool   `json:"diagnostic,omitempty"`
	Kind        Kind   `json:"-"`

	Path schema.FieldPath `json:"-"`

	// HasDefault substitutes Default when a Plain field is missing.
	HasDefault bool    `json:"-"`
	Default    float64 `json:"-"`

	// Metric identifies the daily maximum a Maximum reader feeds.
	Metric string `json:"-"`

	// Value is the resolved value of a Static reader.
	Value types.Value `json:"-"`
}

// Read evaluates the reader against the current state.
func (r Reader) Read(st State) types.Value {
	if r.Kind == Static {
		return r.Value
	}

	snap := st.Snapshot()
	switch r.Kind {
	case Plain:
		if f, ok := schema.Float(snap, r.Path); ok {
			return types.FloatValue(f)
		}
		if r.HasDefault {
			return types.FloatValue(r.Default)
		}
		return types.NoValue
	case Array:
		return types.FloatValue(schema.FloatOr(snap, r.Path, 0))
	case Text:
		if s, ok := schema.String(snap, r.Path); ok {
			return types.StringValue(s)
		}
		return types.NoValue
	case Flag:
		return types.BoolValue(schema.Bool(snap, r.Path))
	case Timestamp:
		if t, ok := schema.Time(snap, r.Path); ok {
			return types.TimeValue(t)
		}
		return types.NoValue
	case Maximum:
		// a missing source does not feed the maximum
		if f, ok := schema.Float(snap, r.Path); ok {
			return types.FloatValue(st.RecordIfGreater(r.Metric, f))
		}
		if f, ok := st.Maximum(r.Metric); ok {
			return types.FloatValue(f)
		}
		return types.NoValue
	default:
		return types.NoValue
	}
}

// Registrar receives the resolved readers once at startup.
type Registrar interface {
	Register(readers []Reader)
}

// Find returns the reader with the given id.
func Find(readers []Reader, id string) (Reader, bool) {
	for _, r := range readers {
		if r.ID == id {
			return r, true
		}
	}
	return Reader{}, false
}
