// Package schema locates values inside device payloads. A FieldPath names an
// endpoint and a chain of key/index steps; walking it never fails, it only
// finds or misses.
package schema

import (
	"strconv"
	"strings"

	"github.com/raterudder/hanbridge/pkg/types"
)

// StepKind distinguishes object key lookups from array indexes.
type StepKind int

const (
	StepKey StepKind = iota
	StepIndex
)

// Step is a single accessor in a FieldPath.
type Step struct {
	Kind  StepKind
	Key   string
	Index int
}

// Key returns a key lookup step.
func Key(k string) Step {
	return Step{Kind: StepKey, Key: k}
}

// Index returns an array index step.
func Index(i int) Step {
	return Step{Kind: StepIndex, Index: i}
}

// FieldPath locates one value inside a snapshot.
type FieldPath struct {
	Endpoint string
	Steps    []Step
}

// Path builds a FieldPath from arbitrary steps.
func Path(endpoint string, steps ...Step) FieldPath {
	return FieldPath{Endpoint: endpoint, Steps: steps}
}

// Keys builds a FieldPath that is a chain of nested key lookups.
func Keys(endpoint string, keys ...string) FieldPath {
	steps := make([]Step, len(keys))
	for i, k := range keys {
		steps[i] = Key(k)
	}
	return FieldPath{Endpoint: endpoint, Steps: steps}
}

// Element builds a FieldPath for index i of the array stored under key.
func Element(endpoint, key string, i int) FieldPath {
	return Path(endpoint, Key(key), Index(i))
}

// IsZero reports whether the path is unset.
func (p FieldPath) IsZero() bool {
	return p.Endpoint == "" && len(p.Steps) == 0
}

// String renders the path as endpoint.key[index].key.
func (p FieldPath) String() string {
	var sb strings.Builder
	sb.WriteString(p.Endpoint)
	for _, s := range p.Steps {
		switch s.Kind {
		case StepIndex:
			sb.WriteByte('[')
			sb.WriteString(strconv.Itoa(s.Index))
			sb.WriteByte(']')
		default:
			sb.WriteByte('.')
			sb.WriteString(s.Key)
		}
	}
	return sb.String()
}

// Walk applies steps to v. Any step that cannot be applied (missing key,
// non-object, non-array, index out of range) results in a miss.
func Walk(v any, steps []Step) (any, bool) {
	cur := v
	for _, s := range steps {
		switch s.Kind {
		case StepKey:
			obj, ok := asObject(cur)
			if !ok {
				return nil, false
			}
			next, ok := obj[s.Key]
			if !ok {
				return nil, false
			}
			cur = next
		case StepIndex:
			arr, ok := cur.([]any)
			if !ok || s.Index < 0 || s.Index >= len(arr) {
				return nil, false
			}
			cur = arr[s.Index]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Extract resolves path against snap. A missing endpoint is a miss.
func Extract(snap types.Snapshot, path FieldPath) (any, bool) {
	p, ok := snap.Endpoint(path.Endpoint)
	if !ok || p == nil {
		return nil, false
	}
	return Walk(p, path.Steps)
}

func asObject(v any) (map[string]any, bool) {
	switch o := v.(type) {
	case types.Payload:
		return o, o != nil
	case map[string]any:
		return o, o != nil
	default:
		return nil, false
	}
}
