package device

import (
	"errors"
	"fmt"
)

// ErrorKind classifies fetch failures.
type ErrorKind int

const (
	// ConnectError means the device was unreachable or timed out.
	ConnectError ErrorKind = iota + 1
	// ProtocolError means the device answered with a non-2xx status or a body
	// that was not a JSON object.
	ProtocolError
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case ConnectError:
		return "connect"
	case ProtocolError:
		return "protocol"
	default:
		return "unknown"
	}
}

// FetchError is returned by every failed fetch.
type FetchError struct {
	Kind   ErrorKind
	Path   string
	Status int
	Err    error
}

// Error implements error.
func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s error fetching %s: status %d", e.Kind, e.Path, e.Status)
	}
	return fmt.Sprintf("%s error fetching %s: %v", e.Kind, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a fetch error anywhere in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
