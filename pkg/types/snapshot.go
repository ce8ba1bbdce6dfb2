package types

import "time"

// Payload is the decoded JSON object returned by a single device endpoint.
type Payload map[string]any

// Snapshot is the merged result of one successful poll cycle, keyed by
// endpoint name (e.g. "realtime", "config"). A Snapshot must not be modified
// after it has been published.
type Snapshot struct {
	Payloads  map[string]Payload `json:"payloads"`
	FetchedAt time.Time          `json:"fetchedAt"`
}

// Empty reports whether the snapshot holds no endpoint data at all.
func (s Snapshot) Empty() bool {
	return len(s.Payloads) == 0
}

// Endpoint returns the payload for the named endpoint and whether it exists.
func (s Snapshot) Endpoint(name string) (Payload, bool) {
	p, ok := s.Payloads[name]
	return p, ok
}

// Availability describes the outcome of recent poll cycles.
type Availability struct {
	Available           bool      `json:"available"`
	LastSuccess         time.Time `json:"lastSuccess,omitzero"`
	LastFailure         time.Time `json:"lastFailure,omitzero"`
	LastError           string    `json:"lastError,omitempty"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
}
