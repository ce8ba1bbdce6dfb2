// Package store holds the derived state of one device: the latest snapshot,
// poll availability, the device identity and per-metric daily maxima.
package store

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/raterudder/hanbridge/pkg/types"
)

// Store is safe for concurrent use. Publish, RecordSuccess and RecordFailure
// are expected to be called by a single poller.
type Store struct {
	now func() time.Time
	loc *time.Location

	snapshot atomic.Pointer[types.Snapshot]

	mu           sync.Mutex
	availability types.Availability
	identity     types.Identity
	identitySet  bool
	maxima       map[string]*dailyMaximum
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLocation sets the location whose calendar day scopes daily maxima.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		loc:      time.Local,
		identity: types.UnknownIdentity(),
		maxima:   make(map[string]*dailyMaximum),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Snapshot returns the most recently published snapshot, or an empty one.
func (s *Store) Snapshot() types.Snapshot {
	if p := s.snapshot.Load(); p != nil {
		return *p
	}
	return types.Snapshot{}
}

// Publish replaces the current snapshot. snap must not be modified afterwards.
func (s *Store) Publish(snap types.Snapshot) {
	s.snapshot.Store(&snap)
}

// RecordSuccess marks the device available.
func (s *Store) RecordSuccess(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availability.Available = true
	s.availability.LastSuccess = at
	s.availability.ConsecutiveFailures = 0
}

// RecordFailure marks the device unavailable. The snapshot is left alone.
func (s *Store) RecordFailure(at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availability.Available = false
	s.availability.LastFailure = at
	s.availability.ConsecutiveFailures++
	if err != nil {
		s.availability.LastError = err.Error()
	}
}

// Availability returns the current availability.
func (s *Store) Availability() types.Availability {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availability
}

// SetIdentity stores the device identity. Only the first call has an effect.
func (s *Store) SetIdentity(id types.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identitySet {
		return
	}
	s.identity = id
	s.identitySet = true
}

// Identity returns the device identity.
func (s *Store) Identity() types.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}
