// Package session holds the scoped credential set for the lifetime of one
// interactive session.
package session

import (
	"sync"
	"time"

	"github.com/acme-isv/qindex-broker/pkg/broker"
)

// Store holds at most one ScopedCredentials value. Presence of a value is
// the signal collaborators use to decide between federated and fallback
// mode, so Set and Clear are atomic with respect to concurrent Gets.
//
// Stores are per-session; independent sessions must not share one.
type Store struct {
	mu    sync.RWMutex
	creds *broker.ScopedCredentials
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Set stores the credential set for the session, replacing any previous
// value. Each login run produces a fresh set; nothing is reused across
// flow attempts.
func (s *Store) Set(creds broker.ScopedCredentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = &creds
}

// Get returns the stored credentials, if any.
func (s *Store) Get() (broker.ScopedCredentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return broker.ScopedCredentials{}, false
	}
	return *s.creds, true
}

// Clear discards the stored credentials (logout).
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
}

// Active reports whether the store holds credentials usable at the given
// time. Expired credentials are not usable; the caller must re-run the
// flow to obtain a fresh set.
func (s *Store) Active(now time.Time) bool {
	creds, ok := s.Get()
	return ok && !creds.Expired(now)
}
