package profile

import (
	"sync"

	"github.com/google/uuid"
)

// Session owns the profile cache for one UI session. It is created empty,
// follows the loaded dataset's version, and is cleared on Close. Tests and
// callers instantiate independent sessions; there is no ambient global
// state.
type Session struct {
	ID    string
	Cache *Cache

	mu      sync.Mutex
	version string
}

// NewSession starts a session with an empty cache.
func NewSession() *Session {
	return &Session{
		ID:    uuid.NewString(),
		Cache: NewCache(),
	}
}

// DatasetVersion returns the version of the currently loaded dataset.
func (s *Session) DatasetVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// SetDatasetVersion records a newly loaded dataset. Entries keyed by the
// old version are unreachable either way; flushing them on a version
// change is pure memory hygiene and does not change observable behavior.
func (s *Session) SetDatasetVersion(version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != "" && s.version != version {
		s.Cache.InvalidateAll()
	}
	s.version = version
}

// Close ends the session and drops the cache.
func (s *Session) Close() {
	s.Cache.InvalidateAll()
}
