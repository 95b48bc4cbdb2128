package application

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bnema/afk-farmer/internal/domain"
)

// Registry is the single source of truth for live sessions. Every method
// holds one mutex for its whole duration; callbacks must not block on I/O.
type Registry struct {
	mu       sync.Mutex
	sessions map[domain.SessionKey]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.SessionKey]*Session)}
}

func (r *Registry) Create(key domain.SessionKey, session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[key]; ok {
		return domain.ErrSessionExists
	}
	r.sessions[key] = session
	return nil
}

// Get returns the live record. Callers outside this package should use
// View or Update instead.
func (r *Registry) Get(key domain.SessionKey) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[key]
	return session, ok
}

func (r *Registry) Remove(key domain.SessionKey) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
	}
	return session, ok
}

func (r *Registry) Has(key domain.SessionKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[key]
	return ok
}

// Update runs fn on the record under the lock. It reports whether the key
// was registered.
func (r *Registry) Update(key domain.SessionKey, fn func(*Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[key]
	if !ok {
		return false
	}
	fn(session)
	return true
}

// View is Update for callers that only read.
func (r *Registry) View(key domain.SessionKey, fn func(*Session)) bool {
	return r.Update(key, fn)
}

func (r *Registry) ForEach(fn func(*Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, session := range r.sessions {
		fn(session)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

func (r *Registry) Keys() []domain.SessionKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]domain.SessionKey, 0, len(r.sessions))
	for key := range r.sessions {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Resolve maps an operator reference to a key: an exact key wins, otherwise
// the reference must be the suffix of exactly one key.
func (r *Registry) Resolve(ref string) (domain.SessionKey, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", domain.ErrSessionNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[domain.SessionKey(ref)]; ok {
		return domain.SessionKey(ref), nil
	}

	var matches []domain.SessionKey
	for key := range r.sessions {
		if strings.HasSuffix(string(key), ref) {
			matches = append(matches, key)
		}
	}

	switch len(matches) {
	case 0:
		return "", domain.ErrSessionNotFound
	case 1:
		return matches[0], nil
	default:
		return "", domain.ErrAmbiguousSession
	}
}

func (r *Registry) Snapshot(key domain.SessionKey, now time.Time) (Snapshot, bool) {
	var snap Snapshot
	ok := r.View(key, func(s *Session) {
		snap = s.snapshot(now)
	})
	return snap, ok
}

func (r *Registry) SnapshotAll(now time.Time) []Snapshot {
	var snaps []Snapshot
	r.ForEach(func(s *Session) {
		snaps = append(snaps, s.snapshot(now))
	})
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].AddedAt.Equal(snaps[j].AddedAt) {
			return snaps[i].Key < snaps[j].Key
		}
		return snaps[i].AddedAt.Before(snaps[j].AddedAt)
	})
	return snaps
}

func (r *Registry) locked(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}
