package realtime

import (
	"sync"

	"github.com/samber/lo"

	"github.com/tbourn/storehub-realtime/internal/domain"
)

// ConnectionRegistry maps connection ids to their session and identity, and
// user ids to the set of their live connections (one per browser tab or
// device). A single mutex guards both indexes so a user entry exists if and
// only if it has at least one connection.
//
// ConnectionRegistry is safe for concurrent use.
type ConnectionRegistry struct {
	mu     sync.RWMutex
	conns  map[string]*Session
	byUser map[string]map[string]struct{}
}

// NewConnectionRegistry returns an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns:  make(map[string]*Session),
		byUser: make(map[string]map[string]struct{}),
	}
}

// AddConnection registers s under its id. Re-registering an id overwrites
// the previous entry, moving it between user sets if the owner changed. It
// reports false, without side effects, when the identity is incomplete.
func (r *ConnectionRegistry) AddConnection(s *Session) bool {
	if s == nil || s.ID == "" || !s.Identity.Valid() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[s.ID]; ok && prev.Identity.UserID != s.Identity.UserID {
		r.detachUserLocked(prev.Identity.UserID, s.ID)
	}
	r.conns[s.ID] = s

	set, ok := r.byUser[s.Identity.UserID]
	if !ok {
		set = make(map[string]struct{})
		r.byUser[s.Identity.UserID] = set
	}
	set[s.ID] = struct{}{}
	return true
}

// RemoveConnection drops connID and returns the identity that owned it.
// found=false means the id was never registered or is already gone.
func (r *ConnectionRegistry) RemoveConnection(connID string) (domain.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.conns[connID]
	if !ok {
		return domain.Identity{}, false
	}
	delete(r.conns, connID)
	r.detachUserLocked(s.Identity.UserID, connID)
	return s.Identity, true
}

// detachUserLocked removes connID from userID's set and deletes the set
// when it empties. Caller holds r.mu.
func (r *ConnectionRegistry) detachUserLocked(userID, connID string) {
	set, ok := r.byUser[userID]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.byUser, userID)
	}
}

// GetConnections returns the connection ids held by userID, or nil.
func (r *ConnectionRegistry) GetConnections(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	return lo.Keys(set)
}

// Lookup returns the session registered under connID.
func (r *ConnectionRegistry) Lookup(connID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.conns[connID]
	return s, ok
}

// Has reports whether connID is registered.
func (r *ConnectionRegistry) Has(connID string) bool {
	_, ok := r.Lookup(connID)
	return ok
}

// Len returns the number of live connections.
func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// UserCount returns the number of users with at least one connection.
func (r *ConnectionRegistry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Sessions returns a snapshot of every registered session.
func (r *ConnectionRegistry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.conns)
}

// userIndex returns a copy of the per-user index for consistency audits.
func (r *ConnectionRegistry) userIndex() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.byUser))
	for u, set := range r.byUser {
		out[u] = lo.Keys(set)
	}
	return out
}
