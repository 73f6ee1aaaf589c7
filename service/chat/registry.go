package chat

import (
	"sync"
)

// Registry maps each online user to the id of its current connection.
// One connection per user; a later Register wins.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]string // user -> conn_id
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]string),
	}
}

// Register overwrites any previous mapping for userID. The old connection
// is not checked or closed.
func (r *Registry) Register(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUser[userID] = connID
}

// Unregister removes userID only while it still points at connID, so a
// late disconnect of a replaced connection keeps the newer mapping.
// Reports whether a mapping was removed.
func (r *Registry) Unregister(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byUser[userID]
	if !ok || cur != connID {
		return false
	}
	delete(r.byUser, userID)
	return true
}

func (r *Registry) Lookup(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.byUser[userID]
	return connID, ok
}

// Snapshot returns the registered user ids in no particular order.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		out = append(out, u)
	}
	return out
}

// Entries copies the current user -> conn_id mapping.
func (r *Registry) Entries() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.byUser))
	for u, c := range r.byUser {
		out[u] = c
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
