// Package presence tracks which users currently hold a live connection.
//
// Every registration receives a generation Token. Unregister must present the
// token it was given, so a late disconnect from a connection that was already
// superseded by a newer one cannot evict the newer entry.
package presence

import (
	"sort"
	"sync"
)

// Token identifies one registration of a user.
type Token uint64

type entry[H any] struct {
	handle H
	token  Token
}

// Registry maps user ids to exactly one live connection handle.
// The most recent registration wins.
type Registry[H any] struct {
	mu      sync.RWMutex
	entries map[string]entry[H]
	next    Token
}

func NewRegistry[H any]() *Registry[H] {
	return &Registry[H]{entries: make(map[string]entry[H])}
}

// Register inserts or overwrites the entry for userID. A previous handle is
// superseded but left open; the caller decides what to do with it.
func (r *Registry[H]) Register(userID string, h H) Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	r.entries[userID] = entry[H]{handle: h, token: r.next}
	return r.next
}

// Unregister removes userID if tok is still its current registration and
// reports whether an entry was removed.
func (r *Registry[H]) Unregister(userID string, tok Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	if !ok || e.token != tok {
		return false
	}
	delete(r.entries, userID)
	return true
}

// Lookup returns the current handle for userID.
func (r *Registry[H]) Lookup(userID string) (H, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[userID]
	return e.handle, ok
}

// Snapshot returns the sorted ids of all online users.
func (r *Registry[H]) Snapshot() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Handles returns every registered handle.
func (r *Registry[H]) Handles() []H {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hs := make([]H, 0, len(r.entries))
	for _, e := range r.entries {
		hs = append(hs, e.handle)
	}
	return hs
}

func (r *Registry[H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
