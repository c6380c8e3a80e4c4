// Package auth binds live connection identifiers to logical player ids.
// Every mutating call arriving over a connection must pass Owns before the
// engine honors it, so a connection can never act for a player it did not
// join as.
package auth

import (
	"sync"
)

type Binder struct {
	mu    sync.RWMutex
	conns map[string]string // connection id -> player id
}

func NewBinder() *Binder {
	return &Binder{
		conns: make(map[string]string),
	}
}

// Bind records that connID joined as playerID. Rebinding an existing
// connection overwrites the previous binding; the transport guarantees a
// connection joins at most once.
func (b *Binder) Bind(connID, playerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.conns[connID] = playerID
}

// Owns reports whether connID is bound to playerID.
func (b *Binder) Owns(connID, playerID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bound, ok := b.conns[connID]
	return ok && bound == playerID
}

// PlayerID returns the player bound to connID, if any.
func (b *Binder) PlayerID(connID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	id, ok := b.conns[connID]
	return id, ok
}

// Unbind drops the binding for a disconnecting connection and returns the
// player id it was bound to. The player stays in the session: disconnecting
// is not leaving, and only the janitor's TTL ever removes players, so the
// same player can rebind from a fresh connection.
func (b *Binder) Unbind(connID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.conns[connID]
	if ok {
		delete(b.conns, connID)
	}
	return id, ok
}
