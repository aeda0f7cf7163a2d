// Package registry owns the node-local mapping from user id to live
// connection handle. It is the single source of truth for "is this user
// reachable from this node right now" and the only concurrently mutated
// in-memory structure in the routing core.
package registry

import (
	"sync"

	"github.com/webitel/chat-routing-service/internal/domain/model"
)

// Registrar is the contract the routing core programs against.
type Registrar interface {
	Register(userID int64, conn model.Conn)
	Remove(userID int64)
	RemoveByConn(conn model.Conn) (int64, bool)
	LookupAndSend(userID int64, payload []byte) bool
	Len() int
}

// Registry guards the whole map with one mutex. Every operation is an O(1)
// map touch (the disconnect scan excepted), so coarse locking wins over a
// sharded scheme here.
type Registry struct {
	mu    sync.Mutex
	conns map[int64]model.Conn
}

var _ Registrar = (*Registry)(nil)

func New() *Registry {
	return &Registry{conns: make(map[int64]model.Conn)}
}

// Register inserts or overwrites the handle for userID. Callers run it only
// after credential and presence checks have passed.
func (r *Registry) Register(userID int64, conn model.Conn) {
	r.mu.Lock()
	r.conns[userID] = conn
	r.mu.Unlock()
}

// Remove drops the entry on explicit logout. Missing entries are a no-op.
func (r *Registry) Remove(userID int64) {
	r.mu.Lock()
	delete(r.conns, userID)
	r.mu.Unlock()
}

// RemoveByConn resolves and drops the user owning conn, for the abrupt
// disconnect path where only the handle is known. Returns false when the
// connection never completed a login.
func (r *Registry) RemoveByConn(conn model.Conn) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.conns {
		if c == conn {
			delete(r.conns, id)
			return id, true
		}
	}
	return 0, false
}

// LookupAndSend atomically checks for a live entry and writes payload to it
// while still holding the lock. Holding the lock across the write trades a
// little latency for ruling out the remove-between-check-and-use race.
func (r *Registry) LookupAndSend(userID int64, payload []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[userID]
	if !ok {
		return false
	}
	if err := conn.Send(payload); err != nil {
		// A dead handle is unreachable; the disconnect notification that
		// follows the write error will clear the entry.
		return false
	}
	return true
}

// Len reports the number of locally connected users.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
