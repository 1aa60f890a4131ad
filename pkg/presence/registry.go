// Package presence tracks which parties currently hold a live connection.
package presence

import "sync"

// Conn is a live connection handle. The registry only addresses it; the
// transport owns its lifecycle and I/O. Implementations must be comparable
// so a stale disconnect can be told apart from the current connection.
type Conn interface {
	Send(payload []byte) error
}

// Registry maps a party to its single live connection. A party has at most
// one entry: a later Register replaces an earlier one. All operations are
// in-memory and never block on I/O.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register records conn as the live connection for partyID, discarding any
// previous handle. The replaced connection is not closed here.
func (r *Registry) Register(partyID string, conn Conn) {
	r.mu.Lock()
	r.conns[partyID] = conn
	r.mu.Unlock()
}

// Unregister removes the mapping only if conn is still the registered
// handle. A disconnect for a connection that has already been replaced by
// a reconnect is a no-op.
func (r *Registry) Unregister(partyID string, conn Conn) {
	r.mu.Lock()
	if r.conns[partyID] == conn {
		delete(r.conns, partyID)
	}
	r.mu.Unlock()
}

// Lookup returns the live connection for partyID, if any.
func (r *Registry) Lookup(partyID string) (Conn, bool) {
	r.mu.RLock()
	conn, ok := r.conns[partyID]
	r.mu.RUnlock()
	return conn, ok
}
