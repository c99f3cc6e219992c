package realtime

import (
	"sync"

	"github.com/ZUXXSU/chathubserver/internal/identity"
)

// Conn is one live, bidirectional connection bound to a single identity for
// its whole lifetime.
type Conn interface {
	ID() string
	Identity() identity.ID
	// Send queues an encoded frame without blocking. It reports false if the
	// frame was dropped.
	Send(frame []byte) bool
	Close()
}

// Registry maps each identity to its current connection. Last writer wins.
type Registry struct {
	mu    sync.RWMutex
	conns map[identity.ID]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[identity.ID]Conn)}
}

// Register stores c as the current connection for id and returns the
// connection it displaced, if any.
func (r *Registry) Register(id identity.ID, c Conn) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.conns[id]
	r.conns[id] = c
	if prev == c {
		return nil
	}
	return prev
}

func (r *Registry) Unregister(id identity.ID) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// Release removes the mapping only if c is still current for id. A stale
// connection closing after a reconnect leaves the newer one in place.
func (r *Registry) Release(id identity.ID, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[id]; ok && cur == c {
		delete(r.conns, id)
		return true
	}
	return false
}

func (r *Registry) Lookup(id identity.ID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *Registry) IsConnected(id identity.ID) bool {
	_, ok := r.Lookup(id)
	return ok
}

// ResolveMany returns the connections of the registered ids. Unknown ids are
// skipped and duplicates collapse to one connection.
func (r *Registry) ResolveMany(ids []identity.ID) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[identity.ID]struct{}, len(ids))
	out := make([]Conn, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if c, ok := r.conns[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// All snapshots every registered connection.
func (r *Registry) All() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
