// Package presence tracks which user identities currently hold live
// connections on this process. State is in-memory only; clients re-identify
// after a restart.
package presence

import "sync"

// Conn is the non-owning handle the registry keeps for one live transport
// session. The transport layer owns the underlying socket.
type Conn interface {
	// SessionID is unique per process lifetime.
	SessionID() string
	// Send enqueues one outbound message. Failures mean the connection is no
	// longer deliverable; callers ignore them.
	Send(message any) error
}

// Registry maps a user identity to the ordered set of its live connections.
// All operations are serialized by an internal mutex; concurrent register,
// unregister and lookup calls behave as if executed in some total order.
type Registry struct {
	mu          sync.RWMutex
	connections map[string][]Conn
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{connections: make(map[string][]Conn)}
}

// Register binds a connection to an identity. Registering the same
// (identity, connection) pair twice is a no-op; an identity may hold any
// number of distinct connections.
func (r *Registry) Register(identity string, conn Conn) {
	if identity == "" || conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.connections[identity] {
		if existing.SessionID() == conn.SessionID() {
			return
		}
	}
	r.connections[identity] = append(r.connections[identity], conn)
}

// Unregister removes the connection from the first identity set containing it
// and stops scanning. A connection belongs to at most one identity because
// Register is idempotent and the transport binds identity at most once per
// connection; the single-set invariant makes the early stop safe.
func (r *Registry) Unregister(conn Conn) {
	if conn == nil {
		return
	}
	sessionID := conn.SessionID()
	r.mu.Lock()
	defer r.mu.Unlock()
	for identity, conns := range r.connections {
		for index, candidate := range conns {
			if candidate.SessionID() != sessionID {
				continue
			}
			remaining := append(conns[:index:index], conns[index+1:]...)
			if len(remaining) == 0 {
				delete(r.connections, identity)
			} else {
				r.connections[identity] = remaining
			}
			return
		}
	}
}

// ConnectionsFor returns the live connections bound to the identity in
// registration order. Unknown or offline identities yield an empty slice.
func (r *Registry) ConnectionsFor(identity string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.connections[identity]
	if len(conns) == 0 {
		return nil
	}
	copied := make([]Conn, len(conns))
	copy(copied, conns)
	return copied
}
