// Package server implements the synchronization core: the connection
// registry, the serialized command processor, the broadcast dispatcher, and
// the WebSocket transport that ties them together.
package server

import (
	"context"
	"sync"

	"github.com/teamboard/teamboard/internal/protocol"
)

// Connection is one client's outbound channel. The transport layer adapts
// websocket connections to this; tests substitute in-memory fakes.
type Connection interface {
	// Send writes one frame. Best-effort: an error means the transport is
	// not ready and the caller should treat the connection as gone.
	Send(ctx context.Context, msg *protocol.Message) error
}

// Registry tracks live connections and their authentication status.
// Connections start unauthenticated and are promoted after a successful
// auth command.
type Registry struct {
	mu      sync.RWMutex
	clients map[Connection]bool // value: authenticated
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[Connection]bool)}
}

// Add registers a new, unauthenticated connection.
func (r *Registry) Add(c Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = false
}

// Remove drops a connection, authenticated or not.
func (r *Registry) Remove(c Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
}

// SetAuthenticated marks the connection as having passed the auth gate.
func (r *Registry) SetAuthenticated(c Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; ok {
		r.clients[c] = true
	}
}

// IsAuthenticated reports the connection's authentication status.
func (r *Registry) IsAuthenticated(c Connection) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[c]
}

// Authenticated returns the current set of authenticated connections.
func (r *Registry) Authenticated() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Connection, 0, len(r.clients))
	for c, ok := range r.clients {
		if ok {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
