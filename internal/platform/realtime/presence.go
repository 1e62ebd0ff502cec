// Package realtime provides the WebSocket surface: presence tracking, the
// chat message relay, and the WebRTC signaling relay. Clients speak the
// chatproto envelope protocol and must authenticate before anything else.
package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks which users currently hold a live socket. Implementations
// must be safe for concurrent use.
type Registry interface {
	// Register binds a user to a connection. A second registration for the
	// same user replaces the first; the newest connection wins.
	Register(userID uuid.UUID, c *Client)
	// Lookup returns the user's current connection, if any.
	Lookup(userID uuid.UUID) (*Client, bool)
	// Release removes the binding only if c is still the registered
	// connection, so a stale disconnect never evicts a fresh socket.
	// Releasing an unknown binding is a no-op.
	Release(userID uuid.UUID, c *Client) bool
	// OnlineCount returns the number of users currently registered.
	OnlineCount() int
}

// MemoryRegistry is the in-process Registry used by a single server node.
type MemoryRegistry struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{clients: make(map[uuid.UUID]*Client)}
}

func (r *MemoryRegistry) Register(userID uuid.UUID, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[userID] = c
}

func (r *MemoryRegistry) Lookup(userID uuid.UUID) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[userID]
	return c, ok
}

func (r *MemoryRegistry) Release(userID uuid.UUID, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.clients[userID]; ok && current == c {
		delete(r.clients, userID)
		return true
	}
	return false
}

func (r *MemoryRegistry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
