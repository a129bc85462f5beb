// Package realtime provides WebSocket chat delivery for users and agents.
package realtime

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/coder/websocket"
)

// UserKey is the registry key for a user channel.
func UserKey(sessionKey string) string {
	return "user:" + sessionKey
}

// AgentKey is the registry key for an agent channel.
func AgentKey(agentID int64) string {
	return "agent:" + strconv.FormatInt(agentID, 10)
}

// Registry tracks active WebSocket connections keyed by channel role and
// identity. Registration and deregistration are paired via defer around
// each receive loop, so entries cannot outlive their connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*websocket.Conn
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*websocket.Conn)}
}

// Get returns the active connection for a key, or nil.
func (r *Registry) Get(key string) *websocket.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[key]
}

// Register adds a connection under key. A previous connection under the
// same key is closed and replaced.
func (r *Registry) Register(key string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.conns[key]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "channel replaced")
	}
	r.conns[key] = conn
	slog.Info("Channel registered", "key", key)
}

// Unregister removes a connection for a key. Stale unregisters (the key now
// maps to a newer connection) are ignored.
func (r *Registry) Unregister(key string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.conns[key]; ok && current == conn {
		delete(r.conns, key)
		slog.Info("Channel unregistered", "key", key)
	}
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
