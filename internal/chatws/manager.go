// Package chatws provides the WebSocket conversation channel.
package chatws

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// SessionManager tracks open WebSocket connections per user so a reply
// reaches every tab the user has open.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// GetActive returns the connection registered under userID and connID.
func (m *SessionManager) GetActive(userID, connID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if conns, ok := m.active[userID]; ok {
		return conns[connID]
	}
	return nil
}

// Count returns the number of open connections for a user.
func (m *SessionManager) Count(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active[userID])
}

// Register adds a connection for a user.
func (m *SessionManager) Register(userID, connID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]*websocket.Conn)
	}
	m.active[userID][connID] = conn
	slog.Info("Chat connection registered", "user_id", userID, "conn_id", connID)
}

// Unregister removes a connection if it is still the one registered.
func (m *SessionManager) Unregister(userID, connID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conns, ok := m.active[userID]; ok {
		if current, exists := conns[connID]; exists && current == conn {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(m.active, userID)
			}
			slog.Info("Chat connection unregistered", "user_id", userID, "conn_id", connID)
		}
	}
}

// Broadcast writes v as a JSON frame to every connection of the user.
// It returns the number of successful writes.
func (m *SessionManager) Broadcast(ctx context.Context, userID string, v any) int {
	m.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(m.active[userID]))
	for _, c := range m.active[userID] {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	sent := 0
	for _, c := range conns {
		if err := wsjson.Write(ctx, c, v); err != nil {
			slog.Debug("Chat broadcast write failed", "user_id", userID, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// CloseAll closes every open connection, used on shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, conns := range m.active {
		for connID, conn := range conns {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			slog.Info("Chat connection closed", "user_id", userID, "conn_id", connID)
		}
	}
	m.active = make(map[string]map[string]*websocket.Conn)
}
