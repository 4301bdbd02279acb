// Package ws broadcasts per-frame detection summaries to connected
// dashboard clients over WebSocket.
package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sitewatch/internal/pipeline"
)

// Hub manages WebSocket connections for real-time event streaming
type Hub struct {
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
}

// NewHub creates a new event hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
	}
}

// Register adds a connection
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[conn] = true
	log.Printf("[WS] Client registered (total: %d)", len(h.clients))
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		log.Printf("[WS] Client unregistered (remaining: %d)", len(h.clients))
	}
}

// HasClients returns true if any client is connected
func (h *Hub) HasClients() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients) > 0
}

// Broadcast sends a message to all connected clients, dropping
// connections that fail to accept the write
func (h *Hub) Broadcast(message []byte) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("[WS] Error sending to client: %v", err)
			h.Unregister(conn)
			conn.Close()
		}
	}
}

// OnResult implements pipeline.ResultHandler, forwarding pipeline
// results to connected clients. Marshaling is skipped when nobody is
// listening.
func (h *Hub) OnResult(result *pipeline.Result) {
	if !h.HasClients() {
		return
	}

	data, err := json.Marshal(NewEventMessage(result))
	if err != nil {
		log.Printf("[WS] Error marshaling event message: %v", err)
		return
	}
	h.Broadcast(data)
}

// Close disconnects all clients
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// Ensure Hub implements pipeline.ResultHandler
var _ pipeline.ResultHandler = (*Hub)(nil)
