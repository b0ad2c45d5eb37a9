// Package hub fans telemetry events out to connected websocket clients.
package hub

import (
	"log"
	"sync"
	"time"
)

// Event types pushed to clients.
const (
	EventNewReading  = "new-reading"
	EventNewAlert    = "new-alert"
	EventRiskChanged = "risk-changed"
)

// Event is the wire frame sent to every subscriber.
type Event struct {
	Type      string      `json:"type"`
	StationID int64       `json:"station_id"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub tracks connected clients and broadcasts events to all of them. A send
// failure disconnects only the failing client; the broadcast continues to
// the rest.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Register adds a client to the broadcast set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("hub: client %s connected (%d active)", c.id, n)
}

// Unregister removes a client and closes its connection. Safe to call for a
// client that was already removed.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		c.close()
		log.Printf("hub: client %s disconnected (%d active)", c.id, n)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends the event to every connected client. The client set is
// snapshotted under the lock and sends happen outside it, so a slow or dead
// client never blocks registration.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	snapshot := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	for _, c := range snapshot {
		if err := c.send(ev); err != nil {
			log.Printf("hub: send to client %s failed, dropping it: %v", c.id, err)
			h.Unregister(c)
		}
	}
}

// CloseAll disconnects every client, used during shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	snapshot := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range snapshot {
		c.close()
	}
}
