// Package ws streams reconciled resource views to browser sessions.
package ws

import "sync"

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans resource-view updates out to subscribers, keyed by project id.
type Hub struct {
	mu      sync.Mutex
	clients map[string]map[Subscriber]struct{}
	closed  bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[Subscriber]struct{})}
}

// Register adds a client to a project stream.
func (h *Hub) Register(projectID string, client Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		client.Close()
		return
	}
	if _, ok := h.clients[projectID]; !ok {
		h.clients[projectID] = make(map[Subscriber]struct{})
	}
	h.clients[projectID][client] = struct{}{}
}

// Unregister removes a client from a project stream.
func (h *Hub) Unregister(projectID string, client Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[projectID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, projectID)
		}
	}
}

// Broadcast sends payload to every subscriber of a project. Clients whose
// send fails are dropped.
func (h *Hub) Broadcast(projectID string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[projectID]
	if !ok {
		return
	}
	for c := range clients {
		if err := c.Send(payload); err != nil {
			c.Close()
			delete(clients, c)
		}
	}
	if len(clients) == 0 {
		delete(h.clients, projectID)
	}
}

// Close drops every subscriber and rejects future registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for projectID, clients := range h.clients {
		for c := range clients {
			c.Close()
		}
		delete(h.clients, projectID)
	}
}
