package ws

import (
	"log"
	"sync"
)

// Hub maintains the set of live connections and serializes register and
// unregister handling.
type Hub struct {
	coordinator *Coordinator

	mu         sync.RWMutex
	clients    map[string]*Client // connID -> Client
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processes register/unregister events until Shutdown.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()

			h.coordinator.HandleConnect(client)
			log.Printf("[WS] Conn %s connected (total=%d)", client.id, h.Count())

		case client := <-h.unregister:
			h.mu.Lock()
			cur, ok := h.clients[client.id]
			if ok && cur == client {
				delete(h.clients, client.id)
			}
			h.mu.Unlock()

			if ok && cur == client {
				h.coordinator.HandleDisconnect(client)
				client.closeSend()
				log.Printf("[WS] Conn %s disconnected (total=%d)", client.id, h.Count())
			}

		case <-h.done:
			return
		}
	}
}

// Get returns the client for a connection id.
func (h *Hub) Get(connID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	return c, ok
}

// Alive reports whether the connection is still tracked. Used by the
// matchmaking engine's stale-entry cleanup.
func (h *Hub) Alive(connID string) bool {
	_, ok := h.Get(connID)
	return ok
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastConns sends a message to the given connection ids.
func (h *Hub) BroadcastConns(connIDs []string, v any) {
	for _, id := range connIDs {
		if c, ok := h.Get(id); ok {
			c.Send(v)
		}
	}
}

// BroadcastAll sends a message to every live connection.
func (h *Hub) BroadcastAll(v any) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Send(v)
	}
}

// Shutdown force-closes every connection and stops the run loop.
func (h *Hub) Shutdown() {
	close(h.done)

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.Close("server shutting down")
	}
	log.Printf("[WS] Hub shut down (%d connections closed)", len(clients))
}
