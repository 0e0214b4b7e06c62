package ws

import (
	"sync"

	"local.dev/nexboard-backend/internal/models"
)

// Hub fans rebuilt feed snapshots out to every connected client. It also
// remembers the last snapshot so a fresh client gets the current feed on
// connect instead of waiting for the next change.
//
// Each client drains its own send buffer on its write pump; a stalled
// client skips snapshots instead of holding up the rest. Skipping is safe
// because every snapshot is the whole feed, so the next one supersedes.
type Hub struct {
	clients   map[*Client]bool
	broadcast chan models.Feed

	mu   sync.Mutex
	last models.Feed
	seen bool
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*Client]bool),
		broadcast: make(chan models.Feed, 8),
	}
}

func (h *Hub) Run() {
	for f := range h.broadcast {
		h.mu.Lock()
		h.last = f
		h.seen = true
		for client := range h.clients {
			select {
			case client.send <- f:
			default: // full buffer: drop, the next snapshot supersedes
			}
		}
		h.mu.Unlock()
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	// replay the current feed so the client renders immediately
	if h.seen {
		select {
		case client.send <- h.last:
		default:
		}
	}
	h.mu.Unlock()
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if h.clients[client] {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
}

func (h *Hub) Broadcast(f models.Feed) {
	h.broadcast <- f
}
