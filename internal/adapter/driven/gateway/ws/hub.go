package ws

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Hub tracks every open client so shutdown can close them.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	stopped bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

// Add tracks c. It returns false, and closes c, once the hub is stopped.
func (h *Hub) Add(c *Client) bool {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		c.Close()
		return false
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return true
}

func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Stop closes every tracked client and refuses new ones.
func (h *Hub) Stop() {
	h.mu.Lock()
	h.stopped = true
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for c := range clients {
		if err := c.Close(); err != nil {
			log.Debug().Err(err).Str("client_id", c.ID().String()).Msg("Error closing client")
		}
	}
	log.Info().Int("clients", len(clients)).Msg("Hub stopped")
}
