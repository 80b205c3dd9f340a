package web

import (
	"sync"

	"github.com/codefionn/livecast/internal/logger"
	"github.com/gorilla/websocket"
)

// Hub tracks connected clients so shutdown can close them and wait for
// their sessions to finish cleanup.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	wg      sync.WaitGroup
	closed  bool
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
	}
}

// Register adds a client. It returns false once the hub is shutting down.
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[client] = struct{}{}
	h.wg.Add(1)
	logger.Debug("Client registered: %s", client.RemoteAddr())
	return true
}

// Unregister removes a client after its session has ended.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	h.wg.Done()
	logger.Debug("Client unregistered: %s", client.RemoteAddr())
}

// StopAccepting makes later Register calls fail.
func (h *Hub) StopAccepting() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

// CloseAll stops accepting clients and sends every connected client a
// going-away close frame.
func (h *Hub) CloseAll(reason string) {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.Close(websocket.CloseGoingAway, reason); err != nil {
			logger.Debug("Failed to close client %s: %v", c.RemoteAddr(), err)
		}
	}
}

// Wait blocks until every registered client has unregistered.
func (h *Hub) Wait() {
	h.wg.Wait()
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
