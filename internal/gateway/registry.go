// Package gateway is the HTTP/WebSocket surface of the hub: the inbound
// webhook endpoint, the send API, and the live notification fanout.
package gateway

import (
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/agenthub/internal/model"
)

// Registry tracks live websocket clients and broadcasts notifications to all
// of them. It is constructed explicitly and passed to whoever needs to
// broadcast; there is no ambient singleton.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: map[string]*Client{}}
}

func (r *Registry) add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.id] = c
	slog.Info("websocket client connected", "client_id", c.id, "total", len(r.clients))
}

func (r *Registry) remove(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.id]; !ok {
		return
	}
	delete(r.clients, c.id)
	slog.Info("websocket client disconnected", "client_id", c.id, "total", len(r.clients))
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Notify broadcasts one envelope to every client, best effort per connection.
// A client whose send fails is evicted; the rest still receive the message.
// Implements the Notifier interface of both pipelines.
func (r *Registry) Notify(n model.Notification) {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	for _, c := range clients {
		if err := c.sendJSON(n); err != nil {
			slog.Warn("websocket send failed, evicting client",
				"client_id", c.id, "error", err)
			r.remove(c)
			c.close()
		}
	}
}
