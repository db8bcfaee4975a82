package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/agenthub/internal/store"
)

// controlFrame is the client-to-server message vocabulary: ping and
// subscribe.
type controlFrame struct {
	Type      string   `json:"type"`
	Timestamp any      `json:"timestamp,omitempty"`
	Channels  []string `json:"channels,omitempty"`
}

// Client is one live websocket connection. Writes are serialized through a
// mutex; the read loop runs on the connection's handler goroutine.
type Client struct {
	id   string
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		id:   store.GenNewID().String(),
		conn: conn,
	}
}

func (c *Client) sendJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// run greets the client and then services control frames until the
// connection drops.
func (c *Client) run() {
	welcome := map[string]any{
		"type":      "connection_established",
		"client_id": c.id,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.sendJSON(welcome); err != nil {
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read error", "client_id", c.id, "error", err)
			}
			return
		}

		var frame controlFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			slog.Debug("websocket frame not JSON", "client_id", c.id)
			continue
		}

		switch frame.Type {
		case "ping":
			c.sendJSON(map[string]any{
				"type":      "pong",
				"timestamp": frame.Timestamp,
			})
		case "subscribe":
			c.sendJSON(map[string]any{
				"type":     "subscription_ack",
				"channels": frame.Channels,
			})
		default:
			slog.Debug("websocket frame ignored", "client_id", c.id, "type", frame.Type)
		}
	}
}
