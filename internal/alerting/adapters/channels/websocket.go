package channels

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/income-clarity/healthwatch/internal/alerting/domain/model"
	"github.com/income-clarity/healthwatch/internal/platform/logger"
)

const (
	writeWait      = 10 * time.Second
	clientBacklog  = 16
	handshakeGrace = 10 * time.Second
)

// Hub fans alerts out to connected websocket clients. Clients that cannot
// keep up are disconnected rather than allowed to block the broadcast.
type Hub struct {
	upgrader websocket.Upgrader
	logger   logger.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan *model.Alert
}

// NewHub creates the websocket broadcast hub.
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			HandshakeTimeout: handshakeGrace,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		logger:  log,
		clients: make(map[*client]struct{}),
	}
}

// ServeWS upgrades the request and streams alerts until the client
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan *model.Alert, clientBacklog)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

// Broadcast queues the alert to every connected client, dropping clients
// whose send buffer is full.
func (h *Hub) Broadcast(alert *model.Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- alert:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()

	for alert := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(alert); err != nil {
			h.drop(c)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump discards inbound frames; it exists to detect disconnects.
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// WebSocketChannel delivers alerts to the hub's connected clients.
type WebSocketChannel struct {
	name   string
	filter severityFilter
	hub    *Hub
}

// NewWebSocketChannel creates a hub-backed alert sink.
func NewWebSocketChannel(name string, severities []string, hub *Hub) *WebSocketChannel {
	return &WebSocketChannel{name: name, filter: newSeverityFilter(severities), hub: hub}
}

func (c *WebSocketChannel) Name() string { return c.name }

func (c *WebSocketChannel) Accepts(severity model.Severity) bool {
	return c.filter.Accepts(severity)
}

// Send broadcasts the alert. Delivery to individual clients is best effort.
func (c *WebSocketChannel) Send(ctx context.Context, alert *model.Alert) error {
	c.hub.Broadcast(alert)
	return nil
}
