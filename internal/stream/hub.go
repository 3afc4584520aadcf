// Package stream fans engine events out to websocket subscribers. The hub is
// the vault's event emitter: every state change the engine announces reaches
// connected clients in emission order.
package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/boxfi/boxd/internal/pkg/logger"
	"github.com/boxfi/boxd/internal/vault"
)

const clientBuffer = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The gateway fronts trusted operator tooling, not browsers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wireEvent struct {
	Type       string            `json:"type"`
	At         time.Time         `json:"at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan wireEvent
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Emit implements vault.Emitter. A slow subscriber is dropped rather than
// allowed to stall the engine.
func (h *Hub) Emit(evt vault.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	wire := wireEvent{Type: evt.Type, At: evt.At, Attributes: evt.Attributes}
	for c := range h.clients {
		select {
		case c.send <- wire:
		default:
			go h.drop(c)
		}
	}
}

// Serve upgrades the request and streams events until the client disconnects.
func (h *Hub) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	cl := &client{conn: conn, send: make(chan wireEvent, clientBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	go cl.writePump(h)
	cl.readPump(h)
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Close disconnects every subscriber. Called on server shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (c *client) writePump(h *Hub) {
	defer c.conn.Close()
	for evt := range c.send {
		if err := c.conn.WriteJSON(evt); err != nil {
			h.drop(c)
			return
		}
	}
}

// readPump discards inbound frames; it exists to notice disconnects.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.drop(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

var _ vault.Emitter = (*Hub)(nil)
