package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/onnwee/caseace-cache/internal/apierr"
	"github.com/onnwee/caseace-cache/internal/cache"
	"github.com/onnwee/caseace-cache/internal/logger"
	"github.com/onnwee/caseace-cache/internal/metrics"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 512

	sendBuffer = 16

	defaultStreamInterval = 5 * time.Second
)

// StatsSource produces the snapshots pushed to stream clients.
type StatsSource interface {
	Stats() cache.Stats
}

// StreamMessage is the envelope of every message sent to clients.
type StreamMessage struct {
	Type    string `json:"type"` // "stats"
	Payload any    `json:"payload"`
}

// Client is one stats stream connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub pushes cache statistics to every connected client on a fixed interval.
// The clients map is owned by the Run goroutine.
type Hub struct {
	source   StatsSource
	interval time.Duration
	origins  map[string]struct{}

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	refresh    chan *Client
	done       chan struct{}

	mu    sync.RWMutex
	count int
}

// NewHub creates a stats hub. allowedOrigins restricts browser origins; when
// empty only same-host origins are accepted.
func NewHub(source StatsSource, interval time.Duration, allowedOrigins []string) *Hub {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[strings.TrimRight(o, "/")] = struct{}{}
	}
	if interval <= 0 {
		interval = defaultStreamInterval
	}
	return &Hub{
		source:     source,
		interval:   interval,
		origins:    origins,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		refresh:    make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled. All client connections are
// closed on return.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setCount(len(h.clients))
			metrics.WebSocketConnections.Inc()
			logger.Info("Stats stream client connected", "total_clients", len(h.clients))
			h.sendSnapshot(client)

		case client := <-h.unregister:
			h.drop(client)

		case client := <-h.refresh:
			if h.clients[client] {
				h.sendSnapshot(client)
			}

		case <-ticker.C:
			if len(h.clients) == 0 {
				continue
			}
			data, ok := h.snapshot()
			if !ok {
				continue
			}
			for client := range h.clients {
				h.deliver(client, data)
			}
		}
	}
}

func (h *Hub) shutdown() {
	for client := range h.clients {
		h.drop(client)
	}
	close(h.done)
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.setCount(len(h.clients))
	metrics.WebSocketConnections.Dec()
	logger.Info("Stats stream client disconnected", "total_clients", len(h.clients))
}

func (h *Hub) snapshot() ([]byte, bool) {
	data, err := json.Marshal(StreamMessage{Type: "stats", Payload: h.source.Stats()})
	if err != nil {
		logger.Error("Failed to marshal stats message", "error", err)
		return nil, false
	}
	return data, true
}

func (h *Hub) sendSnapshot(client *Client) {
	if data, ok := h.snapshot(); ok {
		h.deliver(client, data)
	}
}

// deliver queues data for client, dropping clients that cannot keep up.
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.send <- data:
		metrics.WebSocketMessagesSent.Inc()
	default:
		logger.Warn("Stats stream client too slow, disconnecting")
		h.drop(client)
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.origins) > 0 {
		_, ok := h.origins[strings.TrimRight(origin, "/")]
		return ok
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// ServeWS upgrades the request and streams stats until either side hangs up.
// GET /api/admin/cache/stream
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		apierr.WriteErrorWithContext(w, r, apierr.SystemUnavailable("stats stream is shutting down"))
		return
	default:
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	// Upgrade writes its own error response.
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnContext(r.Context(), "Failed to upgrade stats stream", "error", err)
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump consumes client messages. {"type":"refresh"} requests an
// immediate snapshot; anything else is ignored.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("Stats stream unexpected close", "error", err)
			}
			return
		}
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &msg); err != nil || msg.Type != "refresh" {
			continue
		}
		select {
		case c.hub.refresh <- c:
		case <-c.hub.done:
			return
		}
	}
}

// writePump writes queued snapshots and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
