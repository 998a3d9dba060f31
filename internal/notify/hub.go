package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// HubObserver receives hub counts. metrics.Collectors implements it.
type HubObserver interface {
	NotificationPublished(kind string)
	ClientConnected()
	ClientDisconnected()
}

type nopHubObserver struct{}

func (nopHubObserver) NotificationPublished(string) {}
func (nopHubObserver) ClientConnected()             {}
func (nopHubObserver) ClientDisconnected()          {}

// Hub keeps the connected websocket clients and pushes every published
// event to all of them. A client whose buffer is full is dropped rather
// than waited on.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	upgrader   websocket.Upgrader
	sendBuffer int
	obs        HubObserver
	log        zerolog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubObserver reports hub activity to o.
func WithHubObserver(o HubObserver) HubOption {
	return func(h *Hub) {
		if o != nil {
			h.obs = o
		}
	}
}

// WithSendBuffer sets how many frames a client may lag behind.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithAllowedOrigins limits websocket upgrades to browsers on the listed
// origins. A "*" entry admits any origin. Without this option only
// same-host origins are accepted.
func WithAllowedOrigins(origins []string) HubOption {
	return func(h *Hub) {
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			allowed[strings.TrimRight(o, "/")] = true
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		}
	}
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		sendBuffer: 32,
		obs:        nopHubObserver{},
		log:        log.With().Str("component", "hub").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish sends e to every connected client without blocking.
func (h *Hub) Publish(_ context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	frame, err := json.Marshal(e.Envelope())
	if err != nil {
		return err
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	n := len(h.clients)
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn().Str("clientId", c.id).Msg("dropping slow client")
		h.remove(c)
	}
	h.obs.NotificationPublished(string(e.Kind))
	h.log.Debug().Str("event", e.Kind.WireName()).Str("jobId", e.JobID).Int("clients", n).Msg("event published")
	return nil
}

// ServeHTTP upgrades the request and keeps the connection until the client
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
	}
	h.add(c)
	go c.writePump()
	c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.remove(c)
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.obs.ClientConnected()
	h.log.Info().Str("clientId", c.id).Str("addr", c.conn.RemoteAddr().String()).Msg("client connected")
}

// remove is idempotent; the send channel is closed exactly once.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		h.obs.ClientDisconnected()
		h.log.Info().Str("clientId", c.id).Msg("client disconnected")
	}
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump only watches for close and pong frames; clients do not send
// anything the hub acts on.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug().Err(err).Str("clientId", c.id).Msg("websocket read error")
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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
