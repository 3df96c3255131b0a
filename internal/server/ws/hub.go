// Package ws pushes every scan cycle to connected WebSocket clients.
// Clients may narrow the feed to a set of canonical symbols by sending
// {"action":"subscribe","symbols":["BTC/USDT"]}; an empty set receives all.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/scan"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 16
)

// cycleMessage is the frame sent for each cycle.
type cycleMessage struct {
	Type          string                         `json:"type"`
	CycleID       string                         `json:"cycle_id"`
	StartedAt     time.Time                      `json:"started_at"`
	Evaluated     int                            `json:"evaluated"`
	Opportunities []*domain.ArbitrageOpportunity `json:"opportunities"`
}

type controlMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// Hub tracks clients and fans cycles out to them. It implements scan.Sink.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	last    *scan.Result
}

// NewHub creates a Hub. allowedOrigins follows the CORS rules: empty or "*"
// accepts any origin.
func NewHub(allowedOrigins []string, logger *slog.Logger) *Hub {
	h := &Hub{
		logger:  logger.With(slog.String("component", "ws_hub")),
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(o)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[strings.ToLower(origin)]
	}
}

// Name implements scan.Sink.
func (h *Hub) Name() string { return "websocket" }

// Publish implements scan.Sink. A client whose buffer is full misses the
// cycle rather than slowing the others.
func (h *Hub) Publish(_ context.Context, res scan.Result) error {
	h.mu.Lock()
	h.last = &res
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.deliver(res)
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and sends the latest cycle immediately.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	last := h.last
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client connected", slog.Int("clients", total))

	if last != nil {
		c.deliver(*last)
	}
	go c.writePump()
	go c.readPump()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client disconnected", slog.Int("clients", total))
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu      sync.RWMutex
	symbols map[string]bool
}

func (c *client) filter(opps []*domain.ArbitrageOpportunity) []*domain.ArbitrageOpportunity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.symbols) == 0 {
		return opps
	}
	out := make([]*domain.ArbitrageOpportunity, 0, len(opps))
	for _, o := range opps {
		if c.symbols[o.Symbol] {
			out = append(out, o)
		}
	}
	return out
}

func (c *client) deliver(res scan.Result) {
	msg, err := sonnet.Marshal(cycleMessage{
		Type:          "cycle",
		CycleID:       res.CycleID,
		StartedAt:     res.StartedAt,
		Evaluated:     res.Evaluated,
		Opportunities: c.filter(res.Opportunities),
	})
	if err != nil {
		c.hub.logger.Error("encode cycle failed", slog.String("error", err.Error()))
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.hub.logger.Warn("dropping cycle for slow client", slog.String("cycle_id", res.CycleID))
	}
}

func (c *client) apply(msg controlMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		if c.symbols == nil {
			c.symbols = make(map[string]bool)
		}
		for _, s := range msg.Symbols {
			c.symbols[strings.ToUpper(strings.TrimSpace(s))] = true
		}
	case "unsubscribe":
		for _, s := range msg.Symbols {
			delete(c.symbols, strings.ToUpper(strings.TrimSpace(s)))
		}
	case "reset":
		c.symbols = nil
	}
}

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
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var msg controlMessage
		if err := sonnet.Unmarshal(data, &msg); err == nil && msg.Action != "" {
			c.apply(msg)
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
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

var _ scan.Sink = (*Hub)(nil)
