package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/vantagesign/signdeck/internal/fleet"
	"github.com/vantagesign/signdeck/internal/logging"
)

const writeWait = 10 * time.Second

// hub fans fleet events out to connected WebSocket clients. Clients that
// cannot keep up are dropped rather than allowed to stall the pump.
type hub struct {
	log logging.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub(log logging.Logger) *hub {
	return &hub{
		log:     log.WithComponent("ws"),
		clients: make(map[*client]struct{}),
	}
}

// pump serializes tracker events and broadcasts them until the channel
// closes or ctx is done.
func (h *hub) pump(ctx context.Context, events <-chan fleet.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.log.Error(ctx, err, "encode event")
				continue
			}
			h.broadcast(payload)
		}
	}
}

func (h *hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(payload []byte) {
	h.mu.Lock()
	var stalled []*client
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			stalled = append(stalled, c)
		}
	}
	for _, c := range stalled {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	for _, c := range stalled {
		c.conn.Close(websocket.StatusPolicyViolation, "client too slow")
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		close(c.send)
	}
	h.clients = make(map[*client]struct{})
	h.closed = true
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.originAllowed(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origin already validated against the configured allow list.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 64)}
	if !s.hub.add(c) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go s.writePump(c)
	s.readPump(r.Context(), c)
}

// writePump drains the client's send channel onto the wire.
func (s *Server) writePump(c *client) {
	for payload := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		err := c.conn.Write(ctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			s.hub.remove(c)
			c.conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

// readPump discards inbound frames (the feed is one-way) and tears the
// client down when the peer goes away.
func (s *Server) readPump(ctx context.Context, c *client) {
	defer func() {
		s.hub.remove(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// originAllowed accepts same-host origins and anything on the
// configured allow list. Requests without an Origin header (CLI tools,
// same-origin fetches) are allowed.
func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if au, err := url.Parse(allowed); err == nil && au.Host == u.Host && au.Scheme == u.Scheme {
			return true
		}
	}
	return false
}
