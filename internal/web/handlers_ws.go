package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"meshdash/internal/dashboard"
)

// wsMessage is what browsers receive for every dashboard event. Device
// records are not sent; the page fetches the fragments it needs.
type wsMessage struct {
	Type    string `json:"type"`
	Key     string `json:"id,omitempty"`
	Op      string `json:"op,omitempty"`
	Error   string `json:"error,omitempty"`
	Count   int    `json:"count,omitempty"`
	Message string `json:"message,omitempty"`
	Time    int64  `json:"ts"`
}

func newWSMessage(e dashboard.Event, now time.Time) wsMessage {
	msg := wsMessage{Type: e.Type, Time: now.UnixMilli()}
	switch data := e.Data.(type) {
	case dashboard.DeviceData:
		msg.Key = data.Key
		msg.Op = data.Op
		msg.Error = data.Error
		msg.Count = data.Count
	case dashboard.Notification:
		msg.Key = data.Key
		msg.Message = data.Message
	}
	return msg
}

// WSHub fans dashboard events out to connected browsers.
type WSHub struct {
	clients map[*wsClient]struct{}
	mu      sync.RWMutex
	logger  *slog.Logger

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan wsMessage

	done     chan struct{}
	stopOnce sync.Once
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub(logger *slog.Logger) *WSHub {
	return &WSHub{
		clients:    make(map[*wsClient]struct{}),
		logger:     logger,
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan wsMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop.
func (h *WSHub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client connected", "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client disconnected", "total", total)

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *WSHub) fanOut(msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("ws marshal", "type", msg.Type, "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// A browser that cannot keep up reloads the list on reconnect.
			h.drop(client)
			h.logger.Warn("ws client evicted (too slow)", "type", msg.Type)
		}
	}
}

// drop must be called with h.mu held.
func (h *WSHub) drop(client *wsClient) {
	delete(h.clients, client)
	close(client.send)
}

// Clients returns the number of connected browsers.
func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop signals the hub to shut down. Safe to call multiple times.
func (h *WSHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Broadcast queues a dashboard event for all connected clients.
func (h *WSHub) Broadcast(e dashboard.Event) {
	select {
	case h.broadcast <- newWSMessage(e, time.Now()):
	default:
		h.logger.Warn("ws broadcast channel full, dropping event", "type", e.Type)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if len(s.allowedOrigins) > 0 {
		opts.OriginPatterns = s.allowedOrigins
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Error("ws accept", "err", err)
		return
	}

	conn.SetReadLimit(4096)

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	select {
	case s.wsHub.register <- client:
	case <-s.wsHub.done:
		conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}

	go s.wsWritePump(client)
	s.wsReadPump(client)
}

func (s *Server) wsWritePump(client *wsClient) {
	for msg := range client.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := client.conn.Write(ctx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			return
		}
	}
	client.conn.Close(websocket.StatusNormalClosure, "")
}

// wsReadPump only watches for the browser going away; clients send nothing.
func (s *Server) wsReadPump(client *wsClient) {
	defer func() {
		select {
		case s.wsHub.unregister <- client:
		case <-s.wsHub.done:
			client.conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-s.wsHub.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		if _, _, err := client.conn.Read(ctx); err != nil {
			return
		}
	}
}
