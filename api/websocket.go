package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"seclabel/core"
	"seclabel/ingest"
	"seclabel/metrics"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize  = 512
	sendChannelSize = 256
)

// Websocket message types
const (
	MessageEventsFetched = "events:fetched"
	MessageEventLabeled  = "event:labeled"
	messageExportPrefix  = "export:job:"
)

// ExportMessageType returns the message type for an export job status,
// e.g. "export:job:completed".
func ExportMessageType(status string) string {
	return messageExportPrefix + status
}

// WebSocketMessage is the envelope pushed to clients.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// client represents a single WebSocket client connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	logger     *zap.SugaredLogger
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// upgrader configures WebSocket connection upgrades. Origins are checked by
// corsMiddleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(ctx context.Context, logger *zap.SugaredLogger) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
		ctx:        hubCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns when the hub is stopped.
func (h *Hub) Run() {
	defer close(h.done)
	h.logger.Info("WebSocket hub started")

	for {
		select {
		case <-h.ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				_ = c.conn.Close()
			}
			h.clients = make(map[*client]bool)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			h.logger.Info("WebSocket hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
			h.logger.Debugw("WebSocket client registered", "total_clients", n)

		case c := <-h.unregister:
			h.remove(c)

		case message := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// slow client, drop it
					delete(h.clients, c)
					close(c.send)
					_ = c.conn.Close()
				}
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		metrics.WebSocketClients.Set(float64(n))
		h.logger.Debugw("WebSocket client unregistered", "total_clients", n)
	}
}

// BroadcastMessage queues a message for every connected client. It never
// blocks for more than a second.
func (h *Hub) BroadcastMessage(msgType string, data interface{}) error {
	payload, err := json.Marshal(WebSocketMessage{Type: msgType, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		h.logger.Errorw("Failed to marshal WebSocket message", "type", msgType, "error", err)
		return err
	}

	select {
	case h.broadcast <- payload:
		return nil
	case <-h.ctx.Done():
		return nil
	case <-time.After(time.Second):
		h.logger.Warnw("WebSocket broadcast timeout", "type", msgType)
		return nil
	}
}

// PublishExportJob broadcasts an export job status change.
func (h *Hub) PublishExportJob(job core.ExportJob) {
	_ = h.BroadcastMessage(ExportMessageType(job.Status), job)
}

// PublishFetch broadcasts a completed fetch.
func (h *Hub) PublishFetch(res ingest.FetchResult) {
	_ = h.BroadcastMessage(MessageEventsFetched, res)
}

// ClientCount returns the number of connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop shuts the hub down and waits for Run to return.
func (h *Hub) Stop() {
	h.cancel()
	<-h.done
}

// readPump only detects disconnects; clients do not send messages.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debugw("WebSocket unexpected close", "error", err)
			}
			return
		}
	}
}

// writePump sends queued messages, one per frame, and pings the peer.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
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

// serveWebSocket upgrades the connection and registers the client.
func (a *API) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	hub := a.deps.Hub
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warnw("WebSocket upgrade failed", "error", err, "request_id", requestID(r))
		return
	}

	c := &client{hub: hub, conn: conn, send: make(chan []byte, sendChannelSize)}
	select {
	case hub.register <- c:
	case <-hub.ctx.Done():
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
