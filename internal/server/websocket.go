package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/interfaces"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Local monitoring tool, any origin
	},
}

// WebSocketHandler broadcasts run events to connected monitoring clients
type WebSocketHandler struct {
	logger      arbor.ILogger
	mu          sync.RWMutex
	clients     map[*websocket.Conn]bool
	clientMutex map[*websocket.Conn]*sync.Mutex
}

// NewWebSocketHandler creates the handler and subscribes it to all run events
func NewWebSocketHandler(events interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:      logger,
		clients:     make(map[*websocket.Conn]bool),
		clientMutex: make(map[*websocket.Conn]*sync.Mutex),
	}

	broadcast := func(ctx context.Context, event interfaces.Event) error {
		h.Broadcast(event)
		return nil
	}
	for _, t := range []interfaces.EventType{
		interfaces.EventRunStarted,
		interfaces.EventBatchProgress,
		interfaces.EventSuiteCompleted,
		interfaces.EventRunCompleted,
		interfaces.EventRunFailed,
	} {
		if err := events.Subscribe(t, broadcast); err != nil {
			logger.Warn().Err(err).Str("event_type", string(t)).Msg("Failed to subscribe websocket broadcaster")
		}
	}

	return h
}

// HandleWS upgrades the connection and keeps it registered until the client
// disconnects. Clients are read-only; inbound messages are drained and
// discarded.
func (h *WebSocketHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().
		Str("remote", r.RemoteAddr).
		Int("clients", count).
		Msg("WebSocket client connected")

	defer h.remove(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends one event to every connected client. Writes are serialized
// per connection; a failed write drops the client.
func (h *WebSocketHandler) Broadcast(event interfaces.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to marshal event for broadcast")
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		h.mu.RLock()
		connMu := h.clientMutex[conn]
		h.mu.RUnlock()
		if connMu == nil {
			continue
		}

		connMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := conn.WriteMessage(websocket.TextMessage, data)
		connMu.Unlock()

		if err != nil {
			h.logger.Debug().Err(err).Msg("WebSocket write failed, dropping client")
			h.remove(conn)
		}
	}
}

// CloseAll disconnects every client, used during shutdown
func (h *WebSocketHandler) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
	}
}

func (h *WebSocketHandler) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		conn.Close()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
	}
}
