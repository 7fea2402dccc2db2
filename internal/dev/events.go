package dev

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/propgen/internal/errors"
	"github.com/vango-dev/propgen/internal/incremental"
)

// EventType represents the type of a watch event.
type EventType string

const (
	EventPass  EventType = "pass"
	EventError EventType = "error"
)

// Event is sent to subscribers via WebSocket.
type Event struct {
	Type        EventType    `json:"type"`
	Pass        int64        `json:"pass,omitzero"`
	Changed     []string     `json:"changed,omitempty"`
	Removed     []string     `json:"removed,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	Duration    string       `json:"duration,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Diagnostic is the wire form of a diagnostic.
type Diagnostic = errors.Record

// DiagnosticOf converts a diagnostic to its wire form.
func DiagnosticOf(e *errors.Error) Diagnostic {
	return e.Record()
}

// PassEvent summarizes a pass result.
func PassEvent(res *incremental.Result) Event {
	ev := Event{
		Type:     EventPass,
		Pass:     res.Pass,
		Duration: res.Duration.Round(time.Millisecond).String(),
	}
	for _, a := range res.Changed() {
		ev.Changed = append(ev.Changed, a.Key())
	}
	for _, a := range res.Removed {
		ev.Removed = append(ev.Removed, a.Key())
	}
	for _, d := range res.Diagnostics {
		ev.Diagnostics = append(ev.Diagnostics, DiagnosticOf(d))
	}
	return ev
}

const writeTimeout = 5 * time.Second

// Hub manages WebSocket subscribers to watch events. A new subscriber
// receives the most recent event first.
type Hub struct {
	clients  map[*websocket.Conn]bool
	last     []byte
	mu       sync.RWMutex
	writeMu  sync.Mutex // one writer per connection
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHub creates a new event hub. A nil logger means slog.Default().
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // local tooling endpoint
			},
		},
	}
}

// HandleWebSocket handles WebSocket upgrade and connection.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	h.writeMu.Lock()
	h.mu.Lock()
	h.clients[conn] = true
	last := h.last
	h.mu.Unlock()
	if last != nil {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, last); err != nil {
			h.writeMu.Unlock()
			h.remove(conn)
			return
		}
	}
	h.writeMu.Unlock()

	// Keep connection alive until client disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(conn)
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// Publish sends an event to all subscribers and retains it for new ones.
func (h *Hub) Publish(ev Event) {
	data, err := json.Marshal(ev, json.Deterministic(true))
	if err != nil {
		h.logger.Warn("encode watch event", "type", string(ev.Type), "error", err)
		return
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	h.mu.Lock()
	h.last = data
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("dropping watch subscriber", "error", err)
			h.remove(client)
		}
	}
}

// NotifyPass publishes the summary of a pass.
func (h *Hub) NotifyPass(res *incremental.Result) {
	h.Publish(PassEvent(res))
}

// NotifyError publishes an operational error, such as a failed load.
func (h *Hub) NotifyError(err error) {
	h.Publish(Event{Type: EventError, Error: err.Error()})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close closes all client connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}
