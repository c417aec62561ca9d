// Package hub implements the WebSocket broadcast fan-out described in
// SPEC_FULL.md §4.2: a single in-process registry of connected clients,
// oblivious to whether a client is a UI or a scanner. It adapts the
// teacher's internal/audit.Writer buffered-channel-plus-background-goroutine
// shape (there: batched async DB flush; here: per-connection write-pump) to
// fan-out instead of persistence.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// sendBuffer bounds each client's outbound queue. A slow consumer is
// disconnected rather than allowed to block the broadcaster, per §5's
// backpressure policy ("prefers to disconnect a slow consumer").
const sendBuffer = 64

// Message is the wire envelope for every broadcast frame:
// {"type": "...", "data": {...}}.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Authoritative broadcast message types (§4.2).
const (
	TypePodFailure             = "pod_failure"
	TypePodStatusChange        = "pod_status_change"
	TypePodDeleted             = "pod_deleted"
	TypePodRecordDeleted       = "pod_record_deleted"
	TypePodSolutionUpdated     = "pod_solution_updated"
	TypeSecurityFinding        = "security_finding"
	TypeSecurityFindingDeleted = "security_finding_deleted"
	TypeNamespaceExclusion     = "namespace_exclusion_change"
	TypePodExclusion           = "pod_exclusion_change"
	TypeRuleExclusion          = "rule_exclusion_change"
	TypeTrustedRegistry        = "trusted_registry_change"
	TypeClusterMetrics         = "cluster_metrics"
	TypeRescanStatus           = "security_rescan_status"
	TypeRescanRequest          = "security_rescan_request"
)

// client is one connected WebSocket peer and its write-pump queue. id is
// assigned at Register and used only for log correlation across a
// connection's lifetime.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub is the single in-process registry of connected clients.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// New creates an empty Hub.
func New(logger *slog.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[*client]struct{})}
}

// Register adds a connection to the hub and starts its write-pump. Callers
// should run the read-pump (to detect client disconnects / pings) on the
// same connection separately; the function Register returns must be called
// when that loop exits.
func (h *Hub) Register(conn *websocket.Conn) func() {
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("hub: client registered", "client_id", c.id)

	done := make(chan struct{})
	go h.writePump(c, done)

	return func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(c.send)
		<-done
		h.logger.Debug("hub: client unregistered", "client_id", c.id)
	}
}

func (h *Hub) writePump(c *client, done chan struct{}) {
	defer close(done)
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Debug("hub: write failed, dropping client", "client_id", c.id, "error", err)
			h.mu.Lock()
			delete(h.clients, c)
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast serializes msg once and fans it out to every connected client.
// Clients whose send buffer is full are dropped rather than allowed to
// block the broadcaster (§5 backpressure policy).
func (h *Hub) Broadcast(msgType string, data any) {
	payload, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		h.logger.Error("hub: marshaling broadcast message", "type", msgType, "error", err)
		return
	}

	h.mu.RLock()
	snapshot := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("hub: client send buffer full, dropping client", "client_id", c.id)
			h.mu.Lock()
			delete(h.clients, c)
			h.mu.Unlock()
		}
	}
}

// ClientCount reports the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
