package scanner

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kure-project/kure-monitor/pkg/kure/hub"
)

const (
	wsReconnectBackoff = 5 * time.Second
	wsPingInterval     = 30 * time.Second
)

// rescanTrigger is the subset of Scanner the WS client needs: refreshing the
// exclusion cache and running selective rescans.
type rescanTrigger interface {
	RefreshExclusions(ctx context.Context) error
	SweepNamespace(ctx context.Context, namespace string)
	FullSweep(ctx context.Context)
}

// WSClient connects to the backend's /ws event bus and reacts to exclusion
// and trusted-registry change messages with a selective rescan (§4.1). It
// reconnects with a fixed backoff and keeps the connection alive with
// periodic pings, mirroring §4.2's hub client contract from the other side.
type WSClient struct {
	url     string
	apiKey  string
	scanner rescanTrigger
	logger  *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSClient builds a client against backendBaseURL (http/https), which is
// rewritten to ws/wss and pointed at /ws.
func NewWSClient(backendBaseURL, apiKey string, scanner rescanTrigger, logger *slog.Logger) *WSClient {
	return &WSClient{url: toWebSocketURL(backendBaseURL), apiKey: apiKey, scanner: scanner, logger: logger}
}

func toWebSocketURL(base string) string {
	wsURL := strings.Replace(base, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	return strings.TrimRight(wsURL, "/") + "/ws"
}

// Run connects and reconnects forever until ctx is cancelled.
func (c *WSClient) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.connectAndServe(ctx); err != nil {
			c.logger.Warn("scanner websocket disconnected, reconnecting", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wsReconnectBackoff):
		}
	}
}

func (c *WSClient) connectAndServe(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	stop := make(chan struct{})
	go c.pingLoop(conn, stop)
	defer close(stop)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg hub.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.logger.Warn("decoding hub message", "error", err)
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *WSClient) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type namespaceChangeData struct {
	Namespace string `json:"namespace"`
	Included  bool   `json:"included"`
}

type ruleChangeData struct {
	Namespace string `json:"namespace"`
	Included  bool   `json:"included"`
}

// handle implements §4.1's "exclusion change handling" table.
func (c *WSClient) handle(ctx context.Context, msg hub.Message) {
	switch msg.Type {
	case hub.TypeNamespaceExclusion:
		if err := c.scanner.RefreshExclusions(ctx); err != nil {
			c.logger.Error("refreshing exclusions", "error", err)
			return
		}
		var data namespaceChangeData
		if err := decodeInto(msg.Data, &data); err != nil {
			c.logger.Error("decoding namespace_exclusion_change payload", "error", err)
			return
		}
		if data.Included {
			c.scanner.SweepNamespace(ctx, data.Namespace)
		}

	case hub.TypeRuleExclusion:
		if err := c.scanner.RefreshExclusions(ctx); err != nil {
			c.logger.Error("refreshing exclusions", "error", err)
			return
		}
		var data ruleChangeData
		if err := decodeInto(msg.Data, &data); err != nil {
			c.logger.Error("decoding rule_exclusion_change payload", "error", err)
			return
		}
		switch {
		case !data.Included:
			// Exclusion added: no rescan, the backend already deleted matches.
		case data.Namespace == "":
			c.scanner.FullSweep(ctx)
		default:
			c.scanner.SweepNamespace(ctx, data.Namespace)
		}

	case hub.TypeTrustedRegistry:
		if err := c.scanner.RefreshExclusions(ctx); err != nil {
			c.logger.Error("refreshing exclusions", "error", err)
			return
		}
		c.sendRescanStatus("started")
		c.scanner.FullSweep(ctx)
		c.sendRescanStatus("completed")
	}
}

// sendRescanStatus posts a security_rescan_status frame back over the same
// socket for the backend to relay to UI clients (§4.1's started/completed
// progress bracket around a trusted-registry rescan).
func (c *WSClient) sendRescanStatus(status string) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	payload, err := json.Marshal(hub.Message{Type: hub.TypeRescanStatus, Data: map[string]string{"status": status}})
	if err != nil {
		c.logger.Error("encoding rescan status", "error", err)
		return
	}

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.Warn("sending rescan status", "error", err)
	}
}

func decodeInto(data any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
