package backend

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/kure-project/kure-monitor/internal/telemetry"
	"github.com/kure-project/kure-monitor/pkg/kure/hub"
)

// upgrader accepts connections from any origin: §4.2's hub is shared by UIs
// and scanners, and CORS is already enforced at the HTTP layer for browser
// clients (the scanner is not a browser and sends no Origin header).
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// relayableTypes are the only message types the hub accepts from an inbound
// client and rebroadcasts: the scanner's progress reports for a
// trusted-registry rescan (§4.1) and rescan requests. Everything else the
// backend itself is the sole author of.
var relayableTypes = map[string]bool{
	hub.TypeRescanStatus:  true,
	hub.TypeRescanRequest: true,
}

// HandleWebSocket implements WS /ws, the single event bus shared by UIs and
// scanners (§4.2). Most broadcasts are server-authored, but the scanner
// connects as an ordinary client and posts its own rescan_status frames over
// this same socket for relay to UI clients; rescan_request frames from any
// client are relayed the same way.
func (b *Backend) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	unregister := b.Hub.Register(conn)
	telemetry.HubClientsConnected.Set(float64(b.Hub.ClientCount()))
	defer func() {
		unregister()
		telemetry.HubClientsConnected.Set(float64(b.Hub.ClientCount()))
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg hub.Message
		if err := json.Unmarshal(payload, &msg); err != nil || !relayableTypes[msg.Type] {
			continue
		}
		b.Hub.Broadcast(msg.Type, msg.Data)
		telemetry.HubBroadcastsTotal.WithLabelValues(msg.Type).Inc()
	}
}
