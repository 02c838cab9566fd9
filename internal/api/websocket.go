package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsWriteTimeout bounds each outbound WebSocket write.
const wsWriteTimeout = 10 * time.Second

// ackMessage is the literal text an alert viewer sends to mark the
// current last alert as seen.
const ackMessage = "acknowledge"

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// wsConn adapts a gorilla connection to fanout.Conn. The mutex serializes
// writes: fan-out broadcasts, snapshots, and keepalive pings arrive from
// different goroutines and gorilla permits only one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Send delivers one text message with a write deadline.
func (c *wsConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	//nolint:errcheck // Deadline failure surfaces on the write itself
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close tears down the underlying connection.
func (c *wsConn) Close() error {
	return c.conn.Close()
}

// ping sends a keepalive control frame.
func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	//nolint:errcheck // Deadline failure surfaces on the write itself
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// viewerIdentity is the identity the fronting gateway attaches to a
// viewer connection as query parameters. Token validation is the
// gateway's job; by the time a request reaches this service the identity
// is trusted.
type viewerIdentity struct {
	tenant     string
	viewer     string
	superAdmin bool
}

// parseViewerIdentity extracts and validates the viewer identity.
func parseViewerIdentity(r *http.Request) (viewerIdentity, bool) {
	id := viewerIdentity{
		tenant:     r.URL.Query().Get("tenant"),
		viewer:     r.URL.Query().Get("viewer"),
		superAdmin: r.URL.Query().Get("super_admin") == "true",
	}
	if id.viewer == "" {
		return id, false
	}
	if id.tenant == "" && !id.superAdmin {
		return id, false
	}
	return id, true
}

// handleMonitorWS serves the live device-status feed. On connect the
// viewer receives a snapshot of its tenant's devices, then each
// device-status event as it happens.
func (s *Server) handleMonitorWS(w http.ResponseWriter, r *http.Request) {
	id, ok := parseViewerIdentity(r)
	if !ok {
		writeBadRequest(w, "viewer identity required (tenant + viewer, or super_admin)")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	wc := &wsConn{conn: conn}

	if err := s.monitor.Connect(wc, id.tenant, id.viewer, id.superAdmin); err != nil {
		s.logger.Error("registering monitor viewer", "viewer", id.viewer, "error", err)
		wc.Close()
		return
	}

	snapshotTenant := id.tenant
	if id.superAdmin {
		snapshotTenant = ""
	}
	s.monitor.SendInitialDeviceStates(r.Context(), wc, snapshotTenant)

	s.serveViewer(wc, func() { s.monitor.Disconnect(wc) }, nil)
}

// handleAlertWS serves the alert feed. On connect the viewer receives
// catch-up delivery of unacknowledged alerts, then live alerts as they
// are raised. The client acknowledges by sending the literal text
// "acknowledge".
func (s *Server) handleAlertWS(w http.ResponseWriter, r *http.Request) {
	id, ok := parseViewerIdentity(r)
	if !ok {
		writeBadRequest(w, "viewer identity required (tenant + viewer, or super_admin)")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	wc := &wsConn{conn: conn}

	if err := s.alertHub.Connect(wc, id.tenant, id.viewer, id.superAdmin); err != nil {
		s.logger.Error("registering alert viewer", "viewer", id.viewer, "error", err)
		wc.Close()
		return
	}

	if err := s.alertHub.SendLastAlert(wc, id.tenant, id.viewer, id.superAdmin); err != nil {
		// SendLastAlert already evicted and closed the connection.
		return
	}

	s.serveViewer(wc, func() { s.alertHub.Disconnect(wc) }, func(payload []byte) {
		if strings.TrimSpace(string(payload)) == ackMessage {
			s.alertHub.Acknowledge(id.tenant, id.viewer, id.superAdmin)
		}
	})
}

// serveViewer runs the connection's read loop until the peer goes away.
// Most traffic is server→client; reads exist to detect disconnects and,
// on the alert socket, to receive acknowledgments. A background ticker
// sends keepalive pings; a missed pong times the read out.
func (s *Server) serveViewer(wc *wsConn, onClose func(), onMessage func([]byte)) {
	defer func() {
		onClose()
		wc.Close()
	}()

	pingInterval := time.Duration(s.wsCfg.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	pongTimeout := time.Duration(s.wsCfg.PongTimeout) * time.Second
	if pongTimeout <= 0 {
		pongTimeout = 10 * time.Second
	}
	readDeadline := pingInterval + pongTimeout

	if s.wsCfg.MaxMessageSize > 0 {
		wc.conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	}
	//nolint:errcheck // Deadline failure surfaces on the read itself
	wc.conn.SetReadDeadline(time.Now().Add(readDeadline))
	wc.conn.SetPongHandler(func(string) error {
		//nolint:errcheck // Deadline failure surfaces on the read itself
		wc.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := wc.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, payload, err := wc.conn.ReadMessage()
		if err != nil {
			return
		}
		if onMessage != nil {
			onMessage(payload)
		}
	}
}
