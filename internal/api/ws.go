package api

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/semptify/backend/internal/events"
)

// Origin validation: when SEMPTIFY_ENV is "production" and
// SEMPTIFY_ALLOWED_ORIGINS is set, only the listed origins are accepted;
// otherwise every origin is.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     buildCheckOrigin(),
}

func buildCheckOrigin() func(r *http.Request) bool {
	env := os.Getenv("SEMPTIFY_ENV")
	allowedRaw := os.Getenv("SEMPTIFY_ALLOWED_ORIGINS")

	if env == "production" && allowedRaw != "" {
		allowed := make(map[string]bool)
		for _, origin := range strings.Split(allowedRaw, ",") {
			allowed[strings.TrimSpace(origin)] = true
		}
		return func(r *http.Request) bool {
			return allowed[r.Header.Get("Origin")]
		}
	}
	return func(*http.Request) bool { return true }
}

// wsConn serializes writes: the fan-out goroutine and the reader's
// control responses share one connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

const wsWriteWait = 10 * time.Second

func (c *wsConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(messageType, data)
}

func (c *wsConn) Close() error { return c.conn.Close() }

func (c *wsConn) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, data)
}

// clientMessage is what browsers send on the event stream.
type clientMessage struct {
	Type      string   `json:"type"` // ping, subscribe, get_history
	Events    []string `json:"events,omitempty"`
	EventType string   `json:"event_type,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

// GET /ws/events?user_id=<U|broadcast>
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" || userID == "broadcast" {
		userID = ""
	}

	conn := &wsConn{conn: raw}
	s.bus.RegisterWebsocket(conn, userID)

	_ = conn.writeJSON(map[string]interface{}{
		"type":    "connected",
		"message": "Connected to Semptify event stream",
		"user_id": orBroadcast(userID),
	})

	go s.wsReadLoop(conn, userID)
}

func orBroadcast(userID string) string {
	if userID == "" {
		return "broadcast"
	}
	return userID
}

// wsReadLoop keeps the connection alive (ping frames, pong deadlines)
// and serves the client-side protocol until the peer goes away.
func (s *Server) wsReadLoop(conn *wsConn, userID string) {
	const (
		pongWait   = 60 * time.Second
		pingPeriod = 30 * time.Second
	)

	defer func() {
		s.bus.UnregisterWebsocket(conn, userID)
		_ = conn.Close()
	}()

	_ = conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, payload, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Debug("websocket read error", "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = conn.writeJSON(map[string]string{"type": "error", "message": "invalid JSON"})
			continue
		}

		switch msg.Type {
		case "ping":
			_ = conn.writeJSON(map[string]string{"type": "pong"})
		case "subscribe":
			_ = conn.writeJSON(map[string]interface{}{"type": "subscribed", "events": msg.Events})
		case "get_history":
			history := s.bus.History(events.Type(msg.EventType), userID, msg.Limit)
			_ = conn.writeJSON(map[string]interface{}{"type": "history", "events": history})
		default:
			_ = conn.writeJSON(map[string]string{"type": "error", "message": "unknown message type"})
		}
	}
}

// GET /ws/status
func (s *Server) handleWSStatus(w http.ResponseWriter, _ *http.Request) {
	types := events.AllTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "active",
		"event_types": names,
		"connect_url": "/ws/events",
		"statistics":  s.bus.Statistics(),
	})
}
