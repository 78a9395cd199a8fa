package events

import (
	"encoding/json"
	"log/slog"
	"net"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/semptify/backend/internal/metrics"
)

// Conn is the subset of *websocket.Conn the fan-out needs; tests register
// fakes through it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// broadcastKey is the registry slot for sockets that want every event.
const broadcastKey = "broadcast"

// SocketSet maintains the per-user and broadcast websocket registries and
// fans serialized events out to them. An event published with user_id=U is
// serialized once and sent to U's sockets plus all broadcast sockets.
type SocketSet struct {
	mu      sync.RWMutex
	byUser  map[string]map[Conn]bool
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewSocketSet creates an empty socket registry.
func NewSocketSet(m *metrics.Metrics, logger *slog.Logger) *SocketSet {
	if logger == nil {
		logger = slog.Default()
	}
	return &SocketSet{
		byUser:  make(map[string]map[Conn]bool),
		metrics: m,
		logger:  logger.With("component", "ws_fanout"),
	}
}

// Register adds conn under userID; empty userID means broadcast.
func (s *SocketSet) Register(conn Conn, userID string) {
	if userID == "" {
		userID = broadcastKey
	}
	s.mu.Lock()
	set, ok := s.byUser[userID]
	if !ok {
		set = make(map[Conn]bool)
		s.byUser[userID] = set
	}
	set[conn] = true
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.WebsocketsOpen.Inc()
	}
	s.logger.Info("websocket connected", "user_id", userID, "total", s.Count())
}

// Unregister removes conn from userID's set.
func (s *SocketSet) Unregister(conn Conn, userID string) {
	if userID == "" {
		userID = broadcastKey
	}
	s.mu.Lock()
	removed := false
	if set, ok := s.byUser[userID]; ok && set[conn] {
		delete(set, conn)
		removed = true
		if len(set) == 0 {
			delete(s.byUser, userID)
		}
	}
	s.mu.Unlock()

	if removed {
		if s.metrics != nil {
			s.metrics.WebsocketsOpen.Dec()
		}
		s.logger.Info("websocket disconnected", "user_id", userID, "total", s.Count())
	}
}

// Send serializes e once and delivers it to the matching user set and the
// broadcast set. A serialization failure is logged and skips the socket
// fan-out only; it never affects in-process subscribers. Transient send
// errors (timeouts) skip the socket; terminal errors remove it.
func (s *SocketSet) Send(e *Event) {
	data, err := json.Marshal(e)
	if err != nil {
		s.logger.Warn("event serialization failed", "type", e.Type, "error", err)
		return
	}

	targets := s.collect(e.UserID)
	var dead []deadConn
	for _, t := range targets {
		if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			if isTransient(err) {
				s.logger.Debug("websocket send skipped", "user_id", t.user, "error", err)
				continue
			}
			dead = append(dead, t)
		}
	}
	for _, t := range dead {
		s.logger.Warn("websocket send failed, removing socket", "user_id", t.user)
		s.Unregister(t.conn, t.user)
		_ = t.conn.Close()
	}
}

type deadConn struct {
	conn Conn
	user string
}

func (s *SocketSet) collect(userID string) []deadConn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []deadConn
	if userID != "" {
		for c := range s.byUser[userID] {
			out = append(out, deadConn{conn: c, user: userID})
		}
	}
	for c := range s.byUser[broadcastKey] {
		out = append(out, deadConn{conn: c, user: broadcastKey})
	}
	return out
}

// isTransient reports whether a send error is worth retrying on the next
// event. Timeouts are transient; everything else (closed conn, broken
// pipe, protocol error) is terminal.
func isTransient(err error) bool {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return true
	}
	return false
}

// Count returns the number of registered sockets.
func (s *SocketSet) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, set := range s.byUser {
		n += len(set)
	}
	return n
}
