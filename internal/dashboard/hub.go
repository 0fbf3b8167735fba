package dashboard

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/taxi-dashboard/internal/observability"
)

const writeWait = 5 * time.Second

// wsSession is one connected live-update client.
type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// Hub fans view state out to every connected websocket client.
type Hub struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[*wsSession]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{logger: logger, sessions: make(map[*wsSession]struct{})}
}

func (h *Hub) add(conn *websocket.Conn) *wsSession {
	s := &wsSession{conn: conn}
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	observability.WSClients.Inc()
	return s
}

func (h *Hub) remove(s *wsSession) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	h.mu.Unlock()
	if ok {
		observability.WSClients.Dec()
		_ = s.conn.Close()
	}
}

// Broadcast sends v to all clients, dropping those that fail.
func (h *Hub) Broadcast(v any) {
	h.mu.RLock()
	sessions := make([]*wsSession, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		if err := s.send(v); err != nil {
			h.logger.Debug("ws send error", "error", err)
			h.remove(s)
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	sessions := make([]*wsSession, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()
	for _, s := range sessions {
		h.remove(s)
	}
}
