package chatserver

import (
	"sync"
	"time"

	"github.com/codefionn/chatline/internal/logger"
)

// Hub maintains the set of active sessions and handles broadcasting
type Hub struct {
	log logger.Sink

	mu       sync.RWMutex
	sessions map[*session]bool
	names    map[string]*session
}

// NewHub creates a new hub
func NewHub(log logger.Sink) *Hub {
	return &Hub{
		log:      log,
		sessions: make(map[*session]bool),
		names:    make(map[string]*session),
	}
}

func (h *Hub) register(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sessions[s] = true
	h.log.Debug("session %s registered (total: %d)", s.id, len(h.sessions))
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[s]; !ok {
		return
	}
	delete(h.sessions, s)
	if name := s.name(); name != "" && h.names[name] == s {
		delete(h.names, name)
	}
	h.log.Debug("session %s unregistered (total: %d)", s.id, len(h.sessions))
}

// claim binds name to s and marks s authenticated. It fails when another
// live session holds the name or s is already gone.
func (h *Hub) claim(name string, s *session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.sessions[s] {
		return false
	}
	if owner, ok := h.names[name]; ok && owner != s {
		return false
	}
	h.names[name] = s

	s.mu.Lock()
	s.username = name
	s.mu.Unlock()
	return true
}

// Count returns the number of authenticated sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.names)
}

// broadcast sends frame to every authenticated session except skip.
func (h *Hub) broadcast(frame []byte, skip *session) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.sessions {
		if s == skip || s.name() == "" {
			continue
		}
		if !s.send(frame) {
			h.log.Warn("session %s send buffer full, closing connection", s.id)
			go s.close()
		}
	}
}

// heartbeats broadcasts a heartbeat every interval until stop is closed.
func (h *Hub) heartbeats(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.broadcast(heartbeatFrame, nil)
		}
	}
}

// shutdown closes all sessions
func (h *Hub) shutdown() {
	h.mu.RLock()
	sessions := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.close()
	}
}
