package chatserver

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/codefionn/chatline/internal/logger"
)

const (
	sendQueueDepth = 256
	writeTimeout   = 10 * time.Second
	readTimeout    = 5 * time.Minute
)

// session is one client connection.
type session struct {
	id   string
	conn net.Conn
	hub  *Hub
	log  logger.Sink
	now  func() time.Time

	out chan []byte

	mu       sync.Mutex
	username string

	stopOnce sync.Once
	stopChan chan struct{}
}

func newSession(id string, conn net.Conn, hub *Hub, log logger.Sink) *session {
	return &session{
		id:       id,
		conn:     conn,
		hub:      hub,
		log:      log,
		now:      time.Now,
		out:      make(chan []byte, sendQueueDepth),
		stopChan: make(chan struct{}),
	}
}

func (s *session) start() {
	s.hub.register(s)
	go s.readPump()
	go s.writePump()
}

func (s *session) name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// send queues frame without blocking. It reports false when the queue is
// full.
func (s *session) send(frame []byte) bool {
	select {
	case <-s.stopChan:
		return true
	default:
	}
	select {
	case s.out <- frame:
		return true
	default:
		return false
	}
}

func (s *session) close() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.hub.unregister(s)
		_ = s.conn.Close()
		s.log.Debug("session %s stopped", s.id)
	})
}

func (s *session) readPump() {
	defer s.close()

	reader := bufio.NewReaderSize(s.conn, 64*1024)
	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.log.Debug("session %s disconnected (EOF)", s.id)
			case errors.Is(err, net.ErrClosed):
			default:
				s.log.Warn("error reading from session %s: %v", s.id, err)
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !gjson.Valid(line) {
			s.send(errorFrame("invalid json", gjson.Result{}))
			continue
		}
		s.handle(gjson.Parse(line))
	}
}

func (s *session) writePump() {
	defer s.close()

	for {
		select {
		case <-s.stopChan:
			return
		case frame := <-s.out:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if _, err := s.conn.Write(frame); err != nil {
				s.log.Warn("failed to write to session %s: %v", s.id, err)
				return
			}
		}
	}
}

func (s *session) handle(msg gjson.Result) {
	id := msg.Get("id")

	if s.name() == "" {
		s.authenticate(msg)
		return
	}

	var (
		frame []byte
		err   error
	)
	switch request := msg.Get("request").String(); request {
	case RequestCount:
		frame, err = reply(map[string]any{"count": s.hub.Count()}, id)
	case RequestTime:
		frame, err = reply(map[string]any{"time": s.now().UTC().Format(time.RFC3339)}, id)
	case RequestSend:
		text := msg.Get("message").String()
		chat, cerr := envelope(map[string]any{"type": typeChat, "from": s.name(), "message": text}, gjson.Result{})
		if cerr != nil {
			err = cerr
			break
		}
		s.hub.broadcast(chat, s)
		frame, err = envelope(map[string]any{"ok": true}, id)
	default:
		frame = errorFrame("unknown request "+request, id)
	}
	if err != nil {
		s.log.Error("session %s: encode response: %v", s.id, err)
		return
	}
	s.send(frame)
}

// authenticate handles the credential message, the first frame of every
// connection.
func (s *session) authenticate(msg gjson.Result) {
	name := strings.TrimSpace(msg.Get("name").String())
	if name == "" {
		s.send(errorFrame("name required", gjson.Result{}))
		return
	}
	if !s.hub.claim(name, s) {
		s.send(errorFrame("name taken", gjson.Result{}))
		return
	}

	s.log.Info("session %s authenticated as %q from %s", s.id, name, s.conn.RemoteAddr())
	s.send(welcomeFrame)
}

