package chatserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/codefionn/chatline/internal/logger"
)

const (
	DefaultHeartbeatInterval = time.Second
	DefaultMaxConnections    = 64
)

// Config holds configuration for the server
type Config struct {
	Addr              string
	HeartbeatInterval time.Duration
	MaxConnections    int
	Logger            logger.Sink
}

// Server represents the TCP chat server
type Server struct {
	cfg      Config
	log      logger.Sink
	hub      *Hub
	listener net.Listener

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	connIDMu      sync.Mutex
	connIDCounter int
}

// NewServer creates a new chat server
func NewServer(cfg Config) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &Server{
		cfg:      cfg,
		log:      cfg.Logger,
		hub:      NewHub(cfg.Logger),
		stopChan: make(chan struct{}),
	}
}

// Start binds the listener and serves in the background until ctx is done
// or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = listener
	s.running = true

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.hub.heartbeats(s.cfg.HeartbeatInterval, s.stopChan)
	}()
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.stopChan:
		}
	}()

	s.log.Info("chat server listening on %s (max connections: %d)", listener.Addr(), s.cfg.MaxConnections)
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run starts the server and blocks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-s.stopChan
	s.wg.Wait()
	return nil
}

// Stop closes the listener and every session.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopChan)

		s.mu.Lock()
		listener := s.listener
		s.running = false
		s.mu.Unlock()

		if listener != nil {
			if err := listener.Close(); err != nil {
				s.log.Warn("error closing listener: %v", err)
			}
		}
		s.hub.shutdown()
		s.log.Info("chat server stopped")
	})
	return nil
}

// ClientCount returns the number of authenticated sessions.
func (s *Server) ClientCount() int {
	return s.hub.Count()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error("error accepting connection: %v", err)
			select {
			case <-s.stopChan:
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		if !s.checkConnectionLimit() {
			s.log.Warn("connection limit reached, rejecting connection from %s", conn.RemoteAddr())
			_ = conn.Close()
			continue
		}

		sess := newSession(s.generateConnectionID(), conn, s.hub, s.log)
		sess.start()
		s.log.Debug("new connection accepted: %s", sess.id)
	}
}

func (s *Server) checkConnectionLimit() bool {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	return len(s.hub.sessions) < s.cfg.MaxConnections
}

func (s *Server) generateConnectionID() string {
	s.connIDMu.Lock()
	defer s.connIDMu.Unlock()

	s.connIDCounter++
	return fmt.Sprintf("conn_%d", s.connIDCounter)
}
