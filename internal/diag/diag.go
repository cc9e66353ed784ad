// Package diag serves Prometheus metrics and, optionally, the net/http/pprof
// endpoints on a local HTTP listener.
package diag

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	netpprof "net/http/pprof"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codefionn/chatline/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Config holds the diagnostics server configuration
type Config struct {
	Addr     string // e.g. ":9100", "localhost:9100"
	Gatherer prometheus.Gatherer
	Pprof    bool // also mount /debug/pprof/
	Logger   logger.Sink
}

// Server exposes /metrics and the profiling handlers.
type Server struct {
	config   Config
	server   *http.Server
	listener net.Listener

	mu       sync.Mutex
	stopping bool
}

// NewServer creates a diagnostics server. Nothing listens until Start.
func NewServer(config Config) *Server {
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	return &Server{config: config}
}

// Handler returns the mux Start serves.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))

	if s.config.Pprof {
		mux.HandleFunc("/debug/pprof/", netpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", netpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", netpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", netpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", netpprof.Trace)
		mux.Handle("/debug/pprof/goroutine", netpprof.Handler("goroutine"))
		mux.Handle("/debug/pprof/heap", netpprof.Handler("heap"))
	}
	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind diagnostics server: %w", err)
	}

	s.listener = ln
	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.config.Logger.Error("diagnostics server error: %v", err)
		}
	}()
	s.config.Logger.Info("serving metrics on http://%s/metrics", ln.Addr())
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

// Run starts the server and stops it when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// Stop shuts the server down. Calling it again is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping || s.server == nil {
		return nil
	}
	s.stopping = true

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	if err != nil {
		return fmt.Errorf("failed to shutdown diagnostics server: %w", err)
	}
	return nil
}
