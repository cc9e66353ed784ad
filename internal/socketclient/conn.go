package socketclient

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/codefionn/chatline/internal/codec"
)

const readBufferSize = 64 * 1024

var errReconnect = errors.New("replaced by a new connection")

// socket is one physical connection attempt. It is never reused.
type socket struct {
	gen    uint64
	framer *codec.Framer

	// set once dialing succeeded
	conn       net.Conn
	cancelDial context.CancelFunc

	// queue holds encoded frames for the writer. It is unbounded so the
	// event loop never waits on a slow peer; unsent counts its bytes plus
	// the write in progress.
	mu     sync.Mutex
	queue  [][]byte
	wake   chan struct{}
	unsent atomic.Int64

	closed    chan struct{}
	closeOnce sync.Once

	handlers []*registration
	attached map[uint64]bool
}

func newSocket(gen uint64) *socket {
	return &socket{
		gen:      gen,
		framer:   codec.NewFramer(codec.MaxFrameSize),
		wake:     make(chan struct{}, 1),
		closed:   make(chan struct{}),
		attached: make(map[uint64]bool),
	}
}

// attach adds reg to the socket unless it is attached already.
func (s *socket) attach(reg *registration) bool {
	if s.attached[reg.id] {
		return false
	}
	s.attached[reg.id] = true
	s.handlers = append(s.handlers, reg)
	return true
}

// write queues data for the writer goroutine. It never blocks.
func (s *socket) write(data []byte) bool {
	if s.conn == nil {
		return false
	}
	select {
	case <-s.closed:
		return false
	default:
	}

	s.unsent.Add(int64(len(data)))
	s.mu.Lock()
	s.queue = append(s.queue, data)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// pending reports bytes handed to write that did not reach the kernel yet.
// A closed socket has nothing pending.
func (s *socket) pending() int64 {
	select {
	case <-s.closed:
		return 0
	default:
		return s.unsent.Load()
	}
}

func (s *socket) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.cancelDial != nil {
			s.cancelDial()
		}
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

func (s *socket) readLoop(post func(event)) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			post(dataEvent{gen: s.gen, chunk: chunk})
		}
		if err != nil {
			post(socketClosedEvent{gen: s.gen, err: err})
			return
		}
	}
}

func (s *socket) take() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.queue
	s.queue = nil
	return batch
}

func (s *socket) writeLoop(timeout time.Duration, post func(event)) {
	for {
		select {
		case <-s.closed:
			return
		case <-s.wake:
		}

		for _, data := range s.take() {
			if timeout > 0 {
				_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
			}
			_, err := s.conn.Write(data)
			s.unsent.Add(-int64(len(data)))
			if err != nil {
				// close before posting; post may wait on a full mailbox
				s.close()
				post(socketErrorEvent{gen: s.gen, err: err})
				return
			}
		}
	}
}

func (c *Client) postAsync(ev event) {
	_ = c.post(context.Background(), ev)
}

// connect discards the current socket, if any, and starts a new attempt.
func (c *Client) connect() {
	c.dropSocket(errReconnect)

	c.gen++
	s := newSocket(c.gen)
	for _, reg := range c.registry.all() {
		s.attach(reg)
	}
	c.sock = s
	c.setState(StateConnecting)

	c.monitor.Reset()
	gen := s.gen
	c.monitor.Start(c.cfg.HeartbeatInterval, func() {
		c.postAsync(heartbeatCheckEvent{gen: gen})
	})

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	s.cancelDial = cancel
	addr := c.cfg.Address()
	c.log.Info("connecting to %s (socket %d)", addr, gen)

	go func() {
		defer cancel()
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if perr := c.post(context.Background(), dialedEvent{gen: gen, conn: conn, err: err}); perr != nil && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (c *Client) handleDialed(ev dialedEvent) {
	if !c.current(ev.gen) || c.closing.Load() {
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}
	if ev.err != nil {
		c.log.Warn("dial %s: %v", c.cfg.Address(), ev.err)
		c.emit(EventError, nil, ev.err)
		c.handleSocketClosed(ev.err)
		return
	}

	s := c.sock
	s.conn = ev.conn
	go s.readLoop(c.postAsync)
	go s.writeLoop(c.cfg.WriteTimeout, c.postAsync)

	c.log.Info("connected to %s (socket %d)", c.cfg.Address(), s.gen)
	c.emit(EventConnect, nil, nil)
	c.authenticate()
}

func (c *Client) handleData(chunk []byte) {
	c.emit(EventData, chunk, nil)

	frames, overflow := c.sock.framer.Feed(chunk)
	if overflow {
		c.log.Warn("dropping frame larger than %d bytes", codec.MaxFrameSize)
		c.metrics.framesDropped.Inc()
	}

	for _, frame := range frames {
		if codec.IsHeartbeat(frame) {
			c.monitor.Tick()
			c.metrics.heartbeats.Inc()
			c.emit(codec.TypeHeartbeat, frame, nil)
			continue
		}

		responses := c.codec.Decode(frame)
		if len(responses) == 0 {
			c.metrics.framesDropped.Inc()
			continue
		}
		c.route(responses)
	}
}

// route hands every response to its pending request, or to the
// authenticator while it waits, or to "message" handlers.
func (c *Client) route(responses []codec.Response) {
	for _, resp := range responses {
		if resp.Type != "" {
			c.emit(resp.Type, resp.Raw, nil)
		}

		if resp.HasID && c.tracker.Has(resp.ID) {
			c.tracker.Match([]codec.Response{resp})
			c.metrics.pending.Set(float64(c.tracker.Len()))
			continue
		}
		if c.auth != nil {
			c.completeAuth(resp)
			continue
		}
		c.emit(EventMessage, resp.Raw, nil)
	}
}

func (c *Client) handleSocketClosed(err error) {
	c.log.Info("connection to %s closed: %v", c.cfg.Address(), err)
	c.dropSocket(err)
	c.setState(StateDisconnected)

	if !c.closing.Load() {
		c.scheduleReconnect()
	}
}

// dropSocket closes the current socket and forgets it. Events still in
// flight from it are ignored by generation.
func (c *Client) dropSocket(reason error) {
	c.monitor.Stop()
	c.auth = nil
	if c.sock == nil {
		return
	}
	s := c.sock
	c.sock = nil
	s.close()
	c.emitOn(s, EventClose, nil, reason)
}

func (c *Client) scheduleReconnect() {
	delay := c.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = c.cfg.ReconnectMaxDelay
	}
	c.log.Info("reconnecting in %s", delay)
	c.metrics.reconnects.Inc()

	if c.retry != nil {
		c.retry.Stop()
	}
	c.retry = time.AfterFunc(delay, func() {
		c.postAsync(retryEvent{})
	})
}

func (c *Client) checkHeartbeat() {
	if c.monitor.Check(c.cfg.ReconnectTimeout, c.State() == StateConnecting) {
		return
	}
	c.log.Warn("no heartbeat since %s, reconnecting", c.monitor.LastHeartbeat().Format(time.RFC3339))
	c.reconnect()
}

// reconnect forces a fresh connection unless one is being dialed or the
// current socket still has bytes to flush.
func (c *Client) reconnect() {
	if c.State() == StateConnecting {
		return
	}
	if c.sock != nil && c.sock.pending() > 0 {
		c.log.Debug("reconnect deferred, %d bytes unsent", c.sock.pending())
		return
	}
	c.metrics.reconnects.Inc()
	c.connect()
}
