package socketclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codefionn/chatline/internal/codec"
	"github.com/codefionn/chatline/internal/heartbeat"
	"github.com/codefionn/chatline/internal/logger"
	"github.com/codefionn/chatline/internal/securemem"
	"github.com/codefionn/chatline/internal/tracker"
)

var (
	// ErrClosed is returned after Close and by writes it interrupted.
	ErrClosed = errors.New("client closed")
	// ErrNotConnected is returned by WaitReady before Connect was called.
	ErrNotConnected = errors.New("connect not called")
	// ErrCredentialsLocked is returned by SetCredentials after Connect.
	ErrCredentialsLocked = errors.New("credentials cannot change after connect")
	// ErrMissingCredentials is returned by Connect without SetCredentials.
	ErrMissingCredentials = errors.New("credentials not set")
)

const (
	DefaultReconnectTimeout  = 2 * time.Second
	DefaultHeartbeatInterval = heartbeat.DefaultInterval
	DefaultReconnectDelay    = 500 * time.Millisecond
	DefaultReconnectMaxDelay = 30 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second

	mailboxSize = 256
)

// Config holds configuration for the client
type Config struct {
	Host string
	Port int

	// ReconnectTimeout is how long the connection may go without a
	// heartbeat before it is replaced.
	ReconnectTimeout time.Duration
	// HeartbeatInterval is how often staleness is checked.
	HeartbeatInterval time.Duration

	// ReconnectDelay is the first wait after a lost connection. Later waits
	// grow exponentially up to ReconnectMaxDelay.
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration

	ConnectTimeout time.Duration
	WriteTimeout   time.Duration

	// Logger receives diagnostics. Nil discards them.
	Logger logger.Sink
	// Registerer exports client metrics when set.
	Registerer prometheus.Registerer
}

func (c *Config) applyDefaults() {
	if c.ReconnectTimeout <= 0 {
		c.ReconnectTimeout = DefaultReconnectTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.ReconnectMaxDelay < c.ReconnectDelay {
		c.ReconnectMaxDelay = c.ReconnectDelay
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type credentials struct {
	name     string
	password *securemem.String
}

// Client is a persistent, self-healing connection to a chat server.
// All methods are safe for concurrent use.
type Client struct {
	cfg     Config
	log     logger.Sink
	codec   *codec.Codec
	metrics *metrics

	mailbox   chan event
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	closing   atomic.Bool

	credMu    sync.Mutex
	creds     *credentials
	connected bool

	state   atomic.Int32
	readyMu sync.Mutex
	readyCh chan struct{}

	// Owned by the event loop.
	tracker    *tracker.Tracker
	registry   registry
	dispatcher *dispatcher
	monitor    *heartbeat.Monitor
	backoff    *backoff.ExponentialBackOff
	retry      *time.Timer
	sock       *socket
	gen        uint64
	auth       *tracker.Request
	rawQueue   []json.RawMessage
}

// New creates a client. Nothing is dialed until Connect.
func New(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	cfg.applyDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.ReconnectDelay
	b.MaxInterval = cfg.ReconnectMaxDelay
	b.MaxElapsedTime = 0
	b.Reset()

	return &Client{
		cfg:     cfg,
		log:     cfg.Logger,
		codec:   codec.New(cfg.Logger),
		metrics: newMetrics(cfg.Registerer),
		mailbox: make(chan event, mailboxSize),
		done:    make(chan struct{}),
		readyCh: make(chan struct{}),
		tracker: tracker.New(),
		monitor: heartbeat.New(nil),
		backoff: b,
	}, nil
}

// SetCredentials stores the name and password used to authenticate. It must
// be called before Connect.
func (c *Client) SetCredentials(name, password string) error {
	c.credMu.Lock()
	defer c.credMu.Unlock()

	if c.connected {
		return ErrCredentialsLocked
	}
	if c.creds != nil {
		c.creds.password.Destroy()
	}
	c.creds = &credentials{name: name, password: securemem.NewString(password)}
	return nil
}

func (c *Client) username() string {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	if c.creds == nil {
		return ""
	}
	return c.creds.name
}

// Connect starts the event loop and the first connection attempt. Calling
// it again is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	if c.closing.Load() {
		return ErrClosed
	}

	c.credMu.Lock()
	if c.creds == nil {
		c.credMu.Unlock()
		return ErrMissingCredentials
	}
	first := !c.connected
	c.connected = true
	c.credMu.Unlock()

	if !first {
		return nil
	}
	c.ensureLoop()
	return c.post(ctx, connectEvent{})
}

// Write sends message and waits until every request pending at this moment
// has been answered. message may be a JSON string, []byte,
// json.RawMessage, a JSON-serializable value, or a slice of any of those.
// A top-level JSON array is a batch of requests.
//
// Malformed input is logged and dropped; the call then only waits for
// what was already pending and may return an empty slice.
func (c *Client) Write(ctx context.Context, message any) ([]json.RawMessage, error) {
	if c.closing.Load() {
		return nil, ErrClosed
	}

	payloads, err := codec.Normalize(message)
	if err != nil {
		c.log.Warn("dropping malformed message: %v", err)
	}

	c.ensureLoop()
	reply := make(chan *tracker.Batch, 1)
	if err := c.post(ctx, writeEvent{payloads: payloads, reply: reply}); err != nil {
		return nil, err
	}

	var batch *tracker.Batch
	select {
	case batch = <-reply:
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return batch.Wait(ctx)
}

// WriteRaw sends message without registering requests or awaiting
// responses. Frames go out now when the connection is ready, otherwise on
// the next ready.
func (c *Client) WriteRaw(ctx context.Context, message any) error {
	if c.closing.Load() {
		return ErrClosed
	}

	frames, err := codec.Normalize(message)
	if err != nil {
		c.log.Warn("dropping malformed raw message: %v", err)
	}
	if len(frames) == 0 {
		return nil
	}

	c.ensureLoop()
	return c.post(ctx, rawEvent{frames: frames})
}

// On registers handler for the named event. The handler stays registered
// for the life of the client and is attached to every socket once.
func (c *Client) On(name string, handler Handler) {
	if handler == nil || c.closing.Load() {
		return
	}
	c.ensureLoop()
	_ = c.post(context.Background(), onEvent{name: name, handler: handler})
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// WaitReady blocks until the connection is ready.
func (c *Client) WaitReady(ctx context.Context) error {
	c.credMu.Lock()
	connected := c.connected
	c.credMu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	for {
		if c.State() == StateReady {
			return nil
		}
		c.readyMu.Lock()
		ch := c.readyCh
		c.readyMu.Unlock()

		select {
		case <-ch:
		case <-c.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops reconnecting, closes the socket, fails every pending request
// with ErrClosed and wipes the credentials. It is safe to call repeatedly.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)

		started := true
		c.startOnce.Do(func() {
			started = false
			close(c.done)
		})
		if started {
			select {
			case c.mailbox <- closeEvent{}:
				<-c.done
			case <-c.done:
			}
		}

		c.credMu.Lock()
		if c.creds != nil {
			c.creds.password.Destroy()
			c.creds = nil
		}
		c.credMu.Unlock()
	})
	return nil
}

func (c *Client) ensureLoop() {
	c.startOnce.Do(func() {
		c.dispatcher = newDispatcher(c.log)
		go c.run()
	})
}

// post hands ev to the event loop.
func (c *Client) post(ctx context.Context, ev event) error {
	select {
	case c.mailbox <- ev:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) setState(s ConnectionState) {
	old := ConnectionState(c.state.Swap(int32(s)))
	if old == s {
		return
	}

	c.readyMu.Lock()
	switch {
	case s == StateReady:
		close(c.readyCh)
	case old == StateReady:
		c.readyCh = make(chan struct{})
	}
	c.readyMu.Unlock()

	c.metrics.state.Set(float64(s))
	c.log.Debug("state %s -> %s", old, s)
}
