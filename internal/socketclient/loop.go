package socketclient

import (
	"encoding/json"
	"net"

	"github.com/codefionn/chatline/internal/codec"
	"github.com/codefionn/chatline/internal/tracker"
)

// event is anything the loop reacts to.
type event interface{}

type (
	connectEvent struct{}
	closeEvent   struct{}
	retryEvent   struct{}

	writeEvent struct {
		payloads []json.RawMessage
		reply    chan<- *tracker.Batch
	}
	rawEvent struct {
		frames []json.RawMessage
	}
	onEvent struct {
		name    string
		handler Handler
	}

	dialedEvent struct {
		gen  uint64
		conn net.Conn
		err  error
	}
	dataEvent struct {
		gen   uint64
		chunk []byte
	}
	socketErrorEvent struct {
		gen uint64
		err error
	}
	socketClosedEvent struct {
		gen uint64
		err error
	}
	heartbeatCheckEvent struct {
		gen uint64
	}
)

// run is the event loop. It exits after a closeEvent.
func (c *Client) run() {
	defer close(c.done)

	for ev := range c.mailbox {
		if c.handle(ev) {
			return
		}
	}
}

// handle processes one event and reports whether the loop should stop.
func (c *Client) handle(ev event) bool {
	switch ev := ev.(type) {
	case connectEvent:
		if c.sock == nil && c.State() == StateDisconnected {
			c.connect()
		}
	case retryEvent:
		c.retry = nil
		if c.sock == nil && !c.closing.Load() {
			c.connect()
		}
	case writeEvent:
		c.handleWrite(ev)
	case rawEvent:
		c.handleRaw(ev)
	case onEvent:
		reg := c.registry.add(ev.name, ev.handler)
		if c.sock != nil {
			c.sock.attach(reg)
		}
	case dialedEvent:
		c.handleDialed(ev)
	case dataEvent:
		if c.current(ev.gen) {
			c.handleData(ev.chunk)
		}
	case socketErrorEvent:
		if c.current(ev.gen) {
			c.log.Warn("socket error: %v", ev.err)
			c.emit(EventError, nil, ev.err)
		}
	case socketClosedEvent:
		if c.current(ev.gen) {
			c.handleSocketClosed(ev.err)
		}
	case heartbeatCheckEvent:
		if c.current(ev.gen) {
			c.checkHeartbeat()
		}
	case closeEvent:
		c.shutdown()
		return true
	}
	return false
}

func (c *Client) current(gen uint64) bool {
	return c.sock != nil && c.sock.gen == gen
}

func (c *Client) handleWrite(ev writeEvent) {
	var reqs []*tracker.Request
	for _, payload := range ev.payloads {
		req, err := c.tracker.CreateRequest(payload)
		if err != nil {
			c.log.Warn("dropping request %s: %v", payload, err)
			continue
		}
		reqs = append(reqs, req)
	}

	added, err := c.tracker.Add(reqs...)
	if err != nil {
		c.log.Warn("dropping request: %v", err)
	}
	c.metrics.pending.Set(float64(c.tracker.Len()))

	ev.reply <- c.tracker.Batch()

	if c.State() == StateReady && len(added) > 0 {
		c.sendRequests(added)
	}
}

func (c *Client) handleRaw(ev rawEvent) {
	if c.State() == StateReady {
		c.sendFrames(ev.frames)
		return
	}
	c.rawQueue = append(c.rawQueue, ev.frames...)
}

// flush sends everything that waited for Ready: the whole pending set
// first, then queued raw frames.
func (c *Client) flush() {
	c.sendRequests(c.tracker.Pending())

	if len(c.rawQueue) > 0 {
		queued := c.rawQueue
		c.rawQueue = nil
		c.sendFrames(queued)
	}
}

func (c *Client) sendRequests(reqs []*tracker.Request) {
	frames := make([]json.RawMessage, 0, len(reqs))
	for _, req := range reqs {
		frames = append(frames, req.Message)
	}
	c.sendFrames(frames)
}

func (c *Client) sendFrames(frames []json.RawMessage) {
	if len(frames) == 0 || c.sock == nil {
		return
	}
	items := make([]any, len(frames))
	for i, f := range frames {
		items[i] = f
	}
	data, err := codec.EncodeBatch(items)
	if err != nil {
		c.log.Warn("dropping unencodable frame: %v", err)
	}
	if len(data) == 0 {
		return
	}
	if !c.sock.write(data) {
		c.log.Debug("socket %d gone, %d bytes not sent", c.sock.gen, len(data))
	}
}

// emit queues name for every handler attached to the current socket.
func (c *Client) emit(name string, data []byte, err error) {
	if c.sock == nil {
		return
	}
	c.emitOn(c.sock, name, data, err)
}

func (c *Client) emitOn(s *socket, name string, data []byte, err error) {
	ev := Event{Name: name, Data: data, Err: err, Generation: s.gen}
	for _, reg := range s.handlers {
		if reg.name != name {
			continue
		}
		handler := reg.handler
		c.dispatcher.enqueue(func() { handler(ev) })
	}
}

func (c *Client) shutdown() {
	c.log.Info("closing client")
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.dropSocket(ErrClosed)
	c.setState(StateDisconnected)

	c.tracker.RejectAll(ErrClosed)
	c.metrics.pending.Set(0)
	c.rawQueue = nil
	c.dispatcher.stop()
}
