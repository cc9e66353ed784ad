package socketclient

import (
	"sync"

	"github.com/codefionn/chatline/internal/logger"
)

// Built-in event names. Any frame "type" value is an event name too.
const (
	EventConnect = "connect"
	EventReady   = "ready"
	EventData    = "data"
	EventMessage = "message"
	EventError   = "error"
	EventClose   = "close"
)

// Event is delivered to handlers registered with On.
type Event struct {
	Name string
	// Data holds the raw chunk for "data" and the frame for "message" and
	// typed events.
	Data []byte
	// Err is set for "error" and, when the socket failed, "close".
	Err error
	// Generation identifies the socket the event happened on.
	Generation uint64
}

// Handler reacts to an Event.
type Handler func(Event)

type registration struct {
	id      uint64
	name    string
	handler Handler
}

// registry holds the handlers of a session. It outlives sockets.
type registry struct {
	nextID uint64
	regs   []*registration
}

func (r *registry) add(name string, h Handler) *registration {
	r.nextID++
	reg := &registration{id: r.nextID, name: name, handler: h}
	r.regs = append(r.regs, reg)
	return reg
}

func (r *registry) all() []*registration {
	return r.regs
}

// dispatcher runs handlers one at a time, in enqueue order, on its own
// goroutine. The queue is unbounded so the event loop never blocks on a
// slow handler.
type dispatcher struct {
	log logger.Sink

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

func newDispatcher(log logger.Sink) *dispatcher {
	d := &dispatcher{
		log:  log,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) enqueue(fn func()) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// stop lets the dispatcher drain what is queued and exit. It does not wait,
// a handler may be the one calling Close.
func (d *dispatcher) stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			stopped := d.stopped
			d.mu.Unlock()
			if stopped {
				return
			}
			<-d.wake
			continue
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.call(fn)
	}
}

func (d *dispatcher) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("event handler panicked: %v", r)
		}
	}()
	fn()
}
