// Package heartbeat tracks server liveness signals and periodically asks
// whether the connection has gone quiet for too long.
package heartbeat

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is the period between staleness checks.
const DefaultInterval = 2 * time.Second

// Monitor records the time of the last heartbeat. It only detects
// staleness; reconnecting is up to whoever owns the connection.
type Monitor struct {
	now  func() time.Time
	last atomic.Int64 // unix nanos

	mu   sync.Mutex
	stop chan struct{}
}

// New creates a Monitor. A nil clock uses time.Now.
func New(clock func() time.Time) *Monitor {
	if clock == nil {
		clock = time.Now
	}
	m := &Monitor{now: clock}
	m.Reset()
	return m
}

// Tick records a heartbeat.
func (m *Monitor) Tick() {
	m.last.Store(m.now().UnixNano())
}

// Reset restarts the staleness window as if a heartbeat arrived now.
func (m *Monitor) Reset() {
	m.Tick()
}

// LastHeartbeat returns the time of the last recorded heartbeat.
func (m *Monitor) LastHeartbeat() time.Time {
	return time.Unix(0, m.last.Load())
}

// Check reports whether the connection still counts as alive. It returns
// false once threshold has passed without a heartbeat, unless connecting
// is set: a connection that is still being established is never stale.
func (m *Monitor) Check(threshold time.Duration, connecting bool) bool {
	if connecting {
		return true
	}
	return m.now().Sub(m.LastHeartbeat()) < threshold
}

// Start runs fire every interval until Stop. A running timer is stopped
// first, so there is never more than one per Monitor.
func (m *Monitor) Start(interval time.Duration, fire func()) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()

	stop := make(chan struct{})
	m.stop = stop
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				fire()
			}
		}
	}()
}

// Stop halts the timer started by Start. It is safe to call repeatedly.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Monitor) stopLocked() {
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}
