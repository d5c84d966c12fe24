// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package pool owns the lifecycle of one connection pool per server identity:
// lazy creation, acquire/release, invalidation after connection loss, bounded
// drain on close and a broadcast of status transitions to every interested
// node.
//
// State machine:
//
//	Unconnected -> Connecting -> Connected -> Closed
//	                    ^            |
//	                    |            v
//	                    +-------- Error
//
// Closed is terminal.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"oraflow/cli/internal/driver"
	"oraflow/cli/internal/dsn"
	oerrors "oraflow/cli/internal/errors"
	"oraflow/cli/internal/flow"
)

// DefaultDrainTimeout bounds Close when the identity does not set one.
const DefaultDrainTimeout = 10 * time.Second

// now is replaced in tests.
var now = time.Now

// Identity is the immutable description of one server binding.
type Identity struct {
	// Name is the connection name; it keys credentials and health status.
	Name   string
	Driver string
	// ConnectString is a tnsnames.ora alias, descriptor or URL. When empty the
	// target is Host:Port/Service.
	ConnectString string
	Host          string
	Port          int
	Service       string
	LibDir        string
	User          string
	Password      string
	Min           int
	Max           int
	Increment     int
	IdleTimeout   time.Duration
	DrainTimeout  time.Duration
}

// Target returns the connect string handed to the driver.
func (id Identity) Target() string {
	if id.ConnectString != "" {
		return id.ConnectString
	}
	return dsn.HostPortService(id.Host, id.Port, id.Service)
}

// Manager owns one pool for one Identity.
type Manager struct {
	drv driver.Driver
	id  Identity
	log flow.Logger

	mu         sync.Mutex
	state      State
	pool       driver.Pool
	subs       []subscription
	nextSub    int
	outbox     []StatusEvent
	delivering bool
}

// New returns a manager in the Unconnected state. Nothing is opened until
// Connect.
func New(drv driver.Driver, id Identity, log flow.Logger) *Manager {
	if log == nil {
		log = flow.NopLogger{}
	}
	return &Manager{drv: drv, id: id, log: log}
}

func (m *Manager) Identity() Identity { return m.id }

func (m *Manager) Driver() driver.Driver { return m.drv }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ready reports whether a pool exists and accepts work.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected && m.pool != nil
}

func (m *Manager) Stats() driver.Stats {
	m.mu.Lock()
	p := m.pool
	m.mu.Unlock()
	if p == nil {
		return driver.Stats{}
	}
	return p.Stats()
}

// Subscribe registers fn for status events and returns its unsubscribe
// function. Events are delivered in publish order, outside the state lock.
func (m *Manager) Subscribe(fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	id := m.nextSub
	m.subs = append(m.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, s := range m.subs {
				if s.id == id {
					m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
					break
				}
			}
		})
	}
}

// publishLocked queues ev and delivers the outbox. It must be called with
// m.mu held and returns with it released. A publish from inside a listener is
// delivered after the current event by the goroutine already delivering.
func (m *Manager) publishLocked(ev Event, err error) {
	m.outbox = append(m.outbox, StatusEvent{Server: m.id.Name, Event: ev, Err: err, At: now()})
	if m.delivering {
		m.mu.Unlock()
		return
	}
	m.delivering = true
	for len(m.outbox) > 0 {
		next := m.outbox[0]
		m.outbox = m.outbox[1:]
		subs := make([]subscription, len(m.subs))
		copy(subs, m.subs)
		m.mu.Unlock()
		for _, s := range subs {
			s.fn(next)
		}
		m.mu.Lock()
	}
	m.delivering = false
	m.mu.Unlock()
}

// Connect creates the pool. It is a no-op when a pool exists or an attempt is
// already in flight. Failure leaves the pool absent and broadcasts EventError;
// there is no automatic retry here.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return oerrors.New(oerrors.PoolUnavailable, "pool manager is closed")
	case StateConnecting, StateConnected:
		m.mu.Unlock()
		return nil
	}
	ev := EventConnecting
	if m.state == StateError {
		ev = EventReconnecting
	}
	m.state = StateConnecting
	m.publishLocked(ev, nil)

	p, err := m.open(ctx)

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		if p != nil {
			_ = p.Close(context.Background())
		}
		return oerrors.New(oerrors.PoolUnavailable, "pool manager closed while connecting")
	}
	if err != nil {
		m.state = StateError
		m.log.Error("connection pool creation failed", "server", m.id.Name, "error", err)
		m.publishLocked(EventError, err)
		return err
	}
	m.pool = p
	m.state = StateConnected
	m.log.Info("connection pool ready", "server", m.id.Name, "target", m.describeTarget())
	m.publishLocked(EventConnected, nil)
	return nil
}

func (m *Manager) open(ctx context.Context) (driver.Pool, error) {
	if err := m.drv.Init(driver.ClientOptions{LibDir: m.id.LibDir}); err != nil && !errors.Is(err, driver.ErrAlreadyInitialized) {
		return nil, oerrors.Wrap(oerrors.ConnectError, "client initialization failed", err)
	}
	p, err := m.drv.OpenPool(ctx, driver.PoolOptions{
		ConnectString: m.id.Target(),
		User:          m.id.User,
		Password:      m.id.Password,
		Min:           m.id.Min,
		Max:           m.id.Max,
		Increment:     m.id.Increment,
		IdleTimeout:   m.id.IdleTimeout,
	})
	if err != nil {
		return nil, oerrors.Wrap(oerrors.ConnectError, "cannot create connection pool for "+m.id.Name, err)
	}
	return p, nil
}

func (m *Manager) describeTarget() string {
	info, err := dsn.ParseInfo(m.id.Target())
	if err != nil {
		return m.id.Target()
	}
	return dsn.Describe(info)
}

// Acquire checks a connection out of the ready pool.
func (m *Manager) Acquire(ctx context.Context) (driver.Conn, error) {
	m.mu.Lock()
	p, state := m.pool, m.state
	m.mu.Unlock()
	if p == nil || state != StateConnected {
		return nil, oerrors.Newf(oerrors.PoolUnavailable, "no connection pool for %s (%s)", m.id.Name, state)
	}
	c, err := p.Acquire(ctx)
	if errors.Is(err, driver.ErrPoolClosed) {
		return nil, oerrors.Wrap(oerrors.PoolUnavailable, "connection pool closed", err)
	}
	return c, err
}

// Release returns c to its pool.
func (m *Manager) Release(c driver.Conn) error {
	if err := c.Release(); err != nil {
		return oerrors.Wrap(oerrors.ReleaseError, "cannot release connection", err)
	}
	return nil
}

// Discard drops c instead of returning it.
func (m *Manager) Discard(c driver.Conn) error {
	if err := c.Discard(); err != nil {
		return oerrors.Wrap(oerrors.ReleaseError, "cannot discard connection", err)
	}
	return nil
}

// Invalidate drops the current pool after a transient failure. The old pool is
// drained in the background and the manager moves to Error, from which the
// next Connect is announced as reconnecting.
func (m *Manager) Invalidate(cause error) {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	p := m.pool
	m.pool = nil
	m.state = StateError
	m.log.Warn("connection lost, pool invalidated", "server", m.id.Name, "error", cause)
	m.publishLocked(EventError, cause)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.drainTimeout())
		defer cancel()
		if err := p.Close(ctx); err != nil {
			m.log.Warn("closing invalidated pool", "server", m.id.Name, "error", err)
		}
	}()
}

// Close drains and closes the pool, waiting up to the drain timeout. Without
// a pool it does nothing, unless a connect is in flight: that attempt is
// abandoned and EventClosed is published at once. A closed manager never
// reconnects.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	p := m.pool
	if p == nil {
		if m.state != StateConnecting {
			m.mu.Unlock()
			return nil
		}
		// the in-flight Connect closes whatever pool it opens
		m.state = StateClosed
		m.log.Info("connection pool closed while connecting", "server", m.id.Name)
		m.publishLocked(EventClosed, nil)
		return nil
	}
	m.pool = nil
	m.state = StateClosed
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.drainTimeout())
	defer cancel()
	err := p.Close(ctx)
	if err != nil {
		m.log.Warn("connection pool drain incomplete", "server", m.id.Name, "error", err)
	} else {
		m.log.Info("connection pool closed", "server", m.id.Name)
	}

	m.mu.Lock()
	m.publishLocked(EventClosed, nil)
	return err
}

func (m *Manager) drainTimeout() time.Duration {
	if m.id.DrainTimeout > 0 {
		return m.id.DrainTimeout
	}
	return DefaultDrainTimeout
}
