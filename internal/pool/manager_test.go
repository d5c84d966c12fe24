// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oraflow/cli/internal/driver"
	"oraflow/cli/internal/driver/drivertest"
	oerrors "oraflow/cli/internal/errors"
)

type recorder struct {
	mu     sync.Mutex
	events []StatusEvent
}

func (r *recorder) listen(ev StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Event
	}
	return out
}

func testIdentity() Identity {
	return Identity{Name: "orcl", Driver: "fake", Host: "localhost", Port: 1521, Service: "orcl", User: "scott", Password: "tiger", Max: 4}
}

func TestIdentityTarget(t *testing.T) {
	id := testIdentity()
	assert.Equal(t, "localhost:1521/orcl", id.Target())
	id.ConnectString = "PRODDB"
	assert.Equal(t, "PRODDB", id.Target())
}

func TestConnectPublishesInOrder(t *testing.T) {
	drv := drivertest.New()
	m := New(drv, testIdentity(), nil)
	rec := &recorder{}
	m.Subscribe(rec.listen)

	require.NoError(t, m.Connect(context.Background()))
	assert.True(t, m.Ready())
	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, []Event{EventConnecting, EventConnected}, rec.kinds())

	opens := drv.Opens()
	require.Len(t, opens, 1)
	assert.Equal(t, "localhost:1521/orcl", opens[0].ConnectString)
	assert.Equal(t, "scott", opens[0].User)
	assert.Equal(t, 4, opens[0].Max)
}

func TestConnectIsIdempotent(t *testing.T) {
	drv := drivertest.New()
	m := New(drv, testIdentity(), nil)

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Connect(context.Background()))
	assert.Len(t, drv.Opens(), 1)
}

func TestConnectSingleFlight(t *testing.T) {
	release := make(chan struct{})
	drv := drivertest.New()
	drv.OpenFunc = func(ctx context.Context, _ driver.PoolOptions) error {
		<-release
		return nil
	}
	m := New(drv, testIdentity(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Connect(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return len(drv.Opens()) == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Len(t, drv.Opens(), 1)
	assert.True(t, m.Ready())
}

func TestConnectToleratesAlreadyInitialized(t *testing.T) {
	drv := drivertest.New()
	drv.InitFunc = func(driver.ClientOptions) error { return driver.ErrAlreadyInitialized }
	m := New(drv, testIdentity(), nil)
	require.NoError(t, m.Connect(context.Background()))
}

func TestConnectFailure(t *testing.T) {
	drv := drivertest.New()
	drv.OpenFunc = func(context.Context, driver.PoolOptions) error { return errors.New("ORA-12541: TNS:no listener") }
	m := New(drv, testIdentity(), nil)
	rec := &recorder{}
	m.Subscribe(rec.listen)

	err := m.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, oerrors.IsKind(err, oerrors.ConnectError))
	assert.False(t, m.Ready())
	assert.Equal(t, StateError, m.State())
	assert.Equal(t, []Event{EventConnecting, EventError}, rec.kinds())

	_, err = m.Acquire(context.Background())
	assert.True(t, oerrors.IsKind(err, oerrors.PoolUnavailable))

	// recovery is announced as reconnecting
	drv.OpenFunc = nil
	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, []Event{EventConnecting, EventError, EventReconnecting, EventConnected}, rec.kinds())
}

func TestInitFailure(t *testing.T) {
	drv := drivertest.New()
	drv.InitFunc = func(driver.ClientOptions) error { return errors.New("DPI-1047: cannot locate client library") }
	m := New(drv, testIdentity(), nil)
	err := m.Connect(context.Background())
	assert.True(t, oerrors.IsKind(err, oerrors.ConnectError))
	assert.Empty(t, drv.Opens())
}

func TestCloseEmptyPoolIsNoop(t *testing.T) {
	m := New(drivertest.New(), testIdentity(), nil)
	rec := &recorder{}
	m.Subscribe(rec.listen)

	require.NoError(t, m.Close(context.Background()))
	assert.Empty(t, rec.kinds())
	assert.Equal(t, StateUnconnected, m.State())
}

func TestCloseIsTerminal(t *testing.T) {
	drv := drivertest.New()
	m := New(drv, testIdentity(), nil)
	rec := &recorder{}
	m.Subscribe(rec.listen)
	require.NoError(t, m.Connect(context.Background()))

	require.NoError(t, m.Close(context.Background()))
	assert.True(t, drv.Pools()[0].Closed())
	assert.Equal(t, StateClosed, m.State())
	assert.Equal(t, []Event{EventConnecting, EventConnected, EventClosed}, rec.kinds())

	err := m.Connect(context.Background())
	assert.True(t, oerrors.IsKind(err, oerrors.PoolUnavailable))
	require.NoError(t, m.Close(context.Background()))
	assert.Len(t, rec.kinds(), 3)
}

func TestCloseWhileConnecting(t *testing.T) {
	release := make(chan struct{})
	drv := drivertest.New()
	drv.OpenFunc = func(context.Context, driver.PoolOptions) error {
		<-release
		return nil
	}
	m := New(drv, testIdentity(), nil)
	rec := &recorder{}
	m.Subscribe(rec.listen)

	errc := make(chan error, 1)
	go func() { errc <- m.Connect(context.Background()) }()
	require.Eventually(t, func() bool { return len(drv.Opens()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, m.Close(context.Background()))
	assert.Equal(t, StateClosed, m.State())
	assert.Equal(t, []Event{EventConnecting, EventClosed}, rec.kinds())

	close(release)
	err := <-errc
	assert.True(t, oerrors.IsKind(err, oerrors.PoolUnavailable))
	assert.True(t, drv.Pools()[0].Closed())
	assert.False(t, m.Ready())
	assert.Len(t, rec.kinds(), 2)
}

func TestInvalidate(t *testing.T) {
	drv := drivertest.New()
	m := New(drv, testIdentity(), nil)
	rec := &recorder{}
	m.Subscribe(rec.listen)
	require.NoError(t, m.Connect(context.Background()))

	cause := errors.New("ORA-03113: end-of-file on communication channel")
	m.Invalidate(cause)
	assert.False(t, m.Ready())
	assert.Equal(t, StateError, m.State())
	require.Eventually(t, func() bool { return drv.Pools()[0].Closed() }, time.Second, time.Millisecond)

	kinds := rec.kinds()
	assert.Equal(t, EventError, kinds[len(kinds)-1])
	rec.mu.Lock()
	assert.Equal(t, cause, rec.events[len(rec.events)-1].Err)
	rec.mu.Unlock()

	// a second invalidation without a pool is ignored
	m.Invalidate(cause)
	assert.Len(t, rec.kinds(), 3)
}

func TestUnsubscribe(t *testing.T) {
	m := New(drivertest.New(), testIdentity(), nil)
	var a, b atomic.Int32
	unsubA := m.Subscribe(func(StatusEvent) { a.Add(1) })
	m.Subscribe(func(StatusEvent) { b.Add(1) })

	unsubA()
	unsubA()
	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, int32(0), a.Load())
	assert.Equal(t, int32(2), b.Load())
}

func TestReentrantPublishKeepsOrder(t *testing.T) {
	m := New(drivertest.New(), testIdentity(), nil)
	rec := &recorder{}
	m.Subscribe(func(ev StatusEvent) {
		if ev.Event == EventConnected {
			m.Invalidate(errors.New("lost"))
		}
	})
	m.Subscribe(rec.listen)

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, []Event{EventConnecting, EventConnected, EventError}, rec.kinds())
}

func TestAcquireReleaseDiscard(t *testing.T) {
	drv := drivertest.New()
	m := New(drv, testIdentity(), nil)
	require.NoError(t, m.Connect(context.Background()))

	c, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, m.Stats().InUse)
	require.NoError(t, m.Release(c))
	err = m.Release(c)
	assert.True(t, oerrors.IsKind(err, oerrors.ReleaseError))

	c, err = m.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Discard(c))
	assert.Equal(t, int64(1), drv.Releases())
	assert.Equal(t, int64(1), drv.Discards())
}

func TestRegistrySharesManagers(t *testing.T) {
	drv := drivertest.New()
	r := NewRegistry(map[string]driver.Driver{"fake": drv}, nil)

	a, err := r.Manager(testIdentity())
	require.NoError(t, err)
	b, err := r.Manager(testIdentity())
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = r.Manager(Identity{Name: "other", Driver: "mysql"})
	assert.Error(t, err)

	require.NoError(t, a.Connect(context.Background()))
	require.NoError(t, r.CloseAll(context.Background()))
	assert.Equal(t, StateClosed, a.State())
}
