// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package node

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oraflow/cli/internal/binds"
	"oraflow/cli/internal/config"
	"oraflow/cli/internal/driver"
	"oraflow/cli/internal/driver/drivertest"
	oerrors "oraflow/cli/internal/errors"
	"oraflow/cli/internal/flow"
	"oraflow/cli/internal/pool"
	"oraflow/cli/internal/sqlexec"
)

// harness records everything a node reports.
type harness struct {
	mu       sync.Mutex
	emitted  []flow.Message
	statuses []flow.Status
	errs     []error
}

func (h *harness) emit(m flow.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.emitted = append(h.emitted, m)
}

func (h *harness) status(s flow.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, s)
}

func (h *harness) onError(err error, _ flow.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *harness) lastStatus() flow.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.statuses) == 0 {
		return flow.Status{}
	}
	return h.statuses[len(h.statuses)-1]
}

func (h *harness) allStatuses() []flow.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]flow.Status(nil), h.statuses...)
}

func (h *harness) messages() []flow.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]flow.Message(nil), h.emitted...)
}

func (h *harness) errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

func newManager(drv driver.Driver) *pool.Manager {
	return pool.New(drv, pool.Identity{Name: "orcl", Driver: "fake", Host: "localhost", Port: 1521, Service: "orcl", Max: 4}, nil)
}

func newNode(t *testing.T, mgr *pool.Manager, settings config.NodeSettings) (*Node, *harness) {
	t.Helper()
	h := &harness{}
	if settings.Name == "" {
		settings.Name = "query"
	}
	n := New(Options{
		Settings: settings,
		Manager:  mgr,
		Emit:     h.emit,
		Status:   h.status,
		OnError:  h.onError,
	})
	t.Cleanup(n.Close)
	return n, h
}

// echoDriver answers every statement with one row holding the bind values.
func echoDriver() *drivertest.Driver {
	drv := drivertest.New()
	drv.ExecFunc = func(_ context.Context, _ string, vars binds.Vars, _ driver.ExecOptions) (*driver.Result, error) {
		row := driver.Row{}
		switch vars.Kind() {
		case binds.KindPositional:
			if len(vars.List()) > 0 {
				row["DUMMY"] = vars.List()[0]
			}
		case binds.KindNamed:
			for k, v := range vars.Map() {
				row[k] = v
			}
		}
		return &driver.Result{Rows: []driver.Row{row}, Cursor: drivertest.NewCursor([]driver.Row{row})}, nil
	}
	return drv
}

func connectedManager(t *testing.T, drv driver.Driver) *pool.Manager {
	t.Helper()
	m := newManager(drv)
	require.NoError(t, m.Connect(context.Background()))
	return m
}

func TestMissingServer(t *testing.T) {
	n, h := newNode(t, nil, config.NodeSettings{Query: "select 1 from dual"})
	assert.Equal(t, StatusMisconfigured, h.lastStatus())

	err := n.Handle(context.Background(), flow.NewMessage(nil))
	assert.True(t, oerrors.IsKind(err, oerrors.ConfigurationError))
	require.Len(t, h.errors(), 1)
	assert.Empty(t, h.messages())
	assert.Zero(t, n.Pending())
}

func TestInitialStatus(t *testing.T) {
	_, h := newNode(t, newManager(drivertest.New()), config.NodeSettings{})
	assert.Equal(t, StatusUnconnected, h.lastStatus())

	_, h = newNode(t, connectedManager(t, drivertest.New()), config.NodeSettings{})
	assert.Equal(t, StatusConnected, h.lastStatus())
}

func TestStatusFollowsPool(t *testing.T) {
	drv := drivertest.New()
	m := newManager(drv)
	_, h := newNode(t, m, config.NodeSettings{})

	drv.OpenFunc = func(context.Context, driver.PoolOptions) error { return errors.New("ORA-12541: TNS:no listener") }
	_ = m.Connect(context.Background())
	drv.OpenFunc = nil
	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Close(context.Background()))

	assert.Equal(t, []flow.Status{
		StatusUnconnected,
		StatusConnecting,
		StatusConnectError,
		StatusReconnecting,
		StatusConnected,
		StatusDisconnected,
	}, h.allStatuses())
}

func TestPositionalDummy(t *testing.T) {
	n, h := newNode(t, connectedManager(t, echoDriver()), config.NodeSettings{
		Query:        "select dummy from dual where dummy = :v1",
		ResultAction: sqlexec.ModeSingle,
	})

	require.NoError(t, n.Handle(context.Background(), flow.NewMessage([]any{"X"})))
	msgs := h.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []map[string]any{{"DUMMY": "X"}}, msgs[0].Payload())
}

func TestNamedBindsFromPayload(t *testing.T) {
	drv := echoDriver()
	n, h := newNode(t, connectedManager(t, drv), config.NodeSettings{
		Query:        "select :a as a from dual",
		ResultAction: sqlexec.ModeSingle,
	})

	require.NoError(t, n.Handle(context.Background(), flow.NewMessage(map[string]any{"a": 1, "b": 2})))
	calls := drv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]any{"a": 1}, calls[0].Vars.Map())
	assert.Len(t, h.messages(), 1)
}

func TestQueryOverride(t *testing.T) {
	drv := echoDriver()
	n, _ := newNode(t, connectedManager(t, drv), config.NodeSettings{Query: "select 1 from dual", ResultAction: sqlexec.ModeNone})

	msg := flow.NewMessage(nil)
	msg[flow.KeyQuery] = "select 2 from dual;"
	require.NoError(t, n.Handle(context.Background(), msg))

	pinned, _ := newNode(t, connectedManager(t, drv), config.NodeSettings{Query: "select 1 from dual", UseQuery: true, ResultAction: sqlexec.ModeNone})
	require.NoError(t, pinned.Handle(context.Background(), msg))

	calls := drv.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "select 2 from dual", calls[0].SQL)
	assert.Equal(t, "select 1 from dual", calls[1].SQL)
}

func TestResultOverrides(t *testing.T) {
	drv := drivertest.New()
	drv.ExecFunc = func(context.Context, string, binds.Vars, driver.ExecOptions) (*driver.Result, error) {
		return &driver.Result{Cursor: drivertest.NewCursor(drivertest.Rows(5))}, nil
	}
	n, h := newNode(t, connectedManager(t, drv), config.NodeSettings{Query: "select n from t", ResultAction: sqlexec.ModeNone, ResultLimit: 100})

	msg := flow.NewMessage(nil)
	msg[flow.KeyResultAction] = "multi"
	msg[flow.KeyResultSetLimit] = "2"
	require.NoError(t, n.Handle(context.Background(), msg))
	assert.Len(t, h.messages(), 3)
	assert.Equal(t, 2, drv.Calls()[0].Opts.MaxRows)

	msg[flow.KeyResultSetLimit] = "lots"
	require.NoError(t, n.Handle(context.Background(), msg))
	assert.Equal(t, 100, drv.Calls()[1].Opts.MaxRows)
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in   any
		want int
		ok   bool
	}{
		{10, 10, true},
		{float64(25), 25, true},
		{" 7 ", 7, true},
		{2.5, 0, false},
		{"0", 0, false},
		{-1, -1, false},
		{true, 0, false},
	}
	for _, tt := range tests {
		got, ok := parseLimit(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got)
		}
	}
}

// limitedDriver exposes only BIND_IN, like a backend without OUT binds.
type limitedDriver struct {
	*drivertest.Driver
}

func (limitedDriver) Constants() binds.Constants { return binds.Constants{"BIND_IN": 3001} }

func TestInvalidBindSpecSkipsExecution(t *testing.T) {
	drv := drivertest.New()
	n, h := newNode(t, connectedManager(t, limitedDriver{drv}), config.NodeSettings{Query: "begin :v := 'x'; end;"})

	msg := flow.NewMessage(nil)
	msg[flow.KeyBindVars] = map[string]any{"v": map[string]any{"dir": "BIND_OUT", "type": "STRING"}}
	err := n.Handle(context.Background(), msg)
	assert.True(t, oerrors.IsKind(err, oerrors.InvalidBindSpec))
	assert.Empty(t, drv.Calls())
	assert.Len(t, h.errors(), 1)
}

func TestQueryErrorStatusAndCooldown(t *testing.T) {
	drv := drivertest.New()
	drv.ExecFunc = func(context.Context, string, binds.Vars, driver.ExecOptions) (*driver.Result, error) {
		return nil, errors.New("ORA-00942: table or view does not exist\nHelp: https://docs.oracle.com/error-help/db/ora-00942/")
	}
	n, h := newNode(t, connectedManager(t, drv), config.NodeSettings{Query: "select * from missing", StatusCooldown: 20 * time.Millisecond})

	err := n.Handle(context.Background(), flow.NewMessage(nil))
	assert.True(t, oerrors.IsKind(err, oerrors.ExecutionError))
	assert.Equal(t, flow.Status{Fill: flow.FillRed, Shape: flow.ShapeDot, Text: "ORA-00942: table or view does not exist"}, h.lastStatus())
	require.Len(t, h.errors(), 1)

	require.Eventually(t, func() bool { return h.lastStatus() == StatusConnected }, time.Second, 5*time.Millisecond)
}

func TestCloseFailsQueuedRequests(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	drv := drivertest.New()
	drv.OpenFunc = func(context.Context, driver.PoolOptions) error {
		<-release
		return nil
	}
	n, h := newNode(t, newManager(drv), config.NodeSettings{Query: "select 1 from dual"})

	errc := make(chan error, 1)
	go func() { errc <- n.Handle(context.Background(), flow.NewMessage(nil)) }()
	require.Eventually(t, func() bool { return n.Pending() == 1 }, time.Second, time.Millisecond)

	n.Close()
	select {
	case err := <-errc:
		assert.True(t, oerrors.IsKind(err, oerrors.PoolUnavailable))
	case <-time.After(time.Second):
		t.Fatal("queued request was not failed")
	}
	assert.Len(t, h.errors(), 1)
}

func TestHandleHonoursContext(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	drv := drivertest.New()
	drv.OpenFunc = func(context.Context, driver.PoolOptions) error {
		<-release
		return nil
	}
	n, _ := newNode(t, newManager(drv), config.NodeSettings{Query: "select 1 from dual"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := n.Handle(ctx, flow.NewMessage(nil))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
