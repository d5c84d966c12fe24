// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package node is the per-node glue between inbound flow messages and the
// query dispatcher: it applies message overrides, resolves bind variables,
// reports failures and keeps the node's status indicator in step with the
// shared connection pool.
package node

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"oraflow/cli/internal/binds"
	"oraflow/cli/internal/config"
	oerrors "oraflow/cli/internal/errors"
	"oraflow/cli/internal/flow"
	"oraflow/cli/internal/pool"
	"oraflow/cli/internal/retry"
	"oraflow/cli/internal/sqlexec"
)

// Status indications shown by a node.
var (
	StatusConnected     = flow.Status{Fill: flow.FillGreen, Shape: flow.ShapeDot, Text: "connected"}
	StatusUnconnected   = flow.Status{Fill: flow.FillGrey, Shape: flow.ShapeDot, Text: "unconnected"}
	StatusConnecting    = flow.Status{Fill: flow.FillGreen, Shape: flow.ShapeRing, Text: "connecting"}
	StatusReconnecting  = flow.Status{Fill: flow.FillYellow, Shape: flow.ShapeRing, Text: "reconnecting"}
	StatusDisconnected  = flow.Status{Fill: flow.FillRed, Shape: flow.ShapeRing, Text: "disconnected"}
	StatusConnectError  = flow.Status{Fill: flow.FillRed, Shape: flow.ShapeDot, Text: "connect error"}
	StatusMisconfigured = flow.Status{Fill: flow.FillRed, Shape: flow.ShapeDot, Text: "error"}
)

// ErrorSink receives failures together with the envelope that caused them.
type ErrorSink func(err error, msg flow.Message)

// Options wire a node to its collaborators. Manager is nil when the node has
// no server binding.
type Options struct {
	Settings  config.NodeSettings
	Manager   *pool.Manager
	Reconnect retry.Policy
	Logger    flow.Logger
	Emit      flow.Sink
	Status    flow.StatusSink
	OnError   ErrorSink
}

// Node handles messages for one configured query node.
type Node struct {
	settings config.NodeSettings
	mgr      *pool.Manager
	disp     *sqlexec.Dispatcher
	resolver *binds.Resolver
	log      flow.Logger
	emit     flow.Sink
	status   flow.StatusSink
	onError  ErrorSink
	unsub    func()

	mu       sync.Mutex
	cooldown *time.Timer
	closed   bool
}

// New builds a node. A node without a server is still returned: it shows an
// error status and rejects every message.
func New(opts Options) *Node {
	n := &Node{
		settings: opts.Settings,
		mgr:      opts.Manager,
		log:      opts.Logger,
		emit:     opts.Emit,
		status:   opts.Status,
		onError:  opts.OnError,
	}
	if n.log == nil {
		n.log = flow.NopLogger{}
	}
	if n.emit == nil {
		n.emit = func(flow.Message) {}
	}
	if n.status == nil {
		n.status = func(flow.Status) {}
	}
	if n.onError == nil {
		n.onError = func(error, flow.Message) {}
	}
	if n.settings.ResultAction == "" {
		n.settings.ResultAction = sqlexec.DefaultMode
	}
	if n.settings.StatusCooldown <= 0 {
		n.settings.StatusCooldown = config.DefaultStatusCooldown
	}

	if n.mgr == nil {
		n.status(StatusMisconfigured)
		n.log.Error("missing Oracle server configuration", "node", n.settings.Name)
		return n
	}

	n.resolver = binds.NewResolver(n.mgr.Driver().Constants(), n.settings.UseMappings, n.settings.Mappings)
	n.disp = sqlexec.New(n.mgr, sqlexec.Options{Reconnect: opts.Reconnect, Logger: n.log})
	if n.mgr.Ready() {
		n.status(StatusConnected)
	} else {
		n.status(StatusUnconnected)
	}
	n.unsub = n.mgr.Subscribe(n.onPoolStatus)
	return n
}

// Name returns the node's configured name.
func (n *Node) Name() string { return n.settings.Name }

func (n *Node) onPoolStatus(ev pool.StatusEvent) {
	switch ev.Event {
	case pool.EventConnecting:
		n.setStatus(StatusConnecting)
	case pool.EventConnected:
		n.setStatus(StatusConnected)
	case pool.EventReconnecting:
		n.setStatus(StatusReconnecting)
	case pool.EventClosed:
		n.setStatus(StatusDisconnected)
	case pool.EventError:
		n.setStatus(StatusConnectError)
	}
}

// setStatus shows s and cancels a pending revert so the latest pool state is
// not overwritten.
func (n *Node) setStatus(s flow.Status) {
	n.mu.Lock()
	if n.cooldown != nil {
		n.cooldown.Stop()
		n.cooldown = nil
	}
	n.mu.Unlock()
	n.status(s)
}

// Handle processes one inbound message and blocks until its request has
// completed or ctx is done. The returned error has already been reported.
func (n *Node) Handle(ctx context.Context, msg flow.Message) error {
	return n.Submit(ctx, msg).Wait(ctx)
}

// Ticket is a submitted message awaiting completion.
type Ticket struct {
	n    *Node
	msg  flow.Message
	err  error
	run  func()
	done chan error
}

// Submit resolves msg into a request and hands it to the dispatcher. A
// request that has to wait for the pool is queued before Submit returns, so
// messages submitted from one goroutine complete in that order. Failures
// found here are reported at once and returned again by Wait.
func (n *Node) Submit(ctx context.Context, msg flow.Message) *Ticket {
	t := &Ticket{n: n, msg: msg}
	if n.disp == nil {
		t.err = oerrors.New(oerrors.ConfigurationError, "Oracle node is not configured with a server")
		n.log.Error(t.err.Error(), "node", n.settings.Name)
		n.onError(t.err, msg)
		return t
	}

	req, err := n.request(msg)
	if err != nil {
		t.err = err
		n.log.Error("Error transforming bind variables: "+err.Error(), "node", n.settings.Name)
		n.onError(err, msg)
		return t
	}

	t.done = make(chan error, 1)
	req.Done = func(err error) { t.done <- err }
	t.run = n.disp.Submit(ctx, req)
	return t
}

// Wait runs the request when it was not queued and blocks until it has
// completed or ctx is done. Query failures are reported before Wait returns.
func (t *Ticket) Wait(ctx context.Context) error {
	if t.done == nil {
		return t.err
	}
	if t.run != nil {
		run := t.run
		t.run = nil
		run()
	}
	select {
	case err := <-t.done:
		if err != nil {
			t.n.reportQueryError(err, t.msg)
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// request applies message overrides and resolves bind variables.
func (n *Node) request(msg flow.Message) (sqlexec.Request, error) {
	query := n.settings.Query
	if q := msg.String(flow.KeyQuery); !n.settings.UseQuery && q != "" {
		query = q
	}
	query = sqlexec.Normalize(query)

	mode := n.settings.ResultAction
	if a := msg.String(flow.KeyResultAction); a != "" {
		mode = sqlexec.Mode(a)
	}

	limit := n.settings.ResultLimit
	if raw, ok := msg[flow.KeyResultSetLimit]; ok && raw != nil {
		if v, ok := parseLimit(raw); ok {
			limit = v
		} else {
			n.log.Warn("ignoring invalid resultSetLimit", "node", n.settings.Name, "value", raw, "using", limit)
		}
	}

	vars, err := n.resolver.Resolve(query, msg.Payload(), msg[flow.KeyBindVars])
	if err != nil {
		return sqlexec.Request{}, err
	}
	return sqlexec.Request{
		SQL:   query,
		Vars:  vars,
		Mode:  mode,
		Limit: limit,
		Msg:   msg,
		Emit:  n.emit,
	}, nil
}

// parseLimit accepts a positive integer given as a number or a decimal string.
func parseLimit(v any) (int, bool) {
	var n int
	switch t := v.(type) {
	case int:
		n = t
	case int64:
		n = int(t)
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		n = int(t)
	case string:
		p, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		n = p
	default:
		return 0, false
	}
	return n, n > 0
}

// reportQueryError logs err, hands it to the error sink and shows its first
// line on the status indicator until the cooldown reverts it.
func (n *Node) reportQueryError(err error, msg flow.Message) {
	n.log.Error("Oracle query error: "+err.Error(), "node", n.settings.Name)
	n.onError(err, msg)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	if n.cooldown != nil {
		n.cooldown.Stop()
	}
	n.status(flow.Status{Fill: flow.FillRed, Shape: flow.ShapeDot, Text: statusText(err)})
	var t *time.Timer
	t = time.AfterFunc(n.settings.StatusCooldown, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.closed || n.cooldown != t {
			return
		}
		n.cooldown = nil
		n.status(StatusConnected)
	})
	n.cooldown = t
}

// Pending returns the node's backlog length.
func (n *Node) Pending() int {
	if n.disp == nil {
		return 0
	}
	return n.disp.Pending()
}

// Close detaches the node from its pool and fails queued requests.
func (n *Node) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	if n.cooldown != nil {
		n.cooldown.Stop()
		n.cooldown = nil
	}
	n.mu.Unlock()

	if n.unsub != nil {
		n.unsub()
	}
	if n.disp != nil {
		n.disp.Close()
	}
}

// statusText is the first line of the driver's message, without the kind
// prefixes added on the way up.
func statusText(err error) string {
	for {
		var e *oerrors.E
		if !errors.As(err, &e) {
			break
		}
		if e.Err == nil {
			return firstLine(e.Message)
		}
		err = e.Err
	}
	return firstLine(err.Error())
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}
