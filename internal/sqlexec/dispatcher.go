// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlexec executes query requests against a managed pool and turns
// results into flow envelopes.
//
// A Dispatcher queues requests while its pool is not ready and drains the
// queue strictly FIFO, one request at a time, once the pool reports
// connected. Requests arriving while the pool is ready and nothing is queued
// run immediately on the caller's goroutine. Connection loss discards the
// connection, invalidates the pool and, when reconnection is enabled, puts the
// request back at the head of the queue and schedules a reconnect.
package sqlexec

import (
	"context"
	"sync"

	"oraflow/cli/internal/binds"
	"oraflow/cli/internal/driver"
	oerrors "oraflow/cli/internal/errors"
	"oraflow/cli/internal/flow"
	"oraflow/cli/internal/pool"
	"oraflow/cli/internal/retry"
)

// Request is one statement execution on behalf of a node.
type Request struct {
	SQL   string
	Vars  binds.Vars
	Mode  Mode
	Limit int
	// Msg is the inbound envelope; emitted envelopes are derived from it.
	Msg flow.Message
	// Emit receives result envelopes.
	Emit flow.Sink
	// Done is called exactly once when the request completes, with the
	// failure if any.
	Done func(error)
}

// Options configure a Dispatcher.
type Options struct {
	// Reconnect governs re-queueing after connection loss and reconnect
	// attempts while requests are waiting.
	Reconnect retry.Policy
	Logger    flow.Logger
}

type job struct {
	req     Request
	retries int
}

// Dispatcher serves one node's requests over a shared pool manager.
type Dispatcher struct {
	mgr    *pool.Manager
	policy retry.Policy
	log    flow.Logger

	base   context.Context
	cancel context.CancelFunc
	unsub  func()

	mu           sync.Mutex
	queue        []*job
	draining     bool
	closed       bool
	attempts     int
	timerPending bool
	stopTimer    func() bool
}

// New returns a dispatcher subscribed to mgr's status events.
func New(mgr *pool.Manager, opts Options) *Dispatcher {
	log := opts.Logger
	if log == nil {
		log = flow.NopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		mgr:    mgr,
		policy: opts.Reconnect,
		log:    log,
		base:   ctx,
		cancel: cancel,
	}
	d.unsub = mgr.Subscribe(d.onStatus)
	return d
}

// Pending returns the number of queued requests.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Dispatch executes req now when the pool is ready and nothing is queued,
// otherwise queues it and triggers a connect. Outcomes are reported through
// req.Emit and req.Done.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) {
	if run := d.Submit(ctx, req); run != nil {
		run()
	}
}

// Submit is Dispatch without the immediate execution: a request that has to
// wait is queued before Submit returns, so callers submitting from one
// goroutine keep their order. A request that may run at once is handed back
// as run for the caller to invoke; run is nil otherwise.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (run func()) {
	req.SQL = Normalize(req.SQL)
	if req.SQL == "" {
		finish(req, oerrors.New(oerrors.ConfigurationError, "no SQL statement to execute"))
		return nil
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if d.mgr.State() == pool.StateClosed {
		finish(req, oerrors.Newf(oerrors.PoolUnavailable, "connection pool for %s is closed", d.mgr.Identity().Name))
		return nil
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		finish(req, oerrors.New(oerrors.PoolUnavailable, "dispatcher is closed"))
		return nil
	}
	ready := d.mgr.Ready()
	if ready && len(d.queue) == 0 && !d.draining {
		d.mu.Unlock()
		return func() { d.run(ctx, &job{req: req}) }
	}
	d.queue = append(d.queue, &job{req: req})
	pending := len(d.queue)
	if ready {
		d.startDrainLocked()
	}
	d.mu.Unlock()

	if !ready {
		d.log.Info("query queued until the connection pool is ready", "server", d.mgr.Identity().Name, "pending", pending)
		go d.connect()
	}
	return nil
}

// Close stops reconnect timers, unsubscribes from the pool and fails every
// queued request with PoolUnavailable.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	if d.stopTimer != nil {
		d.stopTimer()
		d.stopTimer = nil
	}
	backlog := d.queue
	d.queue = nil
	d.mu.Unlock()

	d.unsub()
	d.cancel()
	for _, j := range backlog {
		finish(j.req, oerrors.New(oerrors.PoolUnavailable, "dispatcher closed before the request could run"))
	}
}

func (d *Dispatcher) connect() {
	err := d.mgr.Connect(d.base)
	// Other failures arrive as EventError through onStatus. A closed manager
	// publishes nothing more, so the backlog is failed here.
	if err == nil || d.mgr.State() != pool.StateClosed {
		return
	}
	fail(d.takeQueue(), err)
}

func (d *Dispatcher) takeQueue() []*job {
	d.mu.Lock()
	defer d.mu.Unlock()
	backlog := d.queue
	d.queue = nil
	return backlog
}

func (d *Dispatcher) onStatus(ev pool.StatusEvent) {
	switch ev.Event {
	case pool.EventConnected:
		d.mu.Lock()
		d.attempts = 0
		d.startDrainLocked()
		d.mu.Unlock()
	case pool.EventError:
		d.mu.Lock()
		failed := d.recoverLocked(ev.Err)
		d.mu.Unlock()
		fail(failed, ev.Err)
	case pool.EventClosed:
		fail(d.takeQueue(), oerrors.New(oerrors.PoolUnavailable, "connection pool closed"))
	}
}

// recoverLocked reacts to the pool becoming unavailable while requests are
// queued: it schedules a reconnect when the policy allows, otherwise it
// empties the queue and returns the jobs to fail.
func (d *Dispatcher) recoverLocked(cause error) []*job {
	if d.closed || len(d.queue) == 0 || d.timerPending {
		return nil
	}
	if d.mgr.Ready() {
		d.startDrainLocked()
		return nil
	}
	if d.policy.Allow(d.attempts + 1) {
		d.attempts++
		d.timerPending = true
		d.log.Warn("connection pool unavailable, reconnect scheduled", "server", d.mgr.Identity().Name, "attempt", d.attempts, "backoff", d.policy.Backoff.String(), "pending", len(d.queue))
		d.stopTimer = d.policy.Schedule(d.reconnect)
		return nil
	}
	backlog := d.queue
	d.queue = nil
	return backlog
}

func (d *Dispatcher) reconnect() {
	d.mu.Lock()
	d.timerPending = false
	d.stopTimer = nil
	closed := d.closed
	d.mu.Unlock()
	if !closed {
		d.connect()
	}
}

func fail(jobs []*job, cause error) {
	for _, j := range jobs {
		finish(j.req, oerrors.Wrap(oerrors.PoolUnavailable, "connection pool is not available and could not be created", cause))
	}
}

func (d *Dispatcher) startDrainLocked() {
	if d.draining || d.closed || len(d.queue) == 0 {
		return
	}
	d.draining = true
	go d.drain()
}

// drain runs queued requests one at a time until the queue is empty or the
// pool goes away.
func (d *Dispatcher) drain() {
	for {
		d.mu.Lock()
		if d.closed || len(d.queue) == 0 || !d.mgr.Ready() {
			d.draining = false
			d.mu.Unlock()
			return
		}
		j := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.run(d.base, j)
	}
}

// run executes one job to completion. Transient failures put the job back at
// the head of the queue when the reconnect policy allows it.
func (d *Dispatcher) run(ctx context.Context, j *job) {
	err := d.execute(ctx, j.req)
	if err == nil {
		finish(j.req, nil)
		return
	}
	if !d.transient(err) {
		finish(j.req, err)
		return
	}

	d.mu.Lock()
	requeue := !d.closed && d.policy.Allow(j.retries+1)
	if requeue {
		j.retries++
		d.queue = append([]*job{j}, d.queue...)
	}
	d.mu.Unlock()

	d.log.Warn("connection lost during query", "server", d.mgr.Identity().Name, "retry", requeue, "error", err)
	d.mgr.Invalidate(err)

	d.mu.Lock()
	failed := d.recoverLocked(err)
	d.mu.Unlock()
	fail(failed, err)

	if !requeue {
		finish(j.req, err)
	}
}

func (d *Dispatcher) transient(err error) bool {
	return d.mgr.Driver().IsTransient(err) ||
		(oerrors.IsKind(err, oerrors.PoolUnavailable) && d.mgr.State() != pool.StateClosed)
}

// execute acquires a connection, runs the statement, shapes and emits the
// result and releases the connection on every path.
func (d *Dispatcher) execute(ctx context.Context, req Request) (err error) {
	conn, err := d.mgr.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		var relErr error
		if err != nil && d.mgr.Driver().IsTransient(err) {
			relErr = d.mgr.Discard(conn)
		} else {
			relErr = d.mgr.Release(conn)
		}
		if relErr != nil {
			d.log.Error("releasing connection", "server", d.mgr.Identity().Name, "error", relErr)
		}
	}()

	res, err := conn.Execute(ctx, req.SQL, req.Vars, driver.ExecOptions{
		AutoCommit: true,
		MaxRows:    req.Limit,
		ResultSet:  req.Mode == ModeMulti,
	})
	if err != nil {
		return oerrors.Wrap(oerrors.ExecutionError, Summarize(req.SQL), err)
	}
	if err := shape(ctx, req.Mode, req.Limit, req.Msg, res, req.Emit); err != nil {
		return oerrors.Wrap(oerrors.ExecutionError, "fetching result rows", err)
	}
	return nil
}

func finish(req Request, err error) {
	if req.Done != nil {
		req.Done(err)
	}
}
