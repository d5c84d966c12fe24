// Package drivertest provides an in-memory driver.Driver for tests.
// Behaviour is scripted through function fields; every call is recorded.
package drivertest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"oraflow/cli/internal/binds"
	"oraflow/cli/internal/driver"
)

// ErrTransient is classified as transient by Driver.IsTransient.
var ErrTransient = errors.New("drivertest: connection lost")

// Constants is the constant table the fake exposes.
var Constants = binds.Constants{
	"BIND_IN":    3001,
	"BIND_INOUT": 3002,
	"BIND_OUT":   3003,
	"STRING":     2001,
	"NUMBER":     2010,
	"DATE":       2014,
}

// Call records one Execute.
type Call struct {
	SQL  string
	Vars binds.Vars
	Opts driver.ExecOptions
}

// Driver is a scriptable fake.
type Driver struct {
	// InitFunc overrides Init. Nil succeeds.
	InitFunc func(driver.ClientOptions) error
	// OpenFunc overrides pool creation. Nil succeeds.
	OpenFunc func(ctx context.Context, opts driver.PoolOptions) error
	// ExecFunc scripts statement execution. Nil returns an empty result.
	ExecFunc func(ctx context.Context, sql string, vars binds.Vars, opts driver.ExecOptions) (*driver.Result, error)
	// AcquireFunc scripts connection checkout. Nil succeeds.
	AcquireFunc func(ctx context.Context) error

	mu       sync.Mutex
	calls    []Call
	opens    []driver.PoolOptions
	pools    []*Pool
	inits    int
	releases atomic.Int64
	discards atomic.Int64
}

// New returns a fake driver whose operations all succeed.
func New() *Driver { return &Driver{} }

func (d *Driver) Name() string { return "fake" }

func (d *Driver) Init(opts driver.ClientOptions) error {
	d.mu.Lock()
	d.inits++
	d.mu.Unlock()
	if d.InitFunc != nil {
		return d.InitFunc(opts)
	}
	return nil
}

func (d *Driver) OpenPool(ctx context.Context, opts driver.PoolOptions) (driver.Pool, error) {
	d.mu.Lock()
	d.opens = append(d.opens, opts)
	d.mu.Unlock()
	if d.OpenFunc != nil {
		if err := d.OpenFunc(ctx, opts); err != nil {
			return nil, err
		}
	}
	p := &Pool{d: d, max: opts.Max}
	d.mu.Lock()
	d.pools = append(d.pools, p)
	d.mu.Unlock()
	return p, nil
}

func (d *Driver) Constants() binds.Constants { return Constants }

func (d *Driver) IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// Calls returns the executed statements in order.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Opens returns the options of every OpenPool call.
func (d *Driver) Opens() []driver.PoolOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]driver.PoolOptions(nil), d.opens...)
}

// Pools returns every pool created so far.
func (d *Driver) Pools() []*Pool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Pool(nil), d.pools...)
}

// Inits returns how many times Init was called.
func (d *Driver) Inits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inits
}

func (d *Driver) Releases() int64 { return d.releases.Load() }
func (d *Driver) Discards() int64 { return d.discards.Load() }

// Pool is a fake pool.
type Pool struct {
	d        *Driver
	max      int
	closed   atomic.Bool
	inUse    atomic.Int64
	acquires atomic.Int64
}

func (p *Pool) Acquire(ctx context.Context) (driver.Conn, error) {
	if p.closed.Load() {
		return nil, driver.ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.d.AcquireFunc != nil {
		if err := p.d.AcquireFunc(ctx); err != nil {
			return nil, err
		}
	}
	p.inUse.Add(1)
	p.acquires.Add(1)
	return &Conn{p: p}, nil
}

func (p *Pool) Close(ctx context.Context) error {
	p.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (p *Pool) Closed() bool { return p.closed.Load() }

func (p *Pool) Stats() driver.Stats {
	n := int(p.inUse.Load())
	return driver.Stats{Open: n, InUse: n, MaxOpen: p.max, Acquires: p.acquires.Load()}
}

// Conn is a fake connection.
type Conn struct {
	p    *Pool
	done atomic.Bool
}

func (c *Conn) Execute(ctx context.Context, sql string, vars binds.Vars, opts driver.ExecOptions) (*driver.Result, error) {
	d := c.p.d
	d.mu.Lock()
	d.calls = append(d.calls, Call{SQL: sql, Vars: vars, Opts: opts})
	d.mu.Unlock()
	if d.ExecFunc != nil {
		return d.ExecFunc(ctx, sql, vars, opts)
	}
	return &driver.Result{}, nil
}

func (c *Conn) Release() error {
	if c.done.Swap(true) {
		return errors.New("drivertest: connection already returned")
	}
	c.p.inUse.Add(-1)
	c.p.d.releases.Add(1)
	return nil
}

func (c *Conn) Discard() error {
	if c.done.Swap(true) {
		return errors.New("drivertest: connection already returned")
	}
	c.p.inUse.Add(-1)
	c.p.d.discards.Add(1)
	return nil
}

// Cursor is an in-memory forward cursor over fixed rows.
type Cursor struct {
	rows   []driver.Row
	pos    int
	closed atomic.Bool
	// Fetches counts Fetch calls.
	Fetches atomic.Int64
}

// NewCursor returns a cursor over rows.
func NewCursor(rows []driver.Row) *Cursor { return &Cursor{rows: rows} }

func (c *Cursor) Fetch(ctx context.Context, n int) ([]driver.Row, error) {
	c.Fetches.Add(1)
	if c.closed.Load() {
		return nil, errors.New("drivertest: cursor closed")
	}
	if n <= 0 {
		n = 1
	}
	end := c.pos + n
	if end > len(c.rows) {
		end = len(c.rows)
	}
	out := c.rows[c.pos:end]
	c.pos = end
	return out, nil
}

func (c *Cursor) Close() error {
	c.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (c *Cursor) Closed() bool { return c.closed.Load() }

// Rows builds n rows of the form {"N": i} starting at 1.
func Rows(n int) []driver.Row {
	out := make([]driver.Row, n)
	for i := range out {
		out[i] = driver.Row{"N": i + 1}
	}
	return out
}
