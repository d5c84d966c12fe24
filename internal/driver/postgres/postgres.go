// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package postgres implements driver.Driver over a pgx connection pool so flows
// can target PostgreSQL with the same Oracle-style `:name` placeholders.
// Statements are rewritten to `$n` (positional binds) or `@name` (named
// binds) before execution. OUT binds are not supported: the constant table
// carries no BIND_OUT / BIND_INOUT, so such specs are rejected up front.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"oraflow/cli/internal/binds"
	"oraflow/cli/internal/driver"
	"oraflow/cli/internal/dsn"
)

const (
	BindIn = 3001

	TypeString = 2001
	TypeBuffer = 2006
	TypeNumber = 2010
	TypeDate   = 2014
	TypeClob   = 2017
	TypeBlob   = 2019
)

var constants = binds.Constants{
	"BIND_IN": BindIn,
	"STRING":  TypeString,
	"BUFFER":  TypeBuffer,
	"NUMBER":  TypeNumber,
	"DATE":    TypeDate,
	"CLOB":    TypeClob,
	"BLOB":    TypeBlob,
}

// Driver is the pgx backed driver.
type Driver struct {
	mu          sync.Mutex
	initialized bool
}

// New returns a PostgreSQL driver.
func New() *Driver { return &Driver{} }

func (d *Driver) Name() string { return "postgres" }

// Init has nothing to load; it only enforces the single-initialization
// contract shared with the Oracle driver.
func (d *Driver) Init(driver.ClientOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		return driver.ErrAlreadyInitialized
	}
	d.initialized = true
	return nil
}

func (d *Driver) Constants() binds.Constants { return constants }

// IsTransient reports connection-class failures: SQLSTATE class 08, admin
// shutdown / crash codes, network errors and failures pgconn marks safe to
// retry because nothing reached the server.
func (d *Driver) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") {
			return true
		}
		switch pgErr.Code {
		case "57P01", "57P02", "57P03":
			return true
		}
		return false
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) || errors.Is(err, net.ErrClosed)
}

// ConnectURL turns a server connect string into a normalized postgres URL
// with the pool credentials applied. host:port/db is accepted as shorthand.
func ConnectURL(opts driver.PoolOptions) (string, error) {
	s := strings.TrimSpace(opts.ConnectString)
	if s != "" && !strings.Contains(s, "://") {
		s = "postgres://" + strings.TrimPrefix(s, "//")
	}
	r := dsn.NewPostgreSQLResolver()
	info, err := r.Parse(s)
	if err != nil {
		return "", err
	}
	if opts.User != "" {
		info.User, info.Password = opts.User, opts.Password
	}
	return r.Normalize(info)
}

func (d *Driver) OpenPool(ctx context.Context, opts driver.PoolOptions) (driver.Pool, error) {
	url, err := ConnectURL(opts)
	if err != nil {
		return nil, err
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	if opts.Max > 0 {
		cfg.MaxConns = int32(opts.Max)
	}
	if opts.Min > 0 {
		cfg.MinConns = int32(opts.Min)
	}
	if opts.IdleTimeout > 0 {
		cfg.MaxConnIdleTime = opts.IdleTimeout
	}

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return &pool{pool: p}, nil
}

type pool struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

func (p *pool) Acquire(ctx context.Context) (driver.Conn, error) {
	if p.closed.Load() {
		return nil, driver.ErrPoolClosed
	}
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		if p.closed.Load() {
			return nil, driver.ErrPoolClosed
		}
		return nil, err
	}
	return &conn{conn: c}, nil
}

// Close waits for acquired connections to be released, up to ctx's deadline.
func (p *pool) Close(ctx context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}
	done := make(chan struct{})
	go func() {
		p.pool.Close()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool drain: %w", ctx.Err())
	}
}

func (p *pool) Stats() driver.Stats {
	s := p.pool.Stat()
	return driver.Stats{
		Open:     int(s.TotalConns()),
		InUse:    int(s.AcquiredConns()),
		Idle:     int(s.IdleConns()),
		MaxOpen:  int(s.MaxConns()),
		Acquires: s.AcquireCount(),
	}
}
