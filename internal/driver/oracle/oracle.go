// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package oracle implements driver.Driver on top of the pure-Go go-ora client
// through database/sql. The database/sql pool is the connection pool: max
// sessions map to SetMaxOpenConns, the idle timeout to SetConnMaxIdleTime and
// the minimum is warmed up at open time. database/sql has no growth
// increment, so PoolOptions.Increment is accepted and ignored.
package oracle

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	go_ora "github.com/sijms/go-ora/v2"

	"oraflow/cli/internal/binds"
	"oraflow/cli/internal/driver"
	"oraflow/cli/internal/dsn"
)

// Bind directions and types, numbered like node-oracledb so flows written
// against it keep working.
const (
	BindIn    = 3001
	BindInOut = 3002
	BindOut   = 3003

	TypeDefault = 0
	TypeString  = 2001
	TypeBuffer  = 2006
	TypeNumber  = 2010
	TypeDate    = 2014
	TypeClob    = 2017
	TypeBlob    = 2019
	TypeCursor  = 2021
)

var constants = binds.Constants{
	"BIND_IN":    BindIn,
	"BIND_INOUT": BindInOut,
	"BIND_OUT":   BindOut,
	"DEFAULT":    TypeDefault,
	"STRING":     TypeString,
	"BUFFER":     TypeBuffer,
	"NUMBER":     TypeNumber,
	"DATE":       TypeDate,
	"CLOB":       TypeClob,
	"BLOB":       TypeBlob,
	"CURSOR":     TypeCursor,
}

// sqlOpen is replaced in tests.
var sqlOpen = sql.Open

// Driver is the go-ora backed driver.
type Driver struct {
	mu          sync.Mutex
	initialized bool
	libDir      string
}

// New returns an uninitialized Oracle driver.
func New() *Driver { return &Driver{} }

func (d *Driver) Name() string { return "oracle" }

// Init records the client directory. go-ora needs no native client; the
// directory is only used to find network/admin/tnsnames.ora. A second call
// returns driver.ErrAlreadyInitialized.
func (d *Driver) Init(opts driver.ClientOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		return driver.ErrAlreadyInitialized
	}
	d.initialized = true
	d.libDir = opts.LibDir
	return nil
}

func (d *Driver) LibDir() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.libDir
}

func (d *Driver) Constants() binds.Constants { return constants }

// ConnectURL builds the go-ora connection URL for opts.
func (d *Driver) ConnectURL(opts driver.PoolOptions) (string, error) {
	info, err := dsn.ResolveOracle(opts.ConnectString, d.LibDir())
	if err != nil {
		return "", err
	}
	if info.Descriptor != "" {
		return go_ora.BuildJDBC(opts.User, opts.Password, info.Descriptor, info.Params), nil
	}
	port, err := strconv.Atoi(info.Port)
	if err != nil {
		return "", fmt.Errorf("invalid port %q: %w", info.Port, err)
	}
	user, password := opts.User, opts.Password
	if user == "" {
		user, password = info.User, info.Password
	}
	return go_ora.BuildUrl(info.Host, port, info.Database, user, password, info.Params), nil
}

// OpenPool opens the database/sql pool and warms up opts.Min sessions. At
// least one session is always opened so bad credentials fail here.
func (d *Driver) OpenPool(ctx context.Context, opts driver.PoolOptions) (driver.Pool, error) {
	url, err := d.ConnectURL(opts)
	if err != nil {
		return nil, err
	}
	db, err := sqlOpen("oracle", url)
	if err != nil {
		return nil, err
	}
	if opts.Max > 0 {
		db.SetMaxOpenConns(opts.Max)
		db.SetMaxIdleConns(opts.Max)
	}
	if opts.IdleTimeout > 0 {
		db.SetConnMaxIdleTime(opts.IdleTimeout)
	}

	warm := opts.Min
	if warm < 1 {
		warm = 1
	}
	conns := make([]*sql.Conn, 0, warm)
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()
	for i := 0; i < warm; i++ {
		c, err := db.Conn(ctx)
		if err == nil {
			err = c.PingContext(ctx)
			conns = append(conns, c)
		}
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &pool{db: db}, nil
}

type pool struct {
	db       *sql.DB
	closed   atomic.Bool
	acquires atomic.Int64
}

func (p *pool) Acquire(ctx context.Context) (driver.Conn, error) {
	if p.closed.Load() {
		return nil, driver.ErrPoolClosed
	}
	c, err := p.db.Conn(ctx)
	if err != nil {
		if p.closed.Load() {
			return nil, driver.ErrPoolClosed
		}
		return nil, err
	}
	p.acquires.Add(1)
	return &conn{conn: c}, nil
}

// Close waits for checked-out sessions to be returned, up to ctx's deadline.
func (p *pool) Close(ctx context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- p.db.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("pool drain: %w", ctx.Err())
	}
}

func (p *pool) Stats() driver.Stats {
	s := p.db.Stats()
	return driver.Stats{
		Open:     s.OpenConnections,
		InUse:    s.InUse,
		Idle:     s.Idle,
		MaxOpen:  s.MaxOpenConnections,
		Acquires: p.acquires.Load(),
	}
}
