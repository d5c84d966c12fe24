// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package driver defines the database capability the pool manager and the
// query dispatcher are written against. A driver provides client
// initialization, pool creation, connection acquire/execute/release, forward
// cursors with chunked fetch, a constant table for typed binds and a
// classification of transient (connectivity) errors.
//
// The wire protocol is entirely the implementation's business; see the oracle
// and pgx subpackages.
package driver

import (
	"context"
	"errors"
	"time"

	"oraflow/cli/internal/binds"
)

var (
	// ErrAlreadyInitialized is returned by Init when the client library was
	// already initialized. Callers treat it as success.
	ErrAlreadyInitialized = errors.New("driver: client already initialized")

	// ErrPoolClosed is returned by pool and connection methods after Close.
	ErrPoolClosed = errors.New("driver: pool is closed")
)

// ClientOptions configures one-time client initialization.
type ClientOptions struct {
	// LibDir is the Oracle client / instant-client directory. Drivers that
	// need no native library use it to locate network configuration.
	LibDir string
}

// PoolOptions describes the pool to create.
type PoolOptions struct {
	// ConnectString is a connect descriptor, alias or host:port/service.
	ConnectString string
	User          string
	Password      string
	Min           int
	Max           int
	Increment     int
	IdleTimeout   time.Duration
}

// ExecOptions apply to a single statement execution.
type ExecOptions struct {
	AutoCommit bool
	// MaxRows caps the rows fetched for a non-cursor execution. Zero means
	// no cap.
	MaxRows int
	// ResultSet asks for a forward-only cursor instead of fetched rows.
	ResultSet bool
}

// Row is a single record keyed by column name.
type Row map[string]any

// Column describes one result column.
type Column struct {
	Name       string `json:"name"`
	DBTypeName string `json:"dbTypeName,omitempty"`
	Nullable   bool   `json:"nullable"`
	ByteSize   int64  `json:"byteSize,omitempty"`
	Precision  int64  `json:"precision,omitempty"`
	Scale      int64  `json:"scale,omitempty"`
}

// Result is the outcome of one execution. For cursor executions Rows is nil
// and Cursor is set when the statement produced rows.
type Result struct {
	Rows         []Row
	Columns      []Column
	RowsAffected int64
	OutBinds     map[string]any
	Cursor       Cursor
}

// Cursor is a forward-only server-side result set.
type Cursor interface {
	// Fetch returns up to n rows; an empty slice means the cursor is exhausted.
	Fetch(ctx context.Context, n int) ([]Row, error)
	Close() error
}

// Conn is a connection checked out from a pool.
type Conn interface {
	Execute(ctx context.Context, sql string, vars binds.Vars, opts ExecOptions) (*Result, error)
	// Release returns the connection to its pool.
	Release() error
	// Discard closes the connection instead of returning it to the pool.
	Discard() error
}

// Stats is a snapshot of pool occupancy.
type Stats struct {
	Open     int   `json:"open"`
	InUse    int   `json:"inUse"`
	Idle     int   `json:"idle"`
	MaxOpen  int   `json:"maxOpen"`
	Acquires int64 `json:"acquires"`
}

// Pool is a set of reusable connections to one backend.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
	// Close drains the pool. It returns when the pool is closed or ctx is done.
	Close(ctx context.Context) error
	Stats() Stats
}

// Driver is the database capability.
type Driver interface {
	Name() string
	Init(opts ClientOptions) error
	OpenPool(ctx context.Context, opts PoolOptions) (Pool, error)
	// Constants maps symbolic bind directions and types to native values.
	Constants() binds.Constants
	// IsTransient reports whether err is a connectivity failure after which
	// the connection must be discarded and the pool rebuilt.
	IsTransient(err error) bool
}
