// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"oraflow/cli/internal/binds"
	"oraflow/cli/internal/driver"
)

const numericOID = 1700

type conn struct {
	conn *pgxpool.Conn
	tx   pgx.Tx
}

func (c *conn) Execute(ctx context.Context, query string, vars binds.Vars, opts driver.ExecOptions) (*driver.Result, error) {
	sql, args, err := rewrite(query, vars)
	if err != nil {
		return nil, err
	}

	var rows pgx.Rows
	if opts.AutoCommit {
		rows, err = c.conn.Query(ctx, sql, args...)
	} else {
		if c.tx == nil {
			if c.tx, err = c.conn.Begin(ctx); err != nil {
				return nil, err
			}
		}
		rows, err = c.tx.Query(ctx, sql, args...)
	}
	if err != nil {
		return nil, err
	}

	fds := rows.FieldDescriptions()
	if len(fds) == 0 {
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return &driver.Result{RowsAffected: rows.CommandTag().RowsAffected()}, nil
	}

	cols := columns(c.conn.Conn().TypeMap(), fds)
	cur := &cursor{rows: rows, cols: cols}
	if opts.ResultSet {
		return &driver.Result{Columns: cols, Cursor: cur}, nil
	}
	defer cur.Close()

	limit := opts.MaxRows
	if limit <= 0 {
		limit = -1
	}
	fetched, err := cur.fetch(ctx, limit)
	if err != nil {
		return nil, err
	}
	return &driver.Result{Rows: fetched, Columns: cols, RowsAffected: int64(len(fetched))}, nil
}

// Release rolls back uncommitted work and returns the connection.
func (c *conn) Release() error {
	var err error
	if c.tx != nil {
		err = c.tx.Rollback(context.Background())
		c.tx = nil
		if errors.Is(err, pgx.ErrTxClosed) {
			err = nil
		}
	}
	c.conn.Release()
	return err
}

// Discard closes the underlying connection; pgxpool destroys closed
// connections on release instead of reusing them.
func (c *conn) Discard() error {
	c.tx = nil
	err := c.conn.Conn().Close(context.Background())
	c.conn.Release()
	return err
}

type cursor struct {
	rows pgx.Rows
	cols []driver.Column
}

func (c *cursor) Fetch(ctx context.Context, n int) ([]driver.Row, error) {
	if n <= 0 {
		n = 1
	}
	return c.fetch(ctx, n)
}

func (c *cursor) fetch(ctx context.Context, n int) ([]driver.Row, error) {
	out := []driver.Row{}
	for n < 0 || len(out) < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !c.rows.Next() {
			break
		}
		vals, err := c.rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(driver.Row, len(c.cols))
		for i, col := range c.cols {
			row[col.Name] = normalizeValue(vals[i])
		}
		out = append(out, row)
	}
	return out, c.rows.Err()
}

func (c *cursor) Close() error {
	c.rows.Close()
	return c.rows.Err()
}

func columns(types *pgtype.Map, fds []pgconn.FieldDescription) []driver.Column {
	cols := make([]driver.Column, len(fds))
	for i, fd := range fds {
		col := driver.Column{Name: fd.Name, Nullable: true}
		if t, ok := types.TypeForOID(fd.DataTypeOID); ok {
			col.DBTypeName = strings.ToUpper(t.Name)
		} else {
			col.DBTypeName = strconv.FormatUint(uint64(fd.DataTypeOID), 10)
		}
		if fd.DataTypeSize > 0 {
			col.ByteSize = int64(fd.DataTypeSize)
		}
		if fd.DataTypeOID == numericOID && fd.TypeModifier >= 4 {
			mod := fd.TypeModifier - 4
			col.Precision = int64(mod >> 16)
			col.Scale = int64(mod & 0xffff)
		}
		cols[i] = col
	}
	return cols
}

// normalizeValue converts pgx values that have no natural JSON form.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	case pgtype.Numeric:
		if f, err := t.Float64Value(); err == nil && f.Valid {
			return f.Float64
		}
		return nil
	}
	return v
}

// rewrite converts `:name` placeholders. Positional binds number distinct
// placeholders by first appearance ($1, $2, ...); named and typed binds use
// pgx named arguments (@name).
func rewrite(query string, vars binds.Vars) (string, []any, error) {
	ps := binds.Scan(query)
	if len(ps) == 0 {
		switch vars.Kind() {
		case binds.KindPositional:
			return query, vars.List(), nil
		default:
			return query, nil, nil
		}
	}

	var (
		b     strings.Builder
		last  int
		index = map[string]int{}
	)
	for _, p := range ps {
		b.WriteString(query[last:p.Start])
		if vars.Kind() == binds.KindPositional {
			n, ok := index[p.Name]
			if !ok {
				n = len(index) + 1
				index[p.Name] = n
			}
			b.WriteString("$" + strconv.Itoa(n))
		} else {
			b.WriteString("@" + p.Name)
		}
		last = p.End
	}
	b.WriteString(query[last:])

	switch vars.Kind() {
	case binds.KindNamed:
		return b.String(), []any{pgx.NamedArgs(vars.Map())}, nil
	case binds.KindTyped:
		named := pgx.NamedArgs{}
		for name, t := range vars.TypedMap() {
			if t.Dir != BindIn {
				return "", nil, fmt.Errorf("bind %q: only BIND_IN is supported", name)
			}
			named[name] = t.Value
		}
		return b.String(), []any{named}, nil
	}
	return b.String(), vars.List(), nil
}
