// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package oracle

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	go_ora "github.com/sijms/go-ora/v2"

	"oraflow/cli/internal/binds"
	"oraflow/cli/internal/driver"
)

// maxStringOut is the buffer size for STRING and CLOB OUT binds.
const maxStringOut = 32767

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type conn struct {
	conn *sql.Conn
	tx   *sql.Tx
}

func (c *conn) Execute(ctx context.Context, query string, vars binds.Vars, opts driver.ExecOptions) (*driver.Result, error) {
	args, outs, err := bindArgs(vars)
	if err != nil {
		return nil, err
	}

	var q querier = c.conn
	if !opts.AutoCommit {
		if c.tx == nil {
			if c.tx, err = c.conn.BeginTx(ctx, nil); err != nil {
				return nil, err
			}
		}
		q = c.tx
	}

	if len(outs) > 0 || !isQuery(query) {
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		out := &driver.Result{}
		out.RowsAffected, _ = res.RowsAffected()
		if len(outs) > 0 {
			out.OutBinds = make(map[string]any, len(outs))
			for name, dest := range outs {
				out.OutBinds[name] = deref(dest)
			}
		}
		return out, nil
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	cols, err := columns(rows)
	if err != nil {
		rows.Close()
		return nil, err
	}
	cur := &cursor{rows: rows, names: names(cols)}
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
	return &driver.Result{Rows: fetched, Columns: cols}, nil
}

// Release rolls back any uncommitted work and returns the session.
func (c *conn) Release() error {
	var rbErr error
	if c.tx != nil {
		rbErr = c.tx.Rollback()
		c.tx = nil
		if errors.Is(rbErr, sql.ErrTxDone) {
			rbErr = nil
		}
	}
	if err := c.conn.Close(); err != nil {
		return err
	}
	return rbErr
}

// Discard closes the physical session instead of pooling it.
func (c *conn) Discard() error {
	c.tx = nil
	err := c.conn.Raw(func(any) error { return sqldriver.ErrBadConn })
	if errors.Is(err, sqldriver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}

type cursor struct {
	rows  *sql.Rows
	names []string
}

func (c *cursor) Fetch(ctx context.Context, n int) ([]driver.Row, error) {
	if n <= 0 {
		n = 1
	}
	return c.fetch(ctx, n)
}

// fetch reads up to n rows, or all remaining rows when n < 0.
func (c *cursor) fetch(ctx context.Context, n int) ([]driver.Row, error) {
	out := []driver.Row{}
	for n < 0 || len(out) < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !c.rows.Next() {
			break
		}
		vals := make([]any, len(c.names))
		ptrs := make([]any, len(vals))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := c.rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(driver.Row, len(c.names))
		for i, name := range c.names {
			row[name] = vals[i]
		}
		out = append(out, row)
	}
	return out, c.rows.Err()
}

func (c *cursor) Close() error { return c.rows.Close() }

func columns(rows *sql.Rows) ([]driver.Column, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	cols := make([]driver.Column, len(types))
	for i, ct := range types {
		col := driver.Column{Name: ct.Name(), DBTypeName: ct.DatabaseTypeName()}
		if nullable, ok := ct.Nullable(); ok {
			col.Nullable = nullable
		}
		if length, ok := ct.Length(); ok {
			col.ByteSize = length
		}
		if p, s, ok := ct.DecimalSize(); ok {
			col.Precision, col.Scale = p, s
		}
		cols[i] = col
	}
	return cols, nil
}

func names(cols []driver.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// bindArgs converts resolved binds into database/sql arguments. OUT and
// IN OUT binds are wrapped in go_ora.Out; their destinations are returned
// keyed by bind name.
func bindArgs(vars binds.Vars) ([]any, map[string]any, error) {
	switch vars.Kind() {
	case binds.KindNamed:
		m := vars.Map()
		args := make([]any, 0, len(m))
		for _, name := range vars.Names() {
			args = append(args, sql.Named(name, m[name]))
		}
		return args, nil, nil

	case binds.KindTyped:
		m := vars.TypedMap()
		args := make([]any, 0, len(m))
		var outs map[string]any
		for _, name := range vars.Names() {
			t := m[name]
			switch t.Dir {
			case BindIn:
				args = append(args, sql.Named(name, t.Value))
			case BindOut, BindInOut:
				dest, size, err := outDest(t)
				if err != nil {
					return nil, nil, fmt.Errorf("bind %q: %w", name, err)
				}
				if outs == nil {
					outs = map[string]any{}
				}
				outs[name] = dest
				args = append(args, sql.Named(name, go_ora.Out{Dest: dest, Size: size, In: t.Dir == BindInOut}))
			default:
				return nil, nil, fmt.Errorf("bind %q: unsupported direction %d", name, t.Dir)
			}
		}
		return args, outs, nil
	}
	return vars.List(), nil, nil
}

// outDest allocates the destination for an OUT bind of the given type,
// seeded with the IN value for IN OUT binds.
func outDest(t binds.Typed) (any, int, error) {
	switch t.Type {
	case TypeString, TypeClob, TypeDefault:
		v := new(string)
		if s, ok := t.Value.(string); ok && t.HasValue {
			*v = s
		}
		return v, maxStringOut, nil
	case TypeNumber:
		v := new(float64)
		if t.HasValue {
			switch n := t.Value.(type) {
			case float64:
				*v = n
			case int:
				*v = float64(n)
			case int64:
				*v = float64(n)
			}
		}
		return v, 0, nil
	case TypeDate:
		v := new(time.Time)
		if tm, ok := t.Value.(time.Time); ok && t.HasValue {
			*v = tm
		}
		return v, 0, nil
	case TypeBuffer, TypeBlob:
		v := new([]byte)
		if b, ok := t.Value.([]byte); ok && t.HasValue {
			*v = b
		}
		return v, maxStringOut, nil
	}
	return nil, 0, fmt.Errorf("unsupported OUT type %d", t.Type)
}

func deref(dest any) any {
	switch v := dest.(type) {
	case *string:
		return *v
	case *float64:
		return *v
	case *time.Time:
		return *v
	case *[]byte:
		return *v
	}
	return dest
}

// isQuery reports whether sql returns rows, i.e. starts with SELECT or WITH
// after leading comments and parentheses.
func isQuery(sql string) bool {
	s := strings.TrimSpace(sql)
	for {
		switch {
		case strings.HasPrefix(s, "--"):
			if i := strings.IndexByte(s, '\n'); i >= 0 {
				s = strings.TrimSpace(s[i+1:])
				continue
			}
			return false
		case strings.HasPrefix(s, "/*"):
			if i := strings.Index(s, "*/"); i >= 0 {
				s = strings.TrimSpace(s[i+2:])
				continue
			}
			return false
		case strings.HasPrefix(s, "("):
			s = strings.TrimSpace(s[1:])
			continue
		}
		break
	}
	word := s
	if i := strings.IndexFunc(s, func(r rune) bool { return r == ' ' || r == '\n' || r == '\t' || r == '\r' || r == '(' }); i >= 0 {
		word = s[:i]
	}
	switch strings.ToUpper(word) {
	case "SELECT", "WITH":
		return true
	}
	return false
}
