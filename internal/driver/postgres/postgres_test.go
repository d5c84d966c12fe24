// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oraflow/cli/internal/binds"
	"oraflow/cli/internal/driver"
)

func TestRewritePositional(t *testing.T) {
	sql, args, err := rewrite("select * from t where a = :v1 and b = :v2 or a = :v1", binds.Positional(1, 2))
	require.NoError(t, err)
	assert.Equal(t, "select * from t where a = $1 and b = $2 or a = $1", sql)
	assert.Equal(t, []any{1, 2}, args)
}

func TestRewriteNamed(t *testing.T) {
	sql, args, err := rewrite("update t set x = :x where id = :id and note = ':skip'", binds.Named(map[string]any{"x": "a", "id": 3}))
	require.NoError(t, err)
	assert.Equal(t, "update t set x = @x where id = @id and note = ':skip'", sql)
	require.Len(t, args, 1)
	assert.Equal(t, pgx.NamedArgs{"x": "a", "id": 3}, args[0])
}

func TestRewriteKeepsCasts(t *testing.T) {
	sql, _, err := rewrite("select :v::text", binds.Positional("x"))
	require.NoError(t, err)
	assert.Equal(t, "select $1::text", sql)
}

func TestRewriteTyped(t *testing.T) {
	sql, args, err := rewrite("select :id", binds.TypedSpec(map[string]binds.Typed{
		"id": {Dir: BindIn, Type: TypeNumber, Value: 5, HasValue: true},
	}))
	require.NoError(t, err)
	assert.Equal(t, "select @id", sql)
	assert.Equal(t, []any{pgx.NamedArgs{"id": 5}}, args)

	_, _, err = rewrite("select :o", binds.TypedSpec(map[string]binds.Typed{"o": {Dir: 3003}}))
	assert.Error(t, err)
}

func TestRewriteWithoutPlaceholders(t *testing.T) {
	sql, args, err := rewrite("select 1", binds.Positional())
	require.NoError(t, err)
	assert.Equal(t, "select 1", sql)
	assert.Empty(t, args)
}

func TestConstantsHaveNoOutBinds(t *testing.T) {
	_, err := binds.ParseSpec(map[string]any{"o": map[string]any{"dir": "BIND_OUT", "type": "STRING"}}, New().Constants())
	assert.Error(t, err)
}

func TestIsTransient(t *testing.T) {
	d := New()
	assert.True(t, d.IsTransient(&pgconn.PgError{Code: "08006"}))
	assert.True(t, d.IsTransient(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "57P01"})))
	assert.False(t, d.IsTransient(&pgconn.PgError{Code: "23505"}))
	assert.False(t, d.IsTransient(errors.New("syntax error")))
	assert.False(t, d.IsTransient(nil))
}

func TestConnectURL(t *testing.T) {
	url, err := ConnectURL(driver.PoolOptions{ConnectString: "db:5433/app", User: "svc", Password: "p@ss"})
	require.NoError(t, err)
	assert.Equal(t, "postgresql://svc:p%40ss@db:5433/app", url)

	url, err = ConnectURL(driver.PoolOptions{ConnectString: "postgres://u:p@h/d?sslmode=disable"})
	require.NoError(t, err)
	assert.Equal(t, "postgresql://u:p@h:5432/d?sslmode=disable", url)

	_, err = ConnectURL(driver.PoolOptions{ConnectString: ""})
	assert.Error(t, err)
}

func TestColumns(t *testing.T) {
	cols := columns(pgtype.NewMap(), []pgconn.FieldDescription{
		{Name: "id", DataTypeOID: pgtype.Int4OID, DataTypeSize: 4},
		{Name: "amount", DataTypeOID: numericOID, DataTypeSize: -1, TypeModifier: (10<<16 | 2) + 4},
	})
	require.Len(t, cols, 2)
	assert.Equal(t, driver.Column{Name: "id", DBTypeName: "INT4", Nullable: true, ByteSize: 4}, cols[0])
	assert.Equal(t, int64(10), cols[1].Precision)
	assert.Equal(t, int64(2), cols[1].Scale)
	assert.Equal(t, "NUMERIC", cols[1].DBTypeName)
}

func TestNormalizeValue(t *testing.T) {
	id := [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}
	assert.Equal(t, "12345678-9abc-def0-1234-56789abcdef0", normalizeValue(id))
	assert.Equal(t, "x", normalizeValue("x"))
	assert.Nil(t, normalizeValue(nil))
}

func TestInitTwice(t *testing.T) {
	d := New()
	require.NoError(t, d.Init(driver.ClientOptions{}))
	assert.ErrorIs(t, d.Init(driver.ClientOptions{}), driver.ErrAlreadyInitialized)
}
