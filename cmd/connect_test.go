// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oraflow/cli/internal/binds"
	"oraflow/cli/internal/driver"
	"oraflow/cli/internal/driver/drivertest"
	oerrors "oraflow/cli/internal/errors"
	"oraflow/cli/internal/pool"
)

var testIdentity = pool.Identity{Name: "orcl", Driver: "fake", Host: "db", Port: 1521, Service: "orcl", User: "scott", Password: "tiger", Max: 1}

func TestVerifyConnection(t *testing.T) {
	drv := drivertest.New()
	require.NoError(t, verifyConnection(context.Background(), drv, testIdentity, verifySQL("oracle")))

	calls := drv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "select 1 from dual", calls[0].SQL)
	assert.Equal(t, int64(1), drv.Releases())
	require.Len(t, drv.Opens(), 1)
	assert.Equal(t, "tiger", drv.Opens()[0].Password)
}

func TestVerifyConnectionFailures(t *testing.T) {
	drv := drivertest.New()
	drv.OpenFunc = func(context.Context, driver.PoolOptions) error {
		return errors.New("ORA-01017: invalid username/password; logon denied")
	}
	err := verifyConnection(context.Background(), drv, testIdentity, "select 1 from dual")
	assert.True(t, oerrors.IsKind(err, oerrors.ConnectError))

	drv = drivertest.New()
	drv.ExecFunc = func(context.Context, string, binds.Vars, driver.ExecOptions) (*driver.Result, error) {
		return nil, errors.New("ORA-00942: table or view does not exist")
	}
	err = verifyConnection(context.Background(), drv, testIdentity, "select 1 from dual")
	require.Error(t, err)
	assert.Equal(t, int64(1), drv.Discards())

	assert.EqualError(t, verifyConnection(context.Background(), nil, testIdentity, "select 1"), `unknown driver "fake"`)
}

func TestVerifySQL(t *testing.T) {
	assert.Equal(t, "select 1", verifySQL("postgres"))
	assert.Equal(t, "select 1 from dual", verifySQL("oracle"))
}

func TestRowsTable(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	data := rowsTable([]map[string]any{
		{"ID": 1, "NAME": "a", "AT": ts},
		{"ID": 2, "NOTE": nil, "BLOB": []byte{1, 2, 3}},
	})
	assert.Equal(t, pterm.TableData{
		{"AT", "BLOB", "ID", "NAME", "NOTE"},
		{"2025-03-01T12:00:00Z", "NULL", "1", "a", "NULL"},
		{"NULL", "<3 bytes>", "2", "NULL", "NULL"},
	}, data)
}

func TestCellTextNested(t *testing.T) {
	assert.Equal(t, `{"a":[1,2]}`, cellText(map[string]any{"a": []any{1, 2}}))
	assert.Equal(t, "3.5", cellText(3.5))
}
