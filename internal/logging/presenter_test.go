// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oraflow/cli/internal/flow"
)

func TestParseConnectError(t *testing.T) {
	tests := map[string]ConnectErrorType{
		"ORA-01017: invalid username/password; logon denied":                      ConnectErrorAuth,
		"ORA-12541: TNS:no listener":                                              ConnectErrorNetwork,
		"ORA-12514: TNS:listener does not currently know of service":              ConnectErrorService,
		"ORA-12170: TNS:Connect timeout occurred":                                 ConnectErrorTimeout,
		"ORA-12154: TNS:could not resolve the connect identifier":                 ConnectErrorClient,
		"FATAL: password authentication failed for user \"app\" (SQLSTATE 28P01)": ConnectErrorAuth,
		"dial tcp 127.0.0.1:5432: connect: connection refused":                    ConnectErrorNetwork,
		"something odd":                                                           ConnectErrorUnknown,
	}
	for msg, want := range tests {
		assert.Equal(t, want, ParseConnectError(msg), msg)
	}
}

func TestFormatConnectErrorMasks(t *testing.T) {
	out := FormatConnectError("orcl", errors.New("ORA-01017 for oracle://scott:tiger@db:1521/orcl"))
	assert.Contains(t, out, "oraflow connect orcl")
	assert.NotContains(t, out, "tiger")
}

func TestPresentError(t *testing.T) {
	assert.Empty(t, PresentError("ctx", nil))
	assert.Equal(t, "connect: password=***", PresentError("connect", errors.New("password=tiger")))
}

func TestRenderStatus(t *testing.T) {
	pterm.DisableColor()
	defer pterm.EnableColor()
	assert.Equal(t, "● q1 connected", RenderStatus("q1", flow.Status{Fill: flow.FillGreen, Shape: flow.ShapeDot, Text: "connected"}))
	assert.Equal(t, "○ q1 reconnecting", RenderStatus("q1", flow.Status{Fill: flow.FillYellow, Shape: flow.ShapeRing, Text: "reconnecting"}))
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, pterm.LogLevelWarn, lvl)
	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestFlowLoggerMasksJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger("info", "json", &buf)
	require.NoError(t, err)
	fl := NewFlowLogger(l, "server", "orcl")

	fl.Info("opening oracle://scott:tiger@db/orcl", "target", "scott/tiger@orcl", "error", errors.New("password=tiger"))
	fl.With("node", "q1").Warn("slow")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, buf.String(), "tiger")

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "orcl", first["server"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "q1", second["node"])
}

func TestFlowLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger("error", "json", &buf)
	require.NoError(t, err)
	fl := NewFlowLogger(l)
	fl.Info("hidden")
	fl.Warn("hidden")
	fl.Error("shown")
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(buf.String()), "\n")+1)
	assert.Contains(t, buf.String(), "shown")
}
