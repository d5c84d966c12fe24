// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package binds

import (
	"testing"

	oerrors "oraflow/cli/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConstants = Constants{
	"BIND_IN":    3001,
	"BIND_INOUT": 3002,
	"BIND_OUT":   3003,
	"STRING":     2001,
	"NUMBER":     2010,
}

func TestResolveNamedDropsUnreferencedKeys(t *testing.T) {
	r := NewResolver(testConstants, false, nil)
	vars, err := r.Resolve("select * from t where a = :a", map[string]any{"a": 1, "b": 2}, nil)
	require.NoError(t, err)

	assert.Equal(t, KindNamed, vars.Kind())
	assert.Equal(t, map[string]any{"a": 1}, vars.Map())
}

func TestResolvePositionalPassThrough(t *testing.T) {
	r := NewResolver(testConstants, false, nil)
	vars, err := r.Resolve("select dummy from dual where dummy = :v1", []any{"X"}, nil)
	require.NoError(t, err)

	assert.Equal(t, KindPositional, vars.Kind())
	assert.Equal(t, []any{"X"}, vars.List())
}

func TestResolveTypedListPayload(t *testing.T) {
	r := NewResolver(testConstants, false, nil)
	vars, err := r.Resolve("insert into t values (:1, :2)", []string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, vars.List())
}

func TestResolveMappings(t *testing.T) {
	mappings, err := ParseMappings(`["order.id", "order.lines[1].sku", "missing.path", "headers[\"x-key\"]"]`)
	require.NoError(t, err)

	r := NewResolver(testConstants, true, mappings)
	payload := map[string]any{
		"order": map[string]any{
			"id":    42,
			"lines": []any{map[string]any{"sku": "A"}, map[string]any{"sku": "B"}},
		},
		"headers": map[string]any{"x-key": "k"},
	}
	vars, err := r.Resolve("insert into t values (:valueOfValuesArrayIndex0, :valueOfValuesArrayIndex1, :x, :y)", payload, nil)
	require.NoError(t, err)

	assert.Equal(t, KindPositional, vars.Kind())
	assert.Equal(t, []any{42, "B", nil, "k"}, vars.List())
}

func TestResolveNamedWinsOverMappingsWhenKeysMatch(t *testing.T) {
	r := NewResolver(testConstants, true, []string{"a"})
	vars, err := r.Resolve("update t set x = :a", map[string]any{"a": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, KindNamed, vars.Kind())
}

func TestResolveScalarAndNil(t *testing.T) {
	r := NewResolver(testConstants, false, nil)

	vars, err := r.Resolve("select :1 from dual", "only", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"only"}, vars.List())

	vars, err = r.Resolve("select 1 from dual", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, vars.Len())

	vars, err = r.Resolve("select 1 from dual", map[string]any{"a": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, KindPositional, vars.Kind())
	assert.Equal(t, 0, vars.Len())
}

func TestParseSpec(t *testing.T) {
	spec := map[string]any{
		"id":     map[string]any{"dir": "BIND_IN", "type": "NUMBER", "val": 7},
		"result": map[string]any{"dir": "BIND_OUT", "type": "STRING"},
	}
	vars, err := ParseSpec(spec, testConstants)
	require.NoError(t, err)

	require.Equal(t, KindTyped, vars.Kind())
	assert.Equal(t, []string{"id", "result"}, vars.Names())
	assert.Equal(t, Typed{Dir: 3001, Type: 2010, Value: 7, HasValue: true, DirName: "BIND_IN", TypeName: "NUMBER"}, vars.TypedMap()["id"])
	assert.False(t, vars.TypedMap()["result"].HasValue)
}

func TestParseSpecUnknownConstants(t *testing.T) {
	spec := map[string]any{"out": map[string]any{"dir": "BIND_OUT", "type": "STRING"}}

	_, err := ParseSpec(spec, Constants{"BIND_IN": 1})
	require.Error(t, err)
	assert.True(t, oerrors.IsKind(err, oerrors.InvalidBindSpec))

	_, err = ParseSpec(spec, Constants{"BIND_OUT": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown type "STRING"`)

	_, err = ParseSpec([]any{1}, testConstants)
	assert.True(t, oerrors.IsKind(err, oerrors.InvalidBindSpec))
}

func TestResolverPrefersSpec(t *testing.T) {
	r := NewResolver(testConstants, false, nil)
	_, err := r.Resolve("begin :out := 1; end;", []any{1}, map[string]any{
		"out": map[string]any{"dir": "BIND_SIDEWAYS"},
	})
	assert.True(t, oerrors.IsKind(err, oerrors.InvalidBindSpec))
}

func TestParseMappingsRejectsBadJSON(t *testing.T) {
	_, err := ParseMappings(`["a", `)
	require.Error(t, err)
	assert.True(t, oerrors.IsKind(err, oerrors.BindResolutionError))

	m, err := ParseMappings("  ")
	require.NoError(t, err)
	assert.Nil(t, m)
}
