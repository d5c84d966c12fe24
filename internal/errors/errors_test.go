package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *E
		want string
	}{
		{
			name: "without cause",
			err:  New(ConfigurationError, "missing Oracle server configuration"),
			want: "configuration_error: missing Oracle server configuration",
		},
		{
			name: "with cause",
			err:  Wrap(ExecutionError, "Oracle query error", stderrors.New("ORA-00942: table or view does not exist")),
			want: "execution_error: Oracle query error: ORA-00942: table or view does not exist",
		},
		{
			name: "formatted",
			err:  Newf(InvalidBindSpec, "unknown bind direction %q", "BIND_SIDEWAYS"),
			want: `invalid_bind_spec: unknown bind direction "BIND_SIDEWAYS"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOfThroughWrapping(t *testing.T) {
	cause := stderrors.New("socket closed")
	err := fmt.Errorf("dispatch: %w", Wrap(PoolUnavailable, "pool is not ready", cause))

	assert.Equal(t, PoolUnavailable, KindOf(err))
	assert.True(t, IsKind(err, PoolUnavailable))
	assert.False(t, IsKind(err, ExecutionError))
	require.ErrorIs(t, err, cause)
	assert.Equal(t, Kind(""), KindOf(cause))
}

func TestIsKindNested(t *testing.T) {
	inner := New(ConnectError, "listener refused the connection")
	outer := Wrap(PoolUnavailable, "connection pool is not available and could not be created", inner)

	assert.True(t, IsKind(outer, ConnectError))
	assert.True(t, IsKind(outer, PoolUnavailable))
	assert.Equal(t, PoolUnavailable, KindOf(outer))
}
