// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"select 1 from dual", "select 1 from dual"},
		{"select 1 from dual;", "select 1 from dual"},
		{"  select 1 from dual ;\n", "select 1 from dual"},
		{"begin null; end;", "begin null; end"},
		{";", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestModeKnown(t *testing.T) {
	for _, m := range []Mode{ModeSingle, ModeSingleMeta, ModeMulti, ModeNone} {
		assert.True(t, m.Known(), string(m))
	}
	for _, m := range []Mode{"", "Single", "multiple", "single_meta"} {
		assert.False(t, m.Known(), string(m))
	}
	assert.Equal(t, ModeMulti, DefaultMode)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "select * from t where a = 1", Summarize("select *\n  from t\twhere a = 1"))
	long := Summarize(strings.Repeat("x ", 80))
	assert.Len(t, long, 103)
	assert.True(t, strings.HasSuffix(long, "..."))
}
