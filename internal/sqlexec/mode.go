// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import "strings"

// Mode selects how a statement's result is turned into envelopes.
type Mode string

const (
	// ModeSingle emits one envelope whose payload is the row list.
	ModeSingle Mode = "single"
	// ModeSingleMeta emits one envelope with rows affected, column metadata
	// and OUT bind values, and no rows.
	ModeSingleMeta Mode = "single-meta"
	// ModeMulti streams a cursor and emits one envelope per chunk.
	ModeMulti Mode = "multi"
	// ModeNone executes without emitting anything.
	ModeNone Mode = "none"
)

// DefaultMode and DefaultLimit apply when a node leaves them unset.
const (
	DefaultMode  = ModeMulti
	DefaultLimit = 100
)

// Known reports whether m is one of the defined modes. Matching is
// case-sensitive; anything else behaves like ModeNone.
func (m Mode) Known() bool {
	switch m {
	case ModeSingle, ModeSingleMeta, ModeMulti, ModeNone:
		return true
	}
	return false
}

// Normalize trims surrounding whitespace and strips one trailing semicolon, so
// `select 1 from dual;` and `select 1 from dual` run the same statement.
func Normalize(sql string) string {
	s := strings.TrimSpace(sql)
	s = strings.TrimSuffix(s, ";")
	return strings.TrimSpace(s)
}

// Summarize shortens sql for log lines.
func Summarize(sql string) string {
	s := strings.Join(strings.Fields(sql), " ")
	if len(s) > 100 {
		return s[:100] + "..."
	}
	return s
}
