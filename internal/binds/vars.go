// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package binds turns an inbound flow payload into the bind variables a
// statement is executed with.
//
// Bind variables are a tagged variant resolved once, before execution:
//
//   - Positional: an ordered list bound by placeholder position
//   - Named: a name to value mapping bound by placeholder name
//   - Typed: a name to {direction, type, value} mapping, used for PL/SQL
//     OUT and IN OUT parameters
//
// Drivers switch on Kind and never inspect payload shapes themselves.
package binds

import "sort"

// Kind discriminates the bind variant.
type Kind int

const (
	KindPositional Kind = iota
	KindNamed
	KindTyped
)

func (k Kind) String() string {
	switch k {
	case KindNamed:
		return "named"
	case KindTyped:
		return "typed"
	default:
		return "positional"
	}
}

// Typed is one explicit bind specification after symbolic names have been
// translated to the driver's native constants.
type Typed struct {
	Dir      int
	Type     int
	Value    any
	HasValue bool
	// DirName and TypeName keep the symbolic names for error messages.
	DirName  string
	TypeName string
}

// Vars is a resolved set of bind variables. The zero value is an empty
// positional list.
type Vars struct {
	kind  Kind
	list  []any
	named map[string]any
	typed map[string]Typed
}

// Positional returns positional binds.
func Positional(values ...any) Vars {
	return Vars{kind: KindPositional, list: values}
}

// Named returns named binds.
func Named(m map[string]any) Vars {
	if m == nil {
		m = map[string]any{}
	}
	return Vars{kind: KindNamed, named: m}
}

// TypedSpec returns explicit typed binds.
func TypedSpec(m map[string]Typed) Vars {
	if m == nil {
		m = map[string]Typed{}
	}
	return Vars{kind: KindTyped, typed: m}
}

func (v Vars) Kind() Kind                 { return v.kind }
func (v Vars) List() []any                { return v.list }
func (v Vars) Map() map[string]any        { return v.named }
func (v Vars) TypedMap() map[string]Typed { return v.typed }

// Len returns the number of bind variables.
func (v Vars) Len() int {
	switch v.kind {
	case KindNamed:
		return len(v.named)
	case KindTyped:
		return len(v.typed)
	default:
		return len(v.list)
	}
}

// Names returns the bind names of a named or typed set in sorted order.
// Positional sets have no names.
func (v Vars) Names() []string {
	var names []string
	switch v.kind {
	case KindNamed:
		for k := range v.named {
			names = append(names, k)
		}
	case KindTyped:
		for k := range v.typed {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// Constants maps symbolic bind directions and types (BIND_IN, STRING, ...)
// to a driver's native values.
type Constants map[string]int

// Lookup returns the native value for a symbolic name.
func (c Constants) Lookup(name string) (int, bool) {
	v, ok := c[name]
	return v, ok
}
