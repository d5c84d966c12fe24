// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package binds

import (
	"encoding/json"
	"reflect"
	"strings"

	oerrors "oraflow/cli/internal/errors"
)

// Symbolic defaults applied when a typed spec omits a field.
const (
	DefaultDirection = "BIND_IN"
)

// Resolver maps payloads to bind variables for one node.
type Resolver struct {
	constants   Constants
	useMappings bool
	mappings    []string
}

// NewResolver returns a resolver bound to a driver's constant table and the
// node's path mappings.
func NewResolver(constants Constants, useMappings bool, mappings []string) *Resolver {
	return &Resolver{
		constants:   constants,
		useMappings: useMappings,
		mappings:    append([]string(nil), mappings...),
	}
}

// ParseMappings decodes the node's mapping list, a JSON array of path strings.
// Blank input yields no mappings.
func ParseMappings(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, oerrors.Wrap(oerrors.BindResolutionError, "mappings must be a JSON array of path strings", err)
	}
	return out, nil
}

// Resolve produces the bind variables for one request. spec is the message's
// explicit bind specification (nil when absent), payload the message payload
// and sql the normalized statement text.
//
// The first matching rule wins:
//  1. an explicit typed spec
//  2. a structured payload whose keys match `:name` placeholders in sql
//  3. configured path mappings evaluated against the payload
//  4. a list payload, bound positionally
//  5. anything else, bound as-is
func (r *Resolver) Resolve(sql string, payload any, spec any) (Vars, error) {
	if spec != nil {
		return ParseSpec(spec, r.constants)
	}

	obj, isObj := asObject(payload)
	if isObj {
		if names := Names(sql); len(names) > 0 {
			named := make(map[string]any, len(names))
			for _, n := range names {
				if v, ok := obj[n]; ok {
					named[n] = v
				}
			}
			if len(named) > 0 || !r.useMappings {
				return Named(named), nil
			}
		}
	}

	if r.useMappings {
		values := make([]any, len(r.mappings))
		for i, path := range r.mappings {
			v, err := ResolvePath(payload, path)
			if err != nil {
				v = nil
			}
			values[i] = v
		}
		return Positional(values...), nil
	}

	if list, ok := asList(payload); ok {
		return Positional(list...), nil
	}

	switch {
	case payload == nil, isObj:
		return Positional(), nil
	default:
		return Positional(payload), nil
	}
}

// ParseSpec translates an explicit bind specification, a mapping of bind name
// to {dir, type, val}, into typed binds using the driver's constants.
func ParseSpec(spec any, constants Constants) (Vars, error) {
	entries, ok := asObject(spec)
	if !ok {
		return Vars{}, oerrors.Newf(oerrors.InvalidBindSpec, "bindVars must be an object of name to {dir, type, val}, got %T", spec)
	}
	out := make(map[string]Typed, len(entries))
	for name, raw := range entries {
		entry, ok := asObject(raw)
		if !ok {
			return Vars{}, oerrors.Newf(oerrors.InvalidBindSpec, "bind %q must be an object, got %T", name, raw)
		}

		dirName := DefaultDirection
		if s, ok := entry["dir"].(string); ok && s != "" {
			dirName = s
		}
		dir, ok := constants.Lookup(dirName)
		if !ok {
			return Vars{}, oerrors.Newf(oerrors.InvalidBindSpec, "bind %q: unknown direction %q", name, dirName)
		}

		t := Typed{Dir: dir, DirName: dirName}
		if s, ok := entry["type"].(string); ok && s != "" {
			typ, ok := constants.Lookup(s)
			if !ok {
				return Vars{}, oerrors.Newf(oerrors.InvalidBindSpec, "bind %q: unknown type %q", name, s)
			}
			t.Type, t.TypeName = typ, s
		}
		if v, ok := entry["val"]; ok {
			t.Value, t.HasValue = v, true
		}
		out[name] = t
	}
	return TypedSpec(out), nil
}

func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []byte, string, nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
