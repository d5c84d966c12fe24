// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package binds

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// segment is one step of a path: a map key or a list index.
type segment struct {
	key     string
	index   int
	isIndex bool
}

// ResolvePath evaluates a dotted/indexed path such as `order.lines[2].sku`
// or `headers["content-type"]` against v.
func ResolvePath(v any, path string) (any, error) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	cur := v
	for _, s := range segs {
		cur, err = step(cur, s)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", path, err)
		}
	}
	return cur, nil
}

func parsePath(path string) ([]segment, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, fmt.Errorf("empty path")
	}
	var segs []segment
	i := 0
	for i < len(p) {
		switch p[i] {
		case '.':
			i++
		case '[':
			end := strings.IndexByte(p[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated [ in %q", path)
			}
			inner := strings.TrimSpace(p[i+1 : i+end])
			i += end + 1
			if len(inner) >= 2 && (inner[0] == '"' || inner[0] == '\'') && inner[len(inner)-1] == inner[0] {
				segs = append(segs, segment{key: inner[1 : len(inner)-1]})
				continue
			}
			n, err := strconv.Atoi(inner)
			if err != nil {
				return nil, fmt.Errorf("invalid index %q in %q", inner, path)
			}
			segs = append(segs, segment{index: n, isIndex: true})
		default:
			j := i
			for j < len(p) && p[j] != '.' && p[j] != '[' {
				j++
			}
			segs = append(segs, segment{key: p[i:j]})
			i = j
		}
	}
	return segs, nil
}

func step(v any, s segment) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if s.isIndex {
			val, ok := t[strconv.Itoa(s.index)]
			if !ok {
				return nil, fmt.Errorf("no key %d", s.index)
			}
			return val, nil
		}
		val, ok := t[s.key]
		if !ok {
			return nil, fmt.Errorf("no key %q", s.key)
		}
		return val, nil
	case []any:
		if !s.isIndex {
			return nil, fmt.Errorf("cannot take key %q of a list", s.key)
		}
		if s.index < 0 || s.index >= len(t) {
			return nil, fmt.Errorf("index %d out of range", s.index)
		}
		return t[s.index], nil
	case nil:
		return nil, fmt.Errorf("cannot descend into null")
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		key := s.key
		if s.isIndex {
			key = strconv.Itoa(s.index)
		}
		val := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil, fmt.Errorf("no key %q", key)
		}
		return val.Interface(), nil
	case reflect.Slice, reflect.Array:
		if !s.isIndex || s.index < 0 || s.index >= rv.Len() {
			return nil, fmt.Errorf("bad index into list")
		}
		return rv.Index(s.index).Interface(), nil
	}
	return nil, fmt.Errorf("cannot descend into %T", v)
}
