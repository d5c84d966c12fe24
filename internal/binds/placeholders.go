// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package binds

// Placeholder is one `:name` occurrence in statement text.
// Start is the byte offset of the colon, End the offset just past the name.
type Placeholder struct {
	Name  string
	Start int
	End   int
}

// Scan returns every bind placeholder occurrence in sql, in text order.
// String literals (including q'[...]' quoting), quoted identifiers, comments,
// `::` casts and `:=` assignments are skipped.
func Scan(sql string) []Placeholder {
	var out []Placeholder
	n := len(sql)
	for i := 0; i < n; i++ {
		c := sql[i]
		switch {
		case (c == 'q' || c == 'Q') && i+2 < n && sql[i+1] == '\'' && !isIdentByte(prev(sql, i)):
			i = skipQQuote(sql, i+2)
		case c == '\'':
			i = skipQuoted(sql, i, '\'')
		case c == '"':
			i = skipQuoted(sql, i, '"')
		case c == '-' && i+1 < n && sql[i+1] == '-':
			for i < n && sql[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && sql[i+1] == '*':
			i += 2
			for i+1 < n && !(sql[i] == '*' && sql[i+1] == '/') {
				i++
			}
			i++
		case c == ':':
			if i+1 < n && sql[i+1] == ':' {
				i++
				continue
			}
			if prev(sql, i) == ':' {
				continue
			}
			j := i + 1
			for j < n && isIdentByte(sql[j]) {
				j++
			}
			if j > i+1 {
				out = append(out, Placeholder{Name: sql[i+1 : j], Start: i, End: j})
				i = j - 1
			}
		}
	}
	return out
}

// Names returns the distinct placeholder names in order of first appearance.
func Names(sql string) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, p := range Scan(sql) {
		if _, ok := seen[p.Name]; ok {
			continue
		}
		seen[p.Name] = struct{}{}
		names = append(names, p.Name)
	}
	return names
}

func prev(s string, i int) byte {
	if i == 0 {
		return 0
	}
	return s[i-1]
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c == '#' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// skipQuoted returns the index of the closing quote; doubled quotes escape.
func skipQuoted(s string, i int, q byte) int {
	for j := i + 1; j < len(s); j++ {
		if s[j] != q {
			continue
		}
		if j+1 < len(s) && s[j+1] == q {
			j++
			continue
		}
		return j
	}
	return len(s)
}

// skipQQuote skips an Oracle alternative-quoting literal whose delimiter is at i.
func skipQQuote(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	closer := s[i]
	switch closer {
	case '[':
		closer = ']'
	case '{':
		closer = '}'
	case '(':
		closer = ')'
	case '<':
		closer = '>'
	}
	for j := i + 1; j+1 < len(s); j++ {
		if s[j] == closer && s[j+1] == '\'' {
			return j + 1
		}
	}
	return len(s)
}
