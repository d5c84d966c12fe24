// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// tnsAdminEnv overrides the directory holding tnsnames.ora.
const tnsAdminEnv = "TNS_ADMIN"

// lookupEnv is replaced in tests.
var lookupEnv = os.LookupEnv

// TNSNamesPath returns the tnsnames.ora location for libDir: $TNS_ADMIN when
// set, otherwise <libDir>/network/admin. Empty when neither applies.
func TNSNamesPath(libDir string) string {
	if dir, ok := lookupEnv(tnsAdminEnv); ok && strings.TrimSpace(dir) != "" {
		return filepath.Join(dir, "tnsnames.ora")
	}
	if strings.TrimSpace(libDir) == "" {
		return ""
	}
	return filepath.Join(libDir, "network", "admin", "tnsnames.ora")
}

// LookupAlias resolves alias to its connect descriptor. It returns an empty
// descriptor when the file or the entry does not exist, along with the path
// that was consulted.
func LookupAlias(libDir, alias string) (descriptor, path string, err error) {
	path = TNSNamesPath(libDir)
	if path == "" {
		return "", "", nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", path, nil
	}
	if err != nil {
		return "", path, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	entries, err := ParseTNSNames(f)
	if err != nil {
		return "", path, fmt.Errorf("parse %s: %w", path, err)
	}
	return entries[strings.ToUpper(alias)], path, nil
}

// ParseTNSNames reads tnsnames.ora entries. Keys are upper-cased aliases;
// an entry may declare several comma-separated aliases. Values are the
// descriptors with whitespace collapsed. Non-descriptor entries such as
// IFILE are skipped.
func ParseTNSNames(r io.Reader) (map[string]string, error) {
	var b strings.Builder
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	src := b.String()
	out := map[string]string{}
	i := 0
	for i < len(src) {
		eq := strings.IndexByte(src[i:], '=')
		if eq < 0 {
			break
		}
		names := strings.TrimSpace(src[i : i+eq])
		i += eq + 1
		for i < len(src) && isSpace(src[i]) {
			i++
		}
		if i >= len(src) {
			break
		}
		if src[i] != '(' {
			// IFILE = path and similar
			if nl := strings.IndexByte(src[i:], '\n'); nl >= 0 {
				i += nl + 1
			} else {
				i = len(src)
			}
			continue
		}

		start, depth := i, 0
		for ; i < len(src); i++ {
			if src[i] == '(' {
				depth++
			} else if src[i] == ')' {
				depth--
				if depth == 0 {
					i++
					break
				}
			}
		}
		if depth != 0 {
			return nil, fmt.Errorf("unbalanced parentheses in entry %q", names)
		}
		desc := collapseSpace(src[start:i])
		for _, n := range strings.Split(names, ",") {
			if n = strings.TrimSpace(n); n != "" {
				out[strings.ToUpper(n)] = desc
			}
		}
	}
	return out, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
