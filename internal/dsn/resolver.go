// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"strings"
)

// DetectDBType detects the database type from a connect string. Descriptors
// and EZConnect strings count as Oracle.
func DetectDBType(dsn string) DBType {
	s := strings.TrimSpace(dsn)
	lower := strings.ToLower(s)

	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DBTypePostgreSQL
	case strings.HasPrefix(lower, "oracle://"), strings.HasPrefix(s, "("):
		return DBTypeOracle
	case s != "" && !strings.Contains(s, "://") && isEZConnect(s):
		return DBTypeOracle
	}
	return DBTypeUnknown
}

func resolverFor(dsn string) (Resolver, error) {
	if dsn == "" {
		return nil, NewParseError(dsn, "empty DSN", "provide a valid database connection string")
	}
	switch DetectDBType(dsn) {
	case DBTypePostgreSQL:
		return NewPostgreSQLResolver(), nil
	case DBTypeOracle:
		return NewOracleResolver(), nil
	}
	return nil, NewParseError(dsn, "unknown database type", "use host:port/service, (DESCRIPTION=...), oracle:// or postgres://")
}

// Parse parses a connect string and returns the normalized form.
func Parse(dsn string) (string, error) {
	resolver, err := resolverFor(dsn)
	if err != nil {
		return "", err
	}
	info, err := resolver.Parse(dsn)
	if err != nil {
		return "", err
	}
	return resolver.Normalize(info)
}

// Validate validates a connect string without normalizing it.
func Validate(dsn string) error {
	resolver, err := resolverFor(dsn)
	if err != nil {
		return err
	}
	return resolver.Validate(dsn)
}

// ParseInfo parses a connect string and returns its structured form.
func ParseInfo(dsn string) (*DSNInfo, error) {
	resolver, err := resolverFor(dsn)
	if err != nil {
		return nil, err
	}
	return resolver.Parse(dsn)
}

// Describe renders info for display with the password masked.
func Describe(info *DSNInfo) string {
	if info == nil {
		return ""
	}
	if info.Descriptor != "" {
		if info.Alias != "" {
			return info.Alias + " => " + info.Descriptor
		}
		return info.Descriptor
	}
	var b strings.Builder
	if info.User != "" {
		b.WriteString(info.User)
		if info.Password != "" {
			b.WriteString(":****")
		}
		b.WriteByte('@')
	}
	b.WriteString(info.Host)
	if info.Port != "" {
		b.WriteByte(':')
		b.WriteString(info.Port)
	}
	if info.Database != "" {
		b.WriteByte('/')
		b.WriteString(info.Database)
	}
	return b.String()
}
