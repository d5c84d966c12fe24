// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package dsn resolves the connect strings a server binding is configured
// with into structured connection targets: Oracle EZConnect strings, oracle://
// URLs, full connect descriptors and tnsnames.ora aliases, and PostgreSQL
// URLs for the secondary backend.
package dsn

import "fmt"

// DBType represents the type of database
type DBType string

const (
	DBTypePostgreSQL DBType = "postgresql"
	DBTypeOracle     DBType = "oracle"
	DBTypeUnknown    DBType = "unknown"
)

// DSNInfo contains parsed information from a connect string.
type DSNInfo struct {
	Type     DBType
	Host     string
	Port     string
	User     string
	Password string
	// Database is the PostgreSQL database or the Oracle service name.
	Database string
	// Descriptor is a full Oracle connect descriptor, set when the target was
	// given as (DESCRIPTION=...) or resolved from a tnsnames.ora alias. Host,
	// Port and Database are empty in that case.
	Descriptor string
	// Alias is the tnsnames.ora alias the descriptor was resolved from.
	Alias    string
	Params   map[string]string
	Original string
}

// String returns the connect string the info was parsed from.
func (d *DSNInfo) String() string {
	return d.Original
}

// Resolver is an interface for database-specific connect-string resolution.
type Resolver interface {
	// Parse parses a connect string and returns structured info.
	Parse(dsn string) (*DSNInfo, error)

	// Normalize converts info back into a canonical connect string.
	Normalize(info *DSNInfo) (string, error)

	// Validate checks if the connect string is valid for the database type.
	Validate(dsn string) error
}

// ParseError represents an error that occurred during connect-string parsing.
type ParseError struct {
	DSN    string
	Reason string
	Hint   string
}

func (e *ParseError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("invalid connect string: %s (hint: %s)", e.Reason, e.Hint)
	}
	return fmt.Sprintf("invalid connect string: %s", e.Reason)
}

// NewParseError creates a new ParseError.
func NewParseError(dsn, reason, hint string) *ParseError {
	return &ParseError{
		DSN:    dsn,
		Reason: reason,
		Hint:   hint,
	}
}
