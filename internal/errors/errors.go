// Package errors defines typed errors with categories for user-friendly reporting.
// Every failure that reaches a flow node carries a machine-readable Kind so the
// dispatcher can decide whether to retry, report or only log it, and so
// operators see a consistent prefix in logs and status lines.
//
// Errors wrap their cause, so errors.Is / errors.As from the standard library
// keep working through an *E.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// ConfigurationError indicates a missing server binding or unusable node settings.
	ConfigurationError Kind = "configuration_error"
	// PoolUnavailable indicates no ready pool could serve the request.
	PoolUnavailable Kind = "pool_unavailable"
	// ConnectError indicates the driver failed to establish the pool.
	ConnectError Kind = "connect_error"
	// InvalidBindSpec indicates an explicit typed bind referenced an unknown symbol.
	InvalidBindSpec Kind = "invalid_bind_spec"
	// BindResolutionError indicates malformed mapping configuration or bind input.
	BindResolutionError Kind = "bind_resolution_error"
	// ExecutionError indicates the backend rejected the statement.
	ExecutionError Kind = "execution_error"
	// ReleaseError indicates a connection could not be returned to the pool.
	ReleaseError Kind = "release_error"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Newf is New with fmt formatting.
func Newf(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the outermost *E in err's chain, or "" when none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether any *E in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *E
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
