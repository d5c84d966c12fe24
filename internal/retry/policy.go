// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package retry provides the bounded, fixed-backoff policy used to recover from
// connection loss: how long to wait before the next attempt and whether another
// attempt is allowed at all.
package retry

import "time"

// Policy is a fixed-backoff retry policy.
// A zero MaxAttempts means attempts are unbounded.
type Policy struct {
	Enabled     bool
	Backoff     time.Duration
	MaxAttempts int
}

// Disabled never allows a retry.
var Disabled = Policy{}

// Allow reports whether retry number attempt (1-based) may run.
func (p Policy) Allow(attempt int) bool {
	if !p.Enabled || attempt < 1 {
		return false
	}
	return p.MaxAttempts <= 0 || attempt <= p.MaxAttempts
}

// Schedule runs fn after the backoff on its own goroutine. The returned stop
// function cancels a pending run and reports whether it did so.
func (p Policy) Schedule(fn func()) (stop func() bool) {
	t := time.AfterFunc(p.Backoff, fn)
	return t.Stop
}
