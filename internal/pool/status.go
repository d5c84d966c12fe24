// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pool

import "time"

// Event is a pool status transition broadcast to subscribers.
type Event string

const (
	EventConnecting   Event = "connecting"
	EventConnected    Event = "connected"
	EventReconnecting Event = "reconnecting"
	EventError        Event = "error"
	EventClosed       Event = "closed"
)

// StatusEvent is one broadcast. Err is set for EventError.
type StatusEvent struct {
	Server string
	Event  Event
	Err    error
	At     time.Time
}

// State is the manager's lifecycle state.
type State int

const (
	StateUnconnected State = iota
	StateConnecting
	StateConnected
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unconnected"
	}
}

// Listener receives status events. Listeners run on the publishing goroutine
// and must not block.
type Listener func(StatusEvent)

type subscription struct {
	id int
	fn Listener
}
