// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package flow defines the message envelope exchanged between flow nodes and the
// small set of collaborator contracts a node needs: a sink for emitted messages,
// a logging triple and an operator-visible status sink.
package flow

import (
	"github.com/google/uuid"
)

// Well-known envelope keys.
const (
	KeyID             = "_msgid"
	KeyPayload        = "payload"
	KeyQuery          = "query"
	KeyBindVars       = "bindVars"
	KeyResultAction   = "resultAction"
	KeyResultSetLimit = "resultSetLimit"
)

// Message is an open key/value envelope. It always carries a payload,
// possibly nil.
type Message map[string]any

// NewMessage returns an envelope with a fresh id and the given payload.
func NewMessage(payload any) Message {
	return Message{KeyID: NewID(), KeyPayload: payload}
}

// NewID returns a new message id.
func NewID() string {
	return uuid.NewString()
}

// EnsureID assigns a message id when the envelope has none and returns it.
func (m Message) EnsureID() string {
	if id, ok := m[KeyID].(string); ok && id != "" {
		return id
	}
	id := NewID()
	m[KeyID] = id
	return id
}

// Payload returns the payload field.
func (m Message) Payload() any {
	return m[KeyPayload]
}

// String returns the string value stored under key, or "" when absent or not a string.
func (m Message) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// WithPayload returns a shallow copy of m whose payload is replaced.
// The receiver is left untouched.
func (m Message) WithPayload(payload any) Message {
	out := make(Message, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[KeyPayload] = payload
	return out
}

// Clone returns a deep copy of the envelope. Maps and slices are copied
// recursively so mutating one clone never affects another; other values
// are copied by assignment.
func (m Message) Clone() Message {
	if m == nil {
		return nil
	}
	return cloneValue(map[string]any(m)).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Message:
		return Message(cloneValue(map[string]any(t)).(map[string]any))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e).(map[string]any)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []byte:
		return append([]byte(nil), t...)
	default:
		return v
	}
}
