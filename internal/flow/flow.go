// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package flow

// Sink delivers an emitted envelope downstream.
type Sink func(Message)

// Logger is the logging triple every node is handed by its runtime.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Fill is the colour of a status indicator.
type Fill string

const (
	FillGreen  Fill = "green"
	FillYellow Fill = "yellow"
	FillRed    Fill = "red"
	FillGrey   Fill = "grey"
)

// Shape is the glyph of a status indicator.
type Shape string

const (
	ShapeDot  Shape = "dot"
	ShapeRing Shape = "ring"
)

// Status is one operator-visible health indication.
type Status struct {
	Fill  Fill   `json:"fill"`
	Shape Shape  `json:"shape"`
	Text  string `json:"text"`
}

// StatusSink receives status indications for a single node.
type StatusSink func(Status)

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
