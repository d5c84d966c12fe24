// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
)

// ParseLevel maps a level name to a pterm log level.
func ParseLevel(level string) (pterm.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return pterm.LogLevelTrace, nil
	case "debug":
		return pterm.LogLevelDebug, nil
	case "", "info":
		return pterm.LogLevelInfo, nil
	case "warn", "warning":
		return pterm.LogLevelWarn, nil
	case "error":
		return pterm.LogLevelError, nil
	case "off", "disabled":
		return pterm.LogLevelDisabled, nil
	}
	return pterm.LogLevelInfo, fmt.Errorf("unknown log level %q", level)
}

// NewLogger returns a pterm logger writing to w in the given format
// ("text" or "json").
func NewLogger(level, format string, w io.Writer) (*pterm.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	l := pterm.DefaultLogger.WithLevel(lvl).WithWriter(w)
	switch strings.ToLower(format) {
	case "", "text":
		l = l.WithFormatter(pterm.LogFormatterColorful)
	case "json":
		l = l.WithFormatter(pterm.LogFormatterJSON)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return l, nil
}

// FlowLogger adapts a pterm logger to the Info/Warn/Error triple nodes and
// pool managers log through. Messages and string-like values are masked.
type FlowLogger struct {
	l     *pterm.Logger
	scope []any
}

// NewFlowLogger wraps l. Key/value pairs in scope are attached to every line.
func NewFlowLogger(l *pterm.Logger, scope ...any) *FlowLogger {
	return &FlowLogger{l: l, scope: scope}
}

// With returns a logger that adds kv to every line.
func (f *FlowLogger) With(kv ...any) *FlowLogger {
	scope := make([]any, 0, len(f.scope)+len(kv))
	scope = append(scope, f.scope...)
	scope = append(scope, kv...)
	return &FlowLogger{l: f.l, scope: scope}
}

func (f *FlowLogger) Info(msg string, args ...any) {
	f.l.Info(Mask(msg), f.args(args))
}

func (f *FlowLogger) Warn(msg string, args ...any) {
	f.l.Warn(Mask(msg), f.args(args))
}

func (f *FlowLogger) Error(msg string, args ...any) {
	f.l.Error(Mask(msg), f.args(args))
}

func (f *FlowLogger) args(kv []any) []pterm.LoggerArgument {
	all := make([]any, 0, len(f.scope)+len(kv))
	all = append(all, f.scope...)
	all = append(all, kv...)
	for i := 1; i < len(all); i += 2 {
		all[i] = maskValue(all[i])
	}
	return f.l.Args(all...)
}

func maskValue(v any) any {
	switch t := v.(type) {
	case string:
		return Mask(t)
	case error:
		return Mask(t.Error())
	case fmt.Stringer:
		return Mask(t.String())
	}
	return v
}
