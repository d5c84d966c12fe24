// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"oraflow/cli/internal/config"
	"oraflow/cli/internal/driver"
	oerrors "oraflow/cli/internal/errors"
	"oraflow/cli/internal/flow"
	"oraflow/cli/internal/logging"
	"oraflow/cli/internal/node"
	"oraflow/cli/internal/pool"
	"oraflow/cli/internal/retry"
)

// keyNode routes an inbound envelope and tags an outbound one.
const keyNode = "_node"

// maxEnvelope is the longest accepted input line.
const maxEnvelope = 16 << 20

// statusFunc shows a node's status indicator.
type statusFunc func(name string, s flow.Status)

// flowRuntime owns the nodes of one run and the pools they share.
type flowRuntime struct {
	reg   *pool.Registry
	nodes map[string]*node.Node
	order []string
	out   *envelopeWriter
	log   *logging.FlowLogger
}

func newRuntime(s config.Settings, drv map[string]driver.Driver, log *logging.FlowLogger, out *envelopeWriter, status statusFunc) (*flowRuntime, error) {
	rt := &flowRuntime{
		reg:   pool.NewRegistry(drv, log),
		nodes: make(map[string]*node.Node, len(s.Nodes)),
		out:   out,
		log:   log,
	}
	for _, ns := range s.Nodes {
		var (
			mgr    *pool.Manager
			policy retry.Policy
		)
		if ns.Server != "" {
			srv := s.Servers[ns.Server]
			m, err := rt.reg.Manager(srv.Identity())
			if err != nil {
				rt.shutdown()
				return nil, fmt.Errorf("node %q: %w", ns.Name, err)
			}
			mgr, policy = m, srv.Reconnect
		}
		name := ns.Name
		rt.nodes[name] = node.New(node.Options{
			Settings:  ns,
			Manager:   mgr,
			Reconnect: policy,
			Logger:    log,
			Emit:      func(m flow.Message) { out.emit(name, m) },
			Status:    func(st flow.Status) { status(name, st) },
			OnError:   func(err error, m flow.Message) { out.fail(name, err, m) },
		})
		rt.order = append(rt.order, name)
	}
	return rt, nil
}

// start opens every pool in the background. Failures are logged and
// broadcast by the managers; requests retry on arrival.
func (rt *flowRuntime) start(ctx context.Context) {
	for _, m := range rt.reg.Managers() {
		go func() { _ = m.Connect(ctx) }()
	}
}

// consume reads envelopes from r and hands them to nodes, at most limit at a
// time. It returns when r is exhausted and every handed envelope finished, or
// when ctx is done.
func (rt *flowRuntime) consume(ctx context.Context, r io.Reader, target string, limit int) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		var err error
		defer func() {
			readErr <- err
			close(lines)
		}()
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxEnvelope)
		for sc.Scan() {
			b := bytes.TrimSpace(sc.Bytes())
			if len(b) == 0 {
				continue
			}
			select {
			case lines <- append([]byte(nil), b...):
			case <-ctx.Done():
				return
			}
		}
		err = sc.Err()
	}()

	var g errgroup.Group
	g.SetLimit(limit)
	lineNo := 0
	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()
		case b, ok := <-lines:
			if !ok {
				_ = g.Wait()
				return <-readErr
			}
			lineNo++
			rt.dispatch(ctx, &g, lineNo, b, target)
		}
	}
}

func (rt *flowRuntime) dispatch(ctx context.Context, g *errgroup.Group, lineNo int, b []byte, target string) {
	var msg flow.Message
	if err := json.Unmarshal(b, &msg); err != nil || msg == nil {
		if err == nil {
			err = fmt.Errorf("envelope must be a JSON object")
		}
		rt.log.Error("skipping unreadable envelope", "line", lineNo, "error", err)
		return
	}
	if name, ok := msg[keyNode].(string); ok && name != "" {
		target = name
	}
	delete(msg, keyNode)
	msg.EnsureID()

	names := rt.order
	if target != "" {
		if _, ok := rt.nodes[target]; !ok {
			rt.out.fail(target, oerrors.Newf(oerrors.ConfigurationError, "no node named %q", target), msg)
			return
		}
		names = []string{target}
	}
	for i, name := range names {
		n, m := rt.nodes[name], msg
		if i > 0 {
			m = msg.Clone()
		}
		// submitted here so queued requests keep input order
		t := n.Submit(ctx, m)
		g.Go(func() error {
			_ = t.Wait(ctx)
			return nil
		})
	}
}

// shutdown detaches every node and drains the pools.
func (rt *flowRuntime) shutdown() {
	for _, name := range rt.order {
		rt.nodes[name].Close()
	}
	if err := rt.reg.CloseAll(context.Background()); err != nil {
		rt.log.Warn("closing connection pools", "error", err)
	}
}

// envelopeWriter serializes emitted envelopes as JSON lines.
type envelopeWriter struct {
	log flow.Logger

	mu  sync.Mutex
	enc *json.Encoder
}

func newEnvelopeWriter(w io.Writer, log flow.Logger) *envelopeWriter {
	return &envelopeWriter{log: log, enc: json.NewEncoder(w)}
}

func (w *envelopeWriter) emit(name string, m flow.Message) {
	out := make(flow.Message, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[keyNode] = name
	w.write(name, out)
}

func (w *envelopeWriter) fail(name string, err error, m flow.Message) {
	kind := oerrors.KindOf(err)
	if kind == "" {
		kind = oerrors.ExecutionError
	}
	w.write(name, map[string]any{
		keyNode:    name,
		flow.KeyID: m[flow.KeyID],
		"error": map[string]any{
			"kind":    string(kind),
			"message": logging.Mask(err.Error()),
		},
	})
}

func (w *envelopeWriter) write(name string, v any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(v); err != nil {
		w.log.Error("cannot write envelope", "node", name, "error", err)
	}
}
