// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"oraflow/cli/internal/health"
)

var (
	runInput       string
	runNode        string
	runHealthAddr  string
	runConcurrency int
)

// runCmd feeds message envelopes to the configured nodes until the input ends
// or the process is interrupted.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Feed JSON message envelopes to the configured query nodes",
	Long: `The run command reads one JSON message envelope per line from stdin (or --input)
and hands each to a query node. The node is chosen by the envelope's "_node"
field, then by --node; an envelope with neither goes to every node.

Every result envelope is written to stdout as one JSON line tagged with the
emitting node. Failures are written as {"_node", "_msgid", "error"} lines.

Example envelope:
  {"_node": "orders", "payload": {"id": 42}, "resultAction": "single"}`,

	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		if len(e.settings.Nodes) == 0 {
			return fmt.Errorf("no nodes configured; add a \"nodes\" entry to %s", e.path)
		}
		if runNode != "" && !hasNode(e, runNode) {
			return fmt.Errorf("unknown node %q", runNode)
		}

		var in io.Reader = os.Stdin
		if runInput != "" && runInput != "-" {
			f, err := os.Open(runInput)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		out := newEnvelopeWriter(cmd.OutOrStdout(), e.log)
		rt, err := newRuntime(e.settings, drivers(), e.log, out, e.showStatus)
		if err != nil {
			return err
		}
		defer rt.shutdown()

		addr := runHealthAddr
		if addr == "" {
			addr = e.settings.HealthAddr
		}
		if addr != "" {
			hs := health.NewServer()
			for _, m := range rt.reg.Managers() {
				hs.Watch(m)
			}
			served := make(chan struct{})
			go func() {
				defer close(served)
				if err := hs.Serve(ctx, addr); err != nil {
					e.log.Error("health service stopped", "addr", addr, "error", err)
				}
			}()
			defer func() {
				cancel()
				<-served
				hs.Close()
			}()
			e.log.Info("health service listening", "addr", addr)
		}

		rt.start(ctx)

		limit := runConcurrency
		if limit <= 0 {
			limit = e.settings.Concurrency
		}
		err = rt.consume(ctx, in, runNode, limit)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func hasNode(e *env, name string) bool {
	for _, n := range e.settings.Nodes {
		if n.Name == name {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runInput, "input", "i", "-", "Read envelopes from this file instead of stdin")
	runCmd.Flags().StringVarP(&runNode, "node", "n", "", "Default node for envelopes without a \"_node\" field")
	runCmd.Flags().StringVar(&runHealthAddr, "health-addr", "", "Serve gRPC health checks on this address (e.g. :50051)")
	runCmd.Flags().IntVarP(&runConcurrency, "concurrency", "c", 0, "Maximum envelopes handled at once (default from config)")
}
