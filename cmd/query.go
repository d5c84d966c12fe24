// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"oraflow/cli/internal/binds"
	"oraflow/cli/internal/config"
	oerrors "oraflow/cli/internal/errors"
	"oraflow/cli/internal/flow"
	"oraflow/cli/internal/logging"
	"oraflow/cli/internal/node"
	"oraflow/cli/internal/pool"
	"oraflow/cli/internal/sqlexec"
)

var (
	queryMode     string
	queryLimit    int
	queryPayload  string
	queryBindVars string
	queryMappings string
	queryJSON     bool
)

// queryCmd runs one statement the way a node would and prints the result.
var queryCmd = &cobra.Command{
	Use:   "query <server> <sql>",
	Short: "Run a single statement against a configured server",
	Long: `The query command executes one statement against the named server through the
same pipeline as a flow node: bind variables come from --payload (and optional
--mappings or --bind-vars), results are shaped by --mode.

Rows are printed as a table; --json prints every emitted envelope instead.

Examples:
  oraflow query orcl "select dummy from dual where dummy = :v1" --payload '["X"]'
  oraflow query orcl "begin :n := 42; end;" --mode single-meta \
    --bind-vars '{"n": {"dir": "BIND_OUT", "type": "NUMBER"}}'`,
	Args: cobra.ExactArgs(2),

	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		server := args[0]
		srv, ok := e.settings.Servers[server]
		if !ok {
			return fmt.Errorf("unknown server %q; configure it with 'oraflow connect %s'", server, server)
		}

		msg, err := queryMessage()
		if err != nil {
			return err
		}
		ns := config.NodeSettings{
			Name:         "query",
			Server:       server,
			Query:        args[1],
			UseQuery:     true,
			ResultAction: sqlexec.Mode(queryMode),
			ResultLimit:  queryLimit,
		}
		if queryMappings != "" {
			mappings, err := binds.ParseMappings(queryMappings)
			if err != nil {
				return err
			}
			ns.UseMappings, ns.Mappings = true, mappings
		}

		mgr := pool.New(drivers()[srv.Driver], srv.Identity(), e.log)
		defer func() { _ = mgr.Close(context.Background()) }()

		var (
			mu      sync.Mutex
			emitted []flow.Message
		)
		area := &statusArea{}
		interactive := !queryJSON && term.IsTerminal(int(os.Stdout.Fd()))
		if interactive {
			area = startStatusArea(server)
		}
		n := node.New(node.Options{
			Settings:  ns,
			Manager:   mgr,
			Reconnect: srv.Reconnect,
			Logger:    e.log,
			Emit: func(m flow.Message) {
				mu.Lock()
				emitted = append(emitted, m)
				mu.Unlock()
			},
			Status: func(s flow.Status) {
				if interactive {
					area.set(s)
				}
			},
		})
		defer n.Close()

		err = n.Handle(cmd.Context(), msg)
		area.Stop()
		if err != nil {
			if oerrors.IsKind(err, oerrors.ConnectError) {
				pterm.Println(logging.FormatConnectError(server, err))
			}
			return err
		}

		if queryJSON {
			return printEnvelopes(cmd.OutOrStdout(), emitted)
		}
		return printResult(sqlexec.Mode(queryMode), emitted)
	},
}

// queryMessage builds the inbound envelope from --payload and --bind-vars.
func queryMessage() (flow.Message, error) {
	var payload any
	if queryPayload != "" {
		if err := json.Unmarshal([]byte(queryPayload), &payload); err != nil {
			return nil, fmt.Errorf("--payload is not valid JSON: %w", err)
		}
	}
	msg := flow.NewMessage(payload)
	if queryBindVars != "" {
		var bv any
		if err := json.Unmarshal([]byte(queryBindVars), &bv); err != nil {
			return nil, fmt.Errorf("--bind-vars is not valid JSON: %w", err)
		}
		msg[flow.KeyBindVars] = bv
	}
	return msg, nil
}

func printEnvelopes(w io.Writer, msgs []flow.Message) error {
	enc := json.NewEncoder(w)
	for _, m := range msgs {
		if err := enc.Encode(m); err != nil {
			return err
		}
	}
	return nil
}

func printResult(mode sqlexec.Mode, msgs []flow.Message) error {
	switch mode {
	case sqlexec.ModeSingle, sqlexec.ModeMulti:
		var rows []map[string]any
		for _, m := range msgs {
			if chunk, ok := m.Payload().([]map[string]any); ok {
				rows = append(rows, chunk...)
			}
		}
		if len(rows) == 0 {
			pterm.Println(pterm.NewStyle(pterm.FgGray).Sprint("no rows"))
			return nil
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(rowsTable(rows)).Render(); err != nil {
			return err
		}
		pterm.Println(pterm.NewStyle(pterm.FgGray).Sprintf("%d row(s) in %d envelope(s)", len(rows), len(msgs)))
	case sqlexec.ModeSingleMeta:
		for _, m := range msgs {
			b, err := json.MarshalIndent(m.Payload(), "", "  ")
			if err != nil {
				return err
			}
			pterm.DefaultBox.
				WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Statement result")).
				WithPadding(1).
				Println(string(b))
		}
	default:
		pterm.Println("✅ Statement executed")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryMode, "mode", "m", string(sqlexec.ModeSingle), "Result mode: single, single-meta, multi or none")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "l", sqlexec.DefaultLimit, "Rows per envelope in multi mode")
	queryCmd.Flags().StringVarP(&queryPayload, "payload", "p", "", "JSON payload bind variables are taken from")
	queryCmd.Flags().StringVar(&queryBindVars, "bind-vars", "", "JSON object of explicit typed bind variables")
	queryCmd.Flags().StringVar(&queryMappings, "mappings", "", "JSON array of payload paths for positional binds")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Print emitted envelopes as JSON lines")
}
