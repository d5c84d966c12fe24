// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"oraflow/cli/internal/config"
	"oraflow/cli/internal/dsn"
	"oraflow/cli/internal/health"
	"oraflow/cli/internal/logging"
	"oraflow/cli/internal/pool"
)

var (
	dbinfoCheck      bool
	dbinfoHealthAddr string
)

// dbinfoCmd represents the dbinfo command for displaying connection settings.
// Passwords are never shown.
var dbinfoCmd = &cobra.Command{
	Use:   "dbinfo [name]",
	Short: "Show configured database connections",
	Long: `The dbinfo command displays every configured connection (or only <name>): the
resolved target with secrets masked, the user, where the password comes from and
the pool settings.

With --check each connection is opened and verified. With --health-addr the
serving status reported by a running 'oraflow run' is shown as well.`,
	Args: cobra.MaximumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		names := e.serverNames()
		if len(args) == 1 {
			if _, ok := e.settings.Servers[args[0]]; !ok {
				pterm.Printf("⚠️  No connection named %q is configured\n", args[0])
				pterm.Printf("   Please run: oraflow connect %s\n", args[0])
				return nil
			}
			names = args
		}
		if len(names) == 0 {
			pterm.Println("⚠️  No database connection configured")
			pterm.Println("   Please run: oraflow connect <name>")
			return nil
		}

		for _, name := range names {
			srv := e.settings.Servers[name]
			lines := serverDetails(srv)
			if dbinfoCheck {
				lines = append(lines, checkLine(cmd.Context(), srv))
			}
			if dbinfoHealthAddr != "" {
				lines = append(lines, healthLine(cmd.Context(), dbinfoHealthAddr, name))
			}
			pterm.DefaultBox.
				WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint(name)).
				WithPadding(1).
				Println(strings.Join(lines, "\n"))
			pterm.Println()
		}
		pterm.Println("To update a connection, run: oraflow connect <name>")
		pterm.Println()
		return nil
	},
}

// describeTarget renders a server's target with secrets masked. Oracle aliases
// are expanded from tnsnames.ora when it can be found.
func describeTarget(id pool.Identity) string {
	target := id.Target()
	var (
		info *dsn.DSNInfo
		err  error
	)
	if id.Driver == "oracle" {
		info, err = dsn.ResolveOracle(target, id.LibDir)
	} else {
		info, err = dsn.ParseInfo(target)
	}
	if err != nil {
		return logging.Mask(target)
	}
	return dsn.Describe(info)
}

func serverDetails(srv config.ServerSettings) []string {
	label := pterm.NewStyle(pterm.FgLightCyan).Sprint
	source := "none (run 'oraflow connect " + srv.Name + "')"
	if srv.Password != "" {
		source = "OS keychain"
		if envPasswordSet() {
			source = "environment (" + config.EnvPassword + ")"
		}
	}
	reconnect := "off"
	if srv.Reconnect.Enabled {
		reconnect = fmt.Sprintf("every %s, up to %d attempts", srv.Reconnect.Backoff, srv.Reconnect.MaxAttempts)
	}
	lines := []string{
		label("Driver:     ") + srv.Driver,
		label("Target:     ") + describeTarget(srv.Identity()),
		label("User:       ") + orNone(srv.User),
		label("Password:   ") + source,
		label("Pool:       ") + fmt.Sprintf("min %d, max %d, increment %d, idle timeout %s", srv.PoolMin, srv.PoolMax, srv.PoolIncrement, srv.PoolTimeout),
		label("Drain:      ") + srv.DrainTimeout.String(),
		label("Reconnect:  ") + reconnect,
	}
	if srv.LibDir != "" {
		lines = append(lines, label("Client dir: ")+srv.LibDir)
	}
	return lines
}

func envPasswordSet() bool {
	v, ok := lookupEnv(config.EnvPassword)
	return ok && v != ""
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// checkLine opens srv once and reports the outcome.
func checkLine(ctx context.Context, srv config.ServerSettings) string {
	label := pterm.NewStyle(pterm.FgLightCyan).Sprint("Check:      ")
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	start := time.Now()
	err := verifyConnection(ctx, drivers()[srv.Driver], srv.Identity(), verifySQL(srv.Driver))
	if err != nil {
		return label + pterm.NewStyle(pterm.FgRed).Sprint("failed: ") + logging.Mask(err.Error())
	}
	return label + pterm.NewStyle(pterm.FgGreen).Sprintf("ok in %s", time.Since(start).Round(time.Millisecond))
}

// healthLine asks a running health service about server.
func healthLine(ctx context.Context, addr, server string) string {
	label := pterm.NewStyle(pterm.FgLightCyan).Sprint("Health:     ")
	st, err := health.Check(ctx, addr, server)
	if err != nil {
		return label + pterm.NewStyle(pterm.FgYellow).Sprint("unavailable: ") + logging.Mask(err.Error())
	}
	if st == healthpb.HealthCheckResponse_SERVING {
		return label + pterm.NewStyle(pterm.FgGreen).Sprint(st.String())
	}
	return label + pterm.NewStyle(pterm.FgRed).Sprint(st.String())
}

func init() {
	rootCmd.AddCommand(dbinfoCmd)
	dbinfoCmd.Flags().BoolVar(&dbinfoCheck, "check", false, "Open each connection and verify it")
	dbinfoCmd.Flags().StringVar(&dbinfoHealthAddr, "health-addr", "", "Also query the health service of a running 'oraflow run'")
}
