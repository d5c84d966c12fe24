// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for the oraflow CLI.
// It wires configured query nodes to a stream of JSON message envelopes and
// offers commands to store, inspect and verify database connections, using
// the Cobra CLI framework and pterm for terminal output.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	showVersion bool
	configPath  string
	logLevel    string
	logFormat   string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "oraflow",
	Short: "Run parameterized Oracle queries over a flow of JSON messages",
	Long: `oraflow executes SQL and PL/SQL statements against Oracle (or PostgreSQL)
connection pools for every message envelope it receives, and emits the results
as new envelopes. Connections are described in a JSON configuration file;
passwords live in the OS keychain.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			printVersion(cmd.OutOrStdout())
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the configuration file (default: $XDG_CONFIG_HOME/oraflow/config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error, off")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
}
