// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"oraflow/cli/internal/config"
	"oraflow/cli/internal/keychain"
)

var forgetRemove bool

// forgetCmd removes stored credentials for a connection.
var forgetCmd = &cobra.Command{
	Use:   "forget <name>",
	Short: "Remove the saved credentials of a connection",
	Long: `The forget command deletes the user and password stored in the OS keychain for
the named connection. Nodes bound to it will fail to connect until
'oraflow connect <name>' is run again or ORAFLOW_USER/ORAFLOW_PASSWORD are set.

With --remove the connection is also deleted from the configuration file.`,
	Args: cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		km, err := keychain.GetManager()
		if err != nil {
			fmt.Println("❌ Secure storage is not available on this system.")
			return err
		}
		if err := km.ClearCredentials(name); err != nil {
			return err
		}

		if forgetRemove {
			path, err := config.Path(configPath)
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if _, ok := cfg.Servers[name]; ok {
				delete(cfg.Servers, name)
				if err := config.Save(path, cfg); err != nil {
					return err
				}
			}
		}

		fmt.Printf("✅ Credentials for %q have been removed\n", name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(forgetCmd)
	forgetCmd.Flags().BoolVar(&forgetRemove, "remove", false, "Also delete the connection from the configuration file")
}
