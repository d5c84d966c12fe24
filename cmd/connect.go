// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"oraflow/cli/internal/binds"
	"oraflow/cli/internal/config"
	"oraflow/cli/internal/driver"
	"oraflow/cli/internal/flow"
	"oraflow/cli/internal/keychain"
	"oraflow/cli/internal/logging"
	"oraflow/cli/internal/pool"
	"oraflow/cli/internal/terminal"
)

var (
	connectDriver        string
	connectHost          string
	connectPort          int
	connectDB            string
	connectTNS           string
	connectLibDir        string
	connectUser          string
	connectPasswordStdin bool
)

// verifyTimeout bounds pool creation plus the verification query.
const verifyTimeout = 15 * time.Second

// connectCmd represents the connect command for storing a verified server
// connection.
var connectCmd = &cobra.Command{
	Use:   "connect <name>",
	Short: "Configure and verify a database connection",
	Long: `The connect command describes a named database connection, prompts for the
user and password, and verifies them by running a trivial query. On success the
connection settings are written to the configuration file and the credentials
are stored in the OS keychain under the connection name.

Flags left unset keep the values already configured for <name>.

Examples:
  oraflow connect orcl --host db.internal --port 1521 --db ORCLPDB1
  oraflow connect reports --tns REPORTS_HA --instant-client /opt/oracle/instantclient_21
  oraflow connect pg --driver postgres --host localhost --db app`,
	Args: cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		e, err := loadEnv()
		if err != nil {
			return err
		}

		sc := e.cfg.Servers[name]
		flags := cmd.Flags()
		if flags.Changed("driver") {
			sc.Driver = connectDriver
		}
		if flags.Changed("host") {
			sc.Host = connectHost
		}
		if flags.Changed("port") {
			sc.Port = connectPort
		}
		if flags.Changed("db") {
			sc.DB = connectDB
		}
		if flags.Changed("tns") {
			sc.TNSName = connectTNS
		}
		if flags.Changed("instant-client") {
			sc.LibDir = connectLibDir
		}
		if flags.Changed("user") {
			sc.User = connectUser
		}

		reader := bufio.NewReader(os.Stdin)
		if sc.User == "" {
			prompt := "Database user: "
			user, err := terminal.PromptLine(reader, os.Stdout, prompt)
			if err != nil {
				return err
			}
			terminal.ClearPreviousLines(os.Stdout, len(prompt)+len(user))
			if user == "" {
				return errors.New("user is required")
			}
			sc.User = user
		}

		var password string
		if connectPasswordStdin {
			password, err = terminal.PromptLine(reader, os.Stdout, "")
		} else {
			password, err = terminal.PromptPassword(os.Stdout, fmt.Sprintf("Password for %s: ", sc.User))
			if errors.Is(err, terminal.ErrNotTerminal) {
				return errors.New("no terminal to read the password from; use --password-stdin")
			}
		}
		if err != nil {
			return err
		}

		srv, err := config.ResolveServer(name, sc, nil)
		if err != nil {
			return err
		}
		srv.User, srv.Password = sc.User, password
		id := srv.Identity()

		stopSpinner := startInlineSpinner(os.Stdout, "verifying connection to "+describeTarget(id), spinnerFrames, 100*time.Millisecond)
		ctx, cancel := context.WithTimeout(cmd.Context(), verifyTimeout)
		defer cancel()
		err = verifyConnection(ctx, drivers()[srv.Driver], id, verifySQL(srv.Driver))
		stopSpinner()
		if err != nil {
			pterm.Println(logging.FormatConnectError(name, err))
			return err
		}

		km, err := keychain.GetManager()
		if err != nil {
			fmt.Println("❌ Secure storage is not available on this system.")
			fmt.Println("   Connection verified but not saved.")
			return err
		}
		if err := km.SaveCredentials(name, keychain.Credentials{User: sc.User, Password: password}); err != nil {
			fmt.Println("❌ Failed to save credentials securely.")
			return err
		}

		if e.cfg.Servers == nil {
			e.cfg.Servers = map[string]config.ServerConfig{}
		}
		e.cfg.Servers[name] = sc
		if err := config.Save(e.path, e.cfg); err != nil {
			return err
		}

		fmt.Printf("✅ Connection %q verified and saved!\n", name)
		fmt.Printf("   Bind nodes to it with \"server\": %q in %s\n", name, e.path)
		return nil
	},
}

// verifySQL is the statement used to prove a login works.
func verifySQL(driverName string) string {
	if driverName == "postgres" {
		return "select 1"
	}
	return "select 1 from dual"
}

// verifyConnection opens a pool for id, runs sql once and closes the pool.
func verifyConnection(ctx context.Context, drv driver.Driver, id pool.Identity, sql string) error {
	if drv == nil {
		return fmt.Errorf("unknown driver %q", id.Driver)
	}
	m := pool.New(drv, id, flow.NopLogger{})
	defer func() { _ = m.Close(context.Background()) }()

	if err := m.Connect(ctx); err != nil {
		return err
	}
	conn, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	res, err := conn.Execute(ctx, sql, binds.Positional(), driver.ExecOptions{MaxRows: 1})
	if err != nil {
		_ = m.Discard(conn)
		return err
	}
	if res.Cursor != nil {
		_ = res.Cursor.Close()
	}
	return m.Release(conn)
}

func init() {
	rootCmd.AddCommand(connectCmd)
	connectCmd.Flags().StringVar(&connectDriver, "driver", "", "Database driver: oracle or postgres (default oracle)")
	connectCmd.Flags().StringVar(&connectHost, "host", "", "Database host (default localhost)")
	connectCmd.Flags().IntVar(&connectPort, "port", 0, "Listener port (default 1521, 5432 for postgres)")
	connectCmd.Flags().StringVar(&connectDB, "db", "", "Service or database name (default orcl)")
	connectCmd.Flags().StringVar(&connectTNS, "tns", "", "tnsnames.ora alias, connect descriptor or URL; overrides host/port/db")
	connectCmd.Flags().StringVar(&connectLibDir, "instant-client", "", "Oracle client directory holding network/admin/tnsnames.ora")
	connectCmd.Flags().StringVarP(&connectUser, "user", "u", "", "Database user")
	connectCmd.Flags().BoolVar(&connectPasswordStdin, "password-stdin", false, "Read the password from stdin")
}
