// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"os"
	"sort"

	"github.com/pterm/pterm"

	"oraflow/cli/internal/config"
	"oraflow/cli/internal/driver"
	"oraflow/cli/internal/driver/oracle"
	"oraflow/cli/internal/driver/postgres"
	"oraflow/cli/internal/flow"
	"oraflow/cli/internal/keychain"
	"oraflow/cli/internal/logging"
)

var lookupEnv = os.LookupEnv

// env bundles what every command that talks to a database needs.
type env struct {
	path     string
	cfg      config.Config
	settings config.Settings
	log      *logging.FlowLogger
}

// loadEnv reads the configuration file, resolves it against stored
// credentials and builds the logger. Flags override file settings.
func loadEnv() (*env, error) {
	path, err := config.Path(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	effective := cfg
	if logLevel != "" {
		effective.LogLevel = logLevel
	}
	if logFormat != "" {
		effective.LogFormat = logFormat
	}
	settings, err := config.Resolve(effective, credentialLookup())
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(settings.LogLevel, settings.LogFormat, os.Stderr)
	if err != nil {
		return nil, err
	}
	return &env{
		path:     path,
		cfg:      cfg,
		settings: settings,
		log:      logging.NewFlowLogger(logger),
	}, nil
}

// credentialLookup returns the keychain lookup, or nil when no keychain is
// usable. Environment credentials still apply in that case.
func credentialLookup() config.CredentialLookup {
	km, err := keychain.GetManager()
	if err != nil {
		return nil
	}
	return km.Lookup
}

// drivers returns one instance of every supported backend.
func drivers() map[string]driver.Driver {
	return map[string]driver.Driver{
		"oracle":   oracle.New(),
		"postgres": postgres.New(),
	}
}

func (e *env) serverNames() []string {
	names := make([]string, 0, len(e.settings.Servers))
	for name := range e.settings.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// showStatus prints a node's status line, or logs it when logs are JSON.
func (e *env) showStatus(name string, s flow.Status) {
	if e.settings.LogFormat == "json" {
		e.log.Info("node status", "node", name, "fill", string(s.Fill), "shape", string(s.Shape), "text", s.Text)
		return
	}
	pterm.Fprintln(os.Stderr, logging.RenderStatus(name, s))
}
