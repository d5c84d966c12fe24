// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"oraflow/cli/internal/binds"
	oerrors "oraflow/cli/internal/errors"
	"oraflow/cli/internal/pool"
	"oraflow/cli/internal/retry"
	"oraflow/cli/internal/sqlexec"
)

// Defaults applied by Resolve.
const (
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultConcurrency      = 4
	DefaultDriver           = "oracle"
	DefaultHost             = "localhost"
	DefaultOraclePort       = 1521
	DefaultPostgresPort     = 5432
	DefaultDB               = "orcl"
	DefaultPoolMin          = 0
	DefaultPoolMax          = 4
	DefaultPoolIncrement    = 1
	DefaultPoolTimeout      = 60 * time.Second
	DefaultReconnectBackoff = 5 * time.Second
	DefaultReconnectTries   = 5
	DefaultStatusCooldown   = 5 * time.Second
)

// Environment variables consulted for credentials before the keychain.
const (
	EnvUser     = "ORAFLOW_USER"
	EnvPassword = "ORAFLOW_PASSWORD"
)

var lookupEnv = os.LookupEnv

// CredentialLookup returns stored credentials for a connection name. ok is
// false when nothing is stored.
type CredentialLookup func(server string) (user, password string, ok bool)

// Settings is the validated, immutable result of Resolve.
type Settings struct {
	LogLevel    string
	LogFormat   string
	Concurrency int
	HealthAddr  string
	Servers     map[string]ServerSettings
	Nodes       []NodeSettings
}

// ServerSettings is one resolved server binding.
type ServerSettings struct {
	Name          string
	Driver        string
	ConnectString string
	Host          string
	Port          int
	DB            string
	LibDir        string
	User          string
	Password      string
	PoolMin       int
	PoolMax       int
	PoolIncrement int
	PoolTimeout   time.Duration
	DrainTimeout  time.Duration
	Reconnect     retry.Policy
}

// Identity returns the pool identity for s.
func (s ServerSettings) Identity() pool.Identity {
	return pool.Identity{
		Name:          s.Name,
		Driver:        s.Driver,
		ConnectString: s.ConnectString,
		Host:          s.Host,
		Port:          s.Port,
		Service:       s.DB,
		LibDir:        s.LibDir,
		User:          s.User,
		Password:      s.Password,
		Min:           s.PoolMin,
		Max:           s.PoolMax,
		Increment:     s.PoolIncrement,
		IdleTimeout:   s.PoolTimeout,
		DrainTimeout:  s.DrainTimeout,
	}
}

// NodeSettings is one resolved query node.
type NodeSettings struct {
	Name           string
	Server         string
	Query          string
	UseQuery       bool
	UseMappings    bool
	Mappings       []string
	ResultAction   sqlexec.Mode
	ResultLimit    int
	StatusCooldown time.Duration
}

// Resolve validates c and applies defaults. creds may be nil.
func Resolve(c Config, creds CredentialLookup) (Settings, error) {
	s := Settings{
		LogLevel:    orDefault(strings.ToLower(c.LogLevel), DefaultLogLevel),
		LogFormat:   orDefault(strings.ToLower(c.LogFormat), DefaultLogFormat),
		Concurrency: c.Concurrency,
		HealthAddr:  c.HealthAddr,
		Servers:     make(map[string]ServerSettings, len(c.Servers)),
	}
	if s.Concurrency <= 0 {
		s.Concurrency = DefaultConcurrency
	}
	if s.LogFormat != "text" && s.LogFormat != "json" {
		return Settings{}, oerrors.Newf(oerrors.ConfigurationError, "logFormat must be text or json, got %q", c.LogFormat)
	}

	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		srv, err := resolveServer(name, c.Servers[name], creds)
		if err != nil {
			return Settings{}, err
		}
		s.Servers[name] = srv
	}

	seen := map[string]bool{}
	for i, nc := range c.Nodes {
		n, err := resolveNode(i, nc)
		if err != nil {
			return Settings{}, err
		}
		if seen[n.Name] {
			return Settings{}, oerrors.Newf(oerrors.ConfigurationError, "duplicate node name %q", n.Name)
		}
		seen[n.Name] = true
		if n.Server != "" {
			if _, ok := s.Servers[n.Server]; !ok {
				return Settings{}, oerrors.Newf(oerrors.ConfigurationError, "node %q refers to unknown server %q", n.Name, n.Server)
			}
		}
		s.Nodes = append(s.Nodes, n)
	}
	return s, nil
}

// ResolveServer resolves a single server entry, for commands that work on one
// connection.
func ResolveServer(name string, sc ServerConfig, creds CredentialLookup) (ServerSettings, error) {
	return resolveServer(name, sc, creds)
}

func resolveServer(name string, sc ServerConfig, creds CredentialLookup) (ServerSettings, error) {
	bad := func(format string, args ...any) error {
		return oerrors.Newf(oerrors.ConfigurationError, "server %q: "+format, append([]any{name}, args...)...)
	}
	if strings.TrimSpace(name) == "" {
		return ServerSettings{}, oerrors.New(oerrors.ConfigurationError, "server entries need a connection name")
	}

	s := ServerSettings{
		Name:          name,
		Driver:        orDefault(strings.ToLower(sc.Driver), DefaultDriver),
		ConnectString: strings.TrimSpace(sc.TNSName),
		Host:          orDefault(sc.Host, DefaultHost),
		Port:          sc.Port,
		DB:            orDefault(sc.DB, DefaultDB),
		LibDir:        sc.LibDir,
		User:          sc.User,
		PoolMin:       sc.PoolMin,
		PoolMax:       sc.PoolMax,
		PoolIncrement: sc.PoolIncrement,
		PoolTimeout:   time.Duration(sc.PoolTimeout) * time.Second,
		DrainTimeout:  time.Duration(sc.DrainTimeout) * time.Second,
	}
	switch s.Driver {
	case "oracle":
		if s.Port == 0 {
			s.Port = DefaultOraclePort
		}
	case "postgres":
		if s.Port == 0 {
			s.Port = DefaultPostgresPort
		}
	default:
		return ServerSettings{}, bad("unknown driver %q (want oracle or postgres)", sc.Driver)
	}
	if s.Port < 1 || s.Port > 65535 {
		return ServerSettings{}, bad("port %d out of range", s.Port)
	}
	if s.PoolMax == 0 {
		s.PoolMax = DefaultPoolMax
	}
	if s.PoolIncrement == 0 {
		s.PoolIncrement = DefaultPoolIncrement
	}
	if s.PoolMin < 0 || s.PoolMax < 1 || s.PoolMin > s.PoolMax {
		return ServerSettings{}, bad("invalid pool sizing min=%d max=%d", s.PoolMin, s.PoolMax)
	}
	if s.PoolTimeout <= 0 {
		s.PoolTimeout = DefaultPoolTimeout
	}
	if s.DrainTimeout <= 0 {
		s.DrainTimeout = pool.DefaultDrainTimeout
	}

	s.Reconnect = retry.Policy{
		Enabled:     sc.Reconnect == nil || *sc.Reconnect,
		Backoff:     DefaultReconnectBackoff,
		MaxAttempts: sc.ReconnectMaxAttempts,
	}
	if sc.ReconnectMaxAttempts == 0 {
		s.Reconnect.MaxAttempts = DefaultReconnectTries
	}
	if sc.ReconnectBackoff != "" {
		d, err := time.ParseDuration(sc.ReconnectBackoff)
		if err != nil || d < 0 {
			return ServerSettings{}, bad("invalid reconnectBackoff %q", sc.ReconnectBackoff)
		}
		s.Reconnect.Backoff = d
	}

	if v, ok := lookupEnv(EnvUser); ok && v != "" {
		s.User = v
	}
	if v, ok := lookupEnv(EnvPassword); ok && v != "" {
		s.Password = v
	}
	if s.Password == "" && creds != nil {
		if user, password, ok := creds(name); ok {
			if s.User == "" || user == s.User {
				s.User, s.Password = user, password
			}
		}
	}
	return s, nil
}

func resolveNode(i int, nc NodeConfig) (NodeSettings, error) {
	name := strings.TrimSpace(nc.Name)
	if name == "" {
		name = fmt.Sprintf("node-%d", i+1)
	}
	n := NodeSettings{
		Name:           name,
		Server:         nc.Server,
		Query:          nc.Query,
		UseQuery:       nc.UseQuery,
		UseMappings:    nc.UseMappings,
		ResultAction:   sqlexec.Mode(nc.ResultAction),
		ResultLimit:    nc.ResultLimit,
		StatusCooldown: DefaultStatusCooldown,
	}
	if n.ResultAction == "" {
		n.ResultAction = sqlexec.DefaultMode
	}
	if n.ResultLimit <= 0 {
		n.ResultLimit = sqlexec.DefaultLimit
	}
	if nc.StatusCooldown != "" {
		d, err := time.ParseDuration(nc.StatusCooldown)
		if err != nil || d <= 0 {
			return NodeSettings{}, oerrors.Newf(oerrors.ConfigurationError, "node %q: invalid statusCooldown %q", name, nc.StatusCooldown)
		}
		n.StatusCooldown = d
	}
	mappings, err := parseMappings(nc.Mappings)
	if err != nil {
		return NodeSettings{}, oerrors.Wrap(oerrors.BindResolutionError, fmt.Sprintf("node %q: invalid mappings", name), err)
	}
	n.Mappings = mappings
	return n, nil
}

// parseMappings accepts either an inline JSON array or a string holding one.
func parseMappings(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		return binds.ParseMappings(encoded)
	}
	return binds.ParseMappings(string(raw))
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
