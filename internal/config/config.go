// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are kept here; passwords come from the environment
// or the OS keychain.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"oraflow/cli/internal/xdg"
)

// Config is the on-disk configuration file.
type Config struct {
	LogLevel    string                  `json:"logLevel,omitempty"`
	LogFormat   string                  `json:"logFormat,omitempty"`
	Concurrency int                     `json:"concurrency,omitempty"`
	HealthAddr  string                  `json:"healthAddr,omitempty"`
	Servers     map[string]ServerConfig `json:"servers,omitempty"`
	Nodes       []NodeConfig            `json:"nodes,omitempty"`
}

// ServerConfig describes one database connection. Either TNSName (an alias,
// descriptor or URL) or Host/Port/DB identifies the target.
type ServerConfig struct {
	Driver        string `json:"driver,omitempty"`
	TNSName       string `json:"tnsName,omitempty"`
	Host          string `json:"host,omitempty"`
	Port          int    `json:"port,omitempty"`
	DB            string `json:"db,omitempty"`
	LibDir        string `json:"instantClientPath,omitempty"`
	User          string `json:"user,omitempty"`
	PoolMin       int    `json:"poolMin,omitempty"`
	PoolMax       int    `json:"poolMax,omitempty"`
	PoolIncrement int    `json:"poolIncrement,omitempty"`
	// PoolTimeout and DrainTimeout are in seconds.
	PoolTimeout  int `json:"poolTimeout,omitempty"`
	DrainTimeout int `json:"drainTimeout,omitempty"`

	Reconnect            *bool  `json:"reconnect,omitempty"`
	ReconnectBackoff     string `json:"reconnectBackoff,omitempty"`
	ReconnectMaxAttempts int    `json:"reconnectMaxAttempts,omitempty"`
}

// NodeConfig describes one query node bound to a server.
type NodeConfig struct {
	Name        string `json:"name"`
	Server      string `json:"server,omitempty"`
	Query       string `json:"query,omitempty"`
	UseQuery    bool   `json:"useQuery,omitempty"`
	UseMappings bool   `json:"useMappings,omitempty"`
	// Mappings is a JSON array of payload paths, either inline or encoded as
	// a string.
	Mappings       json.RawMessage `json:"mappings,omitempty"`
	ResultAction   string          `json:"resultAction,omitempty"`
	ResultLimit    int             `json:"resultLimit,omitempty"`
	StatusCooldown string          `json:"statusCooldown,omitempty"`
}

// Path returns override when set, otherwise config.json in the XDG config dir.
func Path(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration; a missing file returns defaults.
func Load(path string) (Config, error) {
	var c Config
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.LogLevel = DefaultLogLevel
			c.Concurrency = DefaultConcurrency
			return c, nil
		}
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, err
	}
	return c, nil
}

// Save writes configuration with 0600 permissions.
func Save(path string, c Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
