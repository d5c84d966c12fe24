// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain stores per-connection database credentials in the OS
// credential store, so passwords never live in the configuration file.
//
// On macOS the `security` command is used directly, falling back to the
// keyring library; elsewhere the keyring library picks the native backend
// (Windows Credential Manager, Secret Service, KWallet or pass).
package keychain

import (
	"encoding/json"
	"errors"
	"runtime"
	"sync"

	"github.com/99designs/keyring"
)

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "oraflow"

// ErrNotFound is returned when no credentials are stored for a connection.
var ErrNotFound = errors.New("no stored credentials")

// Credentials are the login for one connection name.
type Credentials struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

var (
	globalManager *Manager
	mu            sync.Mutex
)

// Manager provides thread-safe credential operations.
type Manager struct {
	mu      sync.RWMutex
	ring    keyring.Keyring
	backend keychainBackend
}

// keychainBackend is a native store used instead of the keyring library.
type keychainBackend interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// NewManager creates a manager over the platform's credential store.
func NewManager() (*Manager, error) {
	if runtime.GOOS == "darwin" {
		if backend, err := newSecurityBackend(); err == nil {
			return &Manager{backend: backend}, nil
		}
	}
	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	return &Manager{ring: ring}, nil
}

// NewWithKeyring wraps an already opened keyring.
func NewWithKeyring(ring keyring.Keyring) *Manager {
	return &Manager{ring: ring}
}

// GetManager returns the process-wide manager, creating it on first use.
// A failed initialization is retried on the next call.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()
	if globalManager != nil {
		return globalManager, nil
	}
	m, err := NewManager()
	if err != nil {
		return nil, err
	}
	globalManager = m
	return m, nil
}

func openRing() (keyring.Keyring, error) {
	var allowed []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		allowed = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		allowed = []keyring.BackendType{keyring.WinCredBackend}
	default:
		allowed = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
	}

	cfg := keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: allowed,
		PassPrefix:      ServiceName,
		WinCredPrefix:   ServiceName,
	}
	ring, err := keyring.Open(cfg)
	if err != nil {
		if runtime.GOOS == "darwin" {
			return nil, errors.New("macOS Keychain unavailable. On macOS 26.0+, install 'pass': brew install pass gnupg && gpg --generate-key && pass init <gpg-key-id>")
		}
		return nil, err
	}
	return ring, nil
}

func key(server string) string { return "connection/" + server }

// SaveCredentials stores the login for server, replacing any previous entry.
func (m *Manager) SaveCredentials(server string, c Credentials) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backend != nil {
		return m.backend.Set(key(server), string(data))
	}
	return m.ring.Set(keyring.Item{Key: key(server), Data: data, Label: ServiceName + " " + server})
}

// LoadCredentials returns the login stored for server, or ErrNotFound.
func (m *Manager) LoadCredentials(server string) (Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var raw []byte
	if m.backend != nil {
		s, err := m.backend.Get(key(server))
		if err != nil {
			if errors.Is(err, errKeyNotFound) {
				return Credentials{}, ErrNotFound
			}
			return Credentials{}, err
		}
		raw = []byte(s)
	} else {
		it, err := m.ring.Get(key(server))
		if err != nil {
			if errors.Is(err, keyring.ErrKeyNotFound) {
				return Credentials{}, ErrNotFound
			}
			return Credentials{}, err
		}
		raw = it.Data
	}
	if len(raw) == 0 {
		return Credentials{}, ErrNotFound
	}
	var c Credentials
	if err := json.Unmarshal(raw, &c); err != nil {
		return Credentials{}, err
	}
	return c, nil
}

// ClearCredentials removes the login stored for server. Missing entries are
// not an error.
func (m *Manager) ClearCredentials(server string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backend != nil {
		return m.backend.Delete(key(server))
	}
	if err := m.ring.Remove(key(server)); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return err
	}
	return nil
}

// Lookup adapts LoadCredentials to a lookup that reports absence as ok=false.
func (m *Manager) Lookup(server string) (user, password string, ok bool) {
	c, err := m.LoadCredentials(server)
	if err != nil {
		return "", "", false
	}
	return c.User, c.Password, true
}
