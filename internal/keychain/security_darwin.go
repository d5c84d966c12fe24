// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build darwin

package keychain

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

var errKeyNotFound = errors.New("key not found")

// isVerbose checks if verbose mode is enabled dynamically
func isVerbose() bool {
	return os.Getenv("ORAFLOW_VERBOSE") == "1"
}

func debugf(format string, args ...any) {
	if isVerbose() {
		fmt.Fprintf(os.Stderr, "[DEBUG] security_darwin: "+format+"\n", args...)
	}
}

// securityBackend implements keychain operations using macOS security command.
type securityBackend struct{}

func newSecurityBackend() (*securityBackend, error) {
	if _, err := exec.LookPath("security"); err != nil {
		return nil, fmt.Errorf("security command not found: %w", err)
	}
	return &securityBackend{}, nil
}

// security runs the macOS security tool and returns its trimmed stdout and
// stderr.
func security(args ...string) (string, string, error) {
	cmd := exec.Command("security", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return strings.TrimSpace(stdout.String()), strings.TrimSpace(stderr.String()), err
}

func notFound(stderr string) bool {
	return strings.Contains(stderr, "could not be found")
}

// Set stores value under key, replacing any previous entry. The value is
// passed on the command line and never logged.
func (s *securityBackend) Set(key, value string) error {
	debugf("Set() called for key '%s', value length: %d", key, len(value))
	if err := s.Delete(key); err != nil {
		debugf("Delete() returned: %v", err)
	}
	// -a account, -s service, -w secret, -U update in place
	if _, stderr, err := security("add-generic-password", "-a", ServiceName, "-s", key, "-w", value, "-U"); err != nil {
		err = fmt.Errorf("failed to store '%s' in keychain: %s: %w", key, stderr, err)
		debugf("Set() failed: %v", err)
		return err
	}
	return nil
}

// Get retrieves the secret stored under key.
func (s *securityBackend) Get(key string) (string, error) {
	debugf("Get() called for key '%s'", key)
	out, stderr, err := security("find-generic-password", "-a", ServiceName, "-s", key, "-w")
	if err != nil {
		if notFound(stderr) {
			return "", errKeyNotFound
		}
		return "", fmt.Errorf("failed to retrieve from keychain: %s: %w", stderr, err)
	}
	debugf("Get() returned %d bytes for key '%s'", len(out), key)
	return out, nil
}

// Delete removes key. Missing keys are ignored.
func (s *securityBackend) Delete(key string) error {
	if _, stderr, err := security("delete-generic-password", "-a", ServiceName, "-s", key); err != nil && !notFound(stderr) {
		return fmt.Errorf("failed to delete from keychain: %s: %w", stderr, err)
	}
	return nil
}
