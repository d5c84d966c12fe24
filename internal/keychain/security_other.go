// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build !darwin

package keychain

import "errors"

var (
	errKeyNotFound    = errors.New("key not found")
	errNoSecurityTool = errors.New("keychain: the security command exists only on macOS")
)

// securityBackend is never constructed off macOS; NewManager falls through to
// the keyring library.
type securityBackend struct{}

func newSecurityBackend() (*securityBackend, error) { return nil, errNoSecurityTool }

func (*securityBackend) Set(string, string) error   { return errNoSecurityTool }
func (*securityBackend) Get(string) (string, error) { return "", errNoSecurityTool }
func (*securityBackend) Delete(string) error        { return errNoSecurityTool }
