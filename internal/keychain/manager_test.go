// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package keychain

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialsRoundTrip(t *testing.T) {
	m := NewWithKeyring(keyring.NewArrayKeyring(nil))

	_, err := m.LoadCredentials("orcl")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, ok := m.Lookup("orcl")
	assert.False(t, ok)

	require.NoError(t, m.SaveCredentials("orcl", Credentials{User: "scott", Password: "tiger"}))
	require.NoError(t, m.SaveCredentials("pg", Credentials{User: "app", Password: "secret"}))

	c, err := m.LoadCredentials("orcl")
	require.NoError(t, err)
	assert.Equal(t, Credentials{User: "scott", Password: "tiger"}, c)

	user, password, ok := m.Lookup("pg")
	assert.True(t, ok)
	assert.Equal(t, "app", user)
	assert.Equal(t, "secret", password)

	require.NoError(t, m.ClearCredentials("orcl"))
	require.NoError(t, m.ClearCredentials("orcl"))
	_, err = m.LoadCredentials("orcl")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.LoadCredentials("pg")
	assert.NoError(t, err)
}

func TestSaveReplaces(t *testing.T) {
	m := NewWithKeyring(keyring.NewArrayKeyring(nil))
	require.NoError(t, m.SaveCredentials("orcl", Credentials{User: "scott", Password: "tiger"}))
	require.NoError(t, m.SaveCredentials("orcl", Credentials{User: "scott", Password: "lion"}))

	c, err := m.LoadCredentials("orcl")
	require.NoError(t, err)
	assert.Equal(t, "lion", c.Password)
}
