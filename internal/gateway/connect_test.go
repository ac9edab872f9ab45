// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitClientIDCredentials(t *testing.T) {
	login, password, ok := splitClientIDCredentials("123456789012345abcdefgh", 15, 8)
	assert.True(t, ok)
	assert.Equal(t, "123456789012345", login)
	assert.Equal(t, "abcdefgh", password)

	_, _, ok = splitClientIDCredentials("short", 15, 8)
	assert.False(t, ok)
}

func TestResolveCredentialsPrefersSplitWhenEnabled(t *testing.T) {
	login, password := resolveCredentials("123456789012345abcdefgh", true, 15, 8, "default-login", "default-pw")
	assert.Equal(t, "123456789012345", login)
	assert.Equal(t, "abcdefgh", password)
}

func TestResolveCredentialsFallsBackToDefaults(t *testing.T) {
	login, password := resolveCredentials("s1", true, 15, 8, "default-login", "default-pw")
	assert.Equal(t, "default-login", login)
	assert.Equal(t, "default-pw", password)

	login, password = resolveCredentials("s1", false, 15, 8, "default-login", "default-pw")
	assert.Equal(t, "default-login", login)
	assert.Equal(t, "default-pw", password)
}
