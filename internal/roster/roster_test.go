// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package roster_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/absmach/mqttsn-gateway/internal/client"
	"github.com/absmach/mqttsn-gateway/internal/roster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadNilRosterAllowsEverything(t *testing.T) {
	r, err := roster.Load("")
	require.NoError(t, err)
	assert.True(t, r.Allow("anything"))
	_, ok := r.Lookup("anything")
	assert.False(t, ok)
}

func TestLoadRosterAllowsOnlyListedClients(t *testing.T) {
	path := writeFile(t, "roster.csv", "s1,10.0.0.1:10000,transparent\ns2,10.0.0.2:10000,forwarded-aggregator\n")

	r, err := roster.Load(path)
	require.NoError(t, err)

	assert.True(t, r.Allow("s1"))
	assert.True(t, r.Allow("s2"))
	assert.False(t, r.Allow("s3"))

	e, ok := r.Lookup("s2")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2:10000", e.Address)
	assert.Equal(t, client.ForwardedAggregator, e.Kind)
}

func TestLoadRosterRejectsMalformedRows(t *testing.T) {
	path := writeFile(t, "roster.csv", "s1,10.0.0.1:10000\n")

	_, err := roster.Load(path)
	assert.Error(t, err)
}

func TestLoadRosterMissingFile(t *testing.T) {
	_, err := roster.Load(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestLoadPredefinedTopicsNilMeansUnconfigured(t *testing.T) {
	pt, err := roster.LoadPredefinedTopics("")
	require.NoError(t, err)
	assert.Nil(t, pt.For("s1"))
}

func TestLoadPredefinedTopicsGroupsByClient(t *testing.T) {
	path := writeFile(t, "topics.csv", "s1,1,sensors/temp\ns1,2,sensors/humidity\ns2,1,sensors/light\n")

	pt, err := roster.LoadPredefinedTopics(path)
	require.NoError(t, err)

	s1 := pt.For("s1")
	require.Len(t, s1, 2)
	assert.Equal(t, "sensors/temp", s1[1])
	assert.Equal(t, "sensors/humidity", s1[2])

	assert.Nil(t, pt.For("unknown"))
}

func TestPredefinedTopicsForReturnsDefensiveCopy(t *testing.T) {
	path := writeFile(t, "topics.csv", "s1,1,sensors/temp\n")

	pt, err := roster.LoadPredefinedTopics(path)
	require.NoError(t, err)

	copy1 := pt.For("s1")
	copy1[99] = "mutated"

	copy2 := pt.For("s1")
	_, ok := copy2[99]
	assert.False(t, ok)
}

func TestLoadPredefinedTopicsRejectsNonNumericTopicID(t *testing.T) {
	path := writeFile(t, "topics.csv", "s1,notanumber,sensors/temp\n")

	_, err := roster.LoadPredefinedTopics(path)
	assert.Error(t, err)
}
