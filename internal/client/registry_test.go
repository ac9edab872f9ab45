// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client_test

import (
	"testing"

	"github.com/absmach/mqttsn-gateway/internal/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateResolve(t *testing.T) {
	r := client.NewRegistry(4)
	c := client.New("s1", client.Transparent)
	h, err := r.Create(client.NewAddress([]byte("addr-1")), c)
	require.NoError(t, err)

	got, err := r.Resolve(h)
	require.NoError(t, err)
	assert.Same(t, c, got)

	byAddr, ok := r.ByAddress(client.NewAddress([]byte("addr-1")))
	require.True(t, ok)
	assert.Equal(t, h, byAddr)

	byID, ok := r.ByClientID("s1")
	require.True(t, ok)
	assert.Equal(t, h, byID)
}

func TestForgetInvalidatesHandle(t *testing.T) {
	r := client.NewRegistry(4)
	h, err := r.Create(client.NewAddress([]byte("addr-1")), client.New("s1", client.Transparent))
	require.NoError(t, err)

	require.NoError(t, r.Forget(h))

	_, err = r.Resolve(h)
	assert.ErrorIs(t, err, client.ErrNotFound)

	_, ok := r.ByAddress(client.NewAddress([]byte("addr-1")))
	assert.False(t, ok)
	_, ok = r.ByClientID("s1")
	assert.False(t, ok)
}

func TestForgetRecyclesSlotWithNewGeneration(t *testing.T) {
	r := client.NewRegistry(4)
	h1, err := r.Create(client.NewAddress([]byte("addr-1")), client.New("s1", client.Transparent))
	require.NoError(t, err)
	require.NoError(t, r.Forget(h1))

	h2, err := r.Create(client.NewAddress([]byte("addr-2")), client.New("s2", client.Transparent))
	require.NoError(t, err)
	assert.Equal(t, h1.Index, h2.Index)
	assert.NotEqual(t, h1.Generation, h2.Generation)

	_, err = r.Resolve(h1)
	assert.ErrorIs(t, err, client.ErrNotFound)

	got, err := r.Resolve(h2)
	require.NoError(t, err)
	assert.Equal(t, "s2", got.ID)
}

func TestRebindDropsOldAddress(t *testing.T) {
	r := client.NewRegistry(4)
	oldAddr := client.NewAddress([]byte("addr-1"))
	newAddr := client.NewAddress([]byte("addr-2"))
	h, err := r.Create(oldAddr, client.New("s1", client.Transparent))
	require.NoError(t, err)

	require.NoError(t, r.Rebind(h, newAddr))

	_, ok := r.ByAddress(oldAddr)
	assert.False(t, ok)
	got, ok := r.ByAddress(newAddr)
	assert.True(t, ok)
	assert.Equal(t, h, got)
}

func TestCreateFailsAtCapacity(t *testing.T) {
	r := client.NewRegistry(2)
	_, err := r.Create(client.NewAddress([]byte("addr-1")), client.New("s1", client.Transparent))
	require.NoError(t, err)
	_, err = r.Create(client.NewAddress([]byte("addr-2")), client.New("s2", client.Transparent))
	require.NoError(t, err)

	_, err = r.Create(client.NewAddress([]byte("addr-3")), client.New("s3", client.Transparent))
	assert.ErrorIs(t, err, client.ErrFull)
	assert.Equal(t, 2, r.Len())
}

func TestCreateRecyclesFreedSlotEvenAtCapacity(t *testing.T) {
	r := client.NewRegistry(1)
	h, err := r.Create(client.NewAddress([]byte("addr-1")), client.New("s1", client.Transparent))
	require.NoError(t, err)
	require.NoError(t, r.Forget(h))

	_, err = r.Create(client.NewAddress([]byte("addr-2")), client.New("s2", client.Transparent))
	assert.NoError(t, err)
}

func TestCreateUnboundedWhenCapacityIsZero(t *testing.T) {
	r := client.NewRegistry(0)
	for i := 0; i < 50; i++ {
		_, err := r.Create(client.NewAddress([]byte{byte(i)}), client.New("s", client.Transparent))
		require.NoError(t, err)
	}
}

func TestEnsureQoSm1ProxyIsSingleton(t *testing.T) {
	r := client.NewRegistry(4)
	h1 := r.EnsureQoSm1Proxy()
	h2 := r.EnsureQoSm1Proxy()
	assert.Equal(t, h1, h2)

	c, err := r.Resolve(h1)
	require.NoError(t, err)
	assert.Equal(t, client.QoSm1, c.Kind)
	assert.Equal(t, client.Active, c.Status)
}

func TestForwarderListDynamicDiscovery(t *testing.T) {
	l := client.NewForwarderList(nil)
	addr := client.NewAddress([]byte("fwd-1"))

	_, ok := l.Get(addr, false)
	assert.False(t, ok)

	f, ok := l.Get(addr, true)
	require.True(t, ok)

	node := []byte{0x01, 0x02}
	_, ok = f.Lookup(node)
	assert.False(t, ok)

	h := client.Handle{Index: 3, Generation: 1}
	f.Register(node, h)
	got, ok := f.Lookup(node)
	require.True(t, ok)
	assert.Equal(t, h, got)

	f2, _ := l.Get(addr, true)
	assert.Same(t, f, f2)
}
