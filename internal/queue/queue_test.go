// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package queue_test

import (
	"sync"
	"testing"
	"time"

	"github.com/absmach/mqttsn-gateway/internal/events"
	"github.com/absmach/mqttsn-gateway/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOOrder(t *testing.T) {
	q := queue.New(4)
	for i := 0; i < 3; i++ {
		require.True(t, q.Post(events.Event{Kind: events.Kind(i)}))
	}

	for i := 0; i < 3; i++ {
		ev, ok := q.Take()
		require.True(t, ok)
		assert.Equal(t, events.Kind(i), ev.Kind)
	}
}

func TestPostBlocksWhenFull(t *testing.T) {
	q := queue.New(1)
	require.True(t, q.Post(events.Broadcast(nil)))

	posted := make(chan bool, 1)
	go func() {
		posted <- q.Post(events.Broadcast(nil))
	}()

	select {
	case <-posted:
		t.Fatal("Post should have blocked while queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	_, ok := q.Take()
	require.True(t, ok)

	select {
	case p := <-posted:
		assert.True(t, p)
	case <-time.After(time.Second):
		t.Fatal("Post never unblocked after Take freed capacity")
	}
}

func TestStopUnblocksTakeAndPost(t *testing.T) {
	full := queue.New(1)
	require.True(t, full.Post(events.Broadcast(nil)))
	empty := queue.New(1)

	var wg sync.WaitGroup
	wg.Add(2)

	var blockedPostOK, blockedTakeOK bool
	go func() {
		defer wg.Done()
		blockedPostOK = full.Post(events.Broadcast(nil))
	}()
	go func() {
		defer wg.Done()
		_, blockedTakeOK = empty.Take()
	}()

	time.Sleep(20 * time.Millisecond)
	full.Stop()
	empty.Stop()
	wg.Wait()

	assert.False(t, blockedPostOK)
	assert.False(t, blockedTakeOK)
}

func TestDropBroadcastOnFull(t *testing.T) {
	q := queue.New(1, queue.WithDropBroadcastOnFull())
	require.True(t, q.Post(events.Broadcast(nil)))
	assert.False(t, q.Post(events.Broadcast(nil)))
	assert.EqualValues(t, 1, q.Dropped())
}
