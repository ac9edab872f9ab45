// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package queue implements the bounded FIFO event queue fabric spec.md
// §4.4 describes: post blocks while full (§5's intentional
// backpressure), take blocks until an item is available or the queue
// is stopped, and delivery is exactly-once, FIFO per producer. Built on
// container/list + sync.Cond rather than a bare buffered channel
// because a channel alone conflates "stop requested" with "empty" —
// Take must distinguish the two so a consumer can finish its current
// event and return cleanly on shutdown (spec.md §5 Cancellation),
// rather than receiving a zero value indistinguishable from real data.
package queue

import (
	"container/list"
	"sync"

	"github.com/absmach/mqttsn-gateway/internal/events"
)

// Queue is a bounded, stoppable FIFO of events.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    *list.List
	capacity int
	stopped  bool

	// dropBroadcastOnFull allows the Broadcast-only overload relief
	// spec.md §5 permits ("An implementation may alternately drop
	// broadcast events under overload; unicast events must never be
	// silently dropped").
	dropBroadcastOnFull bool

	dropped int64
}

// Option configures a Queue.
type Option func(*Queue)

// WithDropBroadcastOnFull enables dropping Broadcast events instead of
// blocking the producer when the queue is full.
func WithDropBroadcastOnFull() Option {
	return func(q *Queue) { q.dropBroadcastOnFull = true }
}

// New returns a Queue with the given capacity (must be > 0).
func New(capacity int, opts ...Option) *Queue {
	q := &Queue{
		items:    list.New(),
		capacity: capacity,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Post enqueues ev, blocking while the queue is full (spec.md §5
// queue-full policy). Returns false if the queue was stopped before
// the event could be enqueued.
func (q *Queue) Post(ev events.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() >= q.capacity && !q.stopped {
		if q.dropBroadcastOnFull && ev.Kind == events.KindBroadcast {
			q.dropped++
			return false
		}
		q.notFull.Wait()
	}
	if q.stopped {
		return false
	}

	q.items.PushBack(ev)
	q.notEmpty.Signal()
	return true
}

// Take removes and returns the oldest event, blocking until one is
// available or the queue is stopped. ok is false only on stop with an
// empty queue.
func (q *Queue) Take() (ev events.Event, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() == 0 && !q.stopped {
		q.notEmpty.Wait()
	}
	if q.items.Len() == 0 {
		return events.Event{}, false
	}

	front := q.items.Front()
	q.items.Remove(front)
	q.notFull.Signal()
	return front.Value.(events.Event), true
}

// Stop signals all blocked Post/Take callers to return. Safe to call
// more than once.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Len returns the current queue depth, for metrics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Dropped returns the count of events dropped under
// WithDropBroadcastOnFull overload relief.
func (q *Queue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
