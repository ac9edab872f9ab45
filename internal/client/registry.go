// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"sync"

	"github.com/absmach/mqttsn-gateway/pkg/errors"
)

// ErrNotFound is returned when a Handle or lookup key no longer
// resolves to a live client (a stale handle, or one the registry never
// held).
var ErrNotFound = errors.New("client not found")

// ErrFull is returned by Create when the registry is already holding
// capacity live clients and has no free slot to recycle (spec.md §4.3
// "create... fails... if capacity is exhausted").
var ErrFull = errors.New("registry full")

// Handle is a stable, opaque reference to a registered client: a slot
// index plus a generation counter. It replaces passing around a raw
// *Client pointer so that a task holding a handle across an await
// point can never observe a use-after-free when another task has
// Forget()-ed and recycled the slot (Design Notes §9) — Resolve on a
// stale Handle returns ErrNotFound instead of a dangling or
// re-purposed Client.
type Handle struct {
	Index      int
	Generation uint64
}

// Zero reports whether h is the unset handle.
func (h Handle) Zero() bool { return h == Handle{} }

type slot struct {
	generation uint64
	client     *Client
}

// Registry owns every live Client and the index that resolves a
// sensor-network address or MQTT-SN ClientId to a Handle. It is the
// in-memory analogue of the teacher's map+mutex Repository idiom
// (clients/clients.go), generalized from a Postgres-backed store to a
// pure in-memory one since the gateway's roster lives for the process
// lifetime only (spec.md §6).
type Registry struct {
	mu sync.RWMutex

	// capacity bounds the number of live clients; zero means unbounded
	// (spec.md §6 "RegistryCapacity... 0 = unbounded").
	capacity int

	slots []slot
	free  []int

	byAddress  map[Address]Handle
	byClientID map[string]Handle
}

// NewRegistry returns an empty Registry with room for capacity clients
// before Create starts failing with ErrFull. capacity <= 0 means
// unbounded.
func NewRegistry(capacity int) *Registry {
	prealloc := capacity
	if prealloc < 0 {
		prealloc = 0
	}
	return &Registry{
		capacity:   capacity,
		slots:      make([]slot, 0, prealloc),
		byAddress:  make(map[Address]Handle, prealloc),
		byClientID: make(map[string]Handle, prealloc),
	}
}

// Create registers c under addr (its direct sensor-network address) or,
// if addr is empty, leaves address lookup unpopulated for a forwarded
// client (the caller is expected to index it by forwarder+wireless
// node id separately; see Forwarder). Returns ErrFull if the registry
// is already at capacity and has no recycled slot free (spec.md §4.3).
func (r *Registry) Create(addr Address, c *Client) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var h Handle
	if n := len(r.free); n > 0 {
		idx := r.free[n-1]
		r.free = r.free[:n-1]
		r.slots[idx].generation++
		r.slots[idx].client = c
		h = Handle{Index: idx, Generation: r.slots[idx].generation}
	} else {
		if r.capacity > 0 && len(r.slots) >= r.capacity {
			return Handle{}, ErrFull
		}
		r.slots = append(r.slots, slot{generation: 1, client: c})
		h = Handle{Index: len(r.slots) - 1, Generation: 1}
	}

	if addr != "" {
		r.byAddress[addr] = h
	}
	if c.ID != "" {
		r.byClientID[c.ID] = h
	}
	return h, nil
}

// Resolve returns the Client behind h, or ErrNotFound if h is stale or
// unknown.
func (r *Registry) Resolve(h Handle) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(h)
}

func (r *Registry) resolveLocked(h Handle) (*Client, error) {
	if h.Index < 0 || h.Index >= len(r.slots) {
		return nil, ErrNotFound
	}
	s := r.slots[h.Index]
	if s.client == nil || s.generation != h.Generation {
		return nil, ErrNotFound
	}
	return s.client, nil
}

// ByAddress resolves a direct client's handle by its sensor-network
// address (spec.md §4.1 step 5, invariant I1: one live client per
// address).
func (r *Registry) ByAddress(addr Address) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byAddress[addr]
	return h, ok
}

// ByClientID resolves a handle by MQTT-SN ClientId (invariant I1: one
// live client per ClientId).
func (r *Registry) ByClientID(id string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byClientID[id]
	return h, ok
}

// Rebind updates the address a handle answers to, dropping any prior
// occupant of that address from the index (spec.md §4.1 step 5: a
// reconnecting client invalidates its old address mapping). It does
// not create a new generation; the Client itself is unchanged.
func (r *Registry) Rebind(h Handle, addr Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.resolveLocked(h)
	if err != nil {
		return err
	}
	if c.Address != "" {
		delete(r.byAddress, c.Address)
	}
	c.Address = addr
	if addr != "" {
		r.byAddress[addr] = h
	}
	return nil
}

// Forget removes the client behind h from every index and bumps the
// slot's generation so any handle still held elsewhere resolves to
// ErrNotFound (spec.md §4.3 "forget").
func (r *Registry) Forget(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.resolveLocked(h)
	if err != nil {
		return err
	}

	if c.Address != "" {
		delete(r.byAddress, c.Address)
	}
	if c.ID != "" {
		delete(r.byClientID, c.ID)
	}
	r.slots[h.Index].client = nil
	r.slots[h.Index].generation++
	r.free = append(r.free, h.Index)
	return nil
}

// Len returns the number of live clients, for metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots) - len(r.free)
}
