// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import "sync"

// Forwarder represents one encapsulating forwarder (spec.md §3
// "Forwarder", §4.1 "frame-02"): a sensor-network peer that itself has
// no MQTT-SN session but relays frames on behalf of wireless nodes
// behind it, each identified by a wireless_node_id unique only within
// that forwarder. Forwarders may be declared statically at startup
// (a known aggregator address) or discovered dynamically the first
// time an ENCAPSULATED frame arrives from a new address (spec.md §6).
type Forwarder struct {
	Addr Address

	mu    sync.RWMutex
	nodes map[string]Handle
}

func newForwarder(addr Address) *Forwarder {
	return &Forwarder{Addr: addr, nodes: make(map[string]Handle)}
}

// Lookup resolves a wireless node id to the Handle of the client
// behind it, if one has already been registered.
func (f *Forwarder) Lookup(wirelessNodeID []byte) (Handle, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	h, ok := f.nodes[string(wirelessNodeID)]
	return h, ok
}

// Register associates wirelessNodeID with h, overwriting any prior
// association (a new CONNECT from the same wireless node id replaces
// the client behind it, same as a direct client reconnecting at an
// address, spec.md §4.1 step 5).
func (f *Forwarder) Register(wirelessNodeID []byte, h Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[string(wirelessNodeID)] = h
}

// Forget drops the wireless node id's association, if present.
func (f *Forwarder) Forget(wirelessNodeID []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.nodes, string(wirelessNodeID))
}

// ForwarderList indexes known forwarders by their sensor-network
// address. It is owned by ClientRecv (spec.md §4.1 step 2: "is this
// address a known forwarder?").
type ForwarderList struct {
	mu         sync.RWMutex
	byAddr     map[Address]*Forwarder
}

// NewForwarderList returns an empty list, optionally pre-populated
// with statically declared forwarder addresses.
func NewForwarderList(static []Address) *ForwarderList {
	l := &ForwarderList{byAddr: make(map[Address]*Forwarder)}
	for _, a := range static {
		l.byAddr[a] = newForwarder(a)
	}
	return l
}

// Get returns the Forwarder at addr, registering it as a newly
// discovered dynamic forwarder if create is true and none exists yet.
func (l *ForwarderList) Get(addr Address, create bool) (*Forwarder, bool) {
	l.mu.RLock()
	f, ok := l.byAddr[addr]
	l.mu.RUnlock()
	if ok || !create {
		return f, ok
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok = l.byAddr[addr]; ok {
		return f, true
	}
	f = newForwarder(addr)
	l.byAddr[addr] = f
	return f, true
}
