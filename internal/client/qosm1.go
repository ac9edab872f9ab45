// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

// qosm1ClientID is the synthetic ClientId under which every anonymous
// QoS -1 PUBLISH is attributed (spec.md §3 "QoSm1Proxy"): these
// packets carry no CONNECT and share no session, so they are routed
// through one process-wide pseudo-client instead of one per sender
// address, keeping the registry's invariant I1 (one client per
// ClientId) intact without a session to go with it.
const qosm1ClientID = "\x00qos-m1-proxy"

// EnsureQoSm1Proxy returns the Handle of the singleton QoSm1 pseudo-client,
// creating it on first use. It is Active from the moment it is created
// and is never put to sleep, disconnected or forgotten by the handshake
// state machine (spec.md §4.1 "QoS -1 path").
func (r *Registry) EnsureQoSm1Proxy() Handle {
	r.mu.RLock()
	if h, ok := r.byClientID[qosm1ClientID]; ok {
		r.mu.RUnlock()
		return h
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.byClientID[qosm1ClientID]; ok {
		return h
	}

	c := New(qosm1ClientID, QoSm1)
	c.Status = Active

	var h Handle
	if n := len(r.free); n > 0 {
		idx := r.free[n-1]
		r.free = r.free[:n-1]
		r.slots[idx].generation++
		r.slots[idx].client = c
		h = Handle{Index: idx, Generation: r.slots[idx].generation}
	} else {
		r.slots = append(r.slots, slot{generation: 1, client: c})
		h = Handle{Index: len(r.slots) - 1, Generation: 1}
	}
	r.byClientID[qosm1ClientID] = h
	return h
}
