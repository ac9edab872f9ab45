// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package transport defines the sensor-network driver boundary (spec.md
// §6) and a UDP implementation of it. ClientRecv and ClientSend depend
// only on the Driver interface, so the packet-dispatch core is testable
// against a fake transport without a socket.
package transport

import (
	"context"
)

// Driver is the sensor-network transport boundary (spec.md §6): a
// blocking Recv, unicast/broadcast sends, and opaque comparable
// addresses. Implementations translate between the wire (UDP, Zigbee,
// XBee, ...) and this address/byte-slice view.
type Driver interface {
	// Recv blocks until a datagram arrives, returning its sender
	// address and payload, or an error if ctx is done or the
	// transport fails.
	Recv(ctx context.Context) (addr []byte, payload []byte, err error)

	// Unicast sends payload to addr.
	Unicast(ctx context.Context, addr []byte, payload []byte) error

	// Broadcast sends payload to every reachable node.
	Broadcast(ctx context.Context, payload []byte) error

	// Close releases the underlying socket.
	Close() error
}
