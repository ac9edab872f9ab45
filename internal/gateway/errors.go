// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gateway

import "github.com/absmach/mqttsn-gateway/pkg/errors"

// Error kinds from spec.md §7. They are sentinel values wrapped by
// pkg/errors.Wrap so log sites can both match with errors.Contains and
// carry a packet-specific message.
var (
	ErrMalformedPacket   = errors.New("malformed packet")
	ErrUnknownClient     = errors.New("unknown client")
	ErrUnknownForwarder  = errors.New("unknown forwarder")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrBrokerUnavailable = errors.New("broker unavailable")
	ErrRegistryFull      = errors.New("registry full")
	ErrAuthRejected      = errors.New("auth rejected")
	ErrTransport         = errors.New("transport error")
)
