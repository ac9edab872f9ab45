// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package snproto

import "github.com/absmach/mqttsn-gateway/pkg/errors"

var (
	// ErrShortFrame indicates the buffer does not contain a complete frame.
	ErrShortFrame = errors.New("mqtt-sn: short frame")
	// ErrUnknownType indicates a message type this codec does not decode.
	ErrUnknownType = errors.New("mqtt-sn: unknown message type")
	// ErrMalformed indicates a frame whose body does not match its type.
	ErrMalformed = errors.New("mqtt-sn: malformed body")
)
