// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package uuid provides random identifiers; the gateway uses it to mint
// its instance id when none is configured. It is not used for gateway
// domain entities (clients are identified by their MQTT-SN ClientId)
// nor for registry-slot generations, which are plain counters.
package uuid

import (
	"github.com/absmach/mqttsn-gateway/pkg/errors"
	"github.com/gofrs/uuid/v5"
)

// ErrGeneratingID indicates a failure generating a UUID.
var ErrGeneratingID = errors.New("failed to generate uuid")

// Provider specifies an API for generating unique identifiers.
type Provider interface {
	// ID generates the unique identifier.
	ID() (string, error)
}

var _ Provider = (*uuidProvider)(nil)

type uuidProvider struct{}

// New instantiates a UUID provider.
func New() Provider {
	return &uuidProvider{}
}

func (up *uuidProvider) ID() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", errors.Wrap(ErrGeneratingID, err)
	}

	return id.String(), nil
}
