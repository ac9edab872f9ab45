// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package errors_test

import (
	"testing"

	"github.com/absmach/mqttsn-gateway/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestWrapContains(t *testing.T) {
	errBroker := errors.New("broker unavailable")
	errCause := errors.New("connection refused")

	wrapped := errors.Wrap(errBroker, errCause)

	assert.True(t, errors.Contains(wrapped, errBroker))
	assert.True(t, errors.Contains(wrapped, errCause))
	assert.False(t, errors.Contains(wrapped, errors.New("unrelated")))
	assert.Equal(t, "broker unavailable : connection refused", wrapped.Error())
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, errors.Wrap(nil, errors.New("x")))
	assert.Equal(t, errors.New("x").Error(), errors.Wrap(errors.New("x"), nil).Error())
}
