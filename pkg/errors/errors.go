// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package errors provides small, wrappable application errors with a
// stable message and an optional chained cause.
package errors

import "encoding/json"

// Error implements a generic error with a cause and a message.
type Error interface {
	error

	// Msg returns error message.
	Msg() string

	// Err returns wrapped error.
	Err() Error

	// MarshalJSON returns a marshaled error.
	MarshalJSON() ([]byte, error)
}

var _ Error = (*customError)(nil)

type customError struct {
	msg string
	err Error
}

func (ce *customError) Error() string {
	if ce == nil {
		return ""
	}
	if ce.err == nil {
		return ce.msg
	}
	return ce.msg + " : " + ce.err.Error()
}

func (ce *customError) Msg() string {
	return ce.msg
}

func (ce *customError) Err() Error {
	return ce.err
}

func (ce *customError) MarshalJSON() ([]byte, error) {
	var val string
	if ce.err != nil {
		val = ce.err.Msg()
	}
	return json.Marshal(&struct {
		Err string `json:"error"`
		Msg string `json:"message"`
	}{
		Err: val,
		Msg: ce.msg,
	})
}

// New returns an Error that formats as the given text.
func New(text string) Error {
	return &customError{
		msg: text,
		err: nil,
	}
}

// Wrap returns an Error that contains both wrapper and wrapped errors.
// If wrapper is nil, Wrap returns nil. If wrapped is nil, Wrap returns
// the wrapper alone: wrapping a nil cause is a no-op.
func Wrap(wrapper, wrapped error) Error {
	if wrapper == nil {
		return nil
	}
	w, ok := wrapper.(Error)
	if !ok {
		w = &customError{msg: wrapper.Error(), err: nil}
	}
	if wrapped == nil {
		return w
	}
	we, ok := wrapped.(Error)
	if !ok {
		we = &customError{msg: wrapped.Error(), err: nil}
	}
	return &customError{
		msg: w.Msg(),
		err: we,
	}
}

// Contains inspects err's cause chain for target, matching either by
// identity or by message equality (target may have been reconstructed
// from a serialized form and lost its chain).
func Contains(err, target error) bool {
	if err == nil || target == nil {
		return false
	}
	if te, ok := target.(Error); ok {
		if ce, ok := err.(Error); ok {
			for ce != nil {
				if ce.Msg() == te.Msg() {
					return true
				}
				ce = ce.Err()
			}
			return false
		}
	}
	return err.Error() == target.Error()
}
