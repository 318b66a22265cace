// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package fault

import (
	"errors"
	"syscall"
)

// ErrInvalidRequest is the error a transport returns, possibly wrapped,
// when it rejects a request as malformed before sending it.
var ErrInvalidRequest = errors.New("callgraph/fault: invalid request")

// A StatusCoder is an error carrying the status code of a response from
// a remote service.
type StatusCoder interface {
	error
	StatusCode() int
}

// An Error is an error with an explicit Kind. Transports and stage
// functions return an *Error when they know better than Categorize
// which Kind a failure belongs to.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New returns an *Error of the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an *Error of the given kind wrapping err. The message
// is taken from err.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Error returns the message, or the wrapped error's message if there is
// no message.
func (err *Error) Error() string {
	switch {
	case err.Message != "" && err.Err != nil:
		return err.Message + ": " + err.Err.Error()
	case err.Message != "":
		return err.Message
	case err.Err != nil:
		return err.Err.Error()
	default:
		return err.Kind.String()
	}
}

// Unwrap returns the wrapped error.
func (err *Error) Unwrap() error {
	return err.Err
}

// Categorize returns the Kind of the given error. A nil error has Kind
// None, and every non-nil error has some other Kind.
//
// The rules, applied to the whole error chain in this order, are:
//
// • an *Error has its own Kind;
//
// • ErrInvalidRequest is InvalidRequest;
//
// • a StatusCoder is categorized by StatusCategory;
//
// • a transient network error, namely a timeout, a refused connection
// or a reset connection, is ServiceInternalError;
//
// • anything else is InternalFailure.
func Categorize(err error) Kind {
	if err == nil {
		return None
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != None {
		return e.Kind
	}
	if errors.Is(err, ErrInvalidRequest) {
		return InvalidRequest
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return StatusCategory(sc.StatusCode())
	}
	if Transient(err) {
		return ServiceInternalError
	}
	return InternalFailure
}

// StatusCategory returns the Kind of a failure response with the given
// status code.
func StatusCategory(code int) Kind {
	switch code {
	case 400:
		return InvalidRequest
	case 401, 403, 511:
		return AccessDenied
	case 404, 410:
		return NotFound
	case 429:
		return Throttling
	case 503, 504:
		return ServiceInternalError
	default:
		return GeneralServiceException
	}
}

// Transient reports whether err is a network error which is likely to
// go away on retry: a timeout, or a refused or reset connection
// (ECONNREFUSED or ECONNRESET). Temporary() methods are not consulted,
// as their semantics aren't clear.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var t hasTimeout
	if errors.As(err, &t) && t.Timeout() {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ECONNRESET || errno == syscall.ECONNREFUSED
	}
	return false
}

type hasTimeout interface {
	Timeout() bool
}
