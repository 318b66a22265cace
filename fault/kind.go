// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package fault

import (
	"fmt"
	"strconv"
)

// A Kind is the category of a failure, as reported by Categorize and as
// carried by a failed outcome.
type Kind int

const (
	// None indicates the absence of a failure. It is the Kind of a nil
	// error and of every outcome that did not fail.
	None Kind = iota
	// InvalidRequest indicates the request was malformed, either
	// detected client-side or rejected by the remote service with
	// status 400.
	InvalidRequest
	// AccessDenied indicates the caller lacks permission to perform
	// the request (status 401, 403 or 511).
	AccessDenied
	// NotFound indicates the remote resource does not exist (status 404
	// or 410).
	NotFound
	// Throttling indicates the remote service is rate limiting the
	// caller (status 429). Throttling is retryable.
	Throttling
	// ServiceInternalError indicates the remote service is temporarily
	// unable to serve the request (status 503 or 504, or a transient
	// network error). ServiceInternalError is retryable.
	ServiceInternalError
	// GeneralServiceException indicates any other failure reported by
	// the remote service.
	GeneralServiceException
	// NotStabilized indicates the delay policy was exhausted before the
	// remote resource reached the desired state.
	NotStabilized
	// InternalFailure indicates a failure which could not be attributed
	// to the remote service.
	InternalFailure
	// FrameworkFatal indicates error classification itself failed. It
	// is never recovered.
	FrameworkFatal

	kindSentinel
)

var kindNames = []string{
	"",
	"InvalidRequest",
	"AccessDenied",
	"NotFound",
	"Throttling",
	"ServiceInternalError",
	"GeneralServiceException",
	"NotStabilized",
	"InternalFailure",
	"FrameworkFatal",
}

// Kinds returns every Kind other than None.
func Kinds() []Kind {
	kinds := make([]Kind, 0, int(kindSentinel)-1)
	for k := None + 1; k < kindSentinel; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// ParseKind returns the Kind whose name is s, and false if there is no
// such Kind.
func ParseKind(s string) (Kind, bool) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), true
		}
	}
	return None, false
}

// Retryable reports whether a failure of this Kind may succeed if the
// attempt is retried after a delay.
func (k Kind) Retryable() bool {
	return k == Throttling || k == ServiceInternalError
}

// String returns the name of the Kind.
func (k Kind) String() string {
	if k < None || k >= kindSentinel {
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// MarshalText encodes the Kind as its name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a Kind from its name.
func (k *Kind) UnmarshalText(text []byte) error {
	v, ok := ParseKind(string(text))
	if !ok {
		return fmt.Errorf("callgraph/fault: unknown kind %q", text)
	}
	*k = v
	return nil
}
