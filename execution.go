// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package callgraph

import (
	"context"
	"time"

	"github.com/gogama/callgraph/checkpoint"
	"github.com/gogama/callgraph/fault"
)

// An Execution represents the state of one run of a call graph within
// the current host invocation.
//
// An Execution is created when a call graph's completion step is
// invoked, updated as the run progresses, and passed to stabilizers,
// classifiers, completion functions and event handlers. They should
// treat its exported fields as read-only.
type Execution struct {
	// CallGraph is the name of the call graph being run. It is never
	// empty.
	CallGraph string

	// Client is the client bound to the Initiator.
	Client interface{}

	// Model is the domain model bound to the Initiator.
	Model interface{}

	// Checkpoint is the store bound to the Initiator. It is never nil.
	Checkpoint *checkpoint.Store

	// Request is the request built for the call graph. It is nil until
	// the first attempt and constant thereafter.
	Request interface{}

	// Response is the response returned by the remote operation, or
	// read back from the checkpoint on replay. It is nil until the
	// remote operation has succeeded.
	Response interface{}

	// Err is the error from the most recent attempt, if any. At
	// AfterExecutionEnd, it is the error returned by the engine.
	Err error

	// Kind is the fault category of Err, or fault.None if Err is nil.
	Kind fault.Kind

	// Stabilized reports whether the stabilization predicate has held,
	// either in this run or in an earlier host invocation.
	Stabilized bool

	// Attempt is the one-based number of the current attempt. Unlike
	// most execution state it survives suspension: it is recovered from
	// the checkpoint when the execution starts and written back after
	// each backoff step.
	Attempt int

	// Start is the time the execution started in this host invocation.
	Start time.Time

	// AttemptStart is the time the current or most recent attempt
	// started.
	AttemptStart time.Time

	// End is the time the execution ended. It contains the zero value
	// until then.
	End time.Time

	// Wait is the delay chosen by the delay policy after the most
	// recent failed attempt. It is zero until a delay is chosen.
	Wait time.Duration

	// Outcome is the result of the execution. It is nil until the
	// execution ends, and remains nil if the engine returned an error.
	Outcome *Outcome

	ctx context.Context
}

// Context returns the context the call graph is running under. It is
// never nil.
func (x *Execution) Context() context.Context {
	return x.ctx
}

// Duration returns the duration of the execution so far, or its total
// duration once it has ended.
func (x *Execution) Duration() time.Duration {
	if !x.Started() {
		return time.Duration(0)
	} else if !x.Ended() {
		return time.Since(x.Start)
	}

	return x.End.Sub(x.Start)
}

// Started indicates whether the execution has started.
func (x *Execution) Started() bool {
	return x.Start != (time.Time{})
}

// Ended indicates whether the execution has ended.
func (x *Execution) Ended() bool {
	return x.End != (time.Time{})
}
