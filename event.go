// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package callgraph

// An Event identifies the event type when installing or running a
// Handler. Install event handlers in an Engine to extend it with custom
// functionality such as logging or metrics.
type Event int

const (
	// BeforeExecutionStart identifies the event that occurs before a
	// call graph starts running in the current host invocation.
	//
	// When Engine fires BeforeExecutionStart, the execution's call
	// graph name, client, model and checkpoint are set, and Attempt
	// holds the attempt number recovered from the checkpoint.
	BeforeExecutionStart Event = iota
	// BeforeAttempt identifies the event that occurs before each
	// attempt to advance the call graph, whether or not the attempt
	// ends up invoking the remote operation. (A replayed attempt reads
	// the response from the checkpoint instead.)
	BeforeAttempt
	// AfterAttempt identifies the event that occurs after each attempt
	// concludes, before the failure (if any) is classified and before
	// the delay policy is consulted.
	//
	// When Engine fires AfterAttempt, the execution's request is set.
	// Either Response or Err, or both if stabilization failed, may be
	// non-nil. Stabilized reports whether the stabilization predicate
	// has held.
	AfterAttempt
	// BeforeWait identifies the event that occurs after an attempt
	// that must be retried, once the delay policy has chosen a
	// positive delay and before the wait strategy decides whether to
	// sleep in-process or suspend.
	//
	// When Engine fires BeforeWait, the execution's Wait field holds
	// the chosen delay and Attempt has been advanced to the number of
	// the next attempt.
	BeforeWait
	// AfterExecutionEnd identifies the event that occurs after the call
	// graph stops running in the current host invocation, either
	// because it produced an Outcome or because it ended in an engine
	// error.
	//
	// When Engine fires AfterExecutionEnd, exactly one of Outcome and
	// Err describes the result, and End is set.
	AfterExecutionEnd
	// eventSentinel provides the total number of events typed as an
	// Event.
	eventSentinel

	// numEvents provides the total number of events types as an int.
	numEvents = int(eventSentinel)
)

var eventNames = []string{
	"BeforeExecutionStart",
	"BeforeAttempt",
	"AfterAttempt",
	"BeforeWait",
	"AfterExecutionEnd",
}

// Events returns a slice containing all events which can occur while
// an Engine runs a call graph, in the order in which they would occur.
func Events() []Event {
	return []Event{
		BeforeExecutionStart,
		BeforeAttempt,
		AfterAttempt,
		BeforeWait,
		AfterExecutionEnd,
	}
}

// Name returns the name of the event.
func (evt Event) Name() string {
	return eventNames[int(evt)]
}

// String returns the name of the event.
func (evt Event) String() string {
	return evt.Name()
}
