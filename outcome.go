// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package callgraph

import (
	"encoding/json"
	"fmt"

	"github.com/gogama/callgraph/checkpoint"
	"github.com/gogama/callgraph/fault"
)

// A Status is the coarse state of an Outcome.
type Status int

const (
	// InProgress indicates the logical operation has not finished.
	InProgress Status = iota
	// Success indicates the logical operation finished successfully.
	Success
	// Failed indicates the logical operation finished unsuccessfully.
	Failed
)

var statusNames = []string{
	"IN_PROGRESS",
	"SUCCESS",
	"FAILED",
}

// String returns the wire name of the status.
func (s Status) String() string {
	if s < InProgress || s > Failed {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// An Outcome is the result of running a call graph.
//
// An Outcome with status Success or Failed is terminal. An InProgress
// outcome with a zero CallbackDelaySeconds means the caller may carry
// on synchronously within the current host invocation, typically by
// running the next call graph. An InProgress outcome with a positive
// CallbackDelaySeconds means the host invocation must end, and the
// external scheduler must redeliver Checkpoint after at least that many
// seconds.
type Outcome struct {
	// Status is the coarse state of the outcome.
	Status Status

	// ErrorKind categorizes the failure. It is fault.None unless
	// Status is Failed.
	ErrorKind fault.Kind

	// Message is a human readable description of the outcome. Failed
	// outcomes always have a message.
	Message string

	// Model is the domain model the outcome reports on.
	Model interface{}

	// Checkpoint is the continuation state to redeliver when resuming
	// an InProgress outcome.
	Checkpoint *checkpoint.Store

	// CallbackDelaySeconds is the minimum number of seconds the
	// external scheduler must wait before redelivering Checkpoint. It
	// is only meaningful when Status is InProgress.
	CallbackDelaySeconds int
}

// Succeed returns a Success outcome for model.
func Succeed(model interface{}) Outcome {
	return Outcome{Status: Success, Model: model}
}

// Fail returns a Failed outcome. A kind of fault.None is replaced with
// fault.InternalFailure, and an empty message with the kind's name.
func Fail(kind fault.Kind, message string, model interface{}, store *checkpoint.Store) Outcome {
	if kind == fault.None {
		kind = fault.InternalFailure
	}
	if message == "" {
		message = kind.String()
	}
	return Outcome{
		Status:     Failed,
		ErrorKind:  kind,
		Message:    message,
		Model:      model,
		Checkpoint: store,
	}
}

// FailErr returns a Failed outcome whose kind is fault.Categorize(err)
// and whose message is err's message.
func FailErr(err error, model interface{}, store *checkpoint.Store) Outcome {
	return Fail(fault.Categorize(err), err.Error(), model, store)
}

// Continue returns an InProgress outcome with no callback delay, which
// lets the caller carry on synchronously.
func Continue(model interface{}, store *checkpoint.Store) Outcome {
	return Outcome{Status: InProgress, Model: model, Checkpoint: store}
}

// Suspend returns an InProgress outcome asking the external scheduler
// to redeliver store after at least seconds seconds.
func Suspend(model interface{}, store *checkpoint.Store, seconds int) Outcome {
	if seconds < 1 {
		panic("callgraph: suspend delay must be positive")
	}
	return Outcome{Status: InProgress, Model: model, Checkpoint: store, CallbackDelaySeconds: seconds}
}

// Terminal reports whether the outcome is Success or Failed.
func (o Outcome) Terminal() bool {
	return o.Status == Success || o.Status == Failed
}

// CanContinue reports whether the outcome is InProgress with no
// callback delay.
func (o Outcome) CanContinue() bool {
	return o.Status == InProgress && o.CallbackDelaySeconds == 0
}

// Then calls f with o if o can continue, and otherwise returns o
// unchanged. It is used to chain call graphs, each running only if the
// ones before it neither finished nor suspended:
//
//	return callgraph.Continue(model, store).
//		Then(create).
//		Then(describe)
//
// Once a step returns an error, later steps are skipped and the error
// is returned.
func (o Outcome) Then(f func(Outcome) (Outcome, error)) Chain {
	return Chain{Outcome: o}.Then(f)
}

// A Chain carries an Outcome and error through a sequence of steps
// started with Outcome.Then.
type Chain struct {
	Outcome Outcome
	Err     error
}

// Then calls f with the chain's outcome if the chain has no error and
// its outcome can continue. Otherwise it returns the chain unchanged.
func (c Chain) Then(f func(Outcome) (Outcome, error)) Chain {
	if c.Err != nil || !c.Outcome.CanContinue() {
		return c
	}
	o, err := f(c.Outcome)
	return Chain{Outcome: o, Err: err}
}

// Result returns the chain's outcome and error.
func (c Chain) Result() (Outcome, error) {
	return c.Outcome, c.Err
}

// Sequence runs steps in order starting from start, stopping at the
// first step which returns an error or an outcome which cannot
// continue.
func Sequence(start Outcome, steps ...func(Outcome) (Outcome, error)) (Outcome, error) {
	c := Chain{Outcome: start}
	for _, step := range steps {
		c = c.Then(step)
	}
	return c.Result()
}

type outcomeJSON struct {
	Status               string          `json:"status"`
	ErrorCode            string          `json:"errorCode,omitempty"`
	Message              string          `json:"message,omitempty"`
	ResourceModel        interface{}     `json:"resourceModel,omitempty"`
	CallbackDelaySeconds *int            `json:"callbackDelaySeconds,omitempty"`
	CallbackContext      json.RawMessage `json:"callbackContext,omitempty"`
}

// MarshalJSON encodes the outcome in the form consumed by the host
// dispatcher. The error code is present only on Failed outcomes, the
// callback delay only on InProgress outcomes, and the checkpoint is
// encoded as the callback context.
func (o Outcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{
		Status:        o.Status.String(),
		Message:       o.Message,
		ResourceModel: o.Model,
	}
	if o.Status == Failed {
		out.ErrorCode = o.ErrorKind.String()
	}
	if o.Status == InProgress {
		d := o.CallbackDelaySeconds
		out.CallbackDelaySeconds = &d
	}
	if o.Checkpoint != nil {
		data, err := o.Checkpoint.Encode()
		if err != nil {
			return nil, err
		}
		out.CallbackContext = data
	}
	return json.Marshal(out)
}
