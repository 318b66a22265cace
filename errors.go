// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package callgraph

import (
	"errors"
	"fmt"

	"github.com/gogama/callgraph/fault"
)

// ErrRetry is the signal, returned by a Classifier or directly by an
// Invoker or Stabilizer, that the failed attempt should be retried
// after backing off. It never escapes the engine.
var ErrRetry = errors.New("callgraph: retry")

// A TerminalError wraps an error that must end the call graph at once,
// bypassing classification and retry. The engine returns it as is.
type TerminalError struct {
	Err error
}

// Terminal wraps err in a *TerminalError. A nil err is returned as nil.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &TerminalError{Err: err}
}

func (err *TerminalError) Error() string {
	return "callgraph: terminal: " + err.Err.Error()
}

func (err *TerminalError) Unwrap() error {
	return err.Err
}

// A FatalError reports that classifying a failure itself failed, first
// in a classifier and then in its fallback. It is never recovered.
type FatalError struct {
	// CallGraph is the name of the call graph being run.
	CallGraph string
	// Cause is the failure that was being classified.
	Cause error
	// Handler is the error from the first classifier consulted, or nil
	// if it declined to decide.
	Handler error
	// Fallback is the error from the fallback classifier.
	Fallback error
}

func (err *FatalError) Error() string {
	return fmt.Sprintf("callgraph: %s: classifying %q: %v", err.CallGraph, err.Cause, err.Fallback)
}

func (err *FatalError) Unwrap() error {
	return err.Fallback
}

// Kind returns fault.FrameworkFatal.
func (err *FatalError) Kind() fault.Kind {
	return fault.FrameworkFatal
}
