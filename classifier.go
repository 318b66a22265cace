// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package callgraph

import (
	"errors"

	"github.com/gogama/callgraph/fault"
)

// A Classifier decides what a failed attempt means for its call graph.
//
// Classify examines the error from an invocation or stabilization and
// returns one of three things:
//
// • the error ErrRetry, meaning the attempt should be retried after
// backing off according to the call graph's delay policy;
//
// • a non-nil Outcome, which becomes the call graph's result (it need
// not be Failed: a classifier may, for example, turn NotFound on a
// delete into Success); or
//
// • a nil Outcome and nil error, meaning the classifier has no opinion
// and the engine's fallback classifier should decide.
//
// Any other error, or a panic, means the classifier itself failed. The
// engine then gives the failure exactly one pass through its fallback
// classifier, and if that fails too, the engine returns a *FatalError.
// The fallback of a call graph's own classifier is the Engine's
// Classifier, and the fallback of the Engine's Classifier is
// DefaultClassifier.
type Classifier interface {
	Classify(x *Execution, err error) (*Outcome, error)
}

// The ClassifierFunc type is an adapter to allow the use of ordinary
// functions as classifiers.
type ClassifierFunc func(x *Execution, err error) (*Outcome, error)

// Classify returns f(x, err).
func (f ClassifierFunc) Classify(x *Execution, err error) (*Outcome, error) {
	return f(x, err)
}

// DefaultClassifier is the fallback classifier an Engine uses when none
// is configured.
//
// It retries ErrRetry and any error categorized as retryable by
// fault.Categorize (Throttling and ServiceInternalError). Every other
// error becomes a Failed outcome carrying the error's category and
// message.
var DefaultClassifier Classifier = ClassifierFunc(classifyDefault)

func classifyDefault(x *Execution, err error) (*Outcome, error) {
	if errors.Is(err, ErrRetry) {
		return nil, ErrRetry
	}
	kind := fault.Categorize(err)
	if kind.Retryable() {
		return nil, ErrRetry
	}
	o := Fail(kind, err.Error(), x.Model, x.Checkpoint)
	return &o, nil
}

// A Predicate reports whether a failed attempt should be retried. Use
// RetryIf to turn one into a Classifier, and Predicate.And and
// Predicate.Or to compose them.
type Predicate func(x *Execution, err error) bool

// And composes two predicates into one which holds if both hold.
// Short-circuit logic is used, so q is not evaluated if p is false.
func (p Predicate) And(q Predicate) Predicate {
	return func(x *Execution, err error) bool {
		return p(x, err) && q(x, err)
	}
}

// Or composes two predicates into one which holds if either holds.
// Short-circuit logic is used, so q is not evaluated if p is true.
func (p Predicate) Or(q Predicate) Predicate {
	return func(x *Execution, err error) bool {
		return p(x, err) || q(x, err)
	}
}

// Kinds constructs a predicate which holds if the error's fault
// category is one of kinds.
func Kinds(kinds ...fault.Kind) Predicate {
	kinds2 := make([]fault.Kind, len(kinds))
	copy(kinds2, kinds)
	return func(_ *Execution, err error) bool {
		k := fault.Categorize(err)
		for _, kind := range kinds2 {
			if k == kind {
				return true
			}
		}
		return false
	}
}

// StatusCode constructs a predicate which holds if the error carries
// one of the given status codes, as reported by fault.StatusCoder.
func StatusCode(ss ...int) Predicate {
	ss2 := make([]int, len(ss))
	copy(ss2, ss)
	return func(_ *Execution, err error) bool {
		var sc fault.StatusCoder
		if !errors.As(err, &sc) {
			return false
		}
		for _, s := range ss2 {
			if sc.StatusCode() == s {
				return true
			}
		}
		return false
	}
}

// RetryIf constructs a Classifier which retries when p holds and
// otherwise defers to the fallback classifier.
func RetryIf(p Predicate) Classifier {
	if p == nil {
		panic("callgraph: nil predicate")
	}
	return ClassifierFunc(func(x *Execution, err error) (*Outcome, error) {
		if p(x, err) {
			return nil, ErrRetry
		}
		return nil, nil
	})
}
