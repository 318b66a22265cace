// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package callgraph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogama/callgraph/checkpoint"
	"github.com/gogama/callgraph/delay"
	"github.com/gogama/callgraph/fault"
	"github.com/gogama/callgraph/wait"
)

// An Engine runs call graphs. Its zero value is a valid configuration.
//
// The zero value engine uses delay.DefaultPolicy for call graphs that
// set no backoff policy of their own, wait.Local as the wait strategy,
// DefaultClassifier as the fallback classifier, and an empty handler
// group (no event handlers/plug-ins).
//
// An Engine is safe for concurrent use by multiple goroutines provided
// its fields are not modified while in use. Each call graph run happens
// entirely on the calling goroutine: attempts are never made in
// parallel.
type Engine struct {
	// Delay is the backoff policy for call graphs that do not set one
	// with Caller.Backoff. Any non-positive delay a policy returns ends
	// the call graph as if the policy returned delay.Exhausted.
	//
	// If Delay is nil, delay.DefaultPolicy is used.
	Delay delay.Policy
	// Wait decides whether to sleep in-process or suspend when a call
	// graph must back off. A suspension of less than one second is
	// replaced by the policy delay rounded up to whole seconds.
	//
	// If Wait is nil, wait.Local is used.
	Wait wait.Strategy
	// Classifier is the fallback classifier. It decides failures for
	// call graphs without their own classifier, and failures their own
	// classifier declined or could not decide.
	//
	// If Classifier is nil, DefaultClassifier is used.
	Classifier Classifier
	// Handlers allows custom handler chains to be invoked when
	// designated events occur while a call graph runs.
	//
	// If Handlers is nil, no custom handlers will be run.
	Handlers *HandlerGroup
}

var emptyHandlers = HandlerGroup{}

// Initiate binds a client, a domain model and a checkpoint store into
// an Initiator, the starting point for declaring call graphs.
//
// The client is passed through untouched to the invoke step of every
// call graph. The store must be the store redelivered by the external
// scheduler when resuming a suspended operation, or a new empty store
// when starting one.
//
// The context bounds the host invocation. Its deadline, if any, is the
// compute budget the wait strategy consults before sleeping.
func (eng *Engine) Initiate(ctx context.Context, client, model interface{}, store *checkpoint.Store) *Initiator {
	if ctx == nil {
		panic("callgraph: nil context")
	}
	if store == nil {
		panic("callgraph: nil checkpoint store")
	}
	return &Initiator{
		engine: eng,
		ctx:    ctx,
		client: client,
		model:  model,
		store:  store,
	}
}

// An Initiator is an immutable binding of a client, a domain model and
// a checkpoint store to an Engine. Use Call to declare a call graph.
type Initiator struct {
	engine *Engine
	ctx    context.Context
	client interface{}
	model  interface{}
	store  *checkpoint.Store
}

// Context returns the context bound to the Initiator.
func (in *Initiator) Context() context.Context {
	return in.ctx
}

// Client returns the client bound to the Initiator.
func (in *Initiator) Client() interface{} {
	return in.client
}

// Model returns the domain model bound to the Initiator.
func (in *Initiator) Model() interface{} {
	return in.model
}

// Checkpoint returns the checkpoint store bound to the Initiator.
func (in *Initiator) Checkpoint() *checkpoint.Store {
	return in.store
}

// Rebind returns a new Initiator identical to in except that it is
// bound to model.
func (in *Initiator) Rebind(model interface{}) *Initiator {
	in2 := *in
	in2.model = model
	return &in2
}

// RebindCheckpoint returns a new Initiator identical to in except that
// it is bound to store.
func (in *Initiator) RebindCheckpoint(store *checkpoint.Store) *Initiator {
	if store == nil {
		panic("callgraph: nil checkpoint store")
	}
	in2 := *in
	in2.store = store
	return &in2
}

// Call starts declaring the call graph named callGraph. The name keys
// the call graph's state in the checkpoint store, so it must be unique
// among the call graphs of one logical operation and stable across
// host invocations. A name such as "thing:CreateThing" is typical.
func (in *Initiator) Call(callGraph string) *RequestMaker {
	if callGraph == "" {
		panic("callgraph: empty call graph name")
	}
	return &RequestMaker{c: &call{in: in, name: callGraph}}
}

// A BuildFunc translates the domain model into a request.
type BuildFunc func(model interface{}) interface{}

// An InvokeFunc makes the remote call. It receives the request built
// by the call graph's BuildFunc and the Initiator's client.
//
// Returning an error wrapped with Terminal ends the call graph at once
// with that error. Any other error is classified.
type InvokeFunc func(ctx context.Context, request, client interface{}) (interface{}, error)

// A StabilizeFunc reports whether the effect of a successful invocation
// has become observable. It is typically implemented by calling a
// describe operation through x.Client.
type StabilizeFunc func(x *Execution) (bool, error)

// A DoneFunc computes the Outcome of a call graph whose invocation
// succeeded and, if it has a stabilizer, stabilized.
type DoneFunc func(x *Execution) (Outcome, error)

type call struct {
	in         *Initiator
	name       string
	build      BuildFunc
	policy     delay.Policy
	invoke     InvokeFunc
	stabilize  StabilizeFunc
	classifier Classifier
}

// A RequestMaker is the stage of a call graph declaration at which the
// request is specified.
type RequestMaker struct {
	c *call
}

// Request sets the function which translates the model into the
// request. The function runs at most once per logical operation: its
// result is memoized in the checkpoint store.
func (m *RequestMaker) Request(build BuildFunc) *Caller {
	if build == nil {
		panic("callgraph: nil request builder")
	}
	m.c.build = build
	return &Caller{c: m.c}
}

// A Caller is the stage of a call graph declaration at which the
// backoff policy and remote call are specified.
type Caller struct {
	c *call
}

// Backoff sets the delay policy of the call graph, overriding the
// Engine's. It may be called at most once per declaration.
func (c *Caller) Backoff(p delay.Policy) *Caller {
	if p == nil {
		panic("callgraph: nil delay policy")
	}
	c.c.policy = p
	return c
}

// Invoke sets the function which makes the remote call. Once the
// function succeeds, its response is memoized in the checkpoint store
// and the function is never called again for the logical operation.
func (c *Caller) Invoke(fn InvokeFunc) *Stabilizer {
	if fn == nil {
		panic("callgraph: nil invoker")
	}
	c.c.invoke = fn
	return &Stabilizer{Exceptional{Completer{c: c.c}}}
}

// A Stabilizer is the stage of a call graph declaration at which the
// optional stabilization predicate is specified.
type Stabilizer struct {
	Exceptional
}

// Stabilize sets the predicate which must hold before the call graph
// can complete. Until it holds, the engine backs off and evaluates it
// again. Once it has held, the fact is recorded in the checkpoint store
// and the predicate is never evaluated again.
func (s *Stabilizer) Stabilize(fn StabilizeFunc) *Exceptional {
	if fn == nil {
		panic("callgraph: nil stabilizer")
	}
	s.c.stabilize = fn
	return &s.Exceptional
}

// An Exceptional is the stage of a call graph declaration at which the
// optional error classifier is specified.
type Exceptional struct {
	Completer
}

// RetryIf retries failures for which p holds and leaves the rest to
// the Engine's fallback classifier. It is shorthand for
// HandleError(RetryIf(p)).
func (e *Exceptional) RetryIf(p Predicate) *Completer {
	return e.HandleError(RetryIf(p))
}

// HandleError sets the call graph's own classifier.
func (e *Exceptional) HandleError(cl Classifier) *Completer {
	if cl == nil {
		panic("callgraph: nil classifier")
	}
	e.c.classifier = cl
	return &e.Completer
}

// A Completer is the final stage of a call graph declaration. Each of
// its methods runs the call graph and returns its Outcome.
//
// The returned error is nil unless the call graph could not produce an
// Outcome: it is a *TerminalError if a stage returned one, a
// *FatalError if classification failed, or the error returned by a
// DoneFunc.
type Completer struct {
	c *call
}

// Done runs the call graph, computing its Outcome with fn.
func (c *Completer) Done(fn DoneFunc) (Outcome, error) {
	if fn == nil {
		panic("callgraph: nil completion function")
	}
	return c.c.run(fn)
}

// DoneResponse runs the call graph, computing its Outcome from the
// response alone.
func (c *Completer) DoneResponse(fn func(response interface{}) (Outcome, error)) (Outcome, error) {
	if fn == nil {
		panic("callgraph: nil completion function")
	}
	return c.c.run(func(x *Execution) (Outcome, error) {
		return fn(x.Response)
	})
}

// Success runs the call graph and, if it completes, returns a Success
// outcome for the bound model.
func (c *Completer) Success() (Outcome, error) {
	return c.c.run(func(x *Execution) (Outcome, error) {
		return Succeed(x.Model), nil
	})
}

// Progress runs the call graph and, if it completes, returns an
// InProgress outcome with no callback delay, so that the next call
// graph in a chain can run.
func (c *Completer) Progress() (Outcome, error) {
	return c.c.run(func(x *Execution) (Outcome, error) {
		return Continue(x.Model, x.Checkpoint), nil
	})
}

func (c *call) run(done DoneFunc) (Outcome, error) {
	in := c.in
	eng := in.engine
	handlers := eng.Handlers
	if handlers == nil {
		handlers = &emptyHandlers
	}

	x := &Execution{
		CallGraph:  c.name,
		Client:     in.client,
		Model:      in.model,
		Checkpoint: in.store,
		Attempt:    in.store.Attempts(c.name),
		ctx:        in.ctx,
	}
	handlers.run(BeforeExecutionStart, x)
	x.Start = time.Now()

	o, err := c.loop(x, eng, handlers, done)

	x.End = time.Now()
	if err != nil {
		x.Err = err
		x.Kind = kindOf(err)
	} else {
		x.Outcome = &o
	}
	handlers.run(AfterExecutionEnd, x)
	return o, err
}

func (c *call) loop(x *Execution, eng *Engine, handlers *HandlerGroup, done DoneFunc) (Outcome, error) {
	policy := c.policy
	if policy == nil {
		policy = eng.Delay
	}
	if policy == nil {
		policy = delay.DefaultPolicy
	}
	strategy := eng.Wait
	if strategy == nil {
		strategy = wait.Local
	}
	store := x.Checkpoint

	for {
		x.AttemptStart = time.Now()
		x.Err = nil
		x.Kind = fault.None
		x.Wait = 0
		handlers.run(BeforeAttempt, x)
		o, end, err := c.attempt(x, eng, done)
		handlers.run(AfterAttempt, x)
		if err != nil {
			store.Evict(c.name, checkpoint.Response)
			return Outcome{}, err
		}
		if end {
			if o.Status == Failed {
				store.Evict(c.name, checkpoint.Response)
			}
			return o, nil
		}

		elapsed := time.Since(x.AttemptStart)
		next := policy.Next(x.Attempt)
		x.Attempt++
		store.SetAttempts(c.name, x.Attempt)
		if next <= delay.Exhausted {
			store.Evict(c.name, checkpoint.Response)
			return Fail(fault.NotStabilized, "Exceeded attempts to wait", x.Model, store), nil
		}
		x.Wait = next
		handlers.run(BeforeWait, x)

		remaining := wait.Remaining(x.ctx)
		if x.ctx.Err() != nil {
			remaining = 0
		}
		d := strategy.Decide(elapsed, next, remaining)
		if d.Retry {
			continue
		}
		seconds := d.Seconds
		if seconds < 1 {
			seconds = wait.Seconds(next)
		}
		return Suspend(x.Model, store, seconds), nil
	}
}

// attempt advances the call graph by one attempt. It returns end=true
// with the call graph's Outcome once it has one, and end=false if the
// attempt must be retried.
func (c *call) attempt(x *Execution, eng *Engine, done DoneFunc) (o Outcome, end bool, err error) {
	store := x.Checkpoint
	x.Request, _ = store.Memoize(c.name, checkpoint.Request, func() (interface{}, error) {
		return c.build(x.Model), nil
	})

	res, cause := store.Memoize(c.name, checkpoint.Response, func() (interface{}, error) {
		return c.invoke(x.ctx, x.Request, x.Client)
	})
	if cause == nil {
		x.Response = res
		if c.stabilize == nil {
			x.Stabilized = true
		} else {
			x.Stabilized, cause = store.MemoizeStabilize(c.name, func() (bool, error) {
				return c.stabilize(x)
			})
		}
	}

	if cause == nil {
		if !x.Stabilized {
			return Outcome{}, false, nil
		}
		o, err = done(x)
		if err != nil {
			return Outcome{}, false, err
		}
		return o, true, nil
	}

	x.Err = cause
	x.Kind = fault.Categorize(cause)
	var te *TerminalError
	if errors.As(cause, &te) {
		return Outcome{}, false, te
	}
	return c.classify(x, eng, cause)
}

// classify runs the first classifier of the call graph's own and the
// Engine's, then the next one, or DefaultClassifier if there is none,
// when the first declines or fails.
func (c *call) classify(x *Execution, eng *Engine, cause error) (Outcome, bool, error) {
	own, fallback := c.classifier, eng.Classifier
	if own == nil {
		own, fallback = fallback, nil
	}
	if fallback == nil {
		fallback = DefaultClassifier
	}

	var first error
	if own != nil {
		o, err := safeClassify(own, x, cause)
		switch {
		case errors.Is(err, ErrRetry):
			return Outcome{}, false, nil
		case err != nil:
			first = err
		case o != nil:
			return *o, true, nil
		}
	}

	o, err := safeClassify(fallback, x, cause)
	switch {
	case errors.Is(err, ErrRetry):
		return Outcome{}, false, nil
	case err != nil:
		return Outcome{}, false, &FatalError{
			CallGraph: c.name,
			Cause:     cause,
			Handler:   first,
			Fallback:  err,
		}
	case o != nil:
		return *o, true, nil
	default:
		return FailErr(cause, x.Model, x.Checkpoint), true, nil
	}
}

func safeClassify(cl Classifier, x *Execution, cause error) (o *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			o = nil
			err = fmt.Errorf("callgraph: classifier panic: %v", r)
		}
	}()
	return cl.Classify(x, cause)
}

func kindOf(err error) fault.Kind {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fault.FrameworkFatal
	}
	return fault.Categorize(err)
}
