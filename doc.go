// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package callgraph runs sequences of remote, slow or eventually
consistent operations inside a host that only grants bounded compute
time per invocation, such as a serverless function which an external
scheduler re-invokes periodically.

A call graph is one logical remote operation: build a request from the
domain model, invoke the remote service, optionally wait until the
effect of the invocation becomes observable (stabilization), and
translate the result into an Outcome. Every step that has a side effect
or has already succeeded is memoized in a checkpoint.Store, so when the
host is re-invoked with the redelivered store, work already done is
replayed from the store rather than repeated.

Declare and run a call graph through an Engine:

	var eng callgraph.Engine

	o, err := eng.Initiate(ctx, client, model, store).
		Call("thing:CreateThing").
		Request(buildCreate).
		Backoff(delay.Fixed(3, time.Second)).
		Invoke(create).
		Stabilize(exists).
		Success()

Failed attempts are classified. Throttling and service-internal errors
are retried after backing off according to the call graph's
delay.Policy; other errors become Failed outcomes. Between attempts the
Engine's wait.Strategy either sleeps in-process, when the remaining
compute budget allows, or suspends the call graph by returning an
InProgress Outcome with a positive callback delay. The caller must then
end the host invocation and have the scheduler redeliver the store.

Outcomes chain. An InProgress Outcome with no callback delay lets the
next call graph run:

	return callgraph.Sequence(callgraph.Continue(model, store),
		createThing,
		describeThing,
	)

Install event handlers in a HandlerGroup to extend the Engine, for
example with the logging and metrics packages.
*/
package callgraph
