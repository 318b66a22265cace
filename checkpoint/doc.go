// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package checkpoint contains Store, the state a call graph needs to
resume after a host re-invocation without repeating side effects.

A Store maps composite keys to values. Each key is the name of a call
graph followed by a Phase suffix:

	thing:CreateThing.request
	thing:CreateThing.response
	thing:CreateThing.stabilize
	thing:CreateThing.attempts

The engine writes requests and responses through Memoize, which runs the
producing function at most once per key for the life of the Store, even
when several goroutines race on the same key. Stabilization results go
through MemoizeStabilize, which only remembers success. Application code
reads the Store with the query helpers, for example to find the response
of a paginated sub-call by approximate name:

	v, ok := store.FindFirstResponse("thing:ListThings-")

A Store survives serialization as a JSON object whose members keep their
insertion order. Values which are nil, booleans, strings or ints are
encoded directly. Every other value is encoded as a JSON array whose
first element is a type tag:

	{
	  "thing:CreateThing.request": ["thing", {"name": "widget"}],
	  "thing:CreateThing.attempts": 2,
	  "thing:ListThings-0.response": ["list", "a", ["int64", 7]]
	}

Decoding is lossy in a few places. A nil []interface{} or nil
map[string]interface{} decodes as an empty, non-nil one. A time.Time
loses its monotonic clock reading, and its location is restored by
name, falling back to a fixed offset when the decoding host cannot load
the named location.

Caller-defined types must be registered in a Registry under a stable
name before they are stored in a Store that will be serialized:

	checkpoint.Register("thing", &Thing{})

No type information is derived from Go type names, so renaming or moving
a type does not break checkpoints already in flight.
*/
package checkpoint
