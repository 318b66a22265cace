// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package callgraph

// A HandlerGroup is a group of event handler chains which can be
// installed in an Engine.
type HandlerGroup struct {
	handlers [][]Handler
}

// PushBack adds an event handler to the back of the event handler chain
// for a specific event type.
func (g *HandlerGroup) PushBack(evt Event, h Handler) {
	if h == nil {
		panic("callgraph: nil handler")
	}
	if evt < 0 || int(evt) >= numEvents {
		panic("callgraph: unknown event")
	}

	if g.handlers == nil {
		g.handlers = make([][]Handler, numEvents)
	}

	g.handlers[evt] = append(g.handlers[evt], h)
}

// PushBackAll adds h to the back of the event handler chain for every
// event type.
func (g *HandlerGroup) PushBackAll(h Handler) {
	for _, evt := range Events() {
		g.PushBack(evt, h)
	}
}

func (g *HandlerGroup) run(evt Event, x *Execution) {
	i := int(evt)
	if i < len(g.handlers) {
		run(g.handlers[i], evt, x)
	}
}

func run(chain []Handler, evt Event, x *Execution) {
	for _, h := range chain {
		h.Handle(evt, x)
	}
}

// A Handler handles the occurrence of an event while a call graph runs.
type Handler interface {
	Handle(Event, *Execution)
}

// The HandlerFunc type is an adapter to allow the use of ordinary
// functions as event handlers. If f is a function with appropriate
// signature, then HandlerFunc(f) is a Handler that calls f.
type HandlerFunc func(Event, *Execution)

// Handle calls f(evt, x).
func (f HandlerFunc) Handle(evt Event, x *Execution) {
	f(evt, x)
}
