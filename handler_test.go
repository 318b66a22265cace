// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package callgraph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerGroup(t *testing.T) {
	var evts []string
	var execs []*Execution
	h1 := &testHandler{seq: 1, evts: &evts, execs: &execs}
	h2 := &testHandler{seq: 2, evts: &evts, execs: &execs}
	g := &HandlerGroup{}
	t.Run("PushBack", func(t *testing.T) {
		assert.Panics(t, func() { g.PushBack(BeforeExecutionStart, nil) })
		assert.Panics(t, func() { g.PushBack(Event(123), h1) })
		assert.Panics(t, func() { g.PushBack(Event(-1), h1) })
		g.PushBack(BeforeExecutionStart, h1)
		g.PushBack(BeforeExecutionStart, h2)
		g.PushBack(AfterAttempt, h1)
	})
	t.Run("run", func(t *testing.T) {
		x1 := &Execution{Attempt: 1}
		x2 := &Execution{Attempt: 2}
		assert.Empty(t, evts)
		assert.Empty(t, execs)
		g.run(BeforeWait, x1)
		assert.Empty(t, evts)
		assert.Empty(t, execs)
		g.run(BeforeExecutionStart, x1)
		assert.Equal(t, []string{"1.BeforeExecutionStart", "2.BeforeExecutionStart"}, evts)
		assert.Equal(t, []*Execution{x1, x1}, execs)
		evts = evts[:0]
		execs = execs[:0]
		g.run(AfterAttempt, x2)
		assert.Equal(t, []string{"1.AfterAttempt"}, evts)
		assert.Equal(t, []*Execution{x2}, execs)
	})
	t.Run("PushBackAll", func(t *testing.T) {
		evts = evts[:0]
		execs = execs[:0]
		g2 := &HandlerGroup{}
		g2.PushBackAll(h2)
		x := &Execution{}
		for _, evt := range Events() {
			g2.run(evt, x)
		}
		assert.Equal(t, []string{
			"2.BeforeExecutionStart",
			"2.BeforeAttempt",
			"2.AfterAttempt",
			"2.BeforeWait",
			"2.AfterExecutionEnd",
		}, evts)
	})
	t.Run("empty", func(t *testing.T) {
		var empty HandlerGroup
		assert.NotPanics(t, func() { empty.run(AfterExecutionEnd, &Execution{}) })
	})
}

type testHandler struct {
	seq   int
	evts  *[]string
	execs *[]*Execution
}

func (h *testHandler) Handle(evt Event, x *Execution) {
	*h.evts = append(*h.evts, fmt.Sprintf("%d.%s", h.seq, evt))
	*h.execs = append(*h.execs, x)
}

func TestHandlerFunc(t *testing.T) {
	var _evt Event
	var _x *Execution
	var f = func(evt Event, x *Execution) {
		_evt = evt
		_x = x
	}
	h := HandlerFunc(f)
	x := &Execution{}
	h.Handle(BeforeWait, x)

	assert.Equal(t, BeforeWait, _evt)
	assert.Same(t, x, _x)
}
