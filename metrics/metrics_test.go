// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gogama/callgraph"
	"github.com/gogama/callgraph/checkpoint"
	"github.com/gogama/callgraph/delay"
	"github.com/gogama/callgraph/fault"
	"github.com/gogama/callgraph/wait"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	g := &callgraph.HandlerGroup{}
	c.Install(g)
	eng := &callgraph.Engine{
		Handlers: g,
		Wait:     wait.NewLocal(func(time.Duration) {}),
	}

	var invokes, polls int
	o, err := eng.Initiate(context.Background(), nil, "model", checkpoint.New()).
		Call("a").
		Request(func(interface{}) interface{} { return "req" }).
		Backoff(delay.Fixed(5, 2*time.Second)).
		Invoke(func(context.Context, interface{}, interface{}) (interface{}, error) {
			invokes++
			if invokes == 1 {
				return nil, fault.New(fault.Throttling, "Rate exceeded")
			}
			return "res", nil
		}).
		Stabilize(func(*callgraph.Execution) (bool, error) {
			polls++
			return polls > 1, nil
		}).
		Success()
	require.NoError(t, err)
	require.Equal(t, callgraph.Success, o.Status)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.attempts.WithLabelValues("a", "Throttling")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.attempts.WithLabelValues("a", "pending")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.attempts.WithLabelValues("a", "stabilized")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.outcomes.WithLabelValues("a", "SUCCESS", NoKind)))

	expected := `
# HELP callgraph_wait_seconds Backoff delays chosen between call graph attempts
# TYPE callgraph_wait_seconds histogram
callgraph_wait_seconds_bucket{call_graph="a",le="0.1"} 0
callgraph_wait_seconds_bucket{call_graph="a",le="0.2"} 0
callgraph_wait_seconds_bucket{call_graph="a",le="0.4"} 0
callgraph_wait_seconds_bucket{call_graph="a",le="0.8"} 0
callgraph_wait_seconds_bucket{call_graph="a",le="1.6"} 0
callgraph_wait_seconds_bucket{call_graph="a",le="3.2"} 2
callgraph_wait_seconds_bucket{call_graph="a",le="6.4"} 2
callgraph_wait_seconds_bucket{call_graph="a",le="12.8"} 2
callgraph_wait_seconds_bucket{call_graph="a",le="25.6"} 2
callgraph_wait_seconds_bucket{call_graph="a",le="51.2"} 2
callgraph_wait_seconds_bucket{call_graph="a",le="102.4"} 2
callgraph_wait_seconds_bucket{call_graph="a",le="204.8"} 2
callgraph_wait_seconds_bucket{call_graph="a",le="+Inf"} 2
callgraph_wait_seconds_sum{call_graph="a"} 4
callgraph_wait_seconds_count{call_graph="a"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "callgraph_wait_seconds"))
	assert.Equal(t, 3, testutil.CollectAndCount(c.attempts))
}

func TestCollector_Handle(t *testing.T) {
	c := NewCollector(nil)
	failed := callgraph.Fail(fault.NotStabilized, "Exceeded attempts to wait", nil, nil)
	c.Handle(callgraph.AfterExecutionEnd, &callgraph.Execution{CallGraph: "b", Outcome: &failed})
	c.Handle(callgraph.AfterExecutionEnd, &callgraph.Execution{
		CallGraph: "b",
		Err:       errors.New("fatal"),
		Kind:      fault.FrameworkFatal,
	})
	c.Handle(callgraph.BeforeAttempt, &callgraph.Execution{CallGraph: "b"})

	assert.Equal(t, float64(1), testutil.ToFloat64(c.outcomes.WithLabelValues("b", "FAILED", "NotStabilized")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.outcomes.WithLabelValues("b", Aborted, "FrameworkFatal")))
	assert.Equal(t, 0, testutil.CollectAndCount(c.attempts))
}

func TestNewCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
}
