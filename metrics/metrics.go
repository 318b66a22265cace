// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package metrics provides an event handler which records call graph
// executions as Prometheus metrics.
package metrics

import (
	"github.com/gogama/callgraph"
	"github.com/gogama/callgraph/fault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values used when there is no fault kind or no outcome.
const (
	NoKind  = "none"
	Aborted = "ABORTED"
)

// A Collector records call graph events as Prometheus metrics:
//
// • callgraph_attempts_total{call_graph,result} counts attempts, where
// result is the fault kind of a failed attempt, "stabilized" for an
// attempt that completed, or "pending" for one that must poll again;
//
// • callgraph_outcomes_total{call_graph,status,kind} counts the ends of
// executions by outcome status and fault kind, with status "ABORTED"
// when the engine returned an error instead of an outcome; and
//
// • callgraph_wait_seconds{call_graph} observes the backoff delays
// chosen by delay policies.
type Collector struct {
	attempts *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	waits    *prometheus.HistogramVec
}

// NewCollector creates a Collector whose metrics are registered with
// reg. If reg is nil, the metrics are not registered.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callgraph_attempts_total",
				Help: "Total number of call graph attempts",
			},
			[]string{"call_graph", "result"},
		),
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callgraph_outcomes_total",
				Help: "Total number of call graph executions by outcome",
			},
			[]string{"call_graph", "status", "kind"},
		),
		waits: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callgraph_wait_seconds",
				Help:    "Backoff delays chosen between call graph attempts",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"call_graph"},
		),
	}
}

// Install adds the collector to the AfterAttempt, BeforeWait and
// AfterExecutionEnd event chains of g.
func (c *Collector) Install(g *callgraph.HandlerGroup) {
	g.PushBack(callgraph.AfterAttempt, c)
	g.PushBack(callgraph.BeforeWait, c)
	g.PushBack(callgraph.AfterExecutionEnd, c)
}

// Handle records evt.
func (c *Collector) Handle(evt callgraph.Event, x *callgraph.Execution) {
	switch evt {
	case callgraph.AfterAttempt:
		c.attempts.WithLabelValues(x.CallGraph, attemptResult(x)).Inc()
	case callgraph.BeforeWait:
		c.waits.WithLabelValues(x.CallGraph).Observe(x.Wait.Seconds())
	case callgraph.AfterExecutionEnd:
		status, kind := Aborted, x.Kind
		if x.Outcome != nil {
			status, kind = x.Outcome.Status.String(), x.Outcome.ErrorKind
		}
		c.outcomes.WithLabelValues(x.CallGraph, status, kindLabel(kind)).Inc()
	}
}

func attemptResult(x *callgraph.Execution) string {
	switch {
	case x.Err != nil:
		return kindLabel(x.Kind)
	case x.Stabilized:
		return "stabilized"
	default:
		return "pending"
	}
}

func kindLabel(kind fault.Kind) string {
	if kind == fault.None {
		return NoKind
	}
	return kind.String()
}
