// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package logging provides an event handler which logs call graph
// executions to a log/slog logger.
//
// Start and per-attempt events are logged at debug level. Backoff and
// suspension are logged at info level, failed attempts and failed
// outcomes at warn level, and engine errors at error level.
package logging

import (
	"context"
	"log/slog"

	"github.com/gogama/callgraph"
	"github.com/gogama/callgraph/fault"
)

// Install adds a Handler logging to logger to every event chain in g.
// If logger is nil, slog.Default() is used.
func Install(g *callgraph.HandlerGroup, logger *slog.Logger) *Handler {
	h := &Handler{Logger: logger}
	g.PushBackAll(h)
	return h
}

// A Handler logs call graph events.
type Handler struct {
	Logger *slog.Logger
}

// Handle logs evt.
func (h *Handler) Handle(evt callgraph.Event, x *callgraph.Execution) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx := x.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	attrs := []slog.Attr{
		slog.String("call_graph", x.CallGraph),
		slog.Int("attempt", x.Attempt),
	}

	switch evt {
	case callgraph.BeforeExecutionStart:
		logger.LogAttrs(ctx, slog.LevelDebug, "call graph started", attrs...)
	case callgraph.BeforeAttempt:
		logger.LogAttrs(ctx, slog.LevelDebug, "attempt started", attrs...)
	case callgraph.AfterAttempt:
		if x.Err != nil {
			attrs = append(attrs,
				slog.String("kind", x.Kind.String()),
				slog.String("error", x.Err.Error()),
			)
			logger.LogAttrs(ctx, slog.LevelWarn, "attempt failed", attrs...)
			return
		}
		attrs = append(attrs, slog.Bool("stabilized", x.Stabilized))
		logger.LogAttrs(ctx, slog.LevelDebug, "attempt succeeded", attrs...)
	case callgraph.BeforeWait:
		attrs = append(attrs, slog.Duration("delay", x.Wait))
		logger.LogAttrs(ctx, slog.LevelInfo, "backing off", attrs...)
	case callgraph.AfterExecutionEnd:
		attrs = append(attrs, slog.Duration("elapsed", x.Duration()))
		h.logEnd(ctx, logger, x, attrs)
	}
}

func (h *Handler) logEnd(ctx context.Context, logger *slog.Logger, x *callgraph.Execution, attrs []slog.Attr) {
	if x.Outcome == nil {
		if x.Err != nil {
			attrs = append(attrs, slog.String("error", x.Err.Error()))
		}
		attrs = append(attrs, slog.String("kind", x.Kind.String()))
		logger.LogAttrs(ctx, slog.LevelError, "call graph aborted", attrs...)
		return
	}

	o := x.Outcome
	attrs = append(attrs, slog.String("status", o.Status.String()))
	switch {
	case o.Status == callgraph.Failed:
		attrs = append(attrs,
			slog.String("kind", o.ErrorKind.String()),
			slog.String("message", o.Message),
		)
		level := slog.LevelWarn
		if o.ErrorKind == fault.InternalFailure {
			level = slog.LevelError
		}
		logger.LogAttrs(ctx, level, "call graph failed", attrs...)
	case o.CallbackDelaySeconds > 0:
		attrs = append(attrs, slog.Int("callback_delay_seconds", o.CallbackDelaySeconds))
		logger.LogAttrs(ctx, slog.LevelInfo, "call graph suspended", attrs...)
	default:
		logger.LogAttrs(ctx, slog.LevelInfo, "call graph completed", attrs...)
	}
}
