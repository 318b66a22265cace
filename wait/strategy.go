// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package wait

import (
	"context"
	"math"
	"time"
)

// A Decision is the result of consulting a Strategy.
//
// If Retry is true the strategy has already waited out the delay and
// the next attempt should be made immediately within the current host
// invocation. Otherwise the call graph must suspend, and the external
// scheduler should redeliver it after at least Seconds seconds.
type Decision struct {
	Retry   bool
	Seconds int
}

// A Strategy decides between waiting locally and suspending.
//
// Parameter elapsed is the duration of the attempt that just finished,
// next is the delay returned by the call graph's delay policy, and
// remaining is the compute budget left in the current host invocation.
//
// Implementations of Strategy must be safe for concurrent use by
// multiple goroutines.
type Strategy interface {
	Decide(elapsed, next, remaining time.Duration) Decision
}

// Slack is the fixed allowance added to every local wait budget.
const Slack = 100 * time.Millisecond

// A Sleeper blocks the calling goroutine for the given duration.
type Sleeper func(time.Duration)

// Local is the default strategy. It sleeps in-process with time.Sleep
// whenever the remaining budget allows it.
var Local Strategy = NewLocal(nil)

// Suspend is a strategy that never sleeps. Every decision it makes is a
// suspension, which suits hosts that must never block.
var Suspend Strategy = suspend{}

// NewLocal constructs a strategy which sleeps locally using s when the
// remaining budget strictly exceeds next + 2×elapsed + Slack, and
// suspends otherwise. If s is nil, time.Sleep is used.
//
// The sleep cannot be interrupted. A cancelled sleep would leave the
// caller unsure whether the attempt counter it already advanced has
// been honored, and the budget check above ensures the sleep finishes
// before the host deadline.
func NewLocal(s Sleeper) Strategy {
	if s == nil {
		s = time.Sleep
	}
	return local{sleep: s}
}

type local struct {
	sleep Sleeper
}

func (l local) Decide(elapsed, next, remaining time.Duration) Decision {
	if remaining > Budget(elapsed, next) {
		l.sleep(next)
		return Decision{Retry: true}
	}
	return Decision{Seconds: Seconds(next)}
}

type suspend struct{}

func (_ suspend) Decide(_, next, _ time.Duration) Decision {
	return Decision{Seconds: Seconds(next)}
}

// Budget returns the compute budget needed to wait next locally after
// an attempt that took elapsed: the delay, the attempt overhead twice
// over, and Slack.
func Budget(elapsed, next time.Duration) time.Duration {
	if elapsed < 0 {
		elapsed = 0
	}
	return next + 2*elapsed + Slack
}

// Seconds converts a delay into whole seconds, rounding up so that a
// positive sub-second delay never becomes zero. Zero is reserved for
// "continue synchronously".
func Seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	s := int64(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	if s > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(s)
}

// Remaining returns the compute budget left before ctx's deadline. If
// ctx has no deadline the budget is unbounded.
func Remaining(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return time.Duration(math.MaxInt64)
	}
	return time.Until(deadline)
}
