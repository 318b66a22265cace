// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package delay

import (
	"math"
	"time"
)

// A Policy decides how long to wait before the next attempt of a call
// graph.
//
// Next is called with the one-based number of the attempt that just
// finished without a terminal result. It returns a positive duration
// to wait before making the next attempt, or Exhausted if no further
// attempts should be made. Attempt numbers below one are invalid and
// cause a panic.
//
// Implementations of Policy must be stateless and safe for concurrent
// use by multiple goroutines, since the same Policy value is consulted
// again after every host re-invocation with the checkpointed attempt
// number.
type Policy interface {
	Next(attempt int) time.Duration
}

// The PolicyFunc type is an adapter to allow the use of ordinary
// functions as delay policies.
type PolicyFunc func(attempt int) time.Duration

// Next returns f(attempt).
func (f PolicyFunc) Next(attempt int) time.Duration {
	checkAttempt(attempt)
	return f(attempt)
}

// Exhausted is the sentinel duration a Policy returns when no further
// attempts should be made. No Policy in this package ever returns a
// non-positive duration other than Exhausted, and callers treat any
// non-positive duration as Exhausted.
const Exhausted time.Duration = 0

// DefaultPolicy is the policy used for a call graph that does not set
// its own backoff. It waits 3 seconds between attempts until 9 seconds
// of waiting have accrued, for a total of four attempts.
var DefaultPolicy = Constant(3*time.Second, 9*time.Second)

// Fixed constructs a policy that waits interval after each of the first
// maxAttempts attempts, and is exhausted afterward. The total wait
// accrued over a full run of the policy is maxAttempts × interval.
func Fixed(maxAttempts int, interval time.Duration) Policy {
	if maxAttempts < 0 {
		panic("callgraph/delay: maxAttempts may not be negative")
	}
	checkInterval(interval)
	return fixed{maxAttempts: maxAttempts, interval: interval}
}

type fixed struct {
	maxAttempts int
	interval    time.Duration
}

func (p fixed) Next(attempt int) time.Duration {
	checkAttempt(attempt)
	if attempt > p.maxAttempts {
		return Exhausted
	}
	return p.interval
}

// Constant constructs a policy that waits interval after each attempt
// for as long as the accrued wait, attempt × interval, does not exceed
// timeout.
func Constant(interval, timeout time.Duration) Policy {
	checkInterval(interval)
	if timeout < 0 {
		panic("callgraph/delay: timeout may not be negative")
	}
	return fixed{maxAttempts: clampInt(int64(timeout / interval)), interval: interval}
}

// MultipleOf constructs a policy whose wait grows linearly: interval
// after the first attempt, then interval × (1 + multiple) after the
// second, interval × (1 + 2×multiple) after the third, and so on. The
// policy is exhausted once the accrued wait would exceed timeout.
func MultipleOf(interval time.Duration, multiple int, timeout time.Duration) Policy {
	checkInterval(interval)
	if multiple < 0 {
		panic("callgraph/delay: multiple may not be negative")
	}
	return &accruing{
		timeout: timeout,
		step: func(attempt int) (time.Duration, bool) {
			n := int64(attempt-1) * int64(multiple)
			if n < 0 || n > (math.MaxInt64/int64(interval))-1 {
				return 0, false
			}
			return interval + time.Duration(n)*interval, true
		},
	}
}

// Exponential constructs a policy that waits unit × base^attempt, but
// never less than min, for as long as that wait does not exceed max.
// Once the computed wait exceeds max the policy is exhausted. If max is
// smaller than the wait computed for the first attempt, the policy is
// exhausted immediately.
//
// The base must be at least 2. The unit and max must be positive.
//
// For example Exponential(2, 2*time.Second, 512*time.Second, time.Second)
// waits 2s, 4s, 8s, ... 512s and is exhausted after the ninth attempt.
func Exponential(base int, min, max, unit time.Duration) Policy {
	checkExp(base, min, max, unit)
	return exponential{base: base, min: min, max: max, unit: unit}
}

type exponential struct {
	base     int
	min, max time.Duration
	unit     time.Duration
}

func (p exponential) Next(attempt int) time.Duration {
	checkAttempt(attempt)
	d, ok := scaledPow(p.base, attempt, p.unit)
	if !ok {
		return Exhausted
	}
	if d < p.min {
		d = p.min
	}
	if d > p.max {
		return Exhausted
	}
	return d
}

// CappedExponential is like Exponential except that the wait is clamped
// to max instead of exhausting the policy. Instead the policy is
// exhausted once the accrued wait would exceed timeout.
func CappedExponential(base int, min, max, unit, timeout time.Duration) Policy {
	checkExp(base, min, max, unit)
	return &accruing{
		timeout: timeout,
		step: func(attempt int) (time.Duration, bool) {
			d, ok := scaledPow(base, attempt, unit)
			if !ok || d > max {
				d = max
			}
			if d < min {
				d = min
			}
			return d, true
		},
	}
}

// accruing is a policy whose per-attempt wait is given by step, and
// which is exhausted once the sum of waits for attempts 1..n exceeds
// timeout.
type accruing struct {
	timeout time.Duration
	step    func(attempt int) (time.Duration, bool)
}

func (p *accruing) Next(attempt int) time.Duration {
	checkAttempt(attempt)
	var accrued time.Duration
	var d time.Duration
	for i := 1; i <= attempt; i++ {
		var ok bool
		d, ok = p.step(i)
		if !ok || d <= 0 || accrued > p.timeout-d {
			return Exhausted
		}
		accrued += d
	}
	return d
}

// Blended constructs a policy that consults each of the given policies
// in order. The first policy serves attempts until it is exhausted, at
// which point the second policy takes over, starting again from its own
// first attempt, and so on. Blended is exhausted when the last of its
// policies is.
func Blended(policies ...Policy) Policy {
	if len(policies) == 0 {
		panic("callgraph/delay: no policies to blend")
	}
	for _, p := range policies {
		if p == nil {
			panic("callgraph/delay: nil policy")
		}
	}
	ps := make([]Policy, len(policies))
	copy(ps, policies)
	return blended(ps)
}

type blended []Policy

func (b blended) Next(attempt int) time.Duration {
	checkAttempt(attempt)
	offset := 0
	for _, p := range b {
		local := attempt - offset
		if d := p.Next(local); d != Exhausted {
			return d
		}
		// Count how many attempts p served before it ran out.
		served := 0
		for served < local-1 && p.Next(served+1) != Exhausted {
			served++
		}
		offset += served
	}
	return Exhausted
}

// scaledPow returns unit × base^exp, reporting false on overflow.
func scaledPow(base, exp int, unit time.Duration) (time.Duration, bool) {
	var v int64
	if base == 2 {
		if exp >= 63 {
			return 0, false
		}
		v = int64(1) << uint(exp)
	} else {
		v = 1
		b := int64(base)
		for i := 0; i < exp; i++ {
			if v > math.MaxInt64/b {
				return 0, false
			}
			v *= b
		}
	}
	if v > math.MaxInt64/int64(unit) {
		return 0, false
	}
	return time.Duration(v) * unit, true
}

func checkAttempt(attempt int) {
	if attempt < 1 {
		panic("callgraph/delay: attempt must be at least 1")
	}
}

func checkInterval(interval time.Duration) {
	if interval <= 0 {
		panic("callgraph/delay: interval must be positive")
	}
}

func checkExp(base int, min, max, unit time.Duration) {
	if base < 2 {
		panic("callgraph/delay: base must be at least 2")
	}
	if unit <= 0 {
		panic("callgraph/delay: unit must be positive")
	}
	if max <= 0 {
		panic("callgraph/delay: max must be positive")
	}
	if min < 0 {
		panic("callgraph/delay: min may not be negative")
	}
}

func clampInt(n int64) int {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}
