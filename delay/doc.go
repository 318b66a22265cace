// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package delay provides policies for deciding how long to wait between
// attempts of a call graph, and when to stop waiting altogether.
//
// A Policy is a pure function from a one-based attempt number to the
// next wait duration. When a Policy has nothing more to offer it returns
// the sentinel value Exhausted, which the engine turns into a failed
// outcome. Policies carry no state between calls, so a single Policy
// value may be shared by any number of call graphs and survives a host
// re-invocation unchanged: the attempt number itself is checkpointed.
//
// The two workhorse policies are Fixed and Exponential:
//
//	retryThrice := delay.Fixed(3, time.Second)
//	poll := delay.Exponential(2, 2*time.Second, 512*time.Second, time.Second)
//
// Policies may be chained with Blended, which consults each policy in
// turn until it is exhausted:
//
//	p := delay.Blended(delay.Fixed(5, time.Second), poll)
package delay
