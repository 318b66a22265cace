// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package wait decides whether a call graph waits for its next attempt
// inside the current host invocation, or suspends and asks the external
// scheduler to redeliver it later.
//
// The host running a call graph is typically a serverless function with
// a hard compute deadline. Sleeping past that deadline kills the host
// and loses whatever was in flight, so the Local strategy only sleeps
// when the remaining budget comfortably covers the sleep plus the cost
// of another attempt:
//
//	budget := next + 2*elapsed + Slack
//
// Otherwise it returns a Decision to suspend for the delay rounded up
// to whole seconds. The Suspend strategy never sleeps.
package wait
