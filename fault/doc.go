// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package fault defines the error taxonomy of the call graph engine and
// categorizes errors returned by transport calls into that taxonomy.
//
// Categorization looks at the error chain, not just the outer error. A
// transport reports a remote status code by returning an error that
// implements StatusCoder anywhere in its chain. Transports may also
// return an *Error to state the Kind explicitly, or wrap
// ErrInvalidRequest when a request is rejected before it is sent.
//
// Package fault depends only on the standard library, so it can be
// imported by transports without pulling in the engine.
package fault
