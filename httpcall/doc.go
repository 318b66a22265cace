// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package httpcall is an HTTP transport for call graphs.

A Plan describes a buffered HTTP request. Unlike an http.Request, a
Plan can be stored in a checkpoint and turned into a fresh http.Request
on every attempt. Client.Do executes a plan and returns a fully
buffered Response, or a *StatusError if the response status is not
2XX. StatusError implements fault.StatusCoder, so failed responses are
categorized by status code.

Invoke adapts a Client to the call graph invocation signature:

	eng.Initiate(ctx, &httpcall.Client{}, model, store).
		Call("thing:CreateThing").
		Request(func(m interface{}) interface{} {
			p, _ := httpcall.NewJSONPlan("POST", endpoint+"/things", m)
			return p
		}).
		Invoke(httpcall.Invoke).
		Success()
*/
package httpcall
