// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package thingapi

import (
	"fmt"
	"net/url"

	"github.com/gogama/callgraph"
	"github.com/gogama/callgraph/fault"
	"github.com/gogama/callgraph/httpcall"
)

// Call graph names.
const (
	CreateThing   = "thing:CreateThing"
	DescribeThing = "thing:DescribeThing"
)

// Provision creates the thing bound to in, waits until it is ACTIVE,
// and reads it back. The Initiator's client must be an
// *httpcall.Client and its model a *Thing.
func Provision(in *callgraph.Initiator, endpoint string) (callgraph.Outcome, error) {
	return callgraph.Sequence(callgraph.Continue(in.Model(), in.Checkpoint()),
		func(callgraph.Outcome) (callgraph.Outcome, error) { return Create(in, endpoint) },
		func(o callgraph.Outcome) (callgraph.Outcome, error) { return Describe(in.Rebind(o.Model), endpoint) },
	)
}

// Create creates the thing and stabilizes once the service reports it
// ACTIVE. Its outcome can continue, carrying the thing with its ID.
func Create(in *callgraph.Initiator, endpoint string) (callgraph.Outcome, error) {
	return in.Call(CreateThing).
		Request(func(m interface{}) interface{} {
			return mustPlan(httpcall.NewJSONPlan("POST", endpoint+"/things", Thing{Name: m.(*Thing).Name}))
		}).
		Invoke(httpcall.Invoke).
		Stabilize(func(x *callgraph.Execution) (bool, error) {
			created, err := decode(x.Response)
			if err != nil {
				return false, err
			}
			t, err := describe(x, endpoint, created.ID)
			if err != nil {
				return false, err
			}
			return t.State == Active, nil
		}).
		Done(func(x *callgraph.Execution) (callgraph.Outcome, error) {
			created, err := decode(x.Response)
			if err != nil {
				return callgraph.FailErr(err, x.Model, x.Checkpoint), nil
			}
			t := *x.Model.(*Thing)
			t.ID = created.ID
			t.State = Active
			return callgraph.Continue(&t, x.Checkpoint), nil
		})
}

// Describe reads the thing back and succeeds with the service's view
// of it. A thing which no longer exists fails with NotFound.
func Describe(in *callgraph.Initiator, endpoint string) (callgraph.Outcome, error) {
	return in.Call(DescribeThing).
		Request(func(m interface{}) interface{} {
			return mustPlan(httpcall.NewPlan("GET", thingURL(endpoint, m.(*Thing).ID), nil))
		}).
		Invoke(httpcall.Invoke).
		Done(func(x *callgraph.Execution) (callgraph.Outcome, error) {
			t, err := decode(x.Response)
			if err != nil {
				return callgraph.FailErr(err, x.Model, x.Checkpoint), nil
			}
			return callgraph.Succeed(t), nil
		})
}

func describe(x *callgraph.Execution, endpoint, id string) (*Thing, error) {
	p, err := httpcall.NewPlan("GET", thingURL(endpoint, id), nil)
	if err != nil {
		return nil, err
	}
	r, err := x.Client.(*httpcall.Client).Do(x.Context(), p)
	if err != nil {
		return nil, err
	}
	return decode(r)
}

func decode(response interface{}) (*Thing, error) {
	r, ok := response.(*httpcall.Response)
	if !ok {
		return nil, fault.New(fault.InternalFailure, fmt.Sprintf("unexpected response type %T", response))
	}
	var t Thing
	if err := r.DecodeJSON(&t); err != nil {
		return nil, fault.Wrap(fault.GeneralServiceException, err)
	}
	return &t, nil
}

func thingURL(endpoint, id string) string {
	return endpoint + "/things/" + url.PathEscape(id)
}

func mustPlan(p *httpcall.Plan, err error) *httpcall.Plan {
	if err != nil {
		panic("callgraph/thingapi: " + err.Error())
	}
	return p
}
