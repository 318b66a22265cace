// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package thingapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gogama/callgraph"
	"github.com/gogama/callgraph/checkpoint"
	"github.com/gogama/callgraph/delay"
	"github.com/gogama/callgraph/fault"
	"github.com/gogama/callgraph/httpcall"
	"github.com/gogama/callgraph/wait"
	"github.com/google/uuid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T, opts Options) (*Service, *httptest.Server) {
	svc := New(opts)
	server := httptest.NewServer(svc)
	t.Cleanup(server.Close)
	return svc, server
}

func TestService(t *testing.T) {
	svc, server := start(t, Options{Throttles: 1, PendingReads: 1})
	post := func(body string) *http.Response {
		resp, err := http.Post(server.URL+"/things", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}
	get := func(id string) (*http.Response, Thing) {
		resp, err := http.Get(server.URL + "/things/" + id)
		require.NoError(t, err)
		defer resp.Body.Close()
		var th Thing
		_ = json.NewDecoder(resp.Body).Decode(&th)
		return resp, th
	}

	assert.Equal(t, http.StatusTooManyRequests, post(`{"name":"a"}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(`{"name":" "}`).StatusCode)
	resp := post(`{"name":"a"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created Thing
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	_, err := uuid.Parse(created.ID)
	require.NoError(t, err)
	assert.Equal(t, Thing{ID: created.ID, Name: "a", State: Pending}, created)

	resp, th := get(created.ID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, Pending, th.State)
	_, th = get(created.ID)
	assert.Equal(t, Active, th.State)

	resp, _ = get(uuid.NewString())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = get("not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, 3, svc.Creates())
	assert.Equal(t, 4, svc.Describes())
	assert.Equal(t, 1, svc.Len())
}

func TestProvision(t *testing.T) {
	svc, server := start(t, Options{Throttles: 2, PendingReads: 2})
	var slept []time.Duration
	eng := &callgraph.Engine{
		Delay: delay.Fixed(5, time.Second),
		Wait:  wait.NewLocal(func(d time.Duration) { slept = append(slept, d) }),
	}
	client := &httpcall.Client{HTTPClient: server.Client()}
	store := checkpoint.New()

	o, err := Provision(eng.Initiate(context.Background(), client, &Thing{Name: "widget"}, store), server.URL)
	require.NoError(t, err)
	require.Equal(t, callgraph.Success, o.Status, o.Message)
	th := o.Model.(*Thing)
	assert.Equal(t, "widget", th.Name)
	assert.Equal(t, Active, th.State)
	assert.NotEmpty(t, th.ID)
	assert.Equal(t, 3, svc.Creates())
	assert.Equal(t, 4, svc.Describes())
	assert.Equal(t, 1, svc.Len())
	assert.Len(t, slept, 4)

	o, err = Provision(eng.Initiate(context.Background(), client, &Thing{Name: "widget"}, store), server.URL)
	require.NoError(t, err)
	assert.Equal(t, callgraph.Success, o.Status)
	assert.Equal(t, 3, svc.Creates(), "replay must not create again")
	assert.Equal(t, 1, svc.Len())
}

func TestProvision_Suspended(t *testing.T) {
	svc, server := start(t, Options{Throttles: 2, PendingReads: 2})
	eng := &callgraph.Engine{
		Delay: delay.Fixed(5, 1500*time.Millisecond),
		Wait:  wait.Suspend,
	}
	client := &httpcall.Client{HTTPClient: server.Client()}
	model := &Thing{Name: "widget"}
	store := checkpoint.New()

	var o callgraph.Outcome
	var invocations int
	for invocations = 1; invocations <= 10; invocations++ {
		var err error
		o, err = Provision(eng.Initiate(context.Background(), client, model, store), server.URL)
		require.NoError(t, err)
		if o.Terminal() {
			break
		}
		require.Equal(t, 2, o.CallbackDelaySeconds)

		// Round trip through the wire format, as the scheduler would.
		b, err := json.Marshal(o)
		require.NoError(t, err)
		var redelivered struct {
			ResourceModel   Thing           `json:"resourceModel"`
			CallbackContext json.RawMessage `json:"callbackContext"`
		}
		require.NoError(t, json.Unmarshal(b, &redelivered))
		model = &redelivered.ResourceModel
		store, err = checkpoint.Decode(redelivered.CallbackContext, nil)
		require.NoError(t, err)
	}
	require.Equal(t, callgraph.Success, o.Status, o.Message)
	assert.Equal(t, 5, invocations)
	assert.Equal(t, Active, o.Model.(*Thing).State)
	assert.Equal(t, 3, svc.Creates())
	assert.Equal(t, 1, svc.Len())
}

func TestProvision_Failures(t *testing.T) {
	t.Run("bad request", func(t *testing.T) {
		svc, server := start(t, Options{})
		var eng callgraph.Engine
		client := &httpcall.Client{HTTPClient: server.Client()}
		o, err := Provision(eng.Initiate(context.Background(), client, &Thing{}, checkpoint.New()), server.URL)
		require.NoError(t, err)
		assert.Equal(t, callgraph.Failed, o.Status)
		assert.Equal(t, fault.InvalidRequest, o.ErrorKind)
		assert.Equal(t, 1, svc.Creates())
	})
	t.Run("not found", func(t *testing.T) {
		_, server := start(t, Options{})
		var eng callgraph.Engine
		client := &httpcall.Client{HTTPClient: server.Client()}
		in := eng.Initiate(context.Background(), client, &Thing{ID: uuid.NewString()}, checkpoint.New())
		o, err := Describe(in, server.URL)
		require.NoError(t, err)
		assert.Equal(t, callgraph.Failed, o.Status)
		assert.Equal(t, fault.NotFound, o.ErrorKind)
	})
	t.Run("garbled", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("{not json"))
		}))
		t.Cleanup(server.Close)
		var eng callgraph.Engine
		client := &httpcall.Client{HTTPClient: server.Client()}
		model := &Thing{ID: uuid.NewString()}
		store := checkpoint.New()
		o, err := Describe(eng.Initiate(context.Background(), client, model, store), server.URL)
		require.NoError(t, err)
		assert.Equal(t, callgraph.Failed, o.Status)
		assert.Equal(t, fault.GeneralServiceException, o.ErrorKind)
		assert.Same(t, model, o.Model)
		assert.Same(t, store, o.Checkpoint)
		_, ok := store.Get(DescribeThing, checkpoint.Response)
		assert.False(t, ok)
	})
	t.Run("never active", func(t *testing.T) {
		_, server := start(t, Options{PendingReads: 100})
		eng := &callgraph.Engine{
			Delay: delay.Fixed(2, time.Millisecond),
			Wait:  wait.NewLocal(func(time.Duration) {}),
		}
		client := &httpcall.Client{HTTPClient: server.Client()}
		store := checkpoint.New()
		o, err := Create(eng.Initiate(context.Background(), client, &Thing{Name: "a"}, store), server.URL)
		require.NoError(t, err)
		assert.Equal(t, callgraph.Failed, o.Status)
		assert.Equal(t, fault.NotStabilized, o.ErrorKind)
		assert.Equal(t, "Exceeded attempts to wait", o.Message)
		_, ok := store.Get(CreateThing, checkpoint.Response)
		assert.False(t, ok)
	})
}
