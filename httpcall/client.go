// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gogama/callgraph/checkpoint"
	"golang.org/x/net/context/ctxhttp"
)

func init() {
	checkpoint.Register("httpcall.Plan", &Plan{})
	checkpoint.Register("httpcall.Response", &Response{})
}

// A Client executes plans. Its zero value is a valid configuration
// using http.DefaultClient.
//
// A Client makes exactly one attempt per call to Do. Retry is the
// business of the call graph engine, which never repeats a successful
// invocation.
type Client struct {
	// HTTPClient sends the requests. If nil, http.DefaultClient is
	// used.
	HTTPClient *http.Client
}

// A Response is a fully buffered HTTP response.
type Response struct {
	StatusCode int         `json:"statusCode"`
	Header     http.Header `json:"header,omitempty"`
	Body       []byte      `json:"body,omitempty"`
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// A StatusError reports a response with a non-2XX status code. It
// implements fault.StatusCoder.
type StatusError struct {
	Method   string
	URL      string
	Response *Response
}

func (err *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", err.Method, err.URL,
		err.Response.StatusCode, http.StatusText(err.Response.StatusCode))
}

// StatusCode returns the status code of the response.
func (err *StatusError) StatusCode() int {
	return err.Response.StatusCode
}

// Do sends the request described by p and buffers the response.
//
// An error is returned if the request could not be built or sent, if
// the response body could not be read, or if the response status code
// is not 2XX. In the last case the error is a *StatusError and the
// buffered response is returned alongside it. Errors from sending and
// reading the response have the type *url.Error.
func (c *Client) Do(ctx context.Context, p *Plan) (*Response, error) {
	req, err := p.ToRequest(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := ctxhttp.Do(ctx, c.HTTPClient, req)
	if err != nil {
		return nil, urlErrorWrap(req, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, urlErrorWrap(req, err)
	}
	r := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}
	if r.StatusCode < 200 || r.StatusCode > 299 {
		return r, &StatusError{Method: req.Method, URL: p.URL, Response: r}
	}
	return r, nil
}

var errBadInvoke = errors.New("callgraph/httpcall: Invoke needs a *Plan request and a *Client client")

// Invoke executes request, which must be a *Plan, using client, which
// must be a *Client. Its signature matches callgraph.InvokeFunc.
func Invoke(ctx context.Context, request, client interface{}) (interface{}, error) {
	p, ok := request.(*Plan)
	if !ok {
		return nil, errBadInvoke
	}
	c, ok := client.(*Client)
	if !ok {
		return nil, errBadInvoke
	}
	r, err := c.Do(ctx, p)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func urlErrorWrap(req *http.Request, err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return err
	}

	return &url.Error{
		Op:  urlErrorOp(req.Method),
		URL: req.URL.String(),
		Err: err,
	}
}

// urlErrorOp is lifted verbatim from net/http/client.go
func urlErrorOp(method string) string {
	if method == "" {
		return "Get"
	}
	return method[:1] + strings.ToLower(method[1:])
}
