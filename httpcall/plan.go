// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpcall

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	urlpkg "net/url"
	"strings"

	"github.com/gogama/callgraph/fault"
	"golang.org/x/net/http/httpguts"
)

const badBodyTypeMsg = "callgraph/httpcall: invalid type (for body use nil, " +
	"string, []byte, io.Reader or io.ReadCloser)"

// A Plan is a buffered HTTP request which can be sent any number of
// times.
//
// A Plan holds only plain data, so it can be stored in a checkpoint
// as the request of a call graph and sent again after the host is
// re-invoked.
type Plan struct {
	// Method specifies the HTTP method (GET, POST, PUT, etc.).
	// An empty string means GET.
	Method string `json:"method"`

	// URL specifies the URL to access.
	URL string `json:"url"`

	// Header contains the request header fields to be sent.
	Header http.Header `json:"header,omitempty"`

	// Body is the pre-buffered request body to be sent. A nil or
	// empty body indicates no request body should be sent.
	Body []byte `json:"body,omitempty"`

	// Host optionally overrides the Host header to send. If empty, the
	// host of URL is sent.
	Host string `json:"host,omitempty"`
}

// NewPlan returns a new Plan given a method, URL, and optional body.
//
// Parameter body may be nil (empty body), or it may be a string,
// []byte, io.Reader, or io.ReadCloser. If body is an io.Reader, it is
// read to the end and buffered into a []byte. If body is an
// io.ReadCloser, it is closed after buffering.
//
// A malformed method or URL yields an error wrapping
// fault.ErrInvalidRequest.
func NewPlan(method, url string, body interface{}) (*Plan, error) {
	if method == "" {
		method = "GET"
	}
	if !validMethod(method) {
		return nil, fmt.Errorf("%w: invalid method %q", fault.ErrInvalidRequest, method)
	}
	u, err := urlpkg.Parse(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrInvalidRequest, err)
	}
	b, err := BodyBytes(body)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Method: method,
		URL:    u.String(),
		Header: make(http.Header),
		Body:   b,
	}, nil
}

// NewJSONPlan returns a new Plan whose body is the JSON encoding of v
// and whose Content-Type is application/json.
func NewJSONPlan(method, url string, v interface{}) (*Plan, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrInvalidRequest, err)
	}
	p, err := NewPlan(method, url, b)
	if err != nil {
		return nil, err
	}
	p.Header.Set("Content-Type", "application/json")
	return p, nil
}

// SetBasicAuth sets the plan's Authorization header to use HTTP Basic
// Authentication with the provided username and password.
func (p *Plan) SetBasicAuth(username, password string) {
	if p.Header == nil {
		p.Header = make(http.Header)
	}
	auth := username + ":" + password
	p.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(auth)))
}

// ToRequest creates an HTTP request corresponding to the plan. The
// context of the new request is set to ctx, which may not be nil.
func (p *Plan) ToRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(p.Body) > 0 {
		body = bytes.NewReader(p.Body)
	}
	method := p.Method
	if method == "" {
		method = "GET"
	}
	r, err := http.NewRequestWithContext(ctx, method, p.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrInvalidRequest, err)
	}
	for name, values := range p.Header {
		r.Header[name] = append([]string(nil), values...)
	}
	if p.Host != "" {
		r.Host = p.Host
	}
	return r, nil
}

// BodyBytes converts a generic body parameter to a byte slice for use
// as a plan body.
//
// The body parameter may be nil, or it may be a string, []byte,
// io.Reader, or io.ReadCloser. Readers are read to the end, and closed
// if they implement io.Closer. Any other type is an error.
func BodyBytes(body interface{}) ([]byte, error) {
	switch x := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(x), nil
	case []byte:
		return x, nil
	case io.ReadCloser:
		b, err := io.ReadAll(x)
		if err != nil {
			return nil, err
		}
		err = x.Close()
		if err != nil {
			return nil, err
		}
		return b, nil
	case io.Reader:
		return BodyBytes(io.NopCloser(x))
	default:
		return nil, errors.New(badBodyTypeMsg)
	}
}

func validMethod(method string) bool {
	return strings.IndexFunc(method, isNotToken) == -1
}

func isNotToken(r rune) bool {
	return !httpguts.IsTokenRune(r)
}
