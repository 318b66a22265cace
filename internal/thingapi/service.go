// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package thingapi is a fake, eventually consistent HTTP service which
// manages "things", together with the call graphs that provision them.
//
// The service throttles the first few create requests it receives and
// reports a newly created thing as PENDING for the first few describe
// requests before reporting it ACTIVE, which exercises the retry and
// stabilization paths of the engine.
package thingapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Thing states.
const (
	Pending = "PENDING"
	Active  = "ACTIVE"
)

// A Thing is the resource the service manages, and the domain model of
// the call graphs in this package.
type Thing struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	State string `json:"state,omitempty"`
}

// Options controls the misbehavior of a Service.
type Options struct {
	// Throttles is the number of create requests answered with 429
	// before the service starts creating things.
	Throttles int
	// PendingReads is the number of describe requests for which a new
	// thing is reported PENDING before it becomes ACTIVE.
	PendingReads int
}

// A Service is an http.Handler serving:
//
//	POST /things       create a thing from {"name": ...}
//	GET  /things/{id}  describe a thing
type Service struct {
	opts Options
	mux  *http.ServeMux

	mu        sync.Mutex
	things    map[string]*record
	creates   int
	describes int
}

type record struct {
	thing Thing
	reads int
}

// New creates a Service.
func New(opts Options) *Service {
	s := &Service{
		opts:   opts,
		mux:    http.NewServeMux(),
		things: make(map[string]*record),
	}
	s.mux.HandleFunc("POST /things", s.create)
	s.mux.HandleFunc("GET /things/{id}", s.describe)
	return s
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Creates returns the number of create requests received.
func (s *Service) Creates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

// Describes returns the number of describe requests received.
func (s *Service) Describes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.describes
}

// Len returns the number of things created.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.things)
}

func (s *Service) create(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.creates <= s.opts.Throttles {
		writeError(w, http.StatusTooManyRequests, "Rate exceeded")
		return
	}

	var in Thing
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	rec := &record{thing: Thing{ID: uuid.NewString(), Name: in.Name, State: Pending}}
	s.things[rec.thing.ID] = rec
	writeJSON(w, http.StatusCreated, rec.thing)
}

func (s *Service) describe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.describes++
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "malformed id")
		return
	}
	rec, ok := s.things[id]
	if !ok {
		writeError(w, http.StatusNotFound, "no such thing")
		return
	}
	rec.reads++
	if rec.reads > s.opts.PendingReads {
		rec.thing.State = Active
	}
	writeJSON(w, http.StatusOK, rec.thing)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"message": message})
}
