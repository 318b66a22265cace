// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package checkpoint

import (
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// A Phase identifies which part of a call graph's state a Store entry
// holds. Its value is the suffix appended to the call graph name to form
// the entry's key.
type Phase string

const (
	// Request is the phase of the request built from the domain model.
	Request Phase = ".request"
	// Response is the phase of the response to the remote call.
	Response Phase = ".response"
	// Stabilize is the phase of the stabilization result. It is only
	// ever present with the value true.
	Stabilize Phase = ".stabilize"
	// Attempts is the phase of the attempt counter.
	Attempts Phase = ".attempts"
)

// Key returns the Store key for a call graph and phase.
func Key(callGraph string, phase Phase) string {
	return callGraph + string(phase)
}

// A Store is an insertion-ordered map of call graph state.
//
// The zero value is an empty Store which serializes values using
// DefaultRegistry. A Store is safe for concurrent use by multiple
// goroutines, and must not be copied after first use.
type Store struct {
	mu       sync.Mutex
	keys     []string
	values   map[string]interface{}
	flight   singleflight.Group
	registry *Registry
}

// New returns an empty Store using DefaultRegistry.
func New() *Store {
	return &Store{}
}

// NewWithRegistry returns an empty Store which serializes values using
// the given registry. If r is nil, DefaultRegistry is used.
func NewWithRegistry(r *Registry) *Store {
	return &Store{registry: r}
}

// Registry returns the registry the Store serializes values with.
func (s *Store) Registry() *Registry {
	if s.registry == nil {
		return DefaultRegistry
	}
	return s.registry
}

// Memoize returns the value stored for the call graph and phase. If no
// value is stored, it calls produce, stores the result and returns it.
//
// For the life of the Store, produce runs at most once successfully per
// key: concurrent callers for the same key wait for the one in flight
// and share its result. If produce returns an error nothing is stored,
// and the error is returned to every waiting caller.
func (s *Store) Memoize(callGraph string, phase Phase, produce func() (interface{}, error)) (interface{}, error) {
	if produce == nil {
		panic("callgraph/checkpoint: nil producer")
	}
	key := Key(callGraph, phase)
	if v, ok := s.lookup(key); ok {
		return v, nil
	}
	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		if v, ok := s.lookup(key); ok {
			return v, nil
		}
		v, err := produce()
		if err != nil {
			return nil, err
		}
		return s.putIfAbsent(key, v), nil
	})
	return v, err
}

// MemoizeStabilize returns true if the call graph is recorded as
// stabilized. Otherwise it calls predicate, and if the predicate
// returns true records the call graph as stabilized.
//
// A false result is never recorded, so predicate runs again on the
// next call. Once a true result is recorded predicate is never called
// again for the call graph.
func (s *Store) MemoizeStabilize(callGraph string, predicate func() (bool, error)) (bool, error) {
	if predicate == nil {
		panic("callgraph/checkpoint: nil predicate")
	}
	key := Key(callGraph, Stabilize)
	if v, ok := s.lookup(key); ok && v == true {
		return true, nil
	}
	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		if v, ok := s.lookup(key); ok && v == true {
			return true, nil
		}
		ok, err := predicate()
		if err != nil || !ok {
			return false, err
		}
		s.put(key, true)
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Attempts returns the attempt counter of the call graph. The counter
// starts at 1: the first read of a call graph's counter stores and
// returns 1.
func (s *Store) Attempts(callGraph string) int {
	key := Key(callGraph, Attempts)
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.values[key].(int); ok {
		return n
	}
	s.putLocked(key, 1)
	return 1
}

// SetAttempts overwrites the attempt counter of the call graph.
func (s *Store) SetAttempts(callGraph string, n int) {
	s.put(Key(callGraph, Attempts), n)
}

// Get returns the value stored for the call graph and phase, and
// whether there is one.
func (s *Store) Get(callGraph string, phase Phase) (interface{}, bool) {
	return s.lookup(Key(callGraph, phase))
}

// Evict removes the value stored for the call graph and phase, if any.
func (s *Store) Evict(callGraph string, phase Phase) {
	key := Key(callGraph, phase)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

// FindFirst returns the first value, in insertion order, whose key
// contains the substring contains and ends with phase.
func (s *Store) FindFirst(contains string, phase Phase) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if matches(k, contains, phase) {
			return s.values[k], true
		}
	}
	return nil, false
}

// FindAll returns every value, in insertion order, whose key contains
// the substring contains and ends with phase.
func (s *Store) FindAll(contains string, phase Phase) []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	var vs []interface{}
	for _, k := range s.keys {
		if matches(k, contains, phase) {
			vs = append(vs, s.values[k])
		}
	}
	return vs
}

// FindFirstRequest is FindFirst for the Request phase.
func (s *Store) FindFirstRequest(contains string) (interface{}, bool) {
	return s.FindFirst(contains, Request)
}

// FindFirstResponse is FindFirst for the Response phase.
func (s *Store) FindFirstResponse(contains string) (interface{}, bool) {
	return s.FindFirst(contains, Response)
}

// FindAllRequests is FindAll for the Request phase.
func (s *Store) FindAllRequests(contains string) []interface{} {
	return s.FindAll(contains, Request)
}

// FindAllResponses is FindAll for the Response phase.
func (s *Store) FindAllResponses(contains string) []interface{} {
	return s.FindAll(contains, Response)
}

// Keys returns the keys of the Store in insertion order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// Len returns the number of entries in the Store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

func (s *Store) lookup(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Store) put(key string, v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(key, v)
}

func (s *Store) putIfAbsent(key string, v interface{}) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.values[key]; ok {
		return existing
	}
	s.putLocked(key, v)
	return v
}

func (s *Store) putLocked(key string, v interface{}) {
	if s.values == nil {
		s.values = make(map[string]interface{})
	}
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = v
}

// entries returns a consistent copy of the keys and values.
func (s *Store) entries() ([]string, []interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	values := make([]interface{}, len(keys))
	for i, k := range keys {
		values[i] = s.values[k]
	}
	return keys, values
}

// replace swaps the entire contents of the Store.
func (s *Store) replace(keys []string, values map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = keys
	s.values = values
}

func matches(key, contains string, phase Phase) bool {
	return strings.HasSuffix(key, string(phase)) && strings.Contains(key, contains)
}
