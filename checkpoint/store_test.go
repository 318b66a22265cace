// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package checkpoint

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "svc:Op.request", Key("svc:Op", Request))
	assert.Equal(t, "svc:Op.response", Key("svc:Op", Response))
	assert.Equal(t, "svc:Op.stabilize", Key("svc:Op", Stabilize))
	assert.Equal(t, "svc:Op.attempts", Key("svc:Op", Attempts))
}

func TestStoreMemoize(t *testing.T) {
	t.Run("Once", func(t *testing.T) {
		var s Store
		n := 0
		produce := func() (interface{}, error) {
			n++
			return fmt.Sprintf("value-%d", n), nil
		}
		v1, err := s.Memoize("a", Response, produce)
		require.NoError(t, err)
		v2, err := s.Memoize("a", Response, produce)
		require.NoError(t, err)
		assert.Equal(t, "value-1", v1)
		assert.Equal(t, v1, v2)
		assert.Equal(t, 1, n)
	})
	t.Run("Error Not Stored", func(t *testing.T) {
		s := New()
		fail := errors.New("fail")
		_, err := s.Memoize("a", Response, func() (interface{}, error) { return nil, fail })
		assert.Same(t, fail, err)
		_, ok := s.Get("a", Response)
		assert.False(t, ok)
		v, err := s.Memoize("a", Response, func() (interface{}, error) { return 42, nil })
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})
	t.Run("Nil Value Stored", func(t *testing.T) {
		s := New()
		n := 0
		produce := func() (interface{}, error) {
			n++
			return nil, nil
		}
		_, _ = s.Memoize("a", Response, produce)
		_, _ = s.Memoize("a", Response, produce)
		assert.Equal(t, 1, n)
	})
	t.Run("Phases Independent", func(t *testing.T) {
		s := New()
		_, _ = s.Memoize("a", Request, func() (interface{}, error) { return "req", nil })
		v, _ := s.Memoize("a", Response, func() (interface{}, error) { return "res", nil })
		assert.Equal(t, "res", v)
		assert.Equal(t, []string{"a.request", "a.response"}, s.Keys())
	})
	t.Run("Concurrent", func(t *testing.T) {
		s := New()
		var calls int32
		var wg sync.WaitGroup
		results := make([]interface{}, 50)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v, err := s.Memoize("race", Response, func() (interface{}, error) {
					n := atomic.AddInt32(&calls, 1)
					time.Sleep(10 * time.Millisecond)
					return int(n), nil
				})
				assert.NoError(t, err)
				results[i] = v
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		for _, v := range results {
			assert.Equal(t, 1, v)
		}
	})
	t.Run("Nil Producer", func(t *testing.T) {
		assert.PanicsWithValue(t, "callgraph/checkpoint: nil producer", func() { New().Memoize("a", Request, nil) })
	})
}

func TestStoreMemoizeStabilize(t *testing.T) {
	s := New()
	n := 0
	predicate := func() (bool, error) {
		n++
		return n >= 5, nil
	}
	for i := 1; i <= 4; i++ {
		ok, err := s.MemoizeStabilize("a", predicate)
		require.NoError(t, err)
		assert.False(t, ok)
		_, stored := s.Get("a", Stabilize)
		assert.False(t, stored)
	}
	for i := 0; i < 3; i++ {
		ok, err := s.MemoizeStabilize("a", predicate)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 5, n)
	v, _ := s.Get("a", Stabilize)
	assert.Equal(t, true, v)

	fail := errors.New("fail")
	ok, err := s.MemoizeStabilize("b", func() (bool, error) { return true, fail })
	assert.False(t, ok)
	assert.Same(t, fail, err)
	_, stored := s.Get("b", Stabilize)
	assert.False(t, stored)
	assert.Panics(t, func() { s.MemoizeStabilize("c", nil) })
}

func TestStoreAttempts(t *testing.T) {
	s := New()
	assert.Equal(t, 1, s.Attempts("a"))
	assert.Equal(t, 1, s.Attempts("a"))
	s.SetAttempts("a", 3)
	assert.Equal(t, 3, s.Attempts("a"))
	assert.Equal(t, 1, s.Attempts("b"))
	assert.Equal(t, []string{"a.attempts", "b.attempts"}, s.Keys())
}

func TestStoreEvict(t *testing.T) {
	s := New()
	_, _ = s.Memoize("a", Request, func() (interface{}, error) { return 1, nil })
	_, _ = s.Memoize("a", Response, func() (interface{}, error) { return 2, nil })
	_, _ = s.Memoize("b", Response, func() (interface{}, error) { return 3, nil })
	s.Evict("a", Response)
	s.Evict("a", Stabilize)
	assert.Equal(t, []string{"a.request", "b.response"}, s.Keys())
	assert.Equal(t, 2, s.Len())
	v, _ := s.Memoize("a", Response, func() (interface{}, error) { return 4, nil })
	assert.Equal(t, 4, v)
	assert.Equal(t, []string{"a.request", "b.response", "a.response"}, s.Keys())
}

func TestStoreFind(t *testing.T) {
	s := New()
	for i := 0; i < 3; i++ {
		i := i
		name := fmt.Sprintf("svc:List-%d", i)
		_, _ = s.Memoize(name, Request, func() (interface{}, error) { return fmt.Sprintf("req%d", i), nil })
		_, _ = s.Memoize(name, Response, func() (interface{}, error) { return fmt.Sprintf("res%d", i), nil })
	}
	_, _ = s.Memoize("svc:Describe", Response, func() (interface{}, error) { return "describe", nil })

	v, ok := s.FindFirstResponse("svc:List-")
	assert.True(t, ok)
	assert.Equal(t, "res0", v)
	v, ok = s.FindFirstRequest("List-2")
	assert.True(t, ok)
	assert.Equal(t, "req2", v)
	_, ok = s.FindFirst("nothing", Response)
	assert.False(t, ok)
	assert.Equal(t, []interface{}{"res0", "res1", "res2"}, s.FindAllResponses("svc:List-"))
	assert.Equal(t, []interface{}{"req0", "req1", "req2"}, s.FindAllRequests("svc:"))
	assert.Equal(t, []interface{}{"res0", "res1", "res2", "describe"}, s.FindAll("svc:", Response))
	assert.Nil(t, s.FindAll("svc:", Stabilize))
}
