// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gogama/callgraph"
	"github.com/gogama/callgraph/delay"
	"github.com/gogama/callgraph/wait"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("TEST_THING_ENDPOINT", "http://localhost:8081")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
delay:
  kind: fixed
  attempts: 3
  interval: 1500ms
wait:
  mode: suspend
logging:
  level: debug
  format: json
metrics:
  enabled: true
service:
  endpoint: ${TEST_THING_ENDPOINT}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DelayConfig{Kind: "fixed", Attempts: 3, Interval: 1500 * time.Millisecond}, cfg.Delay)
	assert.Equal(t, "suspend", cfg.Wait.Mode)
	assert.Equal(t, LoggingConfig{Level: "debug", Format: "json"}, cfg.Logging)
	assert.Equal(t, MetricsConfig{Enabled: true, Addr: ":9090"}, cfg.Metrics)
	assert.Equal(t, "http://localhost:8081", cfg.Service.Endpoint)
	assert.Equal(t, 30*time.Second, cfg.Service.Timeout)

	p, err := cfg.Delay.Policy()
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, p.Next(3))
	assert.Equal(t, delay.Exhausted, p.Next(4))

	g := &callgraph.HandlerGroup{}
	eng, err := cfg.Engine(g)
	require.NoError(t, err)
	assert.Equal(t, wait.Suspend, eng.Wait)
	assert.Same(t, g, eng.Handlers)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Parse([]byte("delay: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestDefault(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	p, err := cfg.Delay.Policy()
	require.NoError(t, err)
	for attempt := 1; attempt <= 5; attempt++ {
		assert.Equal(t, delay.DefaultPolicy.Next(attempt), p.Next(attempt))
	}
	s, err := cfg.Wait.Strategy()
	require.NoError(t, err)
	assert.IsType(t, wait.Local, s)
	level, err := cfg.Logging.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestDelayConfig_Policy(t *testing.T) {
	testCases := []struct {
		name     string
		cfg      DelayConfig
		expected []time.Duration
	}{
		{
			name:     "constant",
			cfg:      DelayConfig{Kind: "constant", Interval: time.Second, Timeout: 2 * time.Second},
			expected: []time.Duration{time.Second, time.Second, 0},
		},
		{
			name:     "multiple_of",
			cfg:      DelayConfig{Kind: "multiple_of", Interval: time.Second, Multiple: 1, Timeout: 6 * time.Second},
			expected: []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 0},
		},
		{
			name:     "exponential",
			cfg:      DelayConfig{Kind: "exponential", Base: 2, Min: 2 * time.Second, Max: 8 * time.Second},
			expected: []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 0},
		},
		{
			name:     "capped_exponential",
			cfg:      DelayConfig{Kind: "Capped_Exponential", Base: 2, Max: 4 * time.Second, Unit: time.Second, Timeout: 10 * time.Second},
			expected: []time.Duration{2 * time.Second, 4 * time.Second, 4 * time.Second, 0},
		},
		{
			name: "blended",
			cfg: DelayConfig{Kind: "blended", Policies: []DelayConfig{
				{Kind: "fixed", Attempts: 1, Interval: time.Millisecond},
				{Kind: "fixed", Attempts: 1, Interval: time.Second},
			}},
			expected: []time.Duration{time.Millisecond, time.Second, 0},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			p, err := testCase.cfg.Policy()
			require.NoError(t, err)
			for i, d := range testCase.expected {
				assert.Equal(t, d, p.Next(i+1), "attempt %d", i+1)
			}
		})
	}
	t.Run("errors", func(t *testing.T) {
		_, err := DelayConfig{Kind: "bogus"}.Policy()
		assert.EqualError(t, err, `unknown delay kind "bogus"`)
		_, err = DelayConfig{Kind: "fixed", Attempts: 1}.Policy()
		assert.EqualError(t, err, "invalid fixed delay: callgraph/delay: interval must be positive")
		_, err = DelayConfig{Kind: "blended"}.Policy()
		assert.Error(t, err)
		_, err = DelayConfig{Kind: "blended", Policies: []DelayConfig{{Kind: "bogus"}}}.Policy()
		assert.Error(t, err)
	})
}

func TestWaitConfig_Strategy(t *testing.T) {
	_, err := WaitConfig{Mode: "nap"}.Strategy()
	assert.EqualError(t, err, `unknown wait mode "nap"`)
}

func TestLoggingConfig_SlogLevel(t *testing.T) {
	level, err := LoggingConfig{Level: "warn"}.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
	_, err = LoggingConfig{Level: "loud"}.SlogLevel()
	assert.Error(t, err)
}
