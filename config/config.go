// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config loads engine configuration from YAML.
//
// Environment variables referenced as $VAR or ${VAR} in the YAML text
// are expanded before parsing. Durations are written the way
// time.ParseDuration reads them, for example "1500ms" or "3s".
//
//	delay:
//	  kind: fixed
//	  attempts: 3
//	  interval: 1s
//	wait:
//	  mode: local
//	logging:
//	  level: ${LOG_LEVEL}
//	  format: text
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gogama/callgraph"
	"github.com/gogama/callgraph/delay"
	"github.com/gogama/callgraph/wait"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Delay   DelayConfig   `yaml:"delay"`
	Wait    WaitConfig    `yaml:"wait"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Service ServiceConfig `yaml:"service"`
}

// DelayConfig describes a delay.Policy. Kind selects the constructor
// and the other fields are its arguments:
//
//	fixed:              attempts, interval
//	constant:           interval, timeout
//	multiple_of:        interval, multiple, timeout
//	exponential:        base, min, max, unit
//	capped_exponential: base, min, max, unit, timeout
//	blended:            policies
type DelayConfig struct {
	Kind     string        `yaml:"kind"`
	Attempts int           `yaml:"attempts"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Multiple int           `yaml:"multiple"`
	Base     int           `yaml:"base"`
	Min      time.Duration `yaml:"min"`
	Max      time.Duration `yaml:"max"`
	Unit     time.Duration `yaml:"unit"`
	Policies []DelayConfig `yaml:"policies"`
}

// WaitConfig selects a wait.Strategy. Mode is "local" or "suspend".
type WaitConfig struct {
	Mode string `yaml:"mode"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ServiceConfig locates the remote service call graphs talk to.
type ServiceConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse reads configuration from YAML text, expanding environment
// variables and applying defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

// Default returns the configuration Parse produces from empty input.
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

func (cfg *Config) setDefaults() {
	if cfg.Delay.Kind == "" {
		cfg.Delay.Kind = "constant"
		if cfg.Delay.Interval == 0 {
			cfg.Delay.Interval = 3 * time.Second
		}
		if cfg.Delay.Timeout == 0 {
			cfg.Delay.Timeout = 9 * time.Second
		}
	}
	if cfg.Wait.Mode == "" {
		cfg.Wait.Mode = "local"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Service.Timeout == 0 {
		cfg.Service.Timeout = 30 * time.Second
	}
}

// Policy builds the configured delay policy.
func (d DelayConfig) Policy() (p delay.Policy, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = fmt.Errorf("invalid %s delay: %v", d.Kind, r)
		}
	}()

	switch strings.ToLower(d.Kind) {
	case "fixed":
		return delay.Fixed(d.Attempts, d.Interval), nil
	case "constant":
		return delay.Constant(d.Interval, d.Timeout), nil
	case "multiple_of":
		return delay.MultipleOf(d.Interval, d.Multiple, d.Timeout), nil
	case "exponential":
		return delay.Exponential(d.Base, d.Min, d.Max, d.unit()), nil
	case "capped_exponential":
		return delay.CappedExponential(d.Base, d.Min, d.Max, d.unit(), d.Timeout), nil
	case "blended":
		ps := make([]delay.Policy, len(d.Policies))
		for i := range d.Policies {
			ps[i], err = d.Policies[i].Policy()
			if err != nil {
				return nil, err
			}
		}
		return delay.Blended(ps...), nil
	default:
		return nil, fmt.Errorf("unknown delay kind %q", d.Kind)
	}
}

func (d DelayConfig) unit() time.Duration {
	if d.Unit == 0 {
		return time.Second
	}
	return d.Unit
}

// Strategy builds the configured wait strategy.
func (w WaitConfig) Strategy() (wait.Strategy, error) {
	switch strings.ToLower(w.Mode) {
	case "local":
		return wait.Local, nil
	case "suspend":
		return wait.Suspend, nil
	default:
		return nil, fmt.Errorf("unknown wait mode %q", w.Mode)
	}
}

// SlogLevel parses the configured log level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}
	return level, nil
}

// Engine builds an Engine from the delay and wait configuration, with
// handlers installed.
func (cfg *Config) Engine(handlers *callgraph.HandlerGroup) (*callgraph.Engine, error) {
	p, err := cfg.Delay.Policy()
	if err != nil {
		return nil, err
	}
	s, err := cfg.Wait.Strategy()
	if err != nil {
		return nil, err
	}
	return &callgraph.Engine{
		Delay:    p,
		Wait:     s,
		Handlers: handlers,
	}, nil
}
