// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command callgraph-demo provisions a thing against an eventually
// consistent service, playing the part of both the bounded-time host
// and the external scheduler which redelivers suspended operations.
//
// Unless the configuration names a service endpoint, an in-process
// fake service is started which throttles creates and is slow to
// activate new things.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gogama/callgraph"
	"github.com/gogama/callgraph/checkpoint"
	"github.com/gogama/callgraph/config"
	"github.com/gogama/callgraph/httpcall"
	"github.com/gogama/callgraph/internal/thingapi"
	"github.com/gogama/callgraph/logging"
	"github.com/gogama/callgraph/metrics"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to environment file")
	name := flag.String("name", "widget", "Name of the thing to provision")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	maxInvocations := flag.Int("max-invocations", 20, "Maximum number of host invocations")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("Failed to load environment file", "error", err)
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			slog.Error("Failed to load config", "error", err)
			os.Exit(1)
		}
	}

	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		slog.Error("Failed to configure logging", "error", err)
		os.Exit(1)
	}
	if *isDebug {
		level = slog.LevelDebug
	}
	logger := newLogger(cfg.Logging.Format, level)
	slog.SetDefault(logger)

	handlers := &callgraph.HandlerGroup{}
	logging.Install(handlers, logger)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metrics.NewCollector(reg).Install(handlers)
		serveMetrics(cfg.Metrics.Addr, reg)
	}

	eng, err := cfg.Engine(handlers)
	if err != nil {
		slog.Error("Failed to configure engine", "error", err)
		os.Exit(1)
	}

	endpoint := cfg.Service.Endpoint
	if endpoint == "" {
		endpoint, err = startFakeService()
		if err != nil {
			slog.Error("Failed to start fake service", "error", err)
			os.Exit(1)
		}
		slog.Info("Started fake thing service", "endpoint", endpoint)
	}

	o, err := run(eng, &httpcall.Client{}, endpoint, &thingapi.Thing{Name: *name}, cfg.Service.Timeout, *maxInvocations)
	if err != nil {
		slog.Error("Provisioning aborted", "error", err)
		os.Exit(1)
	}
	b, _ := json.Marshal(o)
	slog.Info("Provisioning finished", "outcome", string(b))
	if o.Status != callgraph.Success {
		os.Exit(2)
	}
}

// run emulates the host and the scheduler: each iteration is one host
// invocation with a bounded budget, and suspended outcomes are round
// tripped through their wire form before being redelivered.
func run(eng *callgraph.Engine, client *httpcall.Client, endpoint string, model *thingapi.Thing, budget time.Duration, maxInvocations int) (callgraph.Outcome, error) {
	store := checkpoint.New()
	for invocation := 1; ; invocation++ {
		ctx, cancel := context.WithTimeout(context.Background(), budget)
		o, err := thingapi.Provision(eng.Initiate(ctx, client, model, store), endpoint)
		cancel()
		if err != nil {
			return o, err
		}
		if o.Terminal() || invocation >= maxInvocations {
			return o, nil
		}

		b, err := json.Marshal(o)
		if err != nil {
			return o, err
		}
		var redelivered struct {
			ResourceModel   thingapi.Thing  `json:"resourceModel"`
			CallbackContext json.RawMessage `json:"callbackContext"`
		}
		if err = json.Unmarshal(b, &redelivered); err != nil {
			return o, err
		}
		slog.Info("Host invocation suspended",
			"invocation", invocation,
			"callback_delay_seconds", o.CallbackDelaySeconds,
			"checkpoint_bytes", len(redelivered.CallbackContext),
		)
		time.Sleep(time.Duration(o.CallbackDelaySeconds) * time.Second)

		model = &redelivered.ResourceModel
		store, err = checkpoint.Decode(redelivered.CallbackContext, nil)
		if err != nil {
			return o, err
		}
	}
}

func newLogger(format string, level slog.Level) *slog.Logger {
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
}

func startFakeService() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	svc := thingapi.New(thingapi.Options{Throttles: 2, PendingReads: 2})
	go func() {
		_ = http.Serve(ln, svc)
	}()
	return "http://" + ln.Addr().String(), nil
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("Metrics server stopped", "error", err)
		}
	}()
	slog.Info("Serving metrics", "addr", addr)
}
