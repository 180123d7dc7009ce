// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: August 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main provides the entry point for the key-memory service.
//
// The binary wires the core engine library (root package keymem) into a
// runnable service:
//  1. The Service wraps the engine behind a mutex and a clock and runs the
//     mandatory startup scrub before accepting anything.
//  2. The snapshot Worker periodically exports slot usage counters to a
//     persistence adapter (mock or Redis) so accounting survives restarts.
//  3. The API server fronts the host management port and the client
//     lookup port over HTTP.
//  4. On SIGINT/SIGTERM the worker flushes pending counter movement and
//     the HTTP server drains gracefully.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"keymem"
	"keymem/internal/keyserver/api"
	"keymem/internal/keyserver/core"
	"keymem/internal/keyserver/persistence"
	"keymem/internal/keyserver/telemetry"
)

func main() {
	flags := pflag.CommandLine

	slots := flags.Int("slots", keymem.DefaultSlots, "Slot count (rounded up to a power of two)")
	clockInterval := flags.Duration("clock_interval", time.Millisecond, "Background clock tick driving the engine's state machines")
	snapshotThreshold := flags.Uint64("snapshot_threshold", 16, "Counter movement per slot before its usage is exported; higher = fewer writes")
	snapshotInterval := flags.Duration("snapshot_interval", time.Second, "How often the snapshot worker scans the slots")
	persistAdapter := flags.String("persist_adapter", "mock", "Usage export backend: mock | redis")
	redisAddr := flags.String("redis_addr", "", "Redis address for the redis adapter (empty = logging demo client)")
	redisMarkerTTL := flags.Duration("redis_marker_ttl", 24*time.Hour, "TTL on Redis idempotency markers")
	httpAddr := flags.String("http_addr", ":8080", "HTTP listen address (e.g., :8080)")
	metricsEnabled := flags.Bool("metrics", false, "Enable Prometheus telemetry (opt-in)")
	metricsAddr := flags.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")
	configPath := flags.String("config", "", "Optional HuJSON config file; explicit flags win over file values")
	pflag.Parse()

	if *configPath != "" {
		if err := applyConfigFile(flags, *configPath); err != nil {
			log.Fatalf("config: %v", err)
		}
	}

	// Capture configuration for the final metrics summary.
	core.SetThresholdInt64("slots", int64(*slots))
	core.SetThresholdDuration("clock_interval", *clockInterval)
	core.SetThresholdUint64("snapshot_threshold", *snapshotThreshold)
	core.SetThresholdDuration("snapshot_interval", *snapshotInterval)
	core.SetThreshold("persist_adapter", *persistAdapter)
	core.SetThreshold("http_addr", *httpAddr)
	core.SetThresholdBool("metrics", *metricsEnabled)
	core.SetThreshold("metrics_addr", *metricsAddr)

	telemetry.Enable(telemetry.Config{
		Enabled:     *metricsEnabled,
		MetricsAddr: *metricsAddr,
	})

	persister, err := persistence.BuildPersister(*persistAdapter, persistence.DemoOptions{
		RedisAddr:      *redisAddr,
		RedisMarkerTTL: *redisMarkerTTL,
	})
	if err != nil {
		log.Fatalf("persistence: %v", err)
	}

	// Bring up the engine. Start blocks through the startup scrub, so by
	// the time the HTTP server accepts traffic the store is zeroed and the
	// lookup engine has left StartupWait.
	svc := core.NewService(keymem.Options{Slots: *slots}, *clockInterval)
	svc.Start()

	worker := core.NewWorker(svc, persister, *snapshotThreshold, *snapshotInterval)
	worker.Start()

	apiServer := api.NewServer(svc)
	mux := http.NewServeMux()
	apiServer.RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:    *httpAddr,
		Handler: mux,
	}

	go func() {
		fmt.Printf("Key memory API server listening on %s\n", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", *httpAddr, err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("\nShutting down server...")

	// Stop the worker first: its final flush exports sub-threshold counter
	// movement before the process exits.
	worker.Stop()
	svc.Stop()

	persister.PrintFinalMetrics()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	fmt.Println("Server gracefully stopped.")
}
