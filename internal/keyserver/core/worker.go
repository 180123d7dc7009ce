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

// Package core provides the business logic of the key-memory service.
// This file implements the background worker exporting usage counters.
package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Worker periodically exports slot usage counters to a Persister.
//
// Slot counters only move forward (host rewrites excepted), so the worker
// tracks the last exported value per slot and ships a snapshot once a
// slot's counter has advanced by at least the threshold since its last
// export. A final flush on Stop ships every slot with unexported movement,
// so sub-threshold remainders are not lost on graceful shutdown.
//
// Slots are fixed and never evicted, so unlike a keyed store there is no
// eviction loop; the scan is a bounded array walk.
type Worker struct {
	service   *Service
	persister Persister

	threshold uint64
	interval  time.Duration

	// lastExported holds the counter value most recently committed per
	// slot. A host rewrite can move a counter backwards; the worker then
	// re-bases on the new value without exporting.
	lastExported []uint64

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32
}

// NewWorker creates a worker scanning the service's slots.
//
// threshold: counter movement per slot required before it is exported.
// interval: how often the scan runs.
func NewWorker(service *Service, persister Persister, threshold uint64, interval time.Duration) *Worker {
	if threshold == 0 {
		threshold = 1
	}
	return &Worker{
		service:      service,
		persister:    persister,
		threshold:    threshold,
		interval:     interval,
		lastExported: make([]uint64, service.Slots()),
		stopChan:     make(chan struct{}),
	}
}

// Start launches the background export goroutine.
func (w *Worker) Start() {
	fmt.Println("Starting snapshot worker...")
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.exportLoop()
	}()
}

// Stop gracefully stops the worker, flushing pending counter movement.
func (w *Worker) Stop() {
	if !atomic.CompareAndSwapUint32(&w.stopped, 0, 1) {
		return
	}
	fmt.Println("Stopping snapshot worker...")
	close(w.stopChan)
	w.wg.Wait()
}

func (w *Worker) exportLoop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runExportCycle(false)
		case <-w.stopChan:
			// Final flush ships sub-threshold remainders too.
			w.runExportCycle(true)
			return
		}
	}
}

// runExportCycle scans all slots and commits one batch of snapshots.
// With flush set, any movement at all is exported.
func (w *Worker) runExportCycle(flush bool) {
	counters := w.service.CounterSnapshot()

	var batch []Snapshot
	var slots []int
	for _, c := range counters {
		last := w.lastExported[c.Slot]
		if c.Counter < last {
			// Host rewrote the counter downwards; re-base silently.
			w.lastExported[c.Slot] = c.Counter
			continue
		}
		moved := c.Counter - last
		if moved == 0 {
			continue
		}
		if !flush && moved < w.threshold {
			continue
		}
		batch = append(batch, Snapshot{Slot: c.Slot, KeyID: c.KeyID, Counter: c.Counter})
		slots = append(slots, c.Slot)
	}

	if len(batch) == 0 {
		return
	}

	if err := w.persister.CommitBatch(batch); err != nil {
		fmt.Printf("ERROR: Failed to commit snapshot batch: %v\n", err)
		// Leave lastExported untouched so the next cycle retries.
		return
	}
	for i, slot := range slots {
		w.lastExported[slot] = batch[i].Counter
	}
}
