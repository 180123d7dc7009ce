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

// Package core contains shared, process-level event counters used for the
// final end-of-process summary in the mock persister. Atomic counters keep
// the hot path free of locks and allocation.
package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	lookups  atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64
	programs atomic.Int64

	// thresholds holds human-readable configuration values captured at runtime.
	thresholdsMu sync.RWMutex
	thresholds   = make(map[string]string)
)

// RecordLookup increments the number of lookup requests accepted.
func RecordLookup(n int64) {
	if n > 0 {
		lookups.Add(n)
	}
}

// RecordHit increments the number of lookups that delivered key material.
func RecordHit(n int64) {
	if n > 0 {
		hits.Add(n)
	}
}

// RecordMiss increments the number of lookups that ended in not-found.
func RecordMiss(n int64) {
	if n > 0 {
		misses.Add(n)
	}
}

// RecordProgram increments the number of host slot programmings.
func RecordProgram(n int64) {
	if n > 0 {
		programs.Add(n)
	}
}

// Threshold setters capture runtime configuration knobs for final printing.
func SetThreshold(name string, value string) {
	thresholdsMu.Lock()
	thresholds[name] = value
	thresholdsMu.Unlock()
}

func SetThresholdInt64(name string, v int64) { SetThreshold(name, fmt.Sprintf("%d", v)) }

func SetThresholdUint64(name string, v uint64) { SetThreshold(name, fmt.Sprintf("%d", v)) }

func SetThresholdDuration(name string, d time.Duration) { SetThreshold(name, d.String()) }

func SetThresholdBool(name string, b bool) { SetThreshold(name, fmt.Sprintf("%t", b)) }

// getEventTotals provides a snapshot of current counters.
func getEventTotals() (lookupsN, hitsN, missesN, programsN int64) {
	return lookups.Load(), hits.Load(), misses.Load(), programs.Load()
}

// getThresholdSnapshot returns a copy of thresholds for stable iteration.
func getThresholdSnapshot() map[string]string {
	thresholdsMu.RLock()
	defer thresholdsMu.RUnlock()
	out := make(map[string]string, len(thresholds))
	for k, v := range thresholds {
		out[k] = v
	}
	return out
}

// resetEventTotals resets counters to zero. Intended for tests only.
func resetEventTotals() {
	lookups.Store(0)
	hits.Store(0)
	misses.Store(0)
	programs.Store(0)
}
