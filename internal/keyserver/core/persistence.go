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
package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Snapshot is one slot's exported usage state: which key occupies the slot
// and how far its counter has advanced.
type Snapshot struct {
	Slot    int
	KeyID   uint32
	Counter uint64
}

// Persister is the interface for any durable usage export backend. The
// slot memory itself has no persisted state; counters are exported so
// usage accounting survives a restart of the process around it.
type Persister interface {
	CommitBatch(snapshots []Snapshot) error
	// PrintFinalMetrics prints a single, end-of-process summary of
	// persistence metrics. Safe to call after all commits are done.
	PrintFinalMetrics()
}

// NewMockPersister creates a persister that prints batches to the console,
// for the demo binary and tests.
func NewMockPersister() Persister {
	return &mockPersister{}
}

type mockPersister struct {
	mu           sync.Mutex
	totalRows    int64
	totalBatches int64
}

// CommitBatch simulates writing a batch of snapshots to a database.
func (p *mockPersister) CommitBatch(snapshots []Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	fmt.Printf("[%s] Persisting batch of %d counter snapshots...\n", time.Now().Format(time.RFC3339), len(snapshots))
	for _, s := range snapshots {
		fmt.Printf("  - SLOT: %3d KEY_ID: %#08x COUNTER: %d\n", s.Slot, s.KeyID, s.Counter)
	}

	p.mu.Lock()
	p.totalRows += int64(len(snapshots))
	p.totalBatches++
	p.mu.Unlock()
	return nil
}

// PrintFinalMetrics prints a single summary once at the end of the process.
func (p *mockPersister) PrintFinalMetrics() {
	p.mu.Lock()
	totalRows := p.totalRows
	totalBatches := p.totalBatches
	p.mu.Unlock()

	lookupsN, hitsN, missesN, programsN := getEventTotals()

	th := getThresholdSnapshot()
	keys := make([]string, 0, len(th))
	for k := range th {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	yellow := "\x1b[33m"
	reset := "\x1b[0m"
	now := time.Now().Format(time.RFC3339)

	var wrPctStr string
	if hitsN > 0 {
		wr := 1.0 - float64(totalRows)/float64(hitsN)
		if wr < 0 {
			wr = 0
		}
		if wr > 1 {
			wr = 1
		}
		wrPctStr = fmt.Sprintf("%.1f%%", wr*100)
	} else {
		wrPctStr = "n/a"
	}

	sep := strings.Repeat("-", 60)
	fmt.Printf("%s[%s] Final persistence metrics\n", yellow, now)
	fmt.Println(sep)
	fmt.Printf("%-18s %12s\n", "Metric", "Value")
	fmt.Println(sep)
	fmt.Printf("%-18s %12d\n", "Lookups", lookupsN)
	fmt.Printf("%-18s %12d\n", "Hits", hitsN)
	fmt.Printf("%-18s %12d\n", "Misses", missesN)
	fmt.Printf("%-18s %12d\n", "Slot programs", programsN)
	fmt.Printf("%-18s %12d\n", "Rows written", totalRows)
	fmt.Printf("%-18s %12d\n", "Batches", totalBatches)
	fmt.Printf("%-18s %12s\n", "Write reduction", wrPctStr)
	fmt.Println(sep)

	if len(keys) > 0 {
		fmt.Printf("Configured thresholds\n")
		fmt.Println(sep)
		fmt.Printf("%-30s %24s\n", "Name", "Value")
		fmt.Println(sep)
		for _, k := range keys {
			fmt.Printf("%-30s %24s\n", k, th[k])
		}
		fmt.Println(sep)
	}

	fmt.Println("Counters advance per delivered key; batching exports far fewer rows than fetches.")
	fmt.Println("Pending deltas: sub-threshold counter movement is flushed on graceful shutdown.")
	fmt.Print(reset)
}
