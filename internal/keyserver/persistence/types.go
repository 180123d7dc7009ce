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

// Package persistence provides idempotent export adapters for slot usage
// counters.
//
// The adapters share a snapshot shape carrying an idempotency key
// (commit_id): if an export is retried after a crash or timeout, applying
// it again is a no-op. Counters are absolute values, so adapters
// additionally guard against out-of-order application by only moving the
// stored counter forward.
package persistence

import "context"

// SnapshotEntry is the adapter-facing shape for one slot snapshot.
//
// Fields:
//   - Slot: slot index in the key memory.
//   - KeyID: the id occupying the slot at snapshot time.
//   - Counter: absolute usage counter (64-bit fold of the split halves).
//   - CommitID: globally unique idempotency key for this export. Reusing
//     the same id for a retried export makes the operation a no-op.
type SnapshotEntry struct {
	Slot     int
	KeyID    uint32
	Counter  uint64
	CommitID string
}

// IdempotentPersister is the minimal API supported by all adapters.
// Implementations must apply each entry atomically with respect to its
// idempotency key, and must never move a stored counter backwards.
type IdempotentPersister interface {
	CommitBatch(ctx context.Context, entries []SnapshotEntry) error
}
