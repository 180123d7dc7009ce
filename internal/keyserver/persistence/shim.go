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

package persistence

import (
	"context"

	"github.com/google/uuid"

	"keymem/internal/keyserver/core"
)

// IdemShim adapts an IdempotentPersister to the core.Persister interface
// used by the snapshot worker. It generates a UUID commit id per entry.
//
// Note: retries inside the worker reuse the same batch slice but not the
// same shim call, so each attempt gets fresh ids. The monotonic counter
// guard in the adapters makes that safe: a duplicate absolute snapshot is
// a no-op regardless of its commit id.
type IdemShim struct {
	impl IdempotentPersister
}

func NewIdemShim(impl IdempotentPersister) *IdemShim { return &IdemShim{impl: impl} }

// CommitBatch maps core.Snapshot -> SnapshotEntry and forwards to the
// idempotent persister.
func (s *IdemShim) CommitBatch(snapshots []core.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	entries := make([]SnapshotEntry, len(snapshots))
	for i, c := range snapshots {
		entries[i] = SnapshotEntry{
			Slot:     c.Slot,
			KeyID:    c.KeyID,
			Counter:  c.Counter,
			CommitID: uuid.NewString(),
		}
	}
	return s.impl.CommitBatch(context.Background(), entries)
}

// PrintFinalMetrics is a no-op for the shim; the demo summary lives in the
// mock persister.
func (s *IdemShim) PrintFinalMetrics() {}
