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

package keymem

import "math/bits"

// Bitmask is one validity vector: one bit per slot for one algorithm
// domain. The host writes bits wholesale per slot; the lookup engine only
// ever reads a snapshot of the whole vector at request acceptance.
type Bitmask struct {
	words []uint64
	slots int
}

// NewBitmask returns a cleared mask covering the given slot count.
func NewBitmask(slots int) *Bitmask {
	return &Bitmask{
		words: make([]uint64, (slots+63)/64),
		slots: slots,
	}
}

// Set marks slot valid.
func (m *Bitmask) Set(slot int) { m.words[slot/64] |= 1 << (slot % 64) }

// Clear marks slot invalid. The slot's stored content is left untouched;
// erasure is deferred to the global scrub.
func (m *Bitmask) Clear(slot int) { m.words[slot/64] &^= 1 << (slot % 64) }

// Test reports whether slot is valid.
func (m *Bitmask) Test(slot int) bool { return m.words[slot/64]&(1<<(slot%64)) != 0 }

// ClearAll invalidates every slot.
func (m *Bitmask) ClearAll() {
	for i := range m.words {
		m.words[i] = 0
	}
}

// Snapshot copies the mask into a fresh word slice. The lookup engine
// captures this at request acceptance so a concurrent host validity write
// cannot change the match set mid-search.
func (m *Bitmask) Snapshot() []uint64 {
	out := make([]uint64, len(m.words))
	copy(out, m.words)
	return out
}

// Count returns the number of valid slots, used for telemetry gauges.
func (m *Bitmask) Count() int {
	n := 0
	for _, w := range m.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// testSnapshot reports bit slot of a captured snapshot.
func testSnapshot(snap []uint64, slot int) bool {
	return snap[slot/64]&(1<<(slot%64)) != 0
}
