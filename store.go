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

// Word offsets within a slot. Every slot is WordsPerSlot words wide:
// the key id, the split usage counter, and five opaque key-material words.
const (
	WordKeyID = 0
	WordCtrHi = 1
	WordCtrLo = 2
	WordKey0  = 3

	// KeyWords is the number of key-material words per slot.
	KeyWords = 5

	// WordsPerSlot is the total slot width in 32-bit words.
	WordsPerSlot = 3 + KeyWords
)

// BackingStore is the slot memory shared by the host loader and the lookup
// engine. It is a word-addressable array of slots, each WordsPerSlot words
// wide, plus the shadow key-id index kept in lockstep with word 0 of every
// slot.
//
// The store is dual-ported: HostPort and ClientPort return independent
// handles over the same array. Each handle has its own address/data path,
// so both engines may access the store in the same step without
// arbitration; the request protocol guarantees they never write the same
// word in the same step (the host only touches its selected active slot,
// the client only touches the slot it won by search).
//
// The store itself performs no synchronization. Callers that drive both
// ports from different goroutines must serialize stepping externally; the
// engine's clock does exactly that.
type BackingStore struct {
	slots int
	words []uint32

	// shadow mirrors the key-id word of every slot so a search can compare
	// all slots at once instead of walking the array. It is a deliberate
	// denormalization; writes to word 0 through either port update it in
	// the same step.
	shadow []uint32
}

// NewBackingStore allocates a zeroed store with the given slot count.
// The caller is expected to scrub before use regardless; a freshly
// allocated Go slice is already zero, but the scrub sweep is still the
// contract that makes the store usable.
func NewBackingStore(slots int) *BackingStore {
	return &BackingStore{
		slots:  slots,
		words:  make([]uint32, slots*WordsPerSlot),
		shadow: make([]uint32, slots),
	}
}

// Slots returns the slot count.
func (b *BackingStore) Slots() int { return b.slots }

// read returns the most recently written value of the addressed word.
// The staged two-step read latency of the original memory model collapses
// to a direct read here; the per-step sequencing is preserved by the FSMs,
// not by the store.
func (b *BackingStore) read(slot, off int) uint32 {
	return b.words[slot*WordsPerSlot+off]
}

// write stores value at the addressed word. Writes to the key-id word
// update the shadow index in the same step, so there is never a
// client-visible window where shadow and store disagree.
func (b *BackingStore) write(slot, off int, value uint32) {
	b.words[slot*WordsPerSlot+off] = value
	if off == WordKeyID {
		b.shadow[slot] = value
	}
}

// ShadowID returns the shadow index entry for slot.
func (b *BackingStore) ShadowID(slot int) uint32 { return b.shadow[slot] }

// scrubWord zeroes the word at linear address addr (slot-major, ascending
// word order) and the matching shadow entry when addr lands on a key-id
// word. One call per step; the host loader drives the full S×W sweep.
func (b *BackingStore) scrubWord(addr int) {
	b.words[addr] = 0
	if addr%WordsPerSlot == WordKeyID {
		b.shadow[addr/WordsPerSlot] = 0
	}
}

// wordCount returns the total number of words the scrub sweep must visit.
func (b *BackingStore) wordCount() int { return len(b.words) }

// Port is one access handle into the backing store. The host loader and
// the lookup engine each hold their own Port.
type Port struct {
	store *BackingStore
}

// HostPort returns the handle reserved for the host loader.
func (b *BackingStore) HostPort() *Port { return &Port{store: b} }

// ClientPort returns the handle reserved for the lookup engine.
func (b *BackingStore) ClientPort() *Port { return &Port{store: b} }

// Read returns the current value of the addressed word.
func (p *Port) Read(slot, off int) uint32 { return p.store.read(slot, off) }

// Write stores value at the addressed word, visible on both ports from the
// next step onward (and within the same step on this one).
func (p *Port) Write(slot, off int, value uint32) { p.store.write(slot, off, value) }
