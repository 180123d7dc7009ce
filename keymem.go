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

// Package keymem implements a fixed-capacity, latency-bounded slot memory
// for cryptographic key lookup. A host management port programs slots (key
// id, split 64-bit usage counter, five opaque key-material words, two
// per-domain validity bits) and a client lookup port searches them by key
// id through a shadow index that mirrors every slot's id, making the
// search a constant number of steps regardless of slot count.
//
// The engine is two cooperating state machines over one dual-ported
// backing store: the host loader (direct writes, mirror-load traversals,
// and the mandatory startup scrub) and the client search/fetch engine
// (match, tie-break pick, streamed fetch, counter writeback). Both advance
// one transition per Step; their only coupling is the scrub-done gate that
// keeps the client in StartupWait until the store has been zeroed.
//
// The package stores and delivers opaque words only; it performs no
// hashing or encryption.
package keymem

// Options configures engine construction.
type Options struct {
	// Slots sets the slot count. 0 uses the default (32). The value is
	// rounded up to a power of two so slot selectors truncate by masking.
	Slots int
}

// DefaultSlots is the slot count used when Options.Slots is zero.
const DefaultSlots = 32

// Engine bundles the backing store, the validity bitmasks, and the two
// state machines. It is not safe for concurrent use; callers that drive it
// from multiple goroutines must serialize access (the keyserver service
// wraps it behind a mutex and a clock goroutine).
type Engine struct {
	store  *BackingStore
	maskA  *Bitmask
	maskB  *Bitmask
	loader *HostLoader
	lookup *LookupEngine
}

// NewWithOptions creates an engine with explicit options. The engine comes
// up mid-scrub: the loader zeroes the whole store over the first S×W steps
// and the lookup engine refuses requests until that completes. Call
// RunScrub (or step the engine yourself) before use.
func NewWithOptions(opts Options) *Engine {
	s := opts.Slots
	if s <= 0 {
		s = DefaultSlots
	}
	s = nextPow2(s)

	store := NewBackingStore(s)
	maskA := NewBitmask(s)
	maskB := NewBitmask(s)
	loader := NewHostLoader(store.HostPort(), maskA, maskB, s)
	lookup := NewLookupEngine(store.ClientPort(), maskA, maskB, s, loader.ScrubDone)

	return &Engine{
		store:  store,
		maskA:  maskA,
		maskB:  maskB,
		loader: loader,
		lookup: lookup,
	}
}

// New creates an engine with default options.
func New() *Engine {
	return NewWithOptions(Options{})
}

// Slots returns the slot count.
func (e *Engine) Slots() int { return e.store.Slots() }

// Step advances both state machines by one transition. The two machines
// target disjoint words by protocol, so stepping them back to back within
// one call is equivalent to the same-step concurrency of the two-port
// store.
func (e *Engine) Step() {
	e.loader.Step()
	e.lookup.Step()
}

// StepN advances the engine n steps.
func (e *Engine) StepN(n int) {
	for i := 0; i < n; i++ {
		e.Step()
	}
}

// RunScrub steps the engine until the startup scrub completes and the
// lookup engine has left StartupWait.
func (e *Engine) RunScrub() {
	for !e.loader.ScrubDone() {
		e.Step()
	}
	// One more step moves the lookup engine out of StartupWait.
	if !e.lookup.Ready() {
		e.Step()
	}
}

// Busy reports the host loader's busy flag.
func (e *Engine) Busy() bool { return e.loader.Busy() }

// Ready reports the lookup port's ready level.
func (e *Engine) Ready() bool { return e.lookup.Ready() }

// ScrubDone reports whether the startup sweep has completed.
func (e *Engine) ScrubDone() bool { return e.loader.ScrubDone() }

// RegWrite performs a host management port write. Writes while Busy are
// undefined by contract and are dropped here; the busy flag itself and
// read-only registers ignore writes as well.
func (e *Engine) RegWrite(addr uint32, value uint32) {
	if e.loader.Busy() {
		return
	}
	switch addr {
	case RegActiveSlot:
		e.loader.SetActiveSlot(value)
	case RegLoadTrig:
		e.loader.TriggerLoad()
	case RegValidity:
		e.loader.SetValidity(value&validityDomainA != 0, value&validityDomainB != 0)
	case RegKeyID:
		e.loader.WriteWord(WordKeyID, value)
	case RegCtrHi:
		e.loader.WriteWord(WordCtrHi, value)
	case RegCtrLo:
		e.loader.WriteWord(WordCtrLo, value)
	case RegKey0, RegKey1, RegKey2, RegKey3, RegKey4:
		e.loader.WriteWord(WordKey0+int(addr-RegKey0)/4, value)
	}
}

// RegRead performs a host management port read. The id, counter, and key
// registers read the mirror registers filled by the last load traversal;
// their value is undefined while Busy, like every register except Busy.
func (e *Engine) RegRead(addr uint32) uint32 {
	switch addr {
	case RegIdentity:
		return identityWord
	case RegSlotCount:
		return uint32(e.store.Slots())
	case RegActiveSlot:
		return uint32(e.loader.ActiveSlot())
	case RegBusy:
		if e.loader.Busy() {
			return 1
		}
		return 0
	case RegValidity:
		var v uint32
		a, b := e.loader.Validity()
		if a {
			v |= validityDomainA
		}
		if b {
			v |= validityDomainB
		}
		return v
	case RegKeyID:
		return e.loader.Mirror().KeyID
	case RegCtrHi:
		return e.loader.Mirror().Counter.Hi
	case RegCtrLo:
		return e.loader.Mirror().Counter.Lo
	case RegKey0, RegKey1, RegKey2, RegKey3, RegKey4:
		return e.loader.Mirror().Key[int(addr-RegKey0)/4]
	}
	return 0
}

// LoadSlot triggers a mirror-load traversal of slot and steps the engine
// until the loader is idle again, returning the mirror image. It must not
// be called while Busy.
func (e *Engine) LoadSlot(slot uint32) SlotImage {
	e.RegWrite(RegActiveSlot, slot)
	e.RegWrite(RegLoadTrig, 1)
	e.Step() // Idle consumes the pending trigger
	for e.loader.Busy() {
		e.Step()
	}
	return e.loader.Mirror()
}

// SubmitLookup presents a request on the lookup port without driving it;
// callers stepping the engine themselves collect words via LookupOut.
// Returns false when the port is not ready.
func (e *Engine) SubmitLookup(domain Domain, id uint32) bool {
	return e.lookup.Submit(domain, id)
}

// LookupOut returns the lookup port output for the step that just executed.
func (e *Engine) LookupOut() WordOut { return e.lookup.Out() }

// LookupResult is the collected outcome of one client lookup transaction.
type LookupResult struct {
	Found bool
	Slot  int
	Words [KeyWords]uint32
	Steps int

	// Matches is the number of slots that satisfied the search; a value
	// above 1 means the highest-index tie-break decided the winner.
	Matches int
}

// Lookup submits a request and steps the engine until ready reasserts,
// collecting the streamed key words. It returns a zero-word result with
// Found false when no valid slot matches, and Found false with Steps 0
// when the engine refused the request (still scrubbing or mid-transaction).
func (e *Engine) Lookup(domain Domain, id uint32) LookupResult {
	var res LookupResult
	if !e.lookup.Submit(domain, id) {
		return res
	}
	for {
		e.Step()
		res.Steps++
		if out := e.lookup.Out(); out.Valid {
			res.Found = true
			res.Words[out.Index] = out.Value
		}
		if e.lookup.Ready() {
			break
		}
	}
	res.Matches = e.lookup.matches
	if res.Found {
		res.Slot = e.lookup.winner
	}
	return res
}

// PeekCounter reads slot's usage counter directly off the backing store.
// This is a management-side convenience for snapshotting; it does not go
// through the loader traversal and is only meaningful between steps.
func (e *Engine) PeekCounter(slot int) Counter {
	return Counter{
		Hi: e.store.read(slot, WordCtrHi),
		Lo: e.store.read(slot, WordCtrLo),
	}
}

// PeekKeyID reads slot's key id off the shadow index.
func (e *Engine) PeekKeyID(slot int) uint32 { return e.store.ShadowID(slot) }

// ValidCount returns the number of valid slots for a domain, for gauges.
func (e *Engine) ValidCount(domain Domain) int {
	if domain == DomainB {
		return e.maskB.Count()
	}
	return e.maskA.Count()
}

// nextPow2 rounds x up to the next power of two.
func nextPow2(x int) int {
	if x <= 1 {
		return 1
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	return x + 1
}
