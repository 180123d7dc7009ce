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

// Domain selects which of the two algorithm-eligibility categories a
// lookup searches. A request carries exactly one domain; enforcing the
// one-hot property is the caller's responsibility.
type Domain uint8

const (
	DomainA Domain = iota
	DomainB
)

func (d Domain) String() string {
	if d == DomainB {
		return "b"
	}
	return "a"
}

// lookupState enumerates the client engine's states.
type lookupState uint8

const (
	lkStartupWait lookupState = iota
	lkIdle
	lkMatchBuild
	lkMatchPick
	lkBranch
	lkFetchCtrHi
	lkFetchCtrLo
	lkFetchKey0
	lkFetchKey1
	lkFetchKey2
	lkFetchKey3
	lkFetchKey4
	lkWritebackHi
	lkWritebackLo
	lkNotFound
)

// WordOut is the lookup port's per-step output. Valid pulses for exactly
// one step per delivered key word; Index counts ascending from 0.
type WordOut struct {
	Valid bool
	Index int
	Value uint32
}

// LookupEngine is the client-side search/fetch state machine. It owns the
// client port of the backing store and reads the shadow index and the two
// validity bitmasks.
//
// A transaction runs to completion once accepted: match build, pick,
// branch, then either the 8-step fetch with counter writeback or the
// NotFound bounce. Ready is deasserted for the whole transaction and a new
// request cannot be accepted until it reasserts. There is no cancellation
// path; every route through the machine is bounded in step count.
//
// Out of reset the engine holds in StartupWait and refuses requests until
// the host loader's scrub sweep completes.
type LookupEngine struct {
	port  *Port
	maskA *Bitmask
	maskB *Bitmask

	// scrubDone gates the exit from StartupWait, the only coupling to the
	// host loader.
	scrubDone func() bool

	state lookupState
	slots int

	reqID    uint32
	maskSnap []uint64
	match    []uint64

	winner  int
	found   bool
	matches int

	ctr    Counter
	newCtr Counter

	out WordOut
}

// NewLookupEngine returns an engine holding in StartupWait.
func NewLookupEngine(port *Port, maskA, maskB *Bitmask, slots int, scrubDone func() bool) *LookupEngine {
	return &LookupEngine{
		port:      port,
		maskA:     maskA,
		maskB:     maskB,
		scrubDone: scrubDone,
		state:     lkStartupWait,
		slots:     slots,
		match:     make([]uint64, (slots+63)/64),
	}
}

// Ready reports whether a new request can be accepted.
func (e *LookupEngine) Ready() bool { return e.state == lkIdle }

// Out returns the lookup port output for the step that just executed.
func (e *LookupEngine) Out() WordOut { return e.out }

// Submit presents a request. It returns false without side effects when
// the engine is not ready (mid-transaction or still in StartupWait).
// Accepting a request captures the id and the validity mask for the
// requested domain, so host validity writes during the search cannot
// change the match set.
func (e *LookupEngine) Submit(domain Domain, id uint32) bool {
	if e.state != lkIdle {
		return false
	}
	e.reqID = id
	if domain == DomainB {
		e.maskSnap = e.maskB.Snapshot()
	} else {
		e.maskSnap = e.maskA.Snapshot()
	}
	e.out = WordOut{}
	e.state = lkMatchBuild
	return true
}

// Step advances the engine by one state transition.
func (e *LookupEngine) Step() {
	e.out = WordOut{}

	switch e.state {
	case lkStartupWait:
		if e.scrubDone() {
			e.state = lkIdle
		}

	case lkIdle:
		// Requests enter via Submit.

	case lkMatchBuild:
		// match[i] = (shadow_id[i] == requested_id) AND valid[i], for all
		// slots at once off the shadow index.
		for i := range e.match {
			e.match[i] = 0
		}
		for i := 0; i < e.slots; i++ {
			if e.port.store.ShadowID(i) == e.reqID && testSnapshot(e.maskSnap, i) {
				e.match[i/64] |= 1 << (i % 64)
			}
		}
		e.state = lkMatchPick

	case lkMatchPick:
		// Ascending scan, overwriting the candidate on every match: the
		// highest-index matching slot wins the tie-break.
		e.found = false
		e.matches = 0
		for i := 0; i < e.slots; i++ {
			if testSnapshot(e.match, i) {
				e.winner = i
				e.found = true
				e.matches++
			}
		}
		e.state = lkBranch

	case lkBranch:
		if e.found {
			e.state = lkFetchCtrHi
		} else {
			e.state = lkNotFound
		}

	case lkFetchCtrHi:
		e.ctr.Hi = e.port.Read(e.winner, WordCtrHi)
		e.state = lkFetchCtrLo
	case lkFetchCtrLo:
		e.ctr.Lo = e.port.Read(e.winner, WordCtrLo)
		e.state = lkFetchKey0

	case lkFetchKey0, lkFetchKey1, lkFetchKey2, lkFetchKey3, lkFetchKey4:
		i := int(e.state - lkFetchKey0)
		e.out = WordOut{Valid: true, Index: i, Value: e.port.Read(e.winner, WordKey0+i)}
		if i == KeyWords-1 {
			e.newCtr = e.ctr.Inc()
			e.state = lkWritebackHi
		} else {
			e.state++
		}

	case lkWritebackHi:
		e.port.Write(e.winner, WordCtrHi, e.newCtr.Hi)
		e.state = lkWritebackLo
	case lkWritebackLo:
		e.port.Write(e.winner, WordCtrLo, e.newCtr.Lo)
		e.state = lkIdle

	case lkNotFound:
		// No data transfer; bounce back to Idle.
		e.state = lkIdle

	default:
		// Unreachable encoding: recover to Idle rather than hang.
		e.state = lkIdle
	}
}
