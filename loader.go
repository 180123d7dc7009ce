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

// hostState enumerates the host loader's states. The loader advances one
// state per Step call.
type hostState uint8

const (
	hostScrub hostState = iota
	hostIdle
	hostLoadID
	hostLoadCtrHi
	hostLoadCtrLo
	hostLoadKey0
	hostLoadKey1
	hostLoadKey2
	hostLoadKey3
	hostLoadKey4
	hostWait0
	hostWait1
)

// SlotImage is the host-visible mirror of one slot, filled by a load
// traversal. Values are only meaningful once Busy has dropped after the
// traversal that produced them.
type SlotImage struct {
	KeyID   uint32
	Counter Counter
	Key     [KeyWords]uint32
}

// HostLoader is the host-side state machine. It owns the host port of the
// backing store and the two validity bitmasks.
//
// On construction it enters the scrub sweep: one zeroed word per step over
// the whole store and shadow index, in ascending address order. Busy is
// asserted for the entire sweep and the lookup engine refuses requests
// until ScrubDone reports true. After that the loader sits in Idle, where
// it accepts direct single-word writes (applied straight to the store) or
// a load trigger that starts the fixed traversal copying the active slot's
// words into the mirror registers.
//
// There are no error states. Out-of-range slot selectors are truncated by
// masking, matching a selector whose width exactly covers the slot count.
type HostLoader struct {
	port  *Port
	maskA *Bitmask
	maskB *Bitmask

	state    hostState
	slotMask int
	active   int

	loadPending bool
	loadSlot    int

	scrubAddr int
	scrubDone bool

	mirror SlotImage
}

// NewHostLoader returns a loader holding the scrub state. Slot count must
// be a power of two; the engine guarantees this via Options.
func NewHostLoader(port *Port, maskA, maskB *Bitmask, slots int) *HostLoader {
	return &HostLoader{
		port:     port,
		maskA:    maskA,
		maskB:    maskB,
		state:    hostScrub,
		slotMask: slots - 1,
	}
}

// Busy reports whether the loader is mid-scrub or mid-traversal. All host
// register access other than the busy flag itself is undefined while Busy
// is true; the engine enforces this by dropping such writes.
func (l *HostLoader) Busy() bool { return l.state != hostIdle }

// ScrubDone reports whether the startup sweep has completed. This is the
// one synchronization point with the lookup engine.
func (l *HostLoader) ScrubDone() bool { return l.scrubDone }

// ActiveSlot returns the current (masked) active-slot selector.
func (l *HostLoader) ActiveSlot() int { return l.active }

// SetActiveSlot latches the active-slot selector, truncated to range.
func (l *HostLoader) SetActiveSlot(sel uint32) { l.active = int(sel) & l.slotMask }

// TriggerLoad requests a mirror-load traversal of the active slot. The
// traversal begins on the next Step out of Idle.
func (l *HostLoader) TriggerLoad() { l.loadPending = true }

// Mirror returns the host-visible mirror registers.
func (l *HostLoader) Mirror() SlotImage { return l.mirror }

// WriteWord applies a direct single-word write to the active slot. Key-id
// writes reach the shadow index in the same step via the store.
func (l *HostLoader) WriteWord(off int, value uint32) {
	l.port.Write(l.active, off, value)
}

// SetValidity writes both domain validity bits for the active slot
// wholesale, the only way validity changes outside the scrub.
func (l *HostLoader) SetValidity(domainA, domainB bool) {
	if domainA {
		l.maskA.Set(l.active)
	} else {
		l.maskA.Clear(l.active)
	}
	if domainB {
		l.maskB.Set(l.active)
	} else {
		l.maskB.Clear(l.active)
	}
}

// Validity reads back the two validity bits for the active slot.
func (l *HostLoader) Validity() (domainA, domainB bool) {
	return l.maskA.Test(l.active), l.maskB.Test(l.active)
}

// Step advances the loader by one state transition.
func (l *HostLoader) Step() {
	switch l.state {
	case hostScrub:
		l.port.store.scrubWord(l.scrubAddr)
		l.scrubAddr++
		if l.scrubAddr == l.port.store.wordCount() {
			l.scrubDone = true
			l.state = hostIdle
		}

	case hostIdle:
		if l.loadPending {
			l.loadPending = false
			l.loadSlot = l.active
			l.state = hostLoadID
		}

	case hostLoadID:
		l.mirror.KeyID = l.port.Read(l.loadSlot, WordKeyID)
		l.state = hostLoadCtrHi
	case hostLoadCtrHi:
		l.mirror.Counter.Hi = l.port.Read(l.loadSlot, WordCtrHi)
		l.state = hostLoadCtrLo
	case hostLoadCtrLo:
		l.mirror.Counter.Lo = l.port.Read(l.loadSlot, WordCtrLo)
		l.state = hostLoadKey0
	case hostLoadKey0, hostLoadKey1, hostLoadKey2, hostLoadKey3:
		i := int(l.state - hostLoadKey0)
		l.mirror.Key[i] = l.port.Read(l.loadSlot, WordKey0+i)
		l.state++
	case hostLoadKey4:
		l.mirror.Key[KeyWords-1] = l.port.Read(l.loadSlot, WordKey0+KeyWords-1)
		l.state = hostWait0

	// The two wait states preserve the traversal's busy envelope from the
	// staged-latency memory model; the mirror itself is already settled.
	case hostWait0:
		l.state = hostWait1
	case hostWait1:
		l.state = hostIdle

	default:
		// Unreachable encoding: recover to Idle rather than hang.
		l.state = hostIdle
	}
}
