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
// This file wraps one keymem.Engine behind a mutex and a free-running
// clock goroutine, exposing blocking host and lookup operations.
package core

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"keymem"
)

// ErrNotScrubbed is returned for operations issued before the engine's
// startup sweep has finished.
var ErrNotScrubbed = errors.New("engine still scrubbing")

// SlotProgram is a full host-side slot programming request: id, counter
// halves, five key words, and the two validity bits, applied wholesale to
// one slot.
type SlotProgram struct {
	Slot    uint32
	KeyID   uint32
	Counter keymem.Counter
	Key     [keymem.KeyWords]uint32
	DomainA bool
	DomainB bool
}

// SlotCounter is one slot's usage counter as seen by the snapshot worker.
type SlotCounter struct {
	Slot    int
	KeyID   uint32
	Counter uint64
}

// Service drives a keymem.Engine. All engine access goes through the
// mutex; the background clock keeps both state machines advancing even
// while no caller is blocked on them, which is how the always-active
// synchronous processes of the engine map onto goroutines.
type Service struct {
	mu  sync.Mutex
	eng *keymem.Engine

	clockInterval time.Duration
	stepsPerTick  int

	stopCh  chan struct{}
	wg      sync.WaitGroup
	stopped uint32
}

// NewService creates a service around a fresh engine. The engine comes up
// mid-scrub; Start completes the sweep before the clock begins.
func NewService(opts keymem.Options, clockInterval time.Duration) *Service {
	if clockInterval <= 0 {
		clockInterval = time.Millisecond
	}
	return &Service{
		eng:           keymem.NewWithOptions(opts),
		clockInterval: clockInterval,
		stepsPerTick:  64,
		stopCh:        make(chan struct{}),
	}
}

// Slots returns the engine's slot count.
func (s *Service) Slots() int {
	return s.eng.Slots()
}

// Start runs the startup scrub to completion and launches the clock.
func (s *Service) Start() {
	s.mu.Lock()
	s.eng.RunScrub()
	s.mu.Unlock()
	fmt.Println("Key memory scrub complete; starting clock...")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clockLoop()
	}()
}

// Stop halts the clock. Safe to call once; later calls are no-ops.
func (s *Service) Stop() {
	if !atomic.CompareAndSwapUint32(&s.stopped, 0, 1) {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
}

// clockLoop steps the engine in batches. Idle steps are cheap; the loop
// exists so in-flight state (a traversal left behind by a crashed caller,
// the startup sweep in tests that skip Start's blocking scrub) always
// drains without a caller attached.
func (s *Service) clockLoop() {
	ticker := time.NewTicker(s.clockInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			s.eng.StepN(s.stepsPerTick)
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

// Scrubbed reports whether the startup sweep has completed.
func (s *Service) Scrubbed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.ScrubDone()
}

// Lookup runs one client lookup transaction to completion.
func (s *Service) Lookup(domain keymem.Domain, id uint32) (keymem.LookupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.eng.ScrubDone() {
		return keymem.LookupResult{}, ErrNotScrubbed
	}
	// Ready can only be low here if a previous transaction was abandoned
	// mid-drive; every path is bounded, so step it out.
	for !s.eng.Ready() {
		s.eng.Step()
	}

	res := s.eng.Lookup(domain, id)
	RecordLookup(1)
	if res.Found {
		RecordHit(1)
	} else {
		RecordMiss(1)
	}
	return res, nil
}

// ProgramSlot applies a wholesale slot programming through the host
// management registers.
func (s *Service) ProgramSlot(p SlotProgram) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.eng.ScrubDone() {
		return ErrNotScrubbed
	}
	s.waitIdleLocked()

	s.eng.RegWrite(keymem.RegActiveSlot, p.Slot)
	s.eng.RegWrite(keymem.RegKeyID, p.KeyID)
	s.eng.RegWrite(keymem.RegCtrHi, p.Counter.Hi)
	s.eng.RegWrite(keymem.RegCtrLo, p.Counter.Lo)
	for i, w := range p.Key {
		s.eng.RegWrite(keymem.RegKey0+uint32(i)*4, w)
	}
	var v uint32
	if p.DomainA {
		v |= 1 << 0
	}
	if p.DomainB {
		v |= 1 << 1
	}
	s.eng.RegWrite(keymem.RegValidity, v)

	RecordProgram(1)
	return nil
}

// SetValidity rewrites just the validity pair of one slot, the host-side
// invalidation path (content stays in place until the next scrub).
func (s *Service) SetValidity(slot uint32, domainA, domainB bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.eng.ScrubDone() {
		return ErrNotScrubbed
	}
	s.waitIdleLocked()

	s.eng.RegWrite(keymem.RegActiveSlot, slot)
	var v uint32
	if domainA {
		v |= 1 << 0
	}
	if domainB {
		v |= 1 << 1
	}
	s.eng.RegWrite(keymem.RegValidity, v)
	return nil
}

// ReadSlot runs a host mirror-load traversal of one slot and returns the
// image together with its validity pair.
func (s *Service) ReadSlot(slot uint32) (keymem.SlotImage, bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.eng.ScrubDone() {
		return keymem.SlotImage{}, false, false, ErrNotScrubbed
	}
	s.waitIdleLocked()

	img := s.eng.LoadSlot(slot)
	v := s.eng.RegRead(keymem.RegValidity)
	return img, v&1 != 0, v&2 != 0, nil
}

// CounterSnapshot reads every slot's usage counter for the snapshot
// worker, without disturbing the loader's mirror registers.
func (s *Service) CounterSnapshot() []SlotCounter {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SlotCounter, s.eng.Slots())
	for i := range out {
		out[i] = SlotCounter{
			Slot:    i,
			KeyID:   s.eng.PeekKeyID(i),
			Counter: s.eng.PeekCounter(i).Uint64(),
		}
	}
	return out
}

// ValidCount returns the number of valid slots for a domain.
func (s *Service) ValidCount(domain keymem.Domain) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.ValidCount(domain)
}

// waitIdleLocked steps the engine until the loader's busy flag drops.
// Every traversal is bounded, so this terminates in a handful of steps.
func (s *Service) waitIdleLocked() {
	for s.eng.Busy() {
		s.eng.Step()
	}
}
