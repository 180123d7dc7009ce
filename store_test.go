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

import "testing"

// TestBackingStore_PortVisibility checks that a write through one port is
// readable through the other: both ports are handles over one array.
func TestBackingStore_PortVisibility(t *testing.T) {
	s := NewBackingStore(8)
	host := s.HostPort()
	client := s.ClientPort()

	host.Write(3, WordKey0, 0xdeadbeef)
	if got := client.Read(3, WordKey0); got != 0xdeadbeef {
		t.Errorf("client port read = %#x, want %#x", got, 0xdeadbeef)
	}

	client.Write(5, WordCtrLo, 42)
	if got := host.Read(5, WordCtrLo); got != 42 {
		t.Errorf("host port read = %#x, want 42", got)
	}
}

// TestBackingStore_ShadowLockstep checks that any key-id word write, from
// either port, updates the shadow index in the same step.
func TestBackingStore_ShadowLockstep(t *testing.T) {
	s := NewBackingStore(8)
	s.HostPort().Write(2, WordKeyID, 0xc01df337)
	if got := s.ShadowID(2); got != 0xc01df337 {
		t.Errorf("shadow after host id write = %#x, want %#x", got, 0xc01df337)
	}

	s.ClientPort().Write(2, WordKeyID, 0x11112222)
	if got := s.ShadowID(2); got != 0x11112222 {
		t.Errorf("shadow after client id write = %#x, want %#x", got, 0x11112222)
	}

	// Non-id writes must not disturb the shadow.
	s.HostPort().Write(2, WordKey0, 0x33334444)
	if got := s.ShadowID(2); got != 0x11112222 {
		t.Errorf("shadow after key-word write = %#x, want %#x", got, 0x11112222)
	}
}

// TestBitmask_Basics covers set/clear/test, whole-mask clear, and the
// isolation of snapshots from later mask writes.
func TestBitmask_Basics(t *testing.T) {
	m := NewBitmask(128)

	m.Set(0)
	m.Set(63)
	m.Set(64)
	m.Set(127)
	for _, slot := range []int{0, 63, 64, 127} {
		if !m.Test(slot) {
			t.Errorf("Test(%d) = false after Set", slot)
		}
	}
	if m.Count() != 4 {
		t.Errorf("Count() = %d, want 4", m.Count())
	}

	m.Clear(64)
	if m.Test(64) {
		t.Error("Test(64) = true after Clear")
	}

	snap := m.Snapshot()
	m.Clear(0)
	if !testSnapshot(snap, 0) {
		t.Error("snapshot mutated by a later Clear")
	}

	m.ClearAll()
	if m.Count() != 0 {
		t.Errorf("Count() = %d after ClearAll, want 0", m.Count())
	}
}
