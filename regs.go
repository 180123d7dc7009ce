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

// Host management register map. Word addresses, scoped to the currently
// selected active slot where noted. This layout is the compatibility
// surface: a reimplementation must reproduce it address for address.
const (
	RegIdentity   = 0x00 // RO: core identity and version
	RegSlotCount  = 0x04 // RO: number of slots
	RegActiveSlot = 0x08 // RW: active-slot selector (truncated to range)
	RegLoadTrig   = 0x0C // WO: any write pulses a mirror-load of the active slot
	RegBusy       = 0x10 // RO: 1 while the loader is scrubbing or traversing
	RegValidity   = 0x14 // RW: bit0 = domain A, bit1 = domain B, active slot
	RegKeyID      = 0x18 // RW: key id (write = direct store, read = mirror)
	RegCtrHi      = 0x1C // RW: counter high half
	RegCtrLo      = 0x20 // RW: counter low half
	RegKey0       = 0x24 // RW: key-material word 0
	RegKey1       = 0x28
	RegKey2       = 0x2C
	RegKey3       = 0x30
	RegKey4       = 0x34
)

// identityWord encodes the core identity ("KM") and version 1.0 in the
// read-only identity register.
const identityWord uint32 = 0x4B4D0100

// Validity register bits.
const (
	validityDomainA = 1 << 0
	validityDomainB = 1 << 1
)
