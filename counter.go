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

// Counter is a per-slot 64-bit usage count stored as two independently
// addressable 32-bit halves. The halves are independent on the wire: the
// host may write either one directly with an arbitrary value, and such
// writes are plain stores that bypass the increment logic.
type Counter struct {
	Hi uint32
	Lo uint32
}

// Inc returns the counter advanced by exactly one, carrying into the high
// half when the low half wraps.
func (c Counter) Inc() Counter {
	lo := c.Lo + 1
	hi := c.Hi
	if c.Lo == 0xFFFFFFFF {
		hi++
	}
	return Counter{Hi: hi, Lo: lo}
}

// Uint64 folds the two halves into one value.
func (c Counter) Uint64() uint64 {
	return uint64(c.Hi)<<32 | uint64(c.Lo)
}
