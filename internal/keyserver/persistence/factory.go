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
	"fmt"
	"time"

	"keymem/internal/keyserver/core"
)

// BuildPersister constructs a core.Persister based on a string selector.
// Supported adapters:
//   - "mock": in-process logger (default)
//   - "redis": idempotent Redis adapter; uses a real client when
//     opts.RedisAddr is set, otherwise a logging client so the demo runs
//     without infrastructure.
func BuildPersister(adapter string, opts DemoOptions) (core.Persister, error) {
	switch adapter {
	case "", "mock":
		return core.NewMockPersister(), nil
	case "redis":
		ttl := opts.RedisMarkerTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		var evaler RedisEvaler
		if opts.RedisAddr != "" {
			evaler = NewGoRedisEvaler(opts.RedisAddr)
		} else {
			evaler = LoggingRedisEvaler{}
		}
		r := NewRedisPersister(evaler, ttl)
		return NewIdemShim(r), nil
	default:
		return nil, fmt.Errorf("unknown persistence adapter: %s", adapter)
	}
}
