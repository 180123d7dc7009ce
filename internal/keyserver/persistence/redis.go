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
	"context"
	"errors"
	"fmt"
	"time"
)

// RedisEvaler abstracts the minimal surface we need from a Redis client.
// Implementations may wrap github.com/redis/go-redis/v9 (Cmdable.Eval) or
// any equivalent.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// RedisPersister applies snapshots idempotently using a Lua script:
//  1. SETNX snapshot:<slot>:<commit_id> 1
//  2. If set -> HSET keymem:slot:<slot> {key_id, counter}, but only when
//     the new counter is ahead of the stored one (monotonic guard).
//  3. EXPIRE the marker (TTL) for leak protection.
//
// If SETNX fails (already applied), returns OK and makes no changes.
type RedisPersister struct {
	client    RedisEvaler
	markerTTL time.Duration
}

// NewRedisPersister returns a persister with the given client and marker
// TTL. markerTTL guards against unbounded growth of commit markers; choose
// a duration comfortably larger than your maximum retry window.
func NewRedisPersister(client RedisEvaler, markerTTL time.Duration) *RedisPersister {
	if markerTTL <= 0 {
		markerTTL = 24 * time.Hour
	}
	return &RedisPersister{client: client, markerTTL: markerTTL}
}

// redisLuaScript performs the idempotent, monotonic update. It returns 1
// if applied, 0 if skipped (duplicate commit or stale counter).
const redisLuaScript = `
local slotKey = KEYS[1]
local markerKey = KEYS[2]
local keyId = ARGV[1]
local counter = tonumber(ARGV[2])
local ttlSeconds = tonumber(ARGV[3])
-- try to set the idempotency marker
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  if ttlSeconds and ttlSeconds > 0 then
    redis.call('EXPIRE', markerKey, ttlSeconds)
  end
  -- monotonic guard: counters only move forward
  local cur = tonumber(redis.call('HGET', slotKey, 'counter'))
  if (not cur) or counter >= cur then
    redis.call('HSET', slotKey, 'key_id', keyId, 'counter', counter)
    return 1
  end
  return 0
else
  -- already applied; no-op
  return 0
end
`

// Keys layout helpers (public for interoperability with other components).
func RedisSlotKey(slot int) string { return fmt.Sprintf("keymem:slot:%d", slot) }

func RedisCommitMarkerKey(slot int, commitID string) string {
	return fmt.Sprintf("snapshot:%d:%s", slot, commitID)
}

// CommitBatch applies entries one EVAL each. Callers can wrap batching or
// pipelining externally if their client supports it.
func (r *RedisPersister) CommitBatch(ctx context.Context, entries []SnapshotEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.CommitID == "" {
			return errors.New("SnapshotEntry.CommitID must be set")
		}
		keys := []string{RedisSlotKey(e.Slot), RedisCommitMarkerKey(e.Slot, e.CommitID)}
		args := []interface{}{fmt.Sprintf("%#08x", e.KeyID), e.Counter, int(r.markerTTL.Seconds())}
		if _, err := r.client.Eval(ctx, redisLuaScript, keys, args...); err != nil {
			return fmt.Errorf("redis eval slot=%d commit=%s: %w", e.Slot, e.CommitID, err)
		}
	}
	return nil
}
