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
	"testing"

	"keymem/internal/keyserver/core"
)

// recordingEvaler captures every Eval invocation.
type recordingEvaler struct {
	calls []evalCall
	err   error
}

type evalCall struct {
	keys []string
	args []interface{}
}

func (r *recordingEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.calls = append(r.calls, evalCall{keys: keys, args: args})
	return int64(1), nil
}

// TestRedisPersister_CommitBatch checks the key layout and argument order
// of the Lua evaluation per entry.
func TestRedisPersister_CommitBatch(t *testing.T) {
	ev := &recordingEvaler{}
	p := NewRedisPersister(ev, 0) // 0 falls back to the default TTL

	entries := []SnapshotEntry{
		{Slot: 3, KeyID: 0xc01df337, Counter: 7, CommitID: "commit-a"},
		{Slot: 9, KeyID: 0xee000002, Counter: 1, CommitID: "commit-b"},
	}
	if err := p.CommitBatch(context.Background(), entries); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}
	if len(ev.calls) != 2 {
		t.Fatalf("got %d Eval calls, want 2", len(ev.calls))
	}

	c := ev.calls[0]
	if c.keys[0] != "keymem:slot:3" {
		t.Errorf("slot key = %q, want keymem:slot:3", c.keys[0])
	}
	if c.keys[1] != "snapshot:3:commit-a" {
		t.Errorf("marker key = %q, want snapshot:3:commit-a", c.keys[1])
	}
	if c.args[0] != "0xc01df337" {
		t.Errorf("key id arg = %v, want 0xc01df337", c.args[0])
	}
	if c.args[1] != uint64(7) {
		t.Errorf("counter arg = %v, want 7", c.args[1])
	}
}

// TestRedisPersister_RequiresCommitID checks the misuse guard.
func TestRedisPersister_RequiresCommitID(t *testing.T) {
	p := NewRedisPersister(&recordingEvaler{}, 0)
	err := p.CommitBatch(context.Background(), []SnapshotEntry{{Slot: 1, Counter: 1}})
	if err == nil {
		t.Fatal("expected error for empty CommitID")
	}
}

// TestRedisPersister_PropagatesEvalError checks error wrapping.
func TestRedisPersister_PropagatesEvalError(t *testing.T) {
	backend := errors.New("connection refused")
	p := NewRedisPersister(&recordingEvaler{err: backend}, 0)
	err := p.CommitBatch(context.Background(), []SnapshotEntry{{Slot: 1, Counter: 1, CommitID: "x"}})
	if !errors.Is(err, backend) {
		t.Fatalf("error %v does not wrap the backend error", err)
	}
}

// TestIdemShim_GeneratesUniqueCommitIDs checks that the shim stamps a
// distinct idempotency id on every entry.
func TestIdemShim_GeneratesUniqueCommitIDs(t *testing.T) {
	ev := &recordingEvaler{}
	shim := NewIdemShim(NewRedisPersister(ev, 0))

	snaps := []core.Snapshot{
		{Slot: 0, KeyID: 1, Counter: 10},
		{Slot: 1, KeyID: 2, Counter: 20},
	}
	if err := shim.CommitBatch(snaps); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}
	if len(ev.calls) != 2 {
		t.Fatalf("got %d Eval calls, want 2", len(ev.calls))
	}
	m0, m1 := ev.calls[0].keys[1], ev.calls[1].keys[1]
	if m0 == m1 {
		t.Errorf("commit markers collide: %q", m0)
	}
}

// TestBuildPersister covers the factory selectors.
func TestBuildPersister(t *testing.T) {
	if _, err := BuildPersister("", DemoOptions{}); err != nil {
		t.Errorf("default adapter: %v", err)
	}
	if _, err := BuildPersister("mock", DemoOptions{}); err != nil {
		t.Errorf("mock adapter: %v", err)
	}
	if _, err := BuildPersister("redis", DemoOptions{}); err != nil {
		t.Errorf("redis adapter: %v", err)
	}
	if _, err := BuildPersister("postgres", DemoOptions{}); err == nil {
		t.Error("unknown adapter accepted")
	}
}
