// Copyright 2024 the libdtrace-ctf Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import "testing"

// S4 — Rollback.
func TestRollback(t *testing.T) {
	c := Create(DefaultModel)

	preNextID := c.nextID
	preDirty := c.dirty()

	snap := c.Snapshot()
	i8, err := c.AddInteger(AddRoot, "i8", Encoding{Format: IntSigned, Bits: 8})
	if err != nil {
		t.Fatalf("AddInteger: %v", err)
	}
	if _, err := c.AddStruct(AddRoot, "s"); err != nil {
		t.Fatalf("AddStruct: %v", err)
	}

	if err := c.Rollback(snap); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if c.nextID != preNextID {
		t.Errorf("nextID = %d, want pre-snapshot value %d", c.nextID, preNextID)
	}
	if c.dirty() != preDirty {
		t.Errorf("dirty = %v, want pre-snapshot value %v", c.dirty(), preDirty)
	}
	if _, ok := c.findAggregate(KindStruct, "s"); ok {
		t.Errorf("struct s still resolvable after rollback")
	}
	if _, ok := c.lookupTDR(i8); ok {
		t.Errorf("i8's TDR still present after rollback")
	}
}

func TestRollbackAfterUpdateRejectsOverRollback(t *testing.T) {
	c := Create(DefaultModel)
	if _, err := c.AddInteger(AddRoot, "int", Encoding{Format: IntSigned, Bits: 32}); err != nil {
		t.Fatalf("AddInteger: %v", err)
	}
	if err := c.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stale := SnapshotID{lastID: 0, snap: 0}
	if err := c.Rollback(stale); err != ErrOverRollback {
		t.Fatalf("Rollback to a pre-update snapshot: got %v, want ErrOverRollback", err)
	}
}

func TestDiscardIsNoopWhenClean(t *testing.T) {
	c := Create(DefaultModel)
	if err := c.Discard(); err != nil {
		t.Fatalf("Discard on a fresh container: %v", err)
	}
}

func TestDiscardUndoesPendingMutations(t *testing.T) {
	c := Create(DefaultModel)
	if _, err := c.AddInteger(AddRoot, "int", Encoding{Format: IntSigned, Bits: 32}); err != nil {
		t.Fatalf("AddInteger: %v", err)
	}
	if err := c.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}

	preNextID := c.nextID
	if _, err := c.AddStruct(AddRoot, "s"); err != nil {
		t.Fatalf("AddStruct: %v", err)
	}
	if !c.dirty() {
		t.Fatalf("container should be dirty after AddStruct")
	}

	if err := c.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if c.dirty() {
		t.Errorf("container still dirty after Discard")
	}
	if c.nextID != preNextID {
		t.Errorf("nextID = %d, want %d", c.nextID, preNextID)
	}
}

// invariant 3: next_id > old_id >= 0; snapshot_counter >= snapshot_at_last_update.
func TestInvariantIDAndSnapshotOrdering(t *testing.T) {
	c := Create(DefaultModel)
	for i := 0; i < 5; i++ {
		c.Snapshot()
		if _, err := c.AddInteger(AddNonRoot, "", Encoding{Format: IntSigned, Bits: 32}); err != nil {
			t.Fatalf("AddInteger: %v", err)
		}
	}
	if err := c.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if TypeID(c.nextID-1) < c.oldID {
		t.Errorf("nextID-1 (%d) < oldID (%d)", c.nextID-1, c.oldID)
	}
	if c.snapshotCounter < c.snapshotAtLastUpdate {
		t.Errorf("snapshotCounter (%d) < snapshotAtLastUpdate (%d)", c.snapshotCounter, c.snapshotAtLastUpdate)
	}
	c.checkInvariants()
}
