// Copyright 2024 the libdtrace-ctf Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

// SnapshotID is an opaque token bracketing a batch of mutations for rollback.
type SnapshotID struct {
	lastID TypeID
	snap   uint64
}

// Snapshot returns a token capturing the current (lastID, snapshot-counter)
// pair and advances the snapshot counter. Mirrors ctf_snapshot.
func (c *Container) Snapshot() SnapshotID {
	id := SnapshotID{
		lastID: TypeID(c.nextID - 1),
		snap:   c.snapshotCounter,
	}
	c.snapshotCounter++
	return id
}

// Rollback deletes every type and variable added since id was captured,
// restoring nextID and the snapshot counter. It fails with ErrOverRollback
// if id lies before a prior Update. Mirrors ctf_rollback.
func (c *Container) Rollback(id SnapshotID) error {
	if !c.writable() {
		return ErrReadOnly
	}
	if c.oldID > id.lastID {
		return ErrOverRollback
	}
	if c.snapshotAtLastUpdate > id.snap {
		return ErrOverRollback
	}

	var toDeleteTypes []*tdr
	c.types.each(func(t *tdr) {
		if t.id > id.lastID {
			toDeleteTypes = append(toDeleteTypes, t)
		}
	})
	for _, t := range toDeleteTypes {
		c.deleteTDR(t)
	}

	var toDeleteVars []*vdr
	c.vars.each(func(v *vdr) {
		if v.snapshotAt > id.snap {
			toDeleteVars = append(toDeleteVars, v)
		}
	})
	for _, v := range toDeleteVars {
		c.deleteVDR(v)
	}

	c.nextID = uint32(id.lastID) + 1
	c.snapshotCounter = id.snap

	if c.snapshotCounter == c.snapshotAtLastUpdate {
		c.flags &^= flagDirty
	}

	return nil
}

// Discard rolls back every mutation made since the last Update. It is a
// no-op when the container is not dirty. Mirrors ctf_discard.
func (c *Container) Discard() error {
	if !c.dirty() {
		return nil
	}
	return c.Rollback(SnapshotID{lastID: c.oldID, snap: c.snapshotAtLastUpdate})
}
