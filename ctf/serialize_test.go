// Copyright 2024 the libdtrace-ctf Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

// memberShape is a plain copy of the bits of a member that must survive a
// serialize/reparse round trip, compared with pretty.Compare for a readable
// diff on mismatch rather than a bare DeepEqual failure.
type memberShape struct {
	Name   string
	Offset uint64
}

// S5 — Variable sort.
func TestUpdateSortsVariables(t *testing.T) {
	c := Create(DefaultModel)
	i32, err := c.AddInteger(AddRoot, "int", Encoding{Format: IntSigned, Bits: 32})
	if err != nil {
		t.Fatalf("AddInteger: %v", err)
	}
	for _, name := range []string{"zeta", "alpha", "mu"} {
		if err := c.AddVariable(name, i32); err != nil {
			t.Fatalf("AddVariable(%q): %v", name, err)
		}
	}

	buf, err := c.serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	var hdr header
	if err := binary.Read(bytes.NewReader(buf[:headerSize]), binary.LittleEndian, &hdr); err != nil {
		t.Fatalf("decode header: %v", err)
	}
	varSection := buf[hdr.VarOff:hdr.TypeOff]
	strtab := buf[hdr.StrOff : hdr.StrOff+hdr.StrLen]

	r := bytes.NewReader(varSection)
	var got []string
	for r.Len() > 0 {
		var e varEntry
		if err := binary.Read(r, binary.LittleEndian, &e); err != nil {
			t.Fatalf("decode varEntry: %v", err)
		}
		got = append(got, readString(strtab, e.Name))
	}

	want := []string{"alpha", "mu", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("variable %d = %q, want %q", i, got[i], want[i])
		}
	}
}

// invariant 8: variable-table entries are sorted strictly ascending by name.
func TestVariableTableStrictlyAscending(t *testing.T) {
	c := Create(DefaultModel)
	i32, _ := c.AddInteger(AddRoot, "int", Encoding{Format: IntSigned, Bits: 32})
	for _, name := range []string{"c", "a", "b", "aa"} {
		if err := c.AddVariable(name, i32); err != nil {
			t.Fatalf("AddVariable(%q): %v", name, err)
		}
	}
	if err := c.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}

	buf, err := c.serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	var hdr header
	if err := binary.Read(bytes.NewReader(buf[:headerSize]), binary.LittleEndian, &hdr); err != nil {
		t.Fatalf("decode header: %v", err)
	}
	strtab := buf[hdr.StrOff : hdr.StrOff+hdr.StrLen]

	// Decode the emitted variable table in its on-disk order.
	r := bytes.NewReader(buf[hdr.VarOff:hdr.TypeOff])
	var names []string
	for r.Len() > 0 {
		var e varEntry
		if err := binary.Read(r, binary.LittleEndian, &e); err != nil {
			t.Fatalf("decode varEntry: %v", err)
		}
		names = append(names, readString(strtab, e.Name))
	}
	if len(names) != 4 {
		t.Fatalf("variable table has %d entries, want 4", len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("not strictly ascending: %v", names)
		}
	}
}

// invariant 5: round-trip. A freshly parsed view agrees with the dynamic
// store's shape at the time Update was called.
func TestUpdateRoundTrip(t *testing.T) {
	c := Create(DefaultModel)
	i32, err := c.AddInteger(AddRoot, "int", Encoding{Format: IntSigned, Bits: 32})
	if err != nil {
		t.Fatalf("AddInteger: %v", err)
	}
	s, err := c.AddStruct(AddRoot, "point")
	if err != nil {
		t.Fatalf("AddStruct: %v", err)
	}
	if err := c.AddMember(s, "x", i32); err != nil {
		t.Fatalf("AddMember x: %v", err)
	}
	if err := c.AddMember(s, "y", i32); err != nil {
		t.Fatalf("AddMember y: %v", err)
	}

	wantSize := func() *tdr { t, _ := c.lookupTDR(s); return t }()

	if err := c.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}

	view, err := parseBuffer(mustReserialize(t, c), c.model)
	if err != nil {
		t.Fatalf("parseBuffer: %v", err)
	}

	got, ok := view.byID[s]
	if !ok {
		t.Fatalf("struct point not found in parsed view")
	}
	if got.kind != KindStruct || got.name != "point" {
		t.Fatalf("got %+v, want struct named point", got)
	}
	if got.size != wantSize.size {
		t.Errorf("size = %d, want %d", got.size, wantSize.size)
	}
	if len(got.members) != len(wantSize.members) {
		t.Fatalf("member count = %d, want %d", len(got.members), len(wantSize.members))
	}
	wantShapes := make([]memberShape, len(wantSize.members))
	for i, m := range wantSize.members {
		wantShapes[i] = memberShape{Name: m.Name, Offset: m.Offset}
	}
	gotShapes := make([]memberShape, len(got.members))
	for i, m := range got.members {
		gotShapes[i] = memberShape{Name: m.Name, Offset: m.Offset}
	}
	if diff := pretty.Compare(wantShapes, gotShapes); diff != "" {
		t.Errorf("member shapes changed across round trip: %s", diff)
	}

	if id, ok := view.structs["point"]; !ok || id != s {
		t.Errorf("view.structs[point] = (%d, %v), want (%d, true)", id, ok, s)
	}
}

func mustReserialize(t *testing.T, c *Container) []byte {
	t.Helper()
	buf, err := c.serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return buf
}

// invariant 4: after update succeeds, DIRTY is cleared and
// snapshot_counter == snapshot_at_last_update.
func TestUpdateClearsDirty(t *testing.T) {
	c := Create(DefaultModel)
	c.Snapshot()
	if _, err := c.AddInteger(AddRoot, "int", Encoding{Format: IntSigned, Bits: 32}); err != nil {
		t.Fatalf("AddInteger: %v", err)
	}
	if !c.dirty() {
		t.Fatalf("expected dirty before Update")
	}
	if err := c.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if c.dirty() {
		t.Errorf("dirty still set after Update")
	}
	if c.snapshotCounter != c.snapshotAtLastUpdate {
		t.Errorf("snapshotCounter = %d, snapshotAtLastUpdate = %d", c.snapshotCounter, c.snapshotAtLastUpdate)
	}
}

func TestUpdateIsNoopWhenClean(t *testing.T) {
	c := Create(DefaultModel)
	if err := c.Update(); err != nil {
		t.Fatalf("Update on an empty container: %v", err)
	}
	view := c.view
	if err := c.Update(); err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if c.view != view {
		t.Errorf("Update re-parsed an unmodified container")
	}
}

// invariant 1: for every live TDR, vlen == len(members/enumerators/args).
func TestInvariantVlenMatchesPayloadLength(t *testing.T) {
	c := Create(DefaultModel)
	i32, _ := c.AddInteger(AddRoot, "int", Encoding{Format: IntSigned, Bits: 32})
	s, _ := c.AddStruct(AddRoot, "s")
	c.AddMember(s, "a", i32)
	c.AddMember(s, "b", i32)
	e, _ := c.AddEnum(AddRoot, "e")
	c.AddEnumerator(e, "A", 0)
	c.AddEnumerator(e, "B", 1)
	c.AddEnumerator(e, "C", 2)

	st, _ := c.lookupTDR(s)
	if st.vlen != len(st.members) {
		t.Errorf("struct vlen = %d, len(members) = %d", st.vlen, len(st.members))
	}
	et, _ := c.lookupTDR(e)
	if et.vlen != len(et.enumerators) {
		t.Errorf("enum vlen = %d, len(enumerators) = %d", et.vlen, len(et.enumerators))
	}
}

// invariant 2: string_bytes == 1 + sum(len(name)+1) over every live owned name.
func TestInvariantStringBytesBookkeeping(t *testing.T) {
	c := Create(DefaultModel)
	i32, _ := c.AddInteger(AddRoot, "int", Encoding{Format: IntSigned, Bits: 32})
	s, _ := c.AddStruct(AddRoot, "s")
	c.AddMember(s, "a", i32)
	c.AddVariable("g", s)

	c.checkInvariants()
}
