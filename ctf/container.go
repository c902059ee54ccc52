// Copyright 2024 the libdtrace-ctf Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import "log"

type flags uint8

const (
	flagRDWR flags = 1 << iota
	flagDirty
	flagChild
)

// member is one struct/union field.
type member struct {
	Name   string
	Type   TypeID
	Offset uint64 // bits
}

// enumerator is one named value of an enum.
type enumerator struct {
	Name  string
	Value int32
}

// tdr is a Type-Definition Record, owned by the type store.
type tdr struct {
	id   TypeID
	name string
	kind Kind
	root Root
	vlen int
	size uint64
	ref  TypeID // pointer/qualifier/typedef referent, function return type, or forward's forwarded kind

	enc Encoding // Integer/Float

	arrContents TypeID // Array
	arrIndex    TypeID
	arrNelems   uint32

	args []TypeID // Function

	members     []member     // Struct/Union
	enumerators []enumerator // Enum
}

func (t *tdr) nameBytes() uint64 {
	if t.name == "" {
		return 0
	}
	return uint64(len(t.name)) + 1
}

// vdr is a Variable-Definition Record, owned by the variable store.
type vdr struct {
	name       string
	typ        TypeID
	snapshotAt uint64
}

// Container is the writable CTF dictionary: the in-memory model for
// constructing, mutating, snapshotting, and serializing a CTF type
// dictionary. A Container is not safe for concurrent use; callers
// must serialize access externally.
type Container struct {
	flags flags
	model Model

	types *orderedIndex[TypeID, *tdr]
	vars  *orderedIndex[string, *vdr]

	nextID uint32 // next index to hand out, 1-based
	oldID  TypeID // highwater mark as of the last Update

	snapshotCounter      uint64
	snapshotAtLastUpdate uint64

	stringBytes uint64 // running string-table byte total, plus the reserved leading NUL

	parent     *Container // set when flagChild is set
	parentName string

	view *parsedView // read-only indices grafted in by the last Update

	// Pending (not-yet-serialized) name indices for struct/union/enum
	// aggregates, consulted by the aggregate-open builders and AddForward
	// for forward-declaration promotion. Analogous in role to the
	// original's ctf_structs/ctf_unions/ctf_enums hash tables, sized here
	// by Go's map rather than a fixed chained hash table (see list.go).
	dynStructs map[string]TypeID
	dynUnions  map[string]TypeID
	dynEnums   map[string]TypeID

	// AllowLegacyIntCompat relaxes AddType's CONFLICT check for 1-bit and
	// 4-bit root-visible "int" types, matching the original's NO_COMPAT
	// shim. Default off.
	AllowLegacyIntCompat bool
}

// Create returns a new, empty, writable Container using the given data model.
func Create(model Model) *Container {
	c := &Container{
		flags:                flagRDWR,
		model:                model,
		types:                newOrderedIndex[TypeID, *tdr](),
		vars:                 newOrderedIndex[string, *vdr](),
		nextID:               1,
		stringBytes:          1, // reserved leading NUL
		snapshotAtLastUpdate: 0,
		dynStructs:           make(map[string]TypeID),
		dynUnions:            make(map[string]TypeID),
		dynEnums:             make(map[string]TypeID),
	}
	return c
}

// CreateChild returns a new writable Container whose type IDs live in a
// high sub-range, referencing types in parent by TypeID.
func CreateChild(parent *Container, parentName string) *Container {
	c := Create(parent.model)
	c.flags |= flagChild
	c.parent = parent
	c.parentName = parentName
	if parentName != "" {
		c.stringBytes += uint64(len(parentName)) + 1
	}
	return c
}

func (c *Container) writable() bool { return c.flags&flagRDWR != 0 }
func (c *Container) dirty() bool    { return c.flags&flagDirty != 0 }
func (c *Container) isChild() bool  { return c.flags&flagChild != 0 }

func (c *Container) markDirty() { c.flags |= flagDirty }

// checkInvariants panics if the container's internal bookkeeping (ID
// ordering, snapshot ordering, or the string-table byte count) has drifted
// out of sync with the live dynamic stores. It never fires in response to
// caller-supplied data; all caller mistakes are reported as an Errno
// instead. Analogous in spirit to Inode.verify/Handled.verify in go-fuse's
// fs package.
func (c *Container) checkInvariants() {
	if c.nextID == 0 {
		log.Panicf("ctf: nextID underflowed to 0")
	}
	if TypeID(c.nextID-1) < c.oldID {
		log.Panicf("ctf: nextID %d behind oldID %d", c.nextID, c.oldID)
	}
	if c.snapshotCounter < c.snapshotAtLastUpdate {
		log.Panicf("ctf: snapshotCounter %d behind snapshotAtLastUpdate %d", c.snapshotCounter, c.snapshotAtLastUpdate)
	}
	var want uint64 = 1
	if c.isChild() && c.parentName != "" {
		want += uint64(len(c.parentName)) + 1
	}
	c.types.each(func(t *tdr) {
		want += t.nameBytes()
		for _, m := range t.members {
			if m.Name != "" {
				want += uint64(len(m.Name)) + 1
			}
		}
		for _, e := range t.enumerators {
			want += uint64(len(e.Name)) + 1
		}
	})
	c.vars.each(func(v *vdr) {
		want += uint64(len(v.name)) + 1
	})
	if want != c.stringBytes {
		log.Panicf("ctf: stringBytes bookkeeping drifted: want %d, have %d", want, c.stringBytes)
	}
}

func (c *Container) lookupTDR(id TypeID) (*tdr, bool) {
	return c.types.get(id)
}
