// Copyright 2024 the libdtrace-ctf Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

// allocateGeneric reserves the next TypeID, constructs an empty TDR with
// the given name and root flag, inserts it into the ordered type store,
// charges its name to the string table, and marks the container dirty.
// Mirrors ctf_add_generic in ctf-create.c.
func (c *Container) allocateGeneric(root Root, name string) (*tdr, error) {
	if !c.writable() {
		return nil, ErrReadOnly
	}

	candidate := indexToType(c.nextID, c.isChild())
	if candidate > MaxType {
		return nil, ErrFull
	}
	if candidate == MaxPType {
		return nil, ErrFull
	}

	t := &tdr{
		id:   candidate,
		name: name,
		root: root,
	}

	c.nextID++
	c.types.append(t.id, t)
	if name != "" {
		c.stringBytes += t.nameBytes()
	}
	c.markDirty()

	return t, nil
}

// deleteTDR unlinks a TDR from the type store and charges back the string
// bytes it and its kind-specific payload owned. Mirrors ctf_dtd_delete.
func (c *Container) deleteTDR(t *tdr) {
	for _, m := range t.members {
		if m.Name != "" {
			c.stringBytes -= uint64(len(m.Name)) + 1
		}
	}
	for _, e := range t.enumerators {
		c.stringBytes -= uint64(len(e.Name)) + 1
	}
	if t.name != "" {
		c.stringBytes -= t.nameBytes()
	}
	c.types.delete(t.id)

	if t.name == "" {
		return
	}
	switch t.kind {
	case KindStruct:
		delete(c.dynStructs, t.name)
	case KindUnion:
		delete(c.dynUnions, t.name)
	case KindEnum:
		delete(c.dynEnums, t.name)
	case KindForward:
		switch Kind(t.ref) {
		case KindStruct:
			delete(c.dynStructs, t.name)
		case KindUnion:
			delete(c.dynUnions, t.name)
		case KindEnum:
			delete(c.dynEnums, t.name)
		}
	}
}

// resolve follows typedef/qualifier chains to the first non-typedef,
// non-qualifier type, mirroring ctf_type_resolve.
func (c *Container) resolve(id TypeID) (*tdr, error) {
	seen := map[TypeID]bool{}
	for {
		t, ok := c.lookupType(id)
		if !ok {
			return nil, ErrBadID
		}
		switch t.kind {
		case KindTypedef, KindVolatile, KindConst, KindRestrict:
			if seen[id] {
				return nil, ErrCorrupt
			}
			seen[id] = true
			id = t.ref
			continue
		default:
			return t, nil
		}
	}
}

// lookupType finds a TDR by ID, first in this container's dynamic store,
// then in the parsed view, then (if this is a child container) in the parent.
func (c *Container) lookupType(id TypeID) (*tdr, bool) {
	if t, ok := c.lookupTDR(id); ok {
		return t, true
	}
	if c.view != nil {
		if t, ok := c.view.byID[id]; ok {
			return t, true
		}
	}
	if c.isChild() && c.parent != nil {
		return c.parent.lookupType(id)
	}
	return nil, false
}

// typeSize returns the size, in bytes, of the given type, resolving
// reference kinds (pointer size for pointers, referent size for
// qualifiers/typedefs) and arrays (element size times element count).
// Mirrors ctf_type_size.
func (c *Container) typeSize(id TypeID) (uint64, error) {
	t, ok := c.lookupType(id)
	if !ok {
		return 0, ErrBadID
	}
	switch t.kind {
	case KindPointer:
		return uint64(c.model.PointerWidth), nil
	case KindTypedef, KindVolatile, KindConst, KindRestrict:
		return c.typeSize(t.ref)
	case KindArray:
		esz, err := c.typeSize(t.arrContents)
		if err != nil {
			return 0, err
		}
		return esz * uint64(t.arrNelems), nil
	case KindForward:
		return 0, nil
	default:
		return t.size, nil
	}
}

// typeAlign returns the natural alignment, in bytes, of the given type.
// Scalars align to their own size; aggregates align to their largest
// member; arrays align to their element type. Mirrors ctf_type_align.
func (c *Container) typeAlign(id TypeID) (uint64, error) {
	t, ok := c.lookupType(id)
	if !ok {
		return 0, ErrBadID
	}
	switch t.kind {
	case KindPointer:
		return uint64(c.model.PointerWidth), nil
	case KindTypedef, KindVolatile, KindConst, KindRestrict:
		return c.typeAlign(t.ref)
	case KindArray:
		return c.typeAlign(t.arrContents)
	case KindStruct, KindUnion:
		var best uint64 = 1
		for _, m := range t.members {
			a, err := c.typeAlign(m.Type)
			if err != nil {
				return 0, err
			}
			if a > best {
				best = a
			}
		}
		return best, nil
	default:
		if t.size == 0 {
			return 1, nil
		}
		return t.size, nil
	}
}
