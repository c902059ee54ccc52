// Copyright 2024 the libdtrace-ctf Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

// AddMember appends a member to a struct or union using natural alignment.
// Equivalent to AddMemberOffset with the natural sentinel.
func (c *Container) AddMember(aggID TypeID, name string, typ TypeID) error {
	return c.AddMemberOffset(aggID, name, typ, naturalOffsetSentinel)
}

func (c *Container) addEncoded(root Root, name string, enc Encoding, kind Kind) (TypeID, error) {
	t, err := c.allocateGeneric(root, name)
	if err != nil {
		return ErrTypeID, err
	}
	t.kind = kind
	t.enc = enc
	t.size = clp2(ceilDiv(uint64(enc.Bits), 8))
	return t.id, nil
}

// AddInteger creates a root- or non-root-visible integer type with the
// given bit-level encoding. Mirrors ctf_add_integer.
func (c *Container) AddInteger(root Root, name string, enc Encoding) (TypeID, error) {
	return c.addEncoded(root, name, enc, KindInteger)
}

// AddFloat creates a floating-point type. Mirrors ctf_add_float.
func (c *Container) AddFloat(root Root, name string, enc Encoding) (TypeID, error) {
	return c.addEncoded(root, name, enc, KindFloat)
}

func (c *Container) addReftype(root Root, ref TypeID, kind Kind) (TypeID, error) {
	if ref > MaxType {
		return ErrTypeID, ErrInval
	}
	t, err := c.allocateGeneric(root, "")
	if err != nil {
		return ErrTypeID, err
	}
	t.kind = kind
	t.ref = ref
	return t.id, nil
}

// AddPointer creates a pointer type referencing ref. Mirrors ctf_add_pointer.
func (c *Container) AddPointer(root Root, ref TypeID) (TypeID, error) {
	return c.addReftype(root, ref, KindPointer)
}

// AddVolatile creates a volatile-qualified alias of ref.
func (c *Container) AddVolatile(root Root, ref TypeID) (TypeID, error) {
	return c.addReftype(root, ref, KindVolatile)
}

// AddConst creates a const-qualified alias of ref.
func (c *Container) AddConst(root Root, ref TypeID) (TypeID, error) {
	return c.addReftype(root, ref, KindConst)
}

// AddRestrict creates a restrict-qualified alias of ref.
func (c *Container) AddRestrict(root Root, ref TypeID) (TypeID, error) {
	return c.addReftype(root, ref, KindRestrict)
}

// AddTypedef creates a named alias of ref. Unlike the other builders,
// AddType deliberately skips equivalence checking on typedefs it
// encounters, to tolerate bitness-dependent
// typedefs such as pid_t. Mirrors ctf_add_typedef.
func (c *Container) AddTypedef(root Root, name string, ref TypeID) (TypeID, error) {
	if ref > MaxType {
		return ErrTypeID, ErrInval
	}
	t, err := c.allocateGeneric(root, name)
	if err != nil {
		return ErrTypeID, err
	}
	t.kind = KindTypedef
	t.ref = ref
	return t.id, nil
}

// AddArray creates an array type with the given contents type, index type,
// and element count. Mirrors ctf_add_array.
func (c *Container) AddArray(root Root, contents, index TypeID, nelems uint32) (TypeID, error) {
	t, err := c.allocateGeneric(root, "")
	if err != nil {
		return ErrTypeID, err
	}
	t.kind = KindArray
	t.arrContents = contents
	t.arrIndex = index
	t.arrNelems = nelems
	return t.id, nil
}

// SetArray rewrites an existing array type's contents, index, and element
// count. Mirrors ctf_set_array.
func (c *Container) SetArray(id TypeID, contents, index TypeID, nelems uint32) error {
	if !c.writable() {
		return ErrReadOnly
	}
	t, ok := c.lookupTDR(id)
	if !ok || t.kind != KindArray {
		return ErrBadID
	}
	t.arrContents = contents
	t.arrIndex = index
	t.arrNelems = nelems
	c.markDirty()
	return nil
}

// AddFunction creates a function type with the given return type and
// argument list. When variadic is true, a trailing zero Type ID marks the
// ellipsis, per the on-disk convention. Mirrors ctf_add_function.
func (c *Container) AddFunction(root Root, returnType TypeID, args []TypeID, variadic bool) (TypeID, error) {
	vlen := len(args)
	if variadic {
		vlen++
	}
	if vlen > MaxVlen {
		return ErrTypeID, ErrOverflow
	}

	t, err := c.allocateGeneric(root, "")
	if err != nil {
		return ErrTypeID, err
	}
	t.kind = KindFunction
	t.ref = returnType
	t.vlen = vlen

	vdat := make([]TypeID, vlen)
	copy(vdat, args)
	if variadic {
		vdat[vlen-1] = 0
	}
	t.args = vdat

	return t.id, nil
}

// findAggregate looks up a struct, union, or enum by name across the
// pending (dynamic) store and, once Update has run, the parsed view.
// Plays the role of ctf_hash_lookup against ctf_structs/ctf_unions/ctf_enums.
func (c *Container) findAggregate(kind Kind, name string) (TypeID, bool) {
	var dyn map[string]TypeID
	switch kind {
	case KindStruct:
		dyn = c.dynStructs
	case KindUnion:
		dyn = c.dynUnions
	case KindEnum:
		dyn = c.dynEnums
	}
	if id, ok := dyn[name]; ok {
		return id, true
	}
	if c.view != nil {
		var vm map[string]TypeID
		switch kind {
		case KindStruct:
			vm = c.view.structs
		case KindUnion:
			vm = c.view.unions
		case KindEnum:
			vm = c.view.enums
		}
		if id, ok := vm[name]; ok {
			return id, true
		}
	}
	return ErrTypeID, false
}

func (c *Container) registerAggregateName(kind Kind, name string, id TypeID) {
	switch kind {
	case KindStruct:
		c.dynStructs[name] = id
	case KindUnion:
		c.dynUnions[name] = id
	case KindEnum:
		c.dynEnums[name] = id
	}
}

// addAggregateOpen returns the TDR to populate for a struct/union/enum
// builder call: an existing forward declaration promoted in place when one
// exists under the given name, otherwise a freshly allocated TDR. Mirrors
// the shared shape of ctf_add_struct_sized/ctf_add_union_sized/ctf_add_enum.
func (c *Container) addAggregateOpen(root Root, name string, kind Kind) (*tdr, error) {
	if !c.writable() {
		return nil, ErrReadOnly
	}

	if name != "" {
		if id, ok := c.findAggregate(kind, name); ok {
			if t, ok := c.lookupType(id); ok && t.kind == KindForward {
				t.kind = kind
				c.markDirty()
				return t, nil
			}
		}
	}

	t, err := c.allocateGeneric(root, name)
	if err != nil {
		return nil, err
	}
	if name != "" {
		c.registerAggregateName(kind, name, t.id)
	}
	return t, nil
}

// AddStructSized creates (or promotes a forward declaration into) a struct
// type with the given initial size. Mirrors ctf_add_struct_sized.
func (c *Container) AddStructSized(root Root, name string, size uint64) (TypeID, error) {
	t, err := c.addAggregateOpen(root, name, KindStruct)
	if err != nil {
		return ErrTypeID, err
	}
	t.kind = KindStruct
	t.size = size
	return t.id, nil
}

// AddStruct is AddStructSized with an initial size of 0.
func (c *Container) AddStruct(root Root, name string) (TypeID, error) {
	return c.AddStructSized(root, name, 0)
}

// AddUnionSized creates (or promotes a forward declaration into) a union
// type with the given initial size. Mirrors ctf_add_union_sized.
func (c *Container) AddUnionSized(root Root, name string, size uint64) (TypeID, error) {
	t, err := c.addAggregateOpen(root, name, KindUnion)
	if err != nil {
		return ErrTypeID, err
	}
	t.kind = KindUnion
	t.size = size
	return t.id, nil
}

// AddUnion is AddUnionSized with an initial size of 0.
func (c *Container) AddUnion(root Root, name string) (TypeID, error) {
	return c.AddUnionSized(root, name, 0)
}

// AddEnum creates (or promotes a forward declaration into) an enum type.
// Its size is fixed to the container's model int width. Mirrors ctf_add_enum.
func (c *Container) AddEnum(root Root, name string) (TypeID, error) {
	t, err := c.addAggregateOpen(root, name, KindEnum)
	if err != nil {
		return ErrTypeID, err
	}
	t.kind = KindEnum
	t.size = uint64(c.model.IntWidth)
	return t.id, nil
}

// AddForward declares name as a struct, union, or enum without a
// definition. If a type with that name already exists (forward or
// concrete), its ID is returned unchanged. Mirrors ctf_add_forward.
func (c *Container) AddForward(root Root, name string, kind Kind) (TypeID, error) {
	switch kind {
	case KindStruct, KindUnion, KindEnum:
	default:
		return ErrTypeID, ErrNotSUE
	}
	if !c.writable() {
		return ErrTypeID, ErrReadOnly
	}

	if name != "" {
		if id, ok := c.findAggregate(kind, name); ok {
			return id, nil
		}
	}

	t, err := c.allocateGeneric(root, name)
	if err != nil {
		return ErrTypeID, err
	}
	t.kind = KindForward
	t.ref = TypeID(kind)
	if name != "" {
		c.registerAggregateName(kind, name, t.id)
	}
	return t.id, nil
}

// AddEnumerator appends a named value to an enum type. Mirrors
// ctf_add_enumerator.
func (c *Container) AddEnumerator(enumID TypeID, name string, value int32) error {
	if name == "" {
		return ErrInval
	}
	if !c.writable() {
		return ErrReadOnly
	}
	t, ok := c.lookupTDR(enumID)
	if !ok {
		return ErrBadID
	}
	if t.kind != KindEnum {
		return ErrNotEnum
	}
	if t.vlen == MaxVlen {
		return ErrDTFull
	}
	for _, e := range t.enumerators {
		if e.Name == name {
			return ErrDuplicate
		}
	}

	t.enumerators = append(t.enumerators, enumerator{Name: name, Value: value})
	t.vlen++
	c.stringBytes += uint64(len(name)) + 1
	c.markDirty()
	return nil
}

// AddMemberOffset appends a member to a struct or union. Pass
// naturalOffsetSentinel for bitOffset to compute natural alignment;
// otherwise the member is placed at the given explicit bit offset. The
// first member of a struct and every member of a union are placed at
// offset 0 whatever bitOffset is. Mirrors ctf_add_member_offset.
func (c *Container) AddMemberOffset(aggID TypeID, name string, typ TypeID, bitOffset uint64) error {
	if !c.writable() {
		return ErrReadOnly
	}
	t, ok := c.lookupTDR(aggID)
	if !ok {
		return ErrBadID
	}
	if t.kind != KindStruct && t.kind != KindUnion {
		return ErrNotSOU
	}
	if t.vlen == MaxVlen {
		return ErrDTFull
	}
	if name != "" {
		for _, m := range t.members {
			if m.Name == name {
				return ErrDuplicate
			}
		}
	}

	msize, err := c.typeSize(typ)
	if err != nil {
		return err
	}
	if _, err := c.typeAlign(typ); err != nil {
		return err
	}

	var offset, newSize uint64
	if t.kind == KindStruct && len(t.members) != 0 && bitOffset == naturalOffsetSentinel {
		offset, err = c.naturalOffset(t, typ)
		if err != nil {
			return err
		}
		newSize = offset/8 + msize
	} else if t.kind == KindStruct && len(t.members) != 0 {
		offset = bitOffset
		newSize = t.size
		if want := bitOffset/8 + msize; want > newSize {
			newSize = want
		}
	} else {
		offset = 0
		newSize = t.size
		if msize > newSize {
			newSize = msize
		}
	}

	t.members = append(t.members, member{Name: name, Type: typ, Offset: offset})
	t.size = newSize
	t.vlen++
	if name != "" {
		c.stringBytes += uint64(len(name)) + 1
	}
	c.markDirty()
	return nil
}
