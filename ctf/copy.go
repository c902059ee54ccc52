// Copyright 2024 the libdtrace-ctf Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import "github.com/google/go-cmp/cmp"

// AddType copies a type (and everything it transitively references) from
// src into c, deduplicating against types c already knows about by name and
// kind. Mirrors ctf_add_type.
func (c *Container) AddType(src *Container, srcType TypeID) (TypeID, error) {
	if !c.writable() {
		return ErrTypeID, ErrReadOnly
	}

	srcT, ok := src.lookupType(srcType)
	if !ok {
		return ErrTypeID, ErrBadID
	}

	name, kind, root := srcT.name, srcT.kind, srcT.root

	var dstID TypeID
	var dstKind Kind
	haveCandidate := false

	if root && name != "" {
		if id, ok := c.findRootCandidate(kind, name); ok {
			if t, ok2 := c.lookupType(id); ok2 {
				dstID, dstKind, haveCandidate = id, t.kind, true
			}
		}
	}

	if haveCandidate && dstKind != kind {
		promotesForward := dstKind == KindForward &&
			(kind == KindStruct || kind == KindUnion || kind == KindEnum)
		if !promotesForward {
			return ErrTypeID, ErrConflict
		}
	}

	if haveCandidate && (kind == KindInteger || kind == KindFloat) {
		dstT, _ := c.lookupType(dstID)
		if dstT.root {
			if cmp.Equal(srcT.enc, dstT.enc) {
				return dstID, nil
			}
			if !c.legacyIntShimApplies(name, root, srcT.enc) {
				return ErrTypeID, ErrConflict
			}
		}
		haveCandidate = false
	}

	if !haveCandidate && name != "" {
		id, err, matched := c.pendingScan(kind, name, srcT.enc, root)
		if matched {
			return id, err
		}
	}

	switch kind {
	case KindInteger:
		return c.AddInteger(root, name, srcT.enc)

	case KindFloat:
		return c.AddFloat(root, name, srcT.enc)

	case KindPointer, KindVolatile, KindConst, KindRestrict:
		newRef, err := c.AddType(src, srcT.ref)
		if err != nil {
			return ErrTypeID, err
		}
		return c.addReftype(root, newRef, kind)

	case KindArray:
		newContents, err := c.AddType(src, srcT.arrContents)
		if err != nil {
			return ErrTypeID, err
		}
		newIndex, err := c.AddType(src, srcT.arrIndex)
		if err != nil {
			return ErrTypeID, err
		}
		if haveCandidate {
			dstT, _ := c.lookupType(dstID)
			if dstT.arrContents != newContents || dstT.arrIndex != newIndex || dstT.arrNelems != srcT.arrNelems {
				return ErrTypeID, ErrConflict
			}
			return dstID, nil
		}
		return c.AddArray(root, newContents, newIndex, srcT.arrNelems)

	case KindFunction:
		newRet, err := c.AddType(src, srcT.ref)
		if err != nil {
			return ErrTypeID, err
		}
		// The original drops the source argument list entirely when
		// copying a function type across containers; preserved here.
		return c.AddFunction(root, newRet, nil, false)

	case KindStruct, KindUnion:
		return c.copyAggregate(src, srcT, haveCandidate, dstID, dstKind, name, kind, root)

	case KindEnum:
		return c.copyEnum(src, srcT, haveCandidate, dstID, dstKind, name, root)

	case KindForward:
		if haveCandidate {
			return dstID, nil
		}
		return c.AddForward(root, name, KindStruct)

	case KindTypedef:
		newRef, err := c.AddType(src, srcT.ref)
		if err != nil {
			return ErrTypeID, err
		}
		if haveCandidate {
			// Equivalence of an existing same-named typedef is never
			// checked, to tolerate bitness-dependent typedefs.
			return dstID, nil
		}
		return c.AddTypedef(root, name, newRef)

	default:
		return ErrTypeID, ErrCorrupt
	}
}

// findRootCandidate looks up a root-visible named type in the appropriate
// kind bucket: the struct/union/enum hash for aggregates, or the parsed
// view's generic name index for everything else (non-aggregate types never
// populate a dynamic name index before Update, matching the original).
func (c *Container) findRootCandidate(kind Kind, name string) (TypeID, bool) {
	switch kind {
	case KindStruct, KindUnion, KindEnum:
		return c.findAggregate(kind, name)
	default:
		if c.view != nil {
			if id, ok := c.view.names[name]; ok {
				return id, true
			}
		}
		return ErrTypeID, false
	}
}

func (c *Container) legacyIntShimApplies(name string, root Root, enc Encoding) bool {
	return c.AllowLegacyIntCompat && name == "int" && root && (enc.Bits == 4 || enc.Bits == 1)
}

// pendingScan searches the not-yet-serialized tail of the type store (every
// TDR added since the last Update) for a same-name, same-kind match,
// permitting AddType to recurse into self-referential structures before
// their defining aggregate has been committed. Mirrors the ctf_dtdefs
// backward walk in ctf_add_type. The matched bool reports whether the scan
// is conclusive; when false, the caller proceeds to create a new type.
func (c *Container) pendingScan(kind Kind, name string, enc Encoding, root Root) (id TypeID, err error, matched bool) {
	var candidate *tdr
	c.types.eachReverse(func(t *tdr) bool {
		if t.id <= c.oldID {
			return false
		}
		if t.kind == kind && t.name == name {
			candidate = t
			return false
		}
		return true
	})
	if candidate == nil {
		return ErrTypeID, nil, false
	}
	if kind != KindInteger && kind != KindFloat {
		return candidate.id, nil, true
	}

	sroot, droot := bool(root), bool(candidate.root)
	match := cmp.Equal(enc, candidate.enc)
	if match && sroot == droot {
		return candidate.id, nil, true
	}
	if !match && sroot && droot {
		if c.legacyIntShimApplies(name, root, enc) {
			return ErrTypeID, nil, false
		}
		return ErrTypeID, ErrConflict, true
	}
	return ErrTypeID, nil, false
}

// copyAggregate implements the struct/union branch of AddType. Unlike the
// other kinds, struct/union members are copied manually in two passes: the
// first installs the destination aggregate (with member types still
// pointing at src) so that a second pass recursively copying member types
// can find the aggregate itself as a pending match, making self-referential
// types (e.g. a linked-list node) representable.
//
// Creation goes through the bare generic allocator rather than
// AddStructSized/AddUnionSized, and deliberately does not register the new
// aggregate under its name: a struct or union in the middle of being copied
// must be found by pendingScan's backward walk (which matches by name on
// any live TDR, defined or not), not by a premature name-index entry that
// would route a recursive self-reference through verifyAggregate against a
// still-incomplete member list. Mirrors ctf_add_type's own use of
// ctf_add_generic in its struct/union case, rather than ctf_add_struct_sized.
func (c *Container) copyAggregate(src *Container, srcT *tdr, haveCandidate bool, dstID TypeID, dstKind Kind, name string, kind Kind, root Root) (TypeID, error) {
	if haveCandidate && dstKind != KindForward {
		return c.verifyAggregate(src, srcT, dstID)
	}

	if haveCandidate && dstKind == KindForward {
		var newID TypeID
		var err error
		if kind == KindStruct {
			newID, err = c.AddStructSized(root, name, 0)
		} else {
			newID, err = c.AddUnionSized(root, name, 0)
		}
		if err != nil {
			return ErrTypeID, err
		}
		return c.finishAggregateCopy(src, srcT, newID)
	}

	dstAgg, err := c.allocateGeneric(root, name)
	if err != nil {
		return ErrTypeID, err
	}
	dstAgg.kind = kind
	return c.finishAggregateCopy(src, srcT, dstAgg.id)
}

func (c *Container) finishAggregateCopy(src *Container, srcT *tdr, newID TypeID) (TypeID, error) {
	dstAgg, _ := c.lookupTDR(newID)

	for _, sm := range srcT.members {
		dstAgg.members = append(dstAgg.members, member{Name: sm.Name, Type: sm.Type, Offset: sm.Offset})
		dstAgg.vlen++
		if sm.Name != "" {
			c.stringBytes += uint64(len(sm.Name)) + 1
		}
	}
	size, err := src.typeSize(srcT.id)
	if err != nil {
		return ErrTypeID, err
	}
	dstAgg.size = size
	c.markDirty()

	for i := range dstAgg.members {
		copied, err := c.AddType(src, dstAgg.members[i].Type)
		if err != nil {
			return ErrTypeID, err
		}
		dstAgg.members[i].Type = copied
	}

	return newID, nil
}

// verifyAggregate checks an existing (non-forward) aggregate against a
// source struct/union for compatibility, comparing total size and, for
// every source member, name/offset/type equivalence against the
// destination. Only src members are checked against dst, not the reverse,
// the same asymmetric optimization the original makes (it can in theory
// miss a destination-only member on a union).
func (c *Container) verifyAggregate(src *Container, srcT *tdr, dstID TypeID) (TypeID, error) {
	dstT, _ := c.lookupType(dstID)

	srcSize, err := src.typeSize(srcT.id)
	if err != nil {
		return ErrTypeID, err
	}
	dstSize, err := c.typeSize(dstID)
	if err != nil {
		return ErrTypeID, err
	}
	if srcSize != dstSize {
		return ErrTypeID, ErrConflict
	}

	for i, sm := range srcT.members {
		dm, ok := findMember(dstT, i, sm.Name)
		if !ok || dm.Offset != sm.Offset {
			return ErrTypeID, ErrConflict
		}
		eq, err := c.memberTypesEquivalent(src, sm.Type, dm.Type)
		if err != nil {
			return ErrTypeID, err
		}
		if !eq {
			return ErrTypeID, ErrConflict
		}
	}
	return dstID, nil
}

func findMember(t *tdr, index int, name string) (member, bool) {
	if name != "" {
		for _, m := range t.members {
			if m.Name == name {
				return m, true
			}
		}
		return member{}, false
	}
	if index < len(t.members) {
		return t.members[index], true
	}
	return member{}, false
}

// memberTypesEquivalent is a shallow comparison of the two member types'
// kind and name, without resolving typedef or qualifier chains, used in
// place of a full recursive structural equality check, which
// AddType's caller can already obtain on demand by calling AddType itself.
func (c *Container) memberTypesEquivalent(src *Container, srcType, dstType TypeID) (bool, error) {
	st, ok := src.lookupType(srcType)
	if !ok {
		return false, ErrBadID
	}
	dt, ok := c.lookupType(dstType)
	if !ok {
		return false, ErrBadID
	}
	return st.kind == dt.kind && st.name == dt.name, nil
}

// copyEnum implements the enum branch of AddType: an existing non-forward
// enum must have an identical (name, value) set in both directions, or
// CONFLICT is returned; otherwise a fresh enum is created and populated.
func (c *Container) copyEnum(src *Container, srcT *tdr, haveCandidate bool, dstID TypeID, dstKind Kind, name string, root Root) (TypeID, error) {
	if haveCandidate && dstKind != KindForward {
		dstT, _ := c.lookupType(dstID)
		if !enumSetsEqual(srcT.enumerators, dstT.enumerators) {
			return ErrTypeID, ErrConflict
		}
		return dstID, nil
	}

	newID, err := c.AddEnum(root, name)
	if err != nil {
		return ErrTypeID, err
	}
	for _, e := range srcT.enumerators {
		if err := c.AddEnumerator(newID, e.Name, e.Value); err != nil {
			return ErrTypeID, err
		}
	}
	return newID, nil
}

func enumSetsEqual(a, b []enumerator) bool {
	if len(a) != len(b) {
		return false
	}
	av := make(map[string]int32, len(a))
	for _, e := range a {
		av[e.Name] = e.Value
	}
	bv := make(map[string]int32, len(b))
	for _, e := range b {
		bv[e.Name] = e.Value
	}
	return cmp.Equal(av, bv)
}
