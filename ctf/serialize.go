// Copyright 2024 the libdtrace-ctf Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import (
	"bytes"
	"encoding/binary"
	"sort"
)

const (
	magic      uint16 = 0xc1f1
	formatVers uint8  = 4
)

// header is the fixed-size binary header emitted at the start of every
// serialized buffer. Unused sections (label, object, function) are left at
// zero, matching a writable-core-only producer.
type header struct {
	Magic       uint16
	Version     uint8
	Flags       uint8
	ParentLabel uint32
	ParentName  uint32
	LabelOff    uint32
	ObjOff      uint32
	FuncOff     uint32
	VarOff      uint32
	TypeOff     uint32
	StrOff      uint32
	StrLen      uint32
}

const headerSize = 2 + 1 + 1 + 4*9

// varEntry is one row of the sorted variable table.
type varEntry struct {
	Name uint32
	Type uint32
}

// typeShort is the common type header used whenever size fits in 32 bits.
type typeShort struct {
	Name uint32
	Info uint32
	Size uint32
}

// sizeExt follows typeShort when Size == sizeSent, carrying a hi/lo split
// 64-bit size for oversized structs and unions.
type sizeExt struct {
	Hi uint32
	Lo uint32
}

const sizeSent uint32 = 0xffffffff

type memberCompact struct {
	Name   uint32
	Type   uint32
	Offset uint32
}

type memberLarge struct {
	Name     uint32
	Type     uint32
	OffsetHi uint32
	OffsetLo uint32
}

type enumEntry struct {
	Name  uint32
	Value int32
}

type arrayEntry struct {
	Contents uint32
	Index    uint32
	Nelems   uint32
}

func packInfo(k Kind, root Root, vlen int) uint32 {
	info := uint32(k) & 0x1f
	if root {
		info |= 1 << 5
	}
	info |= uint32(vlen&0xffff) << 6
	return info
}

func unpackInfo(info uint32) (Kind, Root, int) {
	k := Kind(info & 0x1f)
	root := Root(info&(1<<5) != 0)
	vlen := int((info >> 6) & 0xffff)
	return k, root, vlen
}

// refKind reports whether a type's common-header size field carries a
// referenced Type ID instead of a byte size, mirroring the ctt_size/ctt_type
// union in ctf-create.c (add_reftype, add_function, add_forward,
// add_typedef all assign ctt_type rather than ctt_size).
func refKind(k Kind) bool {
	switch k {
	case KindPointer, KindTypedef, KindVolatile, KindConst, KindRestrict, KindFunction, KindForward:
		return true
	default:
		return false
	}
}

// stringTable accumulates the shared NUL-terminated name pool and hands back
// byte offsets as each name is interned, mirroring the single string-table
// pass in ctf_update.
type stringTable struct {
	buf []byte
}

func newStringTable(capacity uint64) *stringTable {
	st := &stringTable{buf: make([]byte, 0, capacity)}
	st.buf = append(st.buf, 0)
	return st
}

func (st *stringTable) intern(s string) uint32 {
	if s == "" {
		return 0
	}
	off := uint32(len(st.buf))
	st.buf = append(st.buf, s...)
	st.buf = append(st.buf, 0)
	return off
}

// Update re-emits the container as a binary buffer and grafts a freshly
// parsed read-only view onto it in place, preserving the dynamic stores.
// It is a no-op unless the container is dirty. Mirrors ctf_update.
func (c *Container) Update() error {
	if !c.dirty() {
		return nil
	}

	buf, err := c.serialize()
	if err != nil {
		return err
	}

	view, err := parseBuffer(buf, c.model)
	if err != nil {
		return err
	}

	c.view = view
	c.snapshotAtLastUpdate = c.snapshotCounter
	c.oldID = TypeID(c.nextID - 1)
	c.flags &^= flagDirty
	return nil
}

func (c *Container) serialize() ([]byte, error) {
	st := newStringTable(c.stringBytes)

	var parentNameOff uint32
	if c.isChild() && c.parentName != "" {
		parentNameOff = st.intern(c.parentName)
	}

	varBuf, err := c.serializeVars(st)
	if err != nil {
		return nil, err
	}

	typeBuf, err := c.serializeTypes(st)
	if err != nil {
		return nil, err
	}

	varOff := uint32(headerSize)
	typeOff := varOff + uint32(varBuf.Len())
	strOff := typeOff + uint32(typeBuf.Len())

	hdr := header{
		Magic:      magic,
		Version:    formatVers,
		ParentName: parentNameOff,
		VarOff:     varOff,
		TypeOff:    typeOff,
		StrOff:     strOff,
		StrLen:     uint32(len(st.buf)),
	}
	if c.isChild() {
		hdr.Flags |= 1
	}

	out := new(bytes.Buffer)
	out.Grow(int(strOff) + len(st.buf))
	if err := binary.Write(out, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	out.Write(varBuf.Bytes())
	out.Write(typeBuf.Bytes())
	out.Write(st.buf)

	return out.Bytes(), nil
}

// serializeVars builds the sorted variable table. Mirrors ctf_sort_var.
func (c *Container) serializeVars(st *stringTable) (*bytes.Buffer, error) {
	vars := make([]*vdr, 0, c.vars.len())
	c.vars.each(func(v *vdr) { vars = append(vars, v) })
	sort.Slice(vars, func(i, j int) bool { return vars[i].name < vars[j].name })

	buf := new(bytes.Buffer)
	for _, v := range vars {
		e := varEntry{Name: st.intern(v.name), Type: uint32(v.typ)}
		if err := binary.Write(buf, binary.LittleEndian, &e); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// serializeTypes emits every TDR in insertion order. Mirrors the main
// emission loop of ctf_update.
func (c *Container) serializeTypes(st *stringTable) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	var outerErr error
	c.types.each(func(t *tdr) {
		if outerErr != nil {
			return
		}
		outerErr = c.emitType(buf, st, t)
	})
	if outerErr != nil {
		return nil, outerErr
	}
	return buf, nil
}

func (c *Container) emitType(buf *bytes.Buffer, st *stringTable, t *tdr) error {
	nameOff := st.intern(t.name)
	info := packInfo(t.kind, t.root, t.vlen)

	var sizeField uint64
	if refKind(t.kind) {
		sizeField = uint64(t.ref)
	} else {
		sizeField = t.size
	}

	if sizeField <= uint64(MaxSize) {
		sh := typeShort{Name: nameOff, Info: info, Size: uint32(sizeField)}
		if err := binary.Write(buf, binary.LittleEndian, &sh); err != nil {
			return err
		}
	} else {
		sh := typeShort{Name: nameOff, Info: info, Size: sizeSent}
		if err := binary.Write(buf, binary.LittleEndian, &sh); err != nil {
			return err
		}
		ext := sizeExt{Hi: uint32(sizeField >> 32), Lo: uint32(sizeField)}
		if err := binary.Write(buf, binary.LittleEndian, &ext); err != nil {
			return err
		}
	}

	switch t.kind {
	case KindInteger, KindFloat:
		enc := uint32(t.enc.Format&0xff) | uint32(t.enc.Offset&0xff)<<8 | uint32(t.enc.Bits&0xffff)<<16
		return binary.Write(buf, binary.LittleEndian, enc)

	case KindArray:
		e := arrayEntry{Contents: uint32(t.arrContents), Index: uint32(t.arrIndex), Nelems: t.arrNelems}
		return binary.Write(buf, binary.LittleEndian, &e)

	case KindFunction:
		args := t.args
		if len(args)%2 != 0 {
			args = append(append([]TypeID{}, args...), 0)
		}
		for _, a := range args {
			if err := binary.Write(buf, binary.LittleEndian, uint32(a)); err != nil {
				return err
			}
		}
		return nil

	case KindStruct, KindUnion:
		large := t.size >= LStructThresh
		for _, m := range t.members {
			mNameOff := st.intern(m.Name)
			if large {
				e := memberLarge{
					Name:     mNameOff,
					Type:     uint32(m.Type),
					OffsetHi: uint32(m.Offset >> 32),
					OffsetLo: uint32(m.Offset),
				}
				if err := binary.Write(buf, binary.LittleEndian, &e); err != nil {
					return err
				}
			} else {
				e := memberCompact{Name: mNameOff, Type: uint32(m.Type), Offset: uint32(m.Offset)}
				if err := binary.Write(buf, binary.LittleEndian, &e); err != nil {
					return err
				}
			}
		}
		return nil

	case KindEnum:
		for _, en := range t.enumerators {
			e := enumEntry{Name: st.intern(en.Name), Value: en.Value}
			if err := binary.Write(buf, binary.LittleEndian, &e); err != nil {
				return err
			}
		}
		return nil

	default:
		return nil
	}
}
