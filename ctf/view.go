// Copyright 2024 the libdtrace-ctf Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import (
	"bytes"
	"encoding/binary"
)

// parsedView is the minimal stand-in for the external buf_open reader: it
// parses a buffer produced by serialize() back into read-only lookup
// indices, which Update grafts onto the live container and AddType
// consults for cross-container name resolution. A full standalone reader
// is a separate concern; this is the smallest concrete implementation of
// its input contract this package needs internally.
type parsedView struct {
	byID       map[TypeID]*tdr
	varsByName map[string]TypeID

	// kind-prefixed name indices, consulted by AddType.
	structs map[string]TypeID
	unions  map[string]TypeID
	enums   map[string]TypeID
	names   map[string]TypeID
}

func readString(strtab []byte, off uint32) string {
	if off == 0 || int(off) >= len(strtab) {
		return ""
	}
	end := bytes.IndexByte(strtab[off:], 0)
	if end < 0 {
		return string(strtab[off:])
	}
	return string(strtab[off : int(off)+end])
}

// parseBuffer decodes a buffer emitted by serialize into a parsedView.
// Type IDs are not stored explicitly in the wire format; they are implicit
// in emission order, exactly as the dynamic store assigned them.
func parseBuffer(buf []byte, model Model) (*parsedView, error) {
	if len(buf) < headerSize {
		return nil, ErrCorrupt
	}

	var hdr header
	r := bytes.NewReader(buf[:headerSize])
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, ErrCorrupt
	}
	if hdr.Magic != magic {
		return nil, ErrCorrupt
	}
	child := hdr.Flags&1 != 0

	if int(hdr.StrOff)+int(hdr.StrLen) > len(buf) {
		return nil, ErrCorrupt
	}
	strtab := buf[hdr.StrOff : hdr.StrOff+hdr.StrLen]

	v := &parsedView{
		byID:       make(map[TypeID]*tdr),
		varsByName: make(map[string]TypeID),
		structs:    make(map[string]TypeID),
		unions:     make(map[string]TypeID),
		enums:      make(map[string]TypeID),
		names:      make(map[string]TypeID),
	}

	if hdr.TypeOff < hdr.VarOff || hdr.StrOff < hdr.TypeOff {
		return nil, ErrCorrupt
	}

	if err := parseVars(buf[hdr.VarOff:hdr.TypeOff], strtab, v); err != nil {
		return nil, err
	}

	if err := parseTypes(buf[hdr.TypeOff:hdr.StrOff], strtab, child, v); err != nil {
		return nil, err
	}

	return v, nil
}

func parseVars(section, strtab []byte, v *parsedView) error {
	r := bytes.NewReader(section)
	for r.Len() > 0 {
		var e varEntry
		if err := binary.Read(r, binary.LittleEndian, &e); err != nil {
			return ErrCorrupt
		}
		v.varsByName[readString(strtab, e.Name)] = TypeID(e.Type)
	}
	return nil
}

func parseTypes(section, strtab []byte, child bool, v *parsedView) error {
	r := bytes.NewReader(section)
	index := uint32(0)
	for r.Len() > 0 {
		index++
		id := indexToType(index, child)

		var sh typeShort
		if err := binary.Read(r, binary.LittleEndian, &sh); err != nil {
			return ErrCorrupt
		}
		kind, root, vlen := unpackInfo(sh.Info)

		var sizeField uint64
		if sh.Size == sizeSent {
			var ext sizeExt
			if err := binary.Read(r, binary.LittleEndian, &ext); err != nil {
				return ErrCorrupt
			}
			sizeField = uint64(ext.Hi)<<32 | uint64(ext.Lo)
		} else {
			sizeField = uint64(sh.Size)
		}

		t := &tdr{
			id:   id,
			name: readString(strtab, sh.Name),
			kind: kind,
			root: root,
			vlen: vlen,
		}
		if refKind(kind) {
			t.ref = TypeID(sizeField)
		} else {
			t.size = sizeField
		}

		if err := parseTypePayload(r, strtab, t); err != nil {
			return err
		}

		v.byID[id] = t
		indexParsedType(v, t)
	}
	return nil
}

func parseTypePayload(r *bytes.Reader, strtab []byte, t *tdr) error {
	switch t.kind {
	case KindInteger, KindFloat:
		var enc uint32
		if err := binary.Read(r, binary.LittleEndian, &enc); err != nil {
			return ErrCorrupt
		}
		t.enc = Encoding{
			Format: enc & 0xff,
			Offset: (enc >> 8) & 0xff,
			Bits:   (enc >> 16) & 0xffff,
		}

	case KindArray:
		var e arrayEntry
		if err := binary.Read(r, binary.LittleEndian, &e); err != nil {
			return ErrCorrupt
		}
		t.arrContents = TypeID(e.Contents)
		t.arrIndex = TypeID(e.Index)
		t.arrNelems = e.Nelems

	case KindFunction:
		n := t.vlen
		if n%2 != 0 {
			n++
		}
		args := make([]TypeID, 0, t.vlen)
		for i := 0; i < n; i++ {
			var a uint32
			if err := binary.Read(r, binary.LittleEndian, &a); err != nil {
				return ErrCorrupt
			}
			if i < t.vlen {
				args = append(args, TypeID(a))
			}
		}
		t.args = args

	case KindStruct, KindUnion:
		large := t.size >= LStructThresh
		for i := 0; i < t.vlen; i++ {
			if large {
				var e memberLarge
				if err := binary.Read(r, binary.LittleEndian, &e); err != nil {
					return ErrCorrupt
				}
				t.members = append(t.members, member{
					Name:   readString(strtab, e.Name),
					Type:   TypeID(e.Type),
					Offset: uint64(e.OffsetHi)<<32 | uint64(e.OffsetLo),
				})
			} else {
				var e memberCompact
				if err := binary.Read(r, binary.LittleEndian, &e); err != nil {
					return ErrCorrupt
				}
				t.members = append(t.members, member{
					Name:   readString(strtab, e.Name),
					Type:   TypeID(e.Type),
					Offset: uint64(e.Offset),
				})
			}
		}

	case KindEnum:
		for i := 0; i < t.vlen; i++ {
			var e enumEntry
			if err := binary.Read(r, binary.LittleEndian, &e); err != nil {
				return ErrCorrupt
			}
			t.enumerators = append(t.enumerators, enumerator{
				Name:  readString(strtab, e.Name),
				Value: e.Value,
			})
		}
	}
	return nil
}

func indexParsedType(v *parsedView, t *tdr) {
	if !t.root || t.name == "" {
		return
	}
	switch t.kind {
	case KindStruct:
		v.structs[t.name] = t.id
	case KindUnion:
		v.unions[t.name] = t.id
	case KindEnum:
		v.enums[t.name] = t.id
	case KindForward:
		switch Kind(t.ref) {
		case KindStruct:
			v.structs[t.name] = t.id
		case KindUnion:
			v.unions[t.name] = t.id
		case KindEnum:
			v.enums[t.name] = t.id
		}
	default:
		v.names[t.name] = t.id
	}
}
