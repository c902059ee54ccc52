// Copyright 2024 the libdtrace-ctf Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

// TypeID identifies a type within a Container. Zero is the "no type"
// sentinel; IDs are otherwise dense and monotonically assigned starting at
// 1 per container.
type TypeID uint32

// childIDFlag marks a TypeID as belonging to a child container's ID space,
// keeping a child container from ever issuing an ID in its parent's range.
const childIDFlag TypeID = 1 << 31

// MaxType is the upper bound on the index a parent container may hand out;
// together with the equality check against MaxPType, the largest index a
// parent container actually issues is MaxType-1.
//
// ctf_add_generic in ctf-create.c checks both `> CTF_MAX_TYPE` and
// `== CTF_MAX_PTYPE` before minting an ID, even though the two constants
// carry the same numeric value upstream. The second check is preserved
// verbatim here rather than folded away, on the theory that a port should
// not silently change a boundary condition.
const MaxType TypeID = (1 << 31) - 1

// MaxPType is the equality boundary checked in addition to MaxType; see MaxType's doc.
const MaxPType TypeID = MaxType

// indexToType folds a dense per-container index into a TypeID, tagging it
// with the child-container flag when applicable.
func indexToType(index uint32, child bool) TypeID {
	if child {
		return TypeID(index) | childIDFlag
	}
	return TypeID(index)
}

// MaxVlen is the largest vlen (member/enumerator/argument count) a type may carry.
const MaxVlen = 0xffff

// MaxSize is the largest size, in bytes, representable in the compact
// on-disk type-header size field before the hi/lo-split large form is used.
const MaxSize = 0xfffffffe

// LSizeSent is the size-field value that signals "see the following
// size_hi/size_lo pair instead".
const LSizeSent uint32 = 0xffffffff

// LStructThresh is the struct/union size, in bytes, at or above which
// member records switch from the compact (32-bit offset) layout to the
// large (hi/lo 64-bit offset) layout.
const LStructThresh = MaxSize

// Kind is the category of a type.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInteger
	KindFloat
	KindPointer
	KindArray
	KindFunction
	KindStruct
	KindUnion
	KindEnum
	KindForward
	KindTypedef
	KindVolatile
	KindConst
	KindRestrict
)

var kindNames = map[Kind]string{
	KindUnknown:  "unknown",
	KindInteger:  "integer",
	KindFloat:    "float",
	KindPointer:  "pointer",
	KindArray:    "array",
	KindFunction: "function",
	KindStruct:   "struct",
	KindUnion:    "union",
	KindEnum:     "enum",
	KindForward:  "forward",
	KindTypedef:  "typedef",
	KindVolatile: "volatile",
	KindConst:    "const",
	KindRestrict: "restrict",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "invalid"
}

// Root controls whether a newly added type participates in top-level name
// lookup (AddRoot) or is only reachable through references from other
// types (AddNonRoot).
type Root bool

const (
	AddNonRoot Root = false
	AddRoot    Root = true
)

// Integer/float format bits, orthogonal to the bit-width/offset encoding.
const (
	IntSigned   = 1 << 0
	IntChar     = 1 << 1
	IntBool     = 1 << 2
	IntVarargs  = 1 << 3
	FPSingle    = 1
	FPDouble    = 2
	FPLongDbl   = 3
	FPComplex   = 4
	FPDComplex  = 5
	FPLDComplex = 6
)

// Encoding describes the bit-level layout of an integer or floating-point type.
type Encoding struct {
	Format uint32 // IntSigned/IntChar/... or FPSingle/...
	Offset uint32 // bit offset of the value within its storage unit
	Bits   uint32 // width in bits
}

// Model describes the target's scalar widths, the Go analogue of the
// teacher's Options struct (fs.Options) passed at construction time.
type Model struct {
	PointerWidth uint32 // bytes
	IntWidth     uint32 // bytes; also used as the on-disk size of enum types
	LongWidth    uint32 // bytes
}

// DefaultModel is the LP64 data model (8-byte pointers/longs, 4-byte int).
var DefaultModel = Model{PointerWidth: 8, IntWidth: 4, LongWidth: 8}

// clp2 rounds x up to the next power of two (x must be > 0); ported
// verbatim in spirit from ctf-create.c's clp2, credited there to Hacker's
// Delight.
func clp2(x uint64) uint64 {
	if x == 0 {
		return 1
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	return x + 1
}

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}

func roundUp(off, align uint64) uint64 {
	if align == 0 {
		return off
	}
	return ceilDiv(off, align) * align
}
