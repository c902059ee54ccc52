// Copyright 2024 the libdtrace-ctf Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

// naturalOffsetSentinel marks add_member_offset's "compute the offset for
// me" mode, as opposed to a caller-supplied explicit bit offset.
const naturalOffsetSentinel = ^uint64(0)

// memberBitWidth returns the width, in bits, that a member of the given
// type contributes to a struct's natural layout: the encoded bit width for
// integer/float members (which may be sub-byte, e.g. C bitfields), or
// 8*sizeof(type) otherwise. Mirrors the width computation embedded in
// ctf_add_member_offset.
func (c *Container) memberBitWidth(id TypeID) (uint64, error) {
	t, ok := c.lookupType(id)
	if !ok {
		return 0, ErrBadID
	}
	if (t.kind == KindInteger || t.kind == KindFloat) && t.enc.Bits > 0 {
		return uint64(t.enc.Bits), nil
	}
	sz, err := c.typeSize(id)
	if err != nil {
		return 0, err
	}
	return sz * 8, nil
}

// naturalOffset computes the next member's bit offset within agg, following
// the previous member's end rounded up to a byte and then to the new
// member's alignment. Mirrors the natural-offset branch of
// ctf_add_member_offset.
func (c *Container) naturalOffset(agg *tdr, memberType TypeID) (uint64, error) {
	align, err := c.typeAlign(memberType)
	if err != nil {
		return 0, err
	}
	if align == 0 {
		align = 1
	}

	if len(agg.members) == 0 {
		return 0, nil
	}

	prev := agg.members[len(agg.members)-1]
	prevWidth, err := c.memberBitWidth(prev.Type)
	if err != nil {
		return 0, err
	}
	prevEndBits := prev.Offset + prevWidth
	prevEndBytes := ceilDiv(prevEndBits, 8)
	offsetBytes := roundUp(prevEndBytes, align)
	return offsetBytes * 8, nil
}
