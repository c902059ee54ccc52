// Copyright 2024 the libdtrace-ctf Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

// Errno is the error taxonomy returned by Container operations, mirroring
// the role syscall.Errno plays in go-fuse's fs package: a small,
// comparable sentinel rather than a wrapped error chain.
type Errno int

const (
	// ErrReadOnly is returned for a write operation on a non-writable container.
	ErrReadOnly Errno = iota + 1
	// ErrInval marks a malformed argument: a nil pointer, a bad flag, or an
	// out-of-range type reference.
	ErrInval
	// ErrNoMem marks an allocation failure.
	ErrNoMem
	// ErrFull marks an exhausted type-ID space.
	ErrFull
	// ErrDTFull marks a vlen already at MaxVlen.
	ErrDTFull
	// ErrOverflow marks an argument count exceeding MaxVlen.
	ErrOverflow
	// ErrBadID marks a type ID absent from the dynamic store.
	ErrBadID
	// ErrNotSOU marks an operation requiring a struct or union applied to
	// some other kind.
	ErrNotSOU
	// ErrNotEnum marks an operation requiring an enum applied to some other kind.
	ErrNotEnum
	// ErrNotSUE marks an operation requiring a struct, union, or enum
	// applied to some other kind.
	ErrNotSUE
	// ErrDuplicate marks a name collision within a scope.
	ErrDuplicate
	// ErrConflict marks an incompatible redefinition encountered by AddType.
	ErrConflict
	// ErrOverRollback marks a rollback target preceding a committed snapshot.
	ErrOverRollback
	// ErrCorrupt marks an unrecognized kind encountered by AddType.
	ErrCorrupt
)

var errnoText = map[Errno]string{
	ErrReadOnly:     "container is not writable",
	ErrInval:        "invalid argument",
	ErrNoMem:        "out of memory",
	ErrFull:         "type ID space exhausted",
	ErrDTFull:       "vlen is at its maximum",
	ErrOverflow:     "argument count exceeds maximum vlen",
	ErrBadID:        "type ID not found",
	ErrNotSOU:       "type is not a struct or union",
	ErrNotEnum:      "type is not an enum",
	ErrNotSUE:       "type is not a struct, union, or enum",
	ErrDuplicate:    "name already in use",
	ErrConflict:     "incompatible redefinition",
	ErrOverRollback: "rollback target precedes a committed snapshot",
	ErrCorrupt:      "unrecognized type kind",
}

func (e Errno) Error() string {
	if s, ok := errnoText[e]; ok {
		return s
	}
	return "unknown ctf error"
}

// ErrTypeID is the sentinel TypeID returned alongside a non-nil error from
// any ID-returning operation, mirroring CTF_ERR in the original C API.
const ErrTypeID TypeID = 0
