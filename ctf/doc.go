// Copyright 2024 the libdtrace-ctf Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ctf implements the writable CTF (Compact Type Format) container
// core: an in-memory model for constructing, mutating, snapshotting, and
// serializing a CTF type dictionary, plus the deduplicating cross-container
// type copy operation.
//
// A Container owns an append-only, identifier-generating dictionary of
// C-language types (integers, floats, pointers, arrays, functions,
// structures, unions, enumerations, typedefs, qualifiers, and forward
// declarations) together with named variable bindings. Types and variables
// are added through the Add* family of methods; each type builder returns
// the TypeID of the type it created or reused. Update transcodes the dictionary into the fixed CTF binary
// layout and reopens it as a read-only indexed view without invalidating
// the caller's Container handle. Snapshot and Rollback bracket batches of
// mutations so they can be undone as a unit. AddType copies a type, and
// everything it transitively refers to, from one Container into another,
// reusing existing same-named definitions where they are structurally
// compatible.
//
//	c := ctf.Create(ctf.DefaultModel)
//	i32, _ := c.AddInteger(ctf.AddRoot, "int", ctf.Encoding{Format: ctf.IntSigned, Bits: 32})
//	s, _ := c.AddStruct(ctf.AddRoot, "point")
//	c.AddMember(s, "x", i32)
//	c.AddMember(s, "y", i32)
//	if err := c.Update(); err != nil {
//		log.Fatal(err)
//	}
//
// A Container is not safe for concurrent use: every method assumes
// exclusive ownership for the duration of the call, and callers must
// serialize access externally.
//
// The on-disk binary layout this package emits, and the reader contract
// Update relies on to reopen it, are described in serialize.go and
// view.go respectively.
package ctf
