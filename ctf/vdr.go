// Copyright 2024 the libdtrace-ctf Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

// AddVariable binds name to the type identified by typ. Names are unique
// across all variables in the container. Mirrors ctf_add_variable.
func (c *Container) AddVariable(name string, typ TypeID) error {
	if !c.writable() {
		return ErrReadOnly
	}
	if c.vars.has(name) {
		return ErrDuplicate
	}

	v := &vdr{
		name:       name,
		typ:        typ,
		snapshotAt: c.snapshotCounter,
	}
	c.vars.append(name, v)
	c.stringBytes += uint64(len(name)) + 1
	c.markDirty()
	return nil
}

// LookupVariable returns the TypeID bound to name, if any.
func (c *Container) LookupVariable(name string) (TypeID, bool) {
	if v, ok := c.vars.get(name); ok {
		return v.typ, true
	}
	if c.view != nil {
		if id, ok := c.view.varsByName[name]; ok {
			return id, true
		}
	}
	return ErrTypeID, false
}

func (c *Container) deleteVDR(v *vdr) {
	c.stringBytes -= uint64(len(v.name)) + 1
	c.vars.delete(v.name)
}
