// Copyright 2024 the libdtrace-ctf Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctf

import "container/list"

// orderedIndex is the intrusive ordered list and keyed index
// combined into one structure: container/list.List gives O(1) append and
// O(1) removal given an element, preserving insertion order; the map gives
// O(1) average lookup by key. This is the same shape as the pack's LRU
// cache pattern (an ordered list plus a map of keys to list elements) used
// for an analogous "ordered store with fast keyed lookup" need; the
// original C code hand-rolls both pieces (an embedded prev/next list plus a
// fixed-size chained hash table) because C has neither primitive, but a Go
// port has no reason to re-derive what the standard library already
// provides.
type orderedIndex[K comparable, V any] struct {
	order *list.List
	index map[K]*list.Element
}

func newOrderedIndex[K comparable, V any]() *orderedIndex[K, V] {
	return &orderedIndex[K, V]{
		order: list.New(),
		index: make(map[K]*list.Element),
	}
}

// append inserts v at the end of insertion order under key k. The caller
// must ensure k is not already present.
func (o *orderedIndex[K, V]) append(k K, v V) {
	o.index[k] = o.order.PushBack(v)
}

func (o *orderedIndex[K, V]) get(k K) (V, bool) {
	el, ok := o.index[k]
	if !ok {
		var zero V
		return zero, false
	}
	return el.Value.(V), true
}

func (o *orderedIndex[K, V]) has(k K) bool {
	_, ok := o.index[k]
	return ok
}

func (o *orderedIndex[K, V]) delete(k K) {
	el, ok := o.index[k]
	if !ok {
		return
	}
	o.order.Remove(el)
	delete(o.index, k)
}

func (o *orderedIndex[K, V]) len() int {
	return o.order.Len()
}

// each walks the store in insertion order, the order both serialization
// and struct/union member layout depend on.
func (o *orderedIndex[K, V]) each(fn func(V)) {
	for el := o.order.Front(); el != nil; el = el.Next() {
		fn(el.Value.(V))
	}
}

// eachReverse walks the store in reverse insertion order; used by AddType's
// pending-tail scan.
func (o *orderedIndex[K, V]) eachReverse(fn func(V) bool) {
	for el := o.order.Back(); el != nil; el = el.Prev() {
		if !fn(el.Value.(V)) {
			return
		}
	}
}
