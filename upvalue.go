// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

// Upvalue is a value shared between a closure and the frame that created
// it (spec §4.6 "Closures & upvalues"). While open it aliases a live slot
// of the owning thread's stack; once that frame retires the upvalue is
// closed, copying the value into storage it owns from then on (ported from
// original_source/src/lfunc.h's UpVal).
type Upvalue struct {
	gc gcObject

	stack *Stack
	index int // valid only while open

	closedValue Value // valid only once closed
	open        bool

	// next threads this upvalue onto its owning thread's sorted
	// (descending stack index) open-upvalue list.
	next *Upvalue
	// touched mirrors lfunc.h's "mark to avoid cycles with dead threads"
	// flag; nothing in this package reads or sets it.
	touched bool

	// refCount is never updated by this package and stays zero; how long
	// an upvalue lives is decided by gc.go's reachability tracing, not by
	// a reference count.
	refCount int
}

func (u *Upvalue) header() *gcObject { return &u.gc }

// Get returns the upvalue's current value, whether open or closed.
func (u *Upvalue) Get() Value {
	if u.open {
		return u.stack.slots[u.index]
	}
	return u.closedValue
}

// Set writes through to the live stack slot (open) or to owned storage
// (closed).
func (u *Upvalue) Set(v Value) {
	if u.open {
		u.stack.slots[u.index] = v
		return
	}
	u.closedValue = v
}

// findOrCreateUpvalue implements lfunc.c's luaF_findupval: it returns the
// existing open upvalue aliasing stack slot index if one is already on
// openList, or inserts a new one in the list's descending-index order
// (spec §4.6 "per-thread open list").
func findOrCreateUpvalue(openList **Upvalue, stack *Stack, index int) *Upvalue {
	pp := openList
	for *pp != nil && (*pp).index >= index {
		if (*pp).index == index {
			return *pp
		}
		pp = &(*pp).next
	}
	uv := &Upvalue{stack: stack, index: index, open: true, next: *pp}
	uv.gc.kind = TypeFunction
	*pp = uv
	return uv
}

// closeUpvaluesFrom closes every open upvalue on openList whose aliased
// slot is at or above level, copying each one's live value into its own
// storage (spec §4.6 "closed ... after frame retires"; lfunc.c's
// luaF_close, invoked when a frame returns or errors past it).
func closeUpvaluesFrom(openList **Upvalue, level int) {
	for *openList != nil && (*openList).index >= level {
		uv := *openList
		*openList = uv.next
		uv.closedValue = uv.stack.slots[uv.index]
		uv.open = false
		uv.stack = nil
		uv.next = nil
	}
}
