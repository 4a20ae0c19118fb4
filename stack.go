// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import (
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

// MinStackSize is the smallest stack a thread is ever allocated with
// (spec §4.7 "Stack"; lua.h's LUA_MINSTACK).
const MinStackSize = 20

// ExtraStack is slack space kept past Last so that a metamethod call or
// similar can push a few values without an explicit growth check first
// (ldo.h's EXTRA_STACK).
const ExtraStack = 5

// MaxStackSize is the hard ceiling enforced by EnsureSpace; growing past
// it returns ErrStackOverflow (spec §4.7 "overflow-pad").
const MaxStackSize = 1 << 20

// largeStackThreshold is the slot count above which a stack segment is
// backed by an anonymous mmap region instead of a Go slice: scripts that
// recurse deeply or build huge argument lists get a backing store the
// host OS can page in lazily and page-align, rather than one more
// GC-scanned Go allocation (spec.md Open Question left to the
// implementation: "how stack memory is backed").
const largeStackThreshold = 16384

// Stack is a thread's contiguous, growable value stack (spec §4.7).
// Slots [0, Top) are live; [Top, Last) is free headroom; [Last, Last+
// ExtraStack) is the overflow pad.
type Stack struct {
	slots []Value
	Top   int
	Last  int

	mapping mmap.MMap // non-nil when slots is mmap-backed
}

// NewStack allocates a stack with the minimum usable size.
func NewStack() *Stack {
	s := &Stack{}
	s.realloc(MinStackSize + ExtraStack)
	s.Last = MinStackSize
	return s
}

func pageAlign(n int) int {
	pageSize := unix.Getpagesize()
	bytes := n * int(unsafe.Sizeof(Value{}))
	aligned := ((bytes + pageSize - 1) / pageSize) * pageSize
	return aligned / int(unsafe.Sizeof(Value{}))
}

// realloc grows (or, for shrinkstack, replaces) the backing storage to
// hold newSize slots, preserving existing contents and switching to an
// mmap-backed allocation once the stack is large enough that page
// alignment and OS-managed paging are worth the indirection.
func (s *Stack) realloc(newSize int) {
	old := s.slots
	oldMapping := s.mapping
	var newSlots []Value
	s.mapping = nil
	if newSize >= largeStackThreshold {
		aligned := pageAlign(newSize)
		m, err := mmap.MapRegion(nil, aligned*int(unsafe.Sizeof(Value{})), mmap.RDWR, mmap.ANON, 0)
		if err == nil {
			newSlots = unsafe.Slice((*Value)(unsafe.Pointer(&m[0])), aligned)
			s.mapping = m
		}
	}
	if newSlots == nil {
		newSlots = make([]Value, newSize)
	}
	n := copy(newSlots, old)
	for i := n; i < len(newSlots); i++ {
		newSlots[i] = Nil
	}
	s.slots = newSlots
	if oldMapping != nil {
		oldMapping.Unmap()
	}
}

// EnsureSpace grows the stack so that at least n more slots are available
// past Top, returning ErrStackOverflow if that would exceed MaxStackSize
// (spec §4.7 "overflow-pad"; ldo.c's luaD_growstack).
func (s *Stack) EnsureSpace(n int) error {
	if s.Last-s.Top > n {
		return nil
	}
	needed := s.Top + n + ExtraStack
	if needed > MaxStackSize {
		return ErrStackOverflow
	}
	newSize := len(s.slots) * 2
	if newSize < needed {
		newSize = needed
	}
	if newSize > MaxStackSize+ExtraStack {
		newSize = MaxStackSize + ExtraStack
	}
	s.realloc(newSize)
	s.Last = len(s.slots) - ExtraStack
	return nil
}

// Shrink releases unused capacity once usage has dropped well below the
// current allocation (ldo.c's luaD_shrinkstack). Nothing in this package
// calls it; the collector does not shrink stacks.
func (s *Stack) Shrink() {
	want := s.Top + ExtraStack + MinStackSize
	if want >= len(s.slots) || want < largeStackThreshold {
		return
	}
	s.realloc(want)
	s.Last = len(s.slots) - ExtraStack
}

// Get and Set provide raw, unchecked slot access; callers resolve indices
// via AbsIndex first.
func (s *Stack) Get(i int) Value  { return s.slots[i] }
func (s *Stack) Set(i int, v Value) { s.slots[i] = v }

// Push appends v at Top, growing the stack first if necessary.
func (s *Stack) Push(v Value) error {
	if err := s.EnsureSpace(1); err != nil {
		return err
	}
	s.slots[s.Top] = v
	s.Top++
	return nil
}

// Pop removes and returns the value at Top-1.
func (s *Stack) Pop() Value {
	s.Top--
	v := s.slots[s.Top]
	s.slots[s.Top] = Nil
	return v
}

// AbsIndex resolves a host-interface-style index relative to a frame
// based at `base` (the first argument slot) into an absolute slot number.
// Positive indices count up from base (1-based); negative indices count
// down from Top (spec §6 "positive/negative/pseudo-index resolution").
// There are no pseudo-indices (registry, upvalue slots): api.go passes
// every index straight through, so an index outside the frame is
// rejected here with ErrInvalidIndex.
func (s *Stack) AbsIndex(base, idx int) (int, error) {
	switch {
	case idx > 0:
		abs := base + idx - 1
		if abs >= s.Top {
			return 0, ErrInvalidIndex
		}
		return abs, nil
	case idx < 0:
		abs := s.Top + idx
		if abs < base {
			return 0, ErrInvalidIndex
		}
		return abs, nil
	default:
		return 0, ErrInvalidIndex
	}
}
