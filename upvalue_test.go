// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import "testing"

func TestFindOrCreateUpvalueReusesOpen(t *testing.T) {
	s := NewStack()
	s.Push(Int(1))
	s.Push(Int(2))
	s.Push(Int(3))

	var openList *Upvalue
	uv1 := findOrCreateUpvalue(&openList, s, 1)
	uv2 := findOrCreateUpvalue(&openList, s, 1)
	if uv1 != uv2 {
		t.Fatal("findOrCreateUpvalue should return the same *Upvalue for the same slot")
	}

	uv0 := findOrCreateUpvalue(&openList, s, 0)
	if uv0 == uv1 {
		t.Fatal("findOrCreateUpvalue should create distinct upvalues for distinct slots")
	}
	// descending-index order: slot 1 before slot 0.
	if openList != uv1 || openList.next != uv0 {
		t.Fatal("open list should be ordered by descending stack index")
	}
}

func TestUpvalueOpenAliasesStack(t *testing.T) {
	s := NewStack()
	s.Push(Int(42))

	var openList *Upvalue
	uv := findOrCreateUpvalue(&openList, s, 0)

	n, _ := uv.Get().Number()
	if n != 42 {
		t.Fatalf("Get() = %v, want 42 (aliasing live slot)", n)
	}

	s.Set(0, Int(99))
	n, _ = uv.Get().Number()
	if n != 99 {
		t.Fatalf("Get() after stack write = %v, want 99", n)
	}

	uv.Set(Int(7))
	got := s.Get(0)
	gn, _ := got.Number()
	if gn != 7 {
		t.Fatalf("stack slot after upvalue Set = %v, want 7", gn)
	}
}

func TestCloseUpvaluesFromCopiesValue(t *testing.T) {
	s := NewStack()
	s.Push(Int(1))
	s.Push(Int(2))

	var openList *Upvalue
	uvHigh := findOrCreateUpvalue(&openList, s, 1)
	uvLow := findOrCreateUpvalue(&openList, s, 0)

	closeUpvaluesFrom(&openList, 1)

	if uvHigh.open {
		t.Fatal("upvalue at or above the closed level should be closed")
	}
	if !uvLow.open {
		t.Fatal("upvalue below the closed level should remain open")
	}
	n, _ := uvHigh.Get().Number()
	if n != 2 {
		t.Fatalf("closed upvalue Get() = %v, want 2 (snapshotted)", n)
	}
	if openList != uvLow {
		t.Fatal("open list should only retain the upvalue below the closed level")
	}
}
