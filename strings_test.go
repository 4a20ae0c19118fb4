// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import "testing"

func findStringHeader(gc *GC, target *String) bool {
	for h := gc.allGC; h != nil; h = h.next {
		if h.kind == TypeString && stringFromHeader(h) == target {
			return true
		}
	}
	return false
}

func TestInternTracksShortStringOnAllGC(t *testing.T) {
	g := NewGlobalState(nil)
	s := g.Strings.intern([]byte("tracked"))

	if !findStringHeader(g.GC, s) {
		t.Fatal("a freshly interned short string should be linked onto allGC")
	}
}

func TestInternTracksLongStringOnAllGC(t *testing.T) {
	g := NewGlobalState(nil)
	long := make([]byte, ShortStringLimit+1)
	for i := range long {
		long[i] = 'x'
	}
	s := g.Strings.intern(long)

	if !findStringHeader(g.GC, s) {
		t.Fatal("a freshly interned long string should also be linked onto allGC")
	}
}

func TestFullGCReclaimsUnreferencedInternedString(t *testing.T) {
	g := NewGlobalState(nil)
	s := g.Strings.intern([]byte("ephemeral-unreferenced"))

	g.GC.FullGC(false)

	if findStringHeader(g.GC, s) {
		t.Fatal("an interned string with no surviving reference should be swept")
	}
	if st := g.Strings.buckets[s.hash%uint32(len(g.Strings.buckets))]; st == s {
		t.Fatal("the string table bucket should no longer chain to a swept string")
	}
}

func TestInternResurrectsStringFoundMidSweep(t *testing.T) {
	g := NewGlobalState(nil)
	s := g.Strings.intern([]byte("resurrect-me"))

	// Drive exactly to the point where s would be dead-but-not-yet-swept:
	// finish propagation/atomic so s is painted the old white, without
	// running the sweep step that would actually free it.
	for g.GC.phase != gcSweepAllGC {
		g.GC.Step()
	}

	again := g.Strings.intern([]byte("resurrect-me"))
	if again != s {
		t.Fatal("re-interning identical content must return the same canonical object")
	}
	if s.gc.isDead(g.GC.currentWhite) {
		t.Fatal("re-interning a dead string must repaint it to the current white")
	}
}
