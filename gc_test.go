// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import "testing"

func TestGCFullGCCollectsUnreachableTable(t *testing.T) {
	g := NewGlobalState(nil)

	dead := g.NewTable()
	_ = dead

	g.GC.FullGC(false)

	found := false
	for h := g.GC.allGC; h != nil; h = h.next {
		if h.kind == TypeTable && tableFromHeader(h) == dead {
			found = true
		}
	}
	if found {
		t.Fatal("an unreachable table should have been swept by FullGC")
	}
}

func TestGCFullGCKeepsReachableTable(t *testing.T) {
	g := NewGlobalState(nil)

	live := g.NewTable()
	if err := g.Globals().SetRaw(g, g.NewString("keepme"), fromObject(TypeTable, variantNone, live)); err != nil {
		t.Fatalf("SetRaw: %v", err)
	}

	g.GC.FullGC(false)

	found := false
	for h := g.GC.allGC; h != nil; h = h.next {
		if h.kind == TypeTable && tableFromHeader(h) == live {
			found = true
		}
	}
	if !found {
		t.Fatal("a table reachable from globals should survive FullGC")
	}
}

func TestGCFixedObjectNeverCollected(t *testing.T) {
	g := NewGlobalState(nil)
	if g.Registry.gc.fixed != true {
		t.Fatal("the registry should be fixed at construction")
	}
	g.GC.FullGC(false)

	found := false
	for h := g.GC.allGC; h != nil; h = h.next {
		if h.kind == TypeTable && tableFromHeader(h) == g.Registry {
			found = true
		}
	}
	if !found {
		t.Fatal("a fixed object must stay on allGC across FullGC")
	}
}

func TestGCStepAdvancesPhase(t *testing.T) {
	g := NewGlobalState(nil)
	if g.GC.phase != gcPause {
		t.Fatalf("fresh GC phase = %v, want gcPause", g.GC.phase)
	}
	g.GC.Step()
	if g.GC.phase != gcPropagate {
		t.Fatalf("after one Step, phase = %v, want gcPropagate", g.GC.phase)
	}
}

func TestGCCollectReclaimsTotalBytes(t *testing.T) {
	g := NewGlobalState(nil)
	baseline := g.MainThread.GC(GCCount, 0)

	for i := 0; i < 50; i++ {
		g.NewTable()
	}
	afterAlloc := g.MainThread.GC(GCCount, 0)
	if afterAlloc <= baseline {
		t.Fatalf("GCCount after allocating garbage = %d, want > baseline %d", afterAlloc, baseline)
	}

	g.GC.FullGC(false)
	afterCollect := g.MainThread.GC(GCCount, 0)
	if afterCollect >= afterAlloc {
		t.Fatalf("GCCount after collecting unreachable tables = %d, want < %d", afterCollect, afterAlloc)
	}
	if afterCollect > baseline {
		t.Fatalf("GCCount after collecting all garbage = %d, want back down near baseline %d", afterCollect, baseline)
	}
}

func TestGCNewCoroutineIsTracked(t *testing.T) {
	g := NewGlobalState(nil)
	th := g.NewCoroutine()

	found := false
	for h := g.GC.allGC; h != nil; h = h.next {
		if h.kind == TypeThread && threadFromHeader(h) == th {
			found = true
		}
	}
	if !found {
		t.Fatal("NewCoroutine should register the thread with the collector")
	}
}
