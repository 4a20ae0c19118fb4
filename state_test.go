// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import (
	"io"
	"strings"
	"testing"
)

func TestNewGlobalStateDefaults(t *testing.T) {
	g := NewGlobalState(nil)
	if g.MainThread == nil {
		t.Fatal("NewGlobalState should install a main thread")
	}
	if g.Globals() == nil {
		t.Fatal("NewGlobalState should install an empty globals table")
	}
	if g.GC.pauseMul != 200 || g.GC.stepMul != 200 {
		t.Fatalf("default GC pacing = %d/%d, want 200/200", g.GC.pauseMul, g.GC.stepMul)
	}
}

func TestNewGlobalStateFixedSeed(t *testing.T) {
	seed := uint32(0x1234)
	g := NewGlobalState(&Options{Seed: &seed})
	if g.Seed != seed {
		t.Fatalf("Seed = %x, want %x", g.Seed, seed)
	}
}

func TestGlobalStateIsolatedInstances(t *testing.T) {
	g1 := NewGlobalState(nil)
	g2 := NewGlobalState(nil)
	if g1.Globals() == g2.Globals() {
		t.Fatal("two GlobalState instances should never share a globals table")
	}
}

func TestGlobalStateLockUnlockRoundTrips(t *testing.T) {
	g := NewGlobalState(nil)
	g.Lock()
	g.Unlock()
}

func TestOptionsTraceAttachesTracers(t *testing.T) {
	var buf strings.Builder
	g := NewGlobalState(&Options{Trace: []io.Writer{&buf}})

	th := g.NewCoroutine()
	if err := th.PushClosure(func(th *Thread) (int, error) { return 0, nil }, 0); err != nil {
		t.Fatalf("PushClosure: %v", err)
	}
	if err := th.Call(0, 0); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("Options.Trace should have attached a tracer receiving broadcast lines")
	}
}
