// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import "testing"

func TestFuncProtoLineForPC(t *testing.T) {
	p := NewFuncProto()
	p.LineInfo = []int{10, 10, 11, 13}

	if got := p.lineForPC(0); got != 10 {
		t.Fatalf("lineForPC(0) = %d, want 10", got)
	}
	if got := p.lineForPC(2); got != 11 {
		t.Fatalf("lineForPC(2) = %d, want 11", got)
	}
	if got := p.lineForPC(99); got != 13 {
		t.Fatalf("lineForPC(out of range) = %d, want clamp to last (13)", got)
	}
	if got := p.lineForPC(-5); got != 10 {
		t.Fatalf("lineForPC(negative) = %d, want clamp to first (10)", got)
	}
}

func TestFuncProtoLineForPCEmpty(t *testing.T) {
	p := NewFuncProto()
	if got := p.lineForPC(0); got != -1 {
		t.Fatalf("lineForPC with no LineInfo = %d, want -1", got)
	}
}

func TestFuncProtoActiveLocals(t *testing.T) {
	p := NewFuncProto()
	nameA := &String{data: []byte("a")}
	nameB := &String{data: []byte("b")}
	p.LocVars = []localVar{
		{Name: nameA, StartPC: 0, EndPC: 5},
		{Name: nameB, StartPC: 3, EndPC: 10},
	}

	at1 := p.activeLocals(1)
	if len(at1) != 1 || at1[0] != nameA {
		t.Fatalf("activeLocals(1) = %v, want [a]", at1)
	}

	at4 := p.activeLocals(4)
	if len(at4) != 2 {
		t.Fatalf("activeLocals(4) = %v, want both locals live", at4)
	}

	at8 := p.activeLocals(8)
	if len(at8) != 1 || at8[0] != nameB {
		t.Fatalf("activeLocals(8) = %v, want [b]", at8)
	}
}
