// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import "testing"

func TestGetMetamethodNoMetatable(t *testing.T) {
	g := NewGlobalState(nil)
	tbl := NewTable()
	tv := fromObject(TypeTable, variantNone, tbl)

	if tm := getMetamethod(g, tv, TMIndex); !tm.IsNil() {
		t.Fatalf("getMetamethod with no metatable = %v, want Nil", tm)
	}
	if !tbl.hasNoMetamethod(TMIndex.cacheBit()) {
		t.Fatal("absent metatable lookup should set the cache bit")
	}
}

func TestGetMetamethodFound(t *testing.T) {
	g := NewGlobalState(nil)
	tbl := NewTable()
	tv := fromObject(TypeTable, variantNone, tbl)

	mt := NewTable()
	handler, err := NewHostClosure(func(th *Thread) (int, error) { return 0, nil }, nil)
	if err != nil {
		t.Fatalf("NewHostClosure: %v", err)
	}
	indexKey := fromObject(TypeString, variantNone, g.TMName[TMIndex])
	if err := mt.SetRaw(g, indexKey, fromObject(TypeFunction, variantHostClosure, handler)); err != nil {
		t.Fatalf("SetRaw: %v", err)
	}
	tbl.Metatable = mt

	tm := getMetamethod(g, tv, TMIndex)
	if tm.IsNil() {
		t.Fatal("getMetamethod should find __index on the metatable")
	}
}

func TestGetBinMetamethodFallsBackToSecondOperand(t *testing.T) {
	g := NewGlobalState(nil)
	a := fromObject(TypeTable, variantNone, NewTable())

	bTbl := NewTable()
	mt := NewTable()
	handler, _ := NewHostClosure(func(th *Thread) (int, error) { return 0, nil }, nil)
	addKey := fromObject(TypeString, variantNone, g.TMName[TMAdd])
	mt.SetRaw(g, addKey, fromObject(TypeFunction, variantHostClosure, handler))
	bTbl.Metatable = mt
	b := fromObject(TypeTable, variantNone, bTbl)

	tm := getBinMetamethod(g, a, b, TMAdd)
	if tm.IsNil() {
		t.Fatal("getBinMetamethod should have found __add via the second operand")
	}
}

func TestMetamethodStringNames(t *testing.T) {
	if TMIndex.String() != "__index" || TMCall.String() != "__call" {
		t.Fatalf("metamethod names wrong: %q, %q", TMIndex, TMCall)
	}
}
