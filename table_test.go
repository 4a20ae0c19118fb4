// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import "testing"

func TestTableArrayPartRoundTrip(t *testing.T) {
	tbl := NewTable()
	for i := int64(1); i <= 10; i++ {
		if err := tbl.SetInt(nil, i, Int(i*10)); err != nil {
			t.Fatalf("SetInt(%d): %v", i, err)
		}
	}
	for i := int64(1); i <= 10; i++ {
		v := tbl.GetInt(i)
		n, _ := v.Number()
		if int64(n) != i*10 {
			t.Fatalf("GetInt(%d) = %v, want %d", i, n, i*10)
		}
	}
	if tbl.Len() != 10 {
		t.Fatalf("Len = %d, want 10", tbl.Len())
	}
}

func TestTableHashPartStringKeys(t *testing.T) {
	g := NewGlobalState(nil)
	tbl := NewTable()

	key := g.NewString("name")
	if err := tbl.SetRaw(g, key, Int(7)); err != nil {
		t.Fatalf("SetRaw: %v", err)
	}
	v := tbl.Get(g.NewString("name"), g.Seed)
	n, _ := v.Number()
	if n != 7 {
		t.Fatalf("Get(\"name\") = %v, want 7", n)
	}
}

func TestTableNilKeyErrors(t *testing.T) {
	tbl := NewTable()
	if err := tbl.SetRaw(nil, Nil, Int(1)); err != ErrTableKeyIsNil {
		t.Fatalf("SetRaw(nil key) = %v, want ErrTableKeyIsNil", err)
	}
}

func TestTableFloatIntegerKeysNormalize(t *testing.T) {
	tbl := NewTable()
	if err := tbl.SetRaw(nil, Float(3.0), Int(99)); err != nil {
		t.Fatalf("SetRaw: %v", err)
	}
	v := tbl.GetInt(3)
	n, _ := v.Number()
	if n != 99 {
		t.Fatalf("t[3] after t[3.0]=99 = %v, want 99", n)
	}
}

func TestTableDeleteByNilAssignment(t *testing.T) {
	tbl := NewTable()
	tbl.SetInt(nil, 1, Int(5))
	tbl.SetInt(nil, 1, Nil)
	if !tbl.GetInt(1).IsNil() {
		t.Fatal("assigning Nil should delete the key")
	}
}

func TestTableNextTraversal(t *testing.T) {
	tbl := NewTable()
	tbl.SetInt(nil, 1, Int(10))
	tbl.SetInt(nil, 2, Int(20))

	seen := map[int64]int64{}
	k, v, ok, err := tbl.Next(Nil, 0)
	for ok {
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		kn, _ := k.Number()
		vn, _ := v.Number()
		seen[int64(kn)] = int64(vn)
		k, v, ok, err = tbl.Next(k, 0)
	}
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(seen) != 2 || seen[1] != 10 || seen[2] != 20 {
		t.Fatalf("traversal saw %v, want {1:10 2:20}", seen)
	}
}

func TestTableNextInvalidKeyErrors(t *testing.T) {
	tbl := NewTable()
	tbl.SetInt(nil, 1, Int(10))
	if _, _, _, err := tbl.Next(Int(55), 0); err != ErrInvalidIndex {
		t.Fatalf("Next with absent key = %v, want ErrInvalidIndex", err)
	}
}

func TestTableNoMetamethodCache(t *testing.T) {
	tbl := NewTable()
	if tbl.hasNoMetamethod(noMetaIndex) {
		t.Fatal("fresh table should not report noMetaIndex set")
	}
	tbl.setNoMetamethod(noMetaIndex)
	if !tbl.hasNoMetamethod(noMetaIndex) {
		t.Fatal("setNoMetamethod should set the bit")
	}
	tbl.SetInt(nil, 1, Int(1))
	if tbl.hasNoMetamethod(noMetaIndex) {
		t.Fatal("a raw write should reset the metamethod-absence cache")
	}
}

func TestTableRehashAcrossManyKeys(t *testing.T) {
	tbl := NewTable()
	const n = 500
	for i := int64(1); i <= n; i++ {
		if err := tbl.SetInt(nil, i, Int(i)); err != nil {
			t.Fatalf("SetInt(%d): %v", i, err)
		}
	}
	for i := int64(1); i <= n; i++ {
		v := tbl.GetInt(i)
		got, _ := v.Number()
		if int64(got) != i {
			t.Fatalf("GetInt(%d) = %v, want %d after rehash growth", i, got, i)
		}
	}
}
