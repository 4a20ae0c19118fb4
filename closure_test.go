// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import "testing"

func TestNewHostClosureOwnsUpvalueCopy(t *testing.T) {
	up := []Value{Int(1), Int(2)}
	cl, err := NewHostClosure(func(th *Thread) (int, error) { return 0, nil }, up)
	if err != nil {
		t.Fatalf("NewHostClosure: %v", err)
	}
	up[0] = Int(999)
	n, _ := cl.HostUpvalues[0].Number()
	if n != 1 {
		t.Fatalf("HostUpvalues[0] = %v, want 1 (owned copy, unaffected by caller mutation)", n)
	}
}

func TestNewHostClosureTooManyUpvalues(t *testing.T) {
	up := make([]Value, 256)
	if _, err := NewHostClosure(func(th *Thread) (int, error) { return 0, nil }, up); err != ErrTooManyUpvalues {
		t.Fatalf("NewHostClosure with 256 upvalues = %v, want ErrTooManyUpvalues", err)
	}
}

func TestLightHostFunctionRoundTrip(t *testing.T) {
	called := false
	v := LightHostFunction(func(th *Thread) (int, error) {
		called = true
		return 0, nil
	})
	if !v.IsFunction() {
		t.Fatal("LightHostFunction value should report IsFunction")
	}
	fn := asLightHostFunction(v)
	fn(nil)
	if !called {
		t.Fatal("asLightHostFunction should recover the original callback")
	}
}

func TestClosureValueVariant(t *testing.T) {
	proto := NewFuncProto()
	script := NewScriptClosure(proto)
	v := ClosureValue(script)
	if v.variant != variantScriptClosure {
		t.Fatalf("ClosureValue(script) variant = %v, want variantScriptClosure", v.variant)
	}

	host, _ := NewHostClosure(func(th *Thread) (int, error) { return 0, nil }, nil)
	hv := ClosureValue(host)
	if hv.variant != variantHostClosure {
		t.Fatalf("ClosureValue(host) variant = %v, want variantHostClosure", hv.variant)
	}
}

func TestInstantiateClosureResolvesUpvalues(t *testing.T) {
	stack := NewStack()
	stack.Push(Int(11))

	outerProto := NewFuncProto()
	enclosing := NewScriptClosure(outerProto)

	proto := NewFuncProto()
	proto.Upvalues = []upvalDesc{{InStack: true, Index: 0}}

	var openList *Upvalue
	cl := InstantiateClosure(proto, enclosing, stack, 0, &openList)
	if len(cl.Upvalues) != 1 {
		t.Fatalf("len(Upvalues) = %d, want 1", len(cl.Upvalues))
	}
	n, _ := cl.Upvalues[0].Get().Number()
	if n != 11 {
		t.Fatalf("resolved upvalue = %v, want 11", n)
	}
}

func TestInstantiateClosureCachesZeroUpvalueProto(t *testing.T) {
	stack := NewStack()
	outerProto := NewFuncProto()
	enclosing := NewScriptClosure(outerProto)

	proto := NewFuncProto()
	var openList *Upvalue
	cl1 := InstantiateClosure(proto, enclosing, stack, 0, &openList)
	cl2 := InstantiateClosure(proto, enclosing, stack, 0, &openList)
	if cl1 != cl2 {
		t.Fatal("a zero-upvalue prototype should reuse the cached closure")
	}
}
