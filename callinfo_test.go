// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import "testing"

func TestExtendCallInfoReusesRecycledFrame(t *testing.T) {
	base := newBaseCallInfo()
	first := extendCallInfo(base)
	if first.Previous != base {
		t.Fatalf("first.Previous = %v, want base", first.Previous)
	}
	if base.Next != first {
		t.Fatalf("base.Next = %v, want first", base.Next)
	}

	second := extendCallInfo(base)
	if second != first {
		t.Fatal("extendCallInfo should reuse base.Next instead of allocating a new frame")
	}
}

func TestCallInfoIsScript(t *testing.T) {
	ci := &CallInfo{}
	if ci.IsScript() {
		t.Fatal("fresh CallInfo should not report IsScript")
	}
	ci.Status |= cistLua
	if !ci.IsScript() {
		t.Fatal("CallInfo with cistLua set should report IsScript")
	}
}

func TestProtectedCallRecoversThrowError(t *testing.T) {
	status, err := protectedCall(func() error {
		throwError(ErrRun, ErrStackOverflow)
		return nil
	})
	if status != ErrRun || err != ErrStackOverflow {
		t.Fatalf("protectedCall = %v, %v; want ErrRun, ErrStackOverflow", status, err)
	}
}

func TestProtectedCallPropagatesOrdinaryError(t *testing.T) {
	status, err := protectedCall(func() error {
		return ErrNotAFunction
	})
	if status != ErrRun || err != ErrNotAFunction {
		t.Fatalf("protectedCall = %v, %v; want ErrRun, ErrNotAFunction", status, err)
	}
}

func TestProtectedCallRepanicsOnForeignPanic(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a foreign panic to propagate past protectedCall")
		}
	}()
	protectedCall(func() error {
		panic("not a protectedError")
	})
}
