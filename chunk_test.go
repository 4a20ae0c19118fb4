// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import (
	"testing"
)

func sampleProto() *FuncProto {
	p := NewFuncProto()
	p.Source = "sample.nyx"
	p.LineDefined = 1
	p.LastLineDefined = 10
	p.NumParams = 2
	p.MaxStack = 4
	p.IsVararg = true
	p.Code = []uint32{0x00000001, 0x00000002, 0x00000003}
	p.Constants = []Value{Nil, True, False, Int(42), Float(3.5)}
	p.LineInfo = []int{1, 1, 2}
	p.Upvalues = []upvalDesc{{InStack: true, Index: 0}}
	p.LocVars = []localVar{{StartPC: 0, EndPC: 3}}

	sub := NewFuncProto()
	sub.Source = "sample.nyx"
	sub.LineDefined = 5
	p.Protos = []*FuncProto{sub}
	return p
}

func TestDumpLoadRoundTrip(t *testing.T) {
	g := NewGlobalState(nil)
	proto := sampleProto()

	body, sig, err := Dump(proto, nil)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if sig != nil {
		t.Fatalf("expected no signature without DumpOptions, got %d bytes", len(sig))
	}

	got, err := Load(g, body, nil, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got.Source != proto.Source {
		t.Errorf("Source = %q, want %q", got.Source, proto.Source)
	}
	if got.NumParams != proto.NumParams || got.MaxStack != proto.MaxStack || got.IsVararg != proto.IsVararg {
		t.Errorf("header mismatch: %+v vs %+v", got, proto)
	}
	if len(got.Code) != len(proto.Code) {
		t.Fatalf("Code length = %d, want %d", len(got.Code), len(proto.Code))
	}
	for i, c := range proto.Code {
		if got.Code[i] != c {
			t.Errorf("Code[%d] = %#x, want %#x", i, got.Code[i], c)
		}
	}
	if len(got.Protos) != 1 || got.Protos[0].LineDefined != 5 {
		t.Errorf("nested proto not round-tripped: %+v", got.Protos)
	}
	if len(got.Upvalues) != 1 || !got.Upvalues[0].InStack {
		t.Errorf("upvalue descriptors not round-tripped: %+v", got.Upvalues)
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	g := NewGlobalState(nil)
	body := []byte("not a chunk at all")
	if _, err := Load(g, body, nil, nil); err != ErrInvalidChunkSignature {
		t.Fatalf("err = %v, want ErrInvalidChunkSignature", err)
	}
}

func TestLoadRejectsTruncated(t *testing.T) {
	g := NewGlobalState(nil)
	proto := sampleProto()
	body, _, err := Dump(proto, nil)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if _, err := Load(g, body[:len(body)-4], nil, nil); err == nil {
		t.Fatalf("expected error loading truncated chunk")
	}
}

func TestLoadRequiresSignatureWhenConfigured(t *testing.T) {
	g := NewGlobalState(nil)
	proto := sampleProto()
	body, _, err := Dump(proto, nil)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	_, err = Load(g, body, nil, &LoadOptions{RequireSignedChunks: true})
	if err != ErrChunkSignatureInvalid {
		t.Fatalf("err = %v, want ErrChunkSignatureInvalid", err)
	}
}

func TestConstantRoundTrip(t *testing.T) {
	g := NewGlobalState(nil)
	proto := NewFuncProto()
	proto.Source = "constants"
	proto.Constants = []Value{
		Nil, True, False, Int(-7), Int(0), Float(1.25), g.NewString("hello"),
	}

	body, _, err := Dump(proto, nil)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	got, err := Load(g, body, nil, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Constants) != len(proto.Constants) {
		t.Fatalf("Constants length = %d, want %d", len(got.Constants), len(proto.Constants))
	}
	for i, want := range proto.Constants {
		if !RawEqual(got.Constants[i], want) {
			t.Errorf("Constants[%d] = %#v, want %#v", i, got.Constants[i], want)
		}
	}
}

func TestVersionCompatibleGatesLoad(t *testing.T) {
	if versionCompatible("not-a-semver") {
		t.Errorf("garbage version should not be compatible")
	}
	if versionCompatible("v99.0.0") {
		t.Errorf("future major version should not be compatible")
	}
	if !versionCompatible(EngineVersion) {
		t.Errorf("engine's own version should be compatible with itself")
	}
}

func TestFuzzDoesNotPanicOnGarbage(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		{0x1B, 'N', 'y', 'x'},
		make([]byte, 64),
	}
	for _, in := range inputs {
		if Fuzz(in) != 0 {
			t.Errorf("Fuzz(%v) = 1, want 0 for non-chunk input", in)
		}
	}
}
