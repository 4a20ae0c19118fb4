// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

// upvalDesc describes one upvalue slot of a FuncProto: where a closure
// built from this prototype should obtain it when instantiated — from a
// slot of the enclosing (still-executing) frame's stack, or from an
// upvalue already captured by the enclosing closure (spec §4.4, §4.6
// "Closures & upvalues"; ported from lobject.h's Upvaldesc).
type upvalDesc struct {
	Name      *String
	InStack   bool // true: index is a stack slot of the defining frame
	Index     int
	fromLocal bool // retained for symmetry with the original's naming; same as InStack
}

// localVar records a local variable's name and the instruction range over
// which it is live, for debug/traceback purposes only (lobject.h's LocVar).
type localVar struct {
	Name     *String
	StartPC  int
	EndPC    int
}

// FuncProto is the immutable, shareable description of a scripted
// function's body: bytecode, constants, nested prototypes, and debug
// metadata (spec §4.4 "Function prototype"). The bytecode interpreter loop
// that walks Code is out of scope; what's in scope is the prototype as a
// data structure and its role in closures, debug info, and chunk
// serialization.
type FuncProto struct {
	gc gcObject

	NumParams  int
	IsVararg   bool
	MaxStack   int

	Constants []Value
	Code      []uint32 // opaque instruction words; decoding is the VM's concern
	Protos    []*FuncProto
	Upvalues  []upvalDesc

	// LineInfo maps 1:1 with Code: LineInfo[pc] is the source line that
	// produced instruction pc (lobject.h's lineinfo).
	LineInfo []int
	LocVars  []localVar

	LineDefined     int
	LastLineDefined int
	Source          string

	// cache is the closure built from this prototype when it has no
	// upvalues, an optimization ltable.c/lfunc.c use to avoid re-closing
	// identical nested functions repeatedly inside a tight loop; see
	// closure.go's InstantiateClosure.
	cache *Closure
}

func (p *FuncProto) header() *gcObject { return &p.gc }

// NewFuncProto allocates an empty prototype; callers (the out-of-scope
// compiler, or the chunk loader) fill in its fields directly.
func NewFuncProto() *FuncProto {
	p := &FuncProto{}
	p.gc.kind = TypeFunction
	return p
}

// lineForPC returns the source line attributed to instruction pc, clamping
// to the last known entry (spec's debug-hook and traceback machinery both
// need "what line is this frame on").
func (p *FuncProto) lineForPC(pc int) int {
	if len(p.LineInfo) == 0 {
		return -1
	}
	if pc < 0 {
		pc = 0
	}
	if pc >= len(p.LineInfo) {
		pc = len(p.LineInfo) - 1
	}
	return p.LineInfo[pc]
}

// activeLocals returns the names of local variables live at pc, in
// declaration order, for debug.GetLocal-style introspection.
func (p *FuncProto) activeLocals(pc int) []*String {
	var out []*String
	for _, lv := range p.LocVars {
		if lv.StartPC <= pc && pc < lv.EndPC {
			out = append(out, lv.Name)
		}
	}
	return out
}
