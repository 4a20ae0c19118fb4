// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

// callStatus bits, ported from original_source/src/lstate.h's CIST_* flags
// (spec §4.7 "Call frames & calling convention").
type callStatus uint8

const (
	cistOAH       callStatus = 1 << iota // original value of "allow hook"
	cistLua                              // frame is running a scripted function
	cistHooked                           // frame is running a debug hook
	cistReentry                          // reentrant luaV_execute-equivalent
	cistYPCall                           // a yieldable protected call
	cistTail                             // this call was a tail call
	cistHookYield                        // the last hook called yielded
)

// CallInfo is one activation record in a thread's call stack (spec §4.7
// "Stack & CallInfo"), threaded into a doubly-linked list anchored at the
// owning Thread's BaseCI so frames can be recycled across calls instead of
// reallocated (lstate.c's luaE_extendCI).
type CallInfo struct {
	FuncIndex int // stack slot holding the callee
	Top       int // highest stack slot usable by this frame

	Previous, Next *CallInfo

	// Base and SavedPC are meaningful only for scripted frames (Closure.IsScript()).
	Base     int
	SavedPC  int
	Closure  *Closure

	// extra rememberss FuncIndex across a yield, when the frame is
	// temporarily presented to the host as if it held only the yielded
	// results (spec §4.7's note on yield bookkeeping; ldo.h's 'extra').
	extra int

	NResults int
	Status   callStatus
}

// IsScript reports whether this frame is executing scripted bytecode
// rather than a host function.
func (ci *CallInfo) IsScript() bool { return ci.Status&cistLua != 0 }

// newBaseCallInfo builds the sentinel frame every thread starts with,
// representing the thread itself before any function has been called.
func newBaseCallInfo() *CallInfo {
	return &CallInfo{NResults: 0}
}

// extendCallInfo appends a fresh CallInfo after cur, reusing cur.Next if
// the list already has a recycled frame there (ported from lstate.c's
// luaE_extendCI: call depth rarely grows monotonically, so frames freed by
// a returning call are kept around for the next call rather than freed).
func extendCallInfo(cur *CallInfo) *CallInfo {
	if cur.Next != nil {
		return cur.Next
	}
	ci := &CallInfo{Previous: cur}
	cur.Next = ci
	return ci
}

// protectedError is the panic payload used to unwind a protected call
// (spec §4.7 and §9: "protected calls modeled with Go panic/recover
// standing in for C's setjmp/longjmp").
type protectedError struct {
	status Status
	err    error
}

// throwError unwinds the current protected call with the given status and
// error. Never returns.
func throwError(status Status, err error) {
	panic(&protectedError{status: status, err: err})
}

// protectedCall runs f with a recover scope that converts a throwError
// panic into a (Status, error) pair instead of crashing the host program
// (spec §6 "protected call" semantics). A panic of any other kind
// propagates, since it did not originate from throwError and nyx has no
// business pretending to understand it.
func protectedCall(f func() error) (status Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*protectedError); ok {
				status, err = pe.status, pe.err
				return
			}
			panic(r)
		}
	}()
	if callErr := f(); callErr != nil {
		return ErrRun, callErr
	}
	return OK, nil
}
