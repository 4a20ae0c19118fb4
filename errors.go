// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import (
	"errors"
	"fmt"
)

// Status is the result code returned by every protected host-interface
// entry point (spec §6, §7.2). On a non-zero status the error is returned
// alongside the status as a Go error; nothing is pushed onto the calling
// thread's stack.
type Status int

const (
	// OK means the call completed normally.
	OK Status = iota
	// Yield means a coroutine yielded instead of returning.
	Yield
	// ErrRun is a generic runtime error raised from scripted or host code.
	ErrRun
	// ErrSyntax is reported by the (out-of-scope) loader/compiler collaborator.
	ErrSyntax
	// ErrMem signals an allocation failure; the error object is the
	// preallocated, permanently-fixed out-of-memory string.
	ErrMem
	// ErrGCMM is raised when a finalizer (__gc) itself errors.
	ErrGCMM
	// ErrErr means the protected call's own message handler raised an error.
	ErrErr
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Yield:
		return "YIELD"
	case ErrRun:
		return "ERRRUN"
	case ErrSyntax:
		return "ERRSYNTAX"
	case ErrMem:
		return "ERRMEM"
	case ErrGCMM:
		return "ERRGCMM"
	case ErrErr:
		return "ERRERR"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Errors returned directly by Go-level entry points (as opposed to Status
// codes carried on the stack). These mirror the teacher's helper.go Err*
// block: one sentinel per distinguishable failure, each documented above
// its declaration.
var (
	// ErrStackOverflow is returned when growing the value stack would
	// exceed the configured hard limit.
	ErrStackOverflow = errors.New("nyx: stack overflow")

	// ErrTableKeyIsNil is returned when a table operation is given a nil key.
	ErrTableKeyIsNil = errors.New("nyx: table index is nil")

	// ErrTableKeyIsNaN is returned when a table operation is given a NaN
	// float key.
	ErrTableKeyIsNaN = errors.New("nyx: table index is NaN")

	// ErrInvalidIndex is returned when a host-interface stack index does
	// not refer to an acceptable slot for the requested operation.
	ErrInvalidIndex = errors.New("nyx: invalid stack index")

	// ErrNotAFunction is returned when Call is attempted on a non-callable
	// value with no __call metamethod.
	ErrNotAFunction = errors.New("nyx: attempt to call a non-function value")

	// ErrTooManyUpvalues is returned when a host closure is built with more
	// than the maximum 255 captured values (spec §6).
	ErrTooManyUpvalues = errors.New("nyx: too many upvalues for a host closure")

	// ErrCannotResume is returned by Resume when the target thread is not
	// in a resumable status.
	ErrCannotResume = errors.New("nyx: cannot resume non-suspended coroutine")

	// ErrCannotYield is returned by Yield when the thread is not yieldable:
	// it was never resumed, or a host-function call is in progress on it
	// (NNY > 0). Host frames cannot register a continuation, so no yield
	// crosses one.
	ErrCannotYield = errors.New("nyx: attempt to yield across a C-call boundary")

	// ErrOutOfMemory is the preallocated, permanently-fixed error object
	// pushed for ErrMem statuses; it must never itself require allocation.
	ErrOutOfMemory = errors.New("nyx: not enough memory")

	// ErrInvalidChunkSignature is returned by the chunk loader when the
	// header's magic bytes or version/format markers don't match.
	ErrInvalidChunkSignature = errors.New("nyx: invalid or incompatible precompiled chunk")

	// ErrChunkSignatureInvalid is returned when a chunk requiring a PKCS#7
	// signature fails verification.
	ErrChunkSignatureInvalid = errors.New("nyx: chunk signature verification failed")

	// ErrIncompatibleVersion is returned when a chunk's stamped engine
	// version is not compatible with the running engine (see version.go).
	ErrIncompatibleVersion = errors.New("nyx: chunk was compiled by an incompatible engine version")

	// ErrRunaway is returned when __index/__newindex metatable chasing
	// exceeds the fixed depth guard against a metatable cycle (api.go).
	ErrRunaway = errors.New("nyx: '__index' chain too long; possible loop")
)

// RuntimeError is the Go error returned alongside ErrRun/ErrSyntax
// statuses. Source/Line are empty/zero when the error did not originate
// from scripted code (e.g. a host-pushed error value).
type RuntimeError struct {
	Source string
	Line   int
	Cause  error
}

func (e *RuntimeError) Error() string {
	if e.Source == "" {
		return e.Cause.Error()
	}
	return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, e.Cause.Error())
}

func (e *RuntimeError) Unwrap() error { return e.Cause }

// newRuntimeError builds a RuntimeError attributed to the currently
// executing frame of ci, or a source-less error if ci is nil or is a host
// frame with no line information.
func newRuntimeError(ci *CallInfo, cause error) *RuntimeError {
	re := &RuntimeError{Cause: cause}
	if ci != nil && ci.IsScript() && ci.Closure != nil && ci.Closure.Proto != nil {
		re.Source = ci.Closure.Proto.Source
		re.Line = ci.Closure.Proto.lineForPC(ci.SavedPC)
	}
	return re
}
