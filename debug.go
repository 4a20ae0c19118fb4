// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import (
	"fmt"
	"io"
	"strings"
)

// HookMask selects which debug events a registered Hook fires for
// (lstate.h's hookmask; ldebug.c's lua_sethook mask string 'c'/'r'/'l'
// plus a numeric count).
type HookMask uint8

const (
	MaskCall HookMask = 1 << iota
	MaskReturn
	MaskLine
	MaskCount
)

// HookEventKind identifies which of the four events a HookEvent reports.
type HookEventKind int

const (
	EventCall HookEventKind = iota
	EventReturn
	EventLine
	EventCount
)

func (k HookEventKind) String() string {
	switch k {
	case EventCall:
		return "call"
	case EventReturn:
		return "return"
	case EventLine:
		return "line"
	case EventCount:
		return "count"
	default:
		return "unknown"
	}
}

// HookEvent is passed to a registered Hook; Line is meaningful only for
// EventLine (lua_Debug's currentline, as seen by a line hook).
type HookEvent struct {
	Kind HookEventKind
	Line int
}

// Hook is a host-supplied debug callback (lua_Hook). It runs on the same
// goroutine as the call it observes; a long-running hook blocks the
// thread it is attached to exactly like the original blocks the
// interpreter loop.
type Hook func(th *Thread, ev HookEvent)

// SetHook installs fn as th's debug hook, active for the events named in
// mask; count is the instruction-count interval for MaskCount (lua_sethook).
// A nil fn or zero mask turns hooking off.
func (th *Thread) SetHook(fn Hook, mask HookMask, count int) {
	if fn == nil {
		mask = 0
	}
	th.hookFn = fn
	th.hookMask = mask
	th.baseHookCount = count
	th.hookCount = count
}

// GetHook returns th's currently installed hook, mask, and count (lua_gethook
// / lua_gethookmask / lua_gethookcount, combined into one call since Go can
// return all three at once).
func (th *Thread) GetHook() (Hook, HookMask, int) {
	return th.hookFn, th.hookMask, th.baseHookCount
}

// fire dispatches ev to th's hook (if the matching mask bit is set) and
// broadcasts a formatted trace line to every writer attached to th.Global's
// tracer set, regardless of whether a Go hook is installed — so a host can
// observe call/return/line/count activity purely by attaching an io.Writer,
// without writing a Hook closure.
func (th *Thread) fire(bit HookMask, ev HookEvent) {
	if th.Global.Tracers != nil {
		fmt.Fprintf(th.Global.Tracers, "%s", th.traceLine(ev))
	}
	if th.hookMask&bit == 0 || th.hookFn == nil {
		return
	}
	th.hookFn(th, ev)
}

func (th *Thread) traceLine(ev HookEvent) string {
	name := "?"
	if th.CurrentCI != nil && th.CurrentCI.IsScript() && th.CurrentCI.Closure != nil && th.CurrentCI.Closure.Proto != nil {
		name = th.CurrentCI.Closure.Proto.Source
	}
	if ev.Kind == EventLine {
		return fmt.Sprintf("%s:%d\t%s\n", name, ev.Line, ev.Kind)
	}
	return fmt.Sprintf("%s\t%s\n", name, ev.Kind)
}

// traceCall fires the call hook; callHostFn invokes this once a frame has
// been pushed for the callee, mirroring luaD_call's luaD_hook(L,
// LUA_HOOKCALL, -1) immediately after the new CallInfo is set up.
func (th *Thread) traceCall() {
	th.fire(MaskCall, HookEvent{Kind: EventCall})
}

// traceReturn fires the return hook; callHostFn invokes this right before
// restoring the caller's CallInfo (luaD_hook(L, LUA_HOOKRET, -1)).
func (th *Thread) traceReturn() {
	th.fire(MaskReturn, HookEvent{Kind: EventReturn})
}

// traceLineEvent fires the line hook, throttled to only the instant the
// current source line actually changes (ldebug.c's luaG_traceexec: "call
// linehook when enter a new function, ... or enter a new line" — not on
// every single instruction). A host driving a scripted frame (outside this
// runtime's scope) would call this once per executed line; it is exercised
// here directly by tests and by anything that tracks its own line number.
func (th *Thread) traceLineEvent(line int) {
	if th.hookMask&MaskLine == 0 && th.Global.Tracers == nil {
		th.oldLine = line
		return
	}
	if line != th.oldLine {
		th.oldLine = line
		th.fire(MaskLine, HookEvent{Kind: EventLine, Line: line})
	}
}

// traceCount fires the count hook every baseHookCount dispatch steps
// (luaG_traceexec's counthook / resethookcount). A host driving bytecode
// dispatch (out of this runtime's scope) would call this once per
// instruction; callHostFn calls it once per host-function invocation as
// the concrete exercised integration point.
func (th *Thread) traceCount() {
	if th.hookMask&MaskCount == 0 || th.baseHookCount <= 0 {
		return
	}
	th.hookCount--
	if th.hookCount > 0 {
		return
	}
	th.hookCount = th.baseHookCount
	th.fire(MaskCount, HookEvent{Kind: EventCount})
}

// AttachTracer registers w to receive every formatted hook-event line
// broadcast across every thread of g, until DetachTracer removes it
// (spec's "Trace io.Writer-broadcaster list"; SPEC_FULL.md §1.3).
func (g *GlobalState) AttachTracer(w io.Writer) {
	g.Tracers.Add(w)
}

// DetachTracer stops w from receiving further trace lines.
func (g *GlobalState) DetachTracer(w io.Writer) {
	g.Tracers.Remove(w)
}

// Traceback renders the call stack starting at th.CurrentCI and walking
// Previous links, one line per frame, the way luaL_traceback formats a
// "stack traceback:" block for an uncaught error. level skips the
// innermost `level` frames (as luaL_traceback's own level argument does).
func Traceback(th *Thread, msg string, level int) string {
	var b strings.Builder
	if msg != "" {
		b.WriteString(msg)
		b.WriteByte('\n')
	}
	b.WriteString("stack traceback:")
	ci := th.CurrentCI
	for i := 0; ci != nil && i < level; i++ {
		ci = ci.Previous
	}
	for ci != nil {
		b.WriteByte('\n')
		b.WriteString("\t")
		b.WriteString(frameDescription(ci))
		ci = ci.Previous
	}
	return b.String()
}

func frameDescription(ci *CallInfo) string {
	if !ci.IsScript() || ci.Closure == nil || ci.Closure.Proto == nil {
		return "[Go function]"
	}
	p := ci.Closure.Proto
	line := p.lineForPC(ci.SavedPC)
	if p.Source == "" {
		return fmt.Sprintf("[anonymous]:%d", line)
	}
	return fmt.Sprintf("%s:%d", p.Source, line)
}
