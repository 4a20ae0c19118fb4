// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import "unsafe"

// gcPhase enumerates the collector's states, each cycle passing through
// them in this order (spec §4.2 "Incremental tri-color GC"; ported from
// original_source/src/lgc.h's GCSpause..GCScallfin comment block).
type gcPhase int

const (
	gcPause gcPhase = iota
	gcPropagate
	gcAtomic
	gcSweepAllGC
	gcSweepToBeFnz
	gcCallFin
)

// gcStepSize is the unit of "work" charged per traversed or swept object,
// used only to convert an arbitrary debt number into a bounded amount of
// per-step effort (lgc.h's GCSTEPSIZE, "~100 small strings").
const gcStepSize = 100

// gcObjectUnit is the coarse, uniform per-object accounting unit track
// charges on allocation and sweepStep refunds on collection, keeping
// totalBytes a (rough) measure of bytes currently in use rather than a
// monotonically growing allocation counter.
const gcObjectUnit = 64

// GC is the incremental collector shared by every thread of one
// GlobalState (spec §4.2, §5 "shared ... GC lists"). Every collectable
// object is threaded onto exactly one of its lists via gcObject.next.
type GC struct {
	g            *GlobalState
	currentWhite gcColor
	phase        gcPhase
	running      bool

	allGC     *gcObject
	sweepNext **gcObject // cursor into allGC for an in-progress sweep

	gray      *gcObject
	grayAgain *gcObject // reconsidered atomically (back-barriered tables)
	weak      *gcObject // tables with weak values only
	ephemeron *gcObject // tables with weak keys
	allWeak   *gcObject // tables weak in both
	toBeFnz   *gcObject // userdata awaiting resurrection before its __gc call

	// pendingFinalize holds resurrected userdata whose __gc has not yet
	// run. callOneFinalizer appends to it as it drains toBeFnz; api.go's
	// RunPendingFinalizers is the only thing that pops from it, since
	// actually invoking __gc needs a live Thread to drive the call.
	pendingFinalize []*Userdata

	totalBytes int64
	gcDebt     int64
	gcEstimate int64
	pauseMul   int
	stepMul    int
}

func newGC(g *GlobalState, pauseMul, stepMul int) *GC {
	return &GC{g: g, currentWhite: colorWhite0, phase: gcPause, running: true, pauseMul: pauseMul, stepMul: stepMul}
}

func (gc *GC) otherWhite() gcColor {
	if gc.currentWhite == colorWhite0 {
		return colorWhite1
	}
	return colorWhite0
}

// track links a freshly allocated object onto allGC, painted the current
// white (lgc.c's luaC_newobj).
func (gc *GC) track(o collectable) {
	h := o.header()
	h.color = gc.currentWhite
	h.next = gc.allGC
	gc.allGC = h
	gc.totalBytes += gcObjectUnit
	gc.gcDebt += gcObjectUnit
}

// fix marks o as permanently alive, skipping every future mark/sweep pass
// (lgc.h's luaC_fix; used for reserved-word strings, the registry, etc.).
func (gc *GC) fix(o collectable) {
	o.header().fixed = true
	o.header().color = colorBlack
}

// --- GlobalState constructors that also register with the collector ---

func (g *GlobalState) NewTable() *Table {
	t := NewTable()
	g.GC.track(t)
	return t
}

func (g *GlobalState) NewUserdata(data interface{}) *Userdata {
	u := NewUserdata(data)
	g.GC.track(u)
	return u
}

func (g *GlobalState) NewFuncProto() *FuncProto {
	p := NewFuncProto()
	g.GC.track(p)
	return p
}

func (g *GlobalState) NewHostClosure(fn HostFunction, upvalues []Value) (*Closure, error) {
	c, err := NewHostClosure(fn, upvalues)
	if err != nil {
		return nil, err
	}
	g.GC.track(c)
	return c, nil
}

func (g *GlobalState) NewScriptClosure(proto *FuncProto) *Closure {
	c := NewScriptClosure(proto)
	g.GC.track(c)
	return c
}

func (g *GlobalState) NewCoroutine() *Thread {
	th := NewThread(g)
	g.GC.track(th)
	return th
}

// --- write barriers ---

// markObject promotes a white object directly to gray (or straight to
// black for leaf kinds with nothing to traverse), queuing it for
// propagation (spec §4.2 "write barriers").
func (gc *GC) markObject(h *gcObject) {
	if h == nil || h.fixed || !h.isWhite(gc.currentWhite) {
		return
	}
	switch h.kind {
	case TypeString:
		// Strings are leaves: mark black immediately, never queued.
		h.color = colorBlack
	default:
		h.color = colorGray
		h.next2gray(gc)
	}
}

// next2gray is a tiny indirection so markObject can push h onto gc.gray
// without every kind needing its own field name for "the gray-list link";
// gcObject.grayNext serves as that link, leaving gcObject.next free for
// the allgc list.
func (h *gcObject) next2gray(gc *GC) {
	h.grayNext = gc.gray
	gc.gray = h
}

func (v Value) collectableHeader() *gcObject {
	if !v.IsCollectable() {
		return nil
	}
	return (*gcObject)(v.obj)
}

// markValue marks v's referent, if any (the common entry point used by
// every traverse method below).
func (gc *GC) markValue(v Value) {
	gc.markObject(v.collectableHeader())
}

// barrierForward implements the "forward" write barrier: when a black
// object p is made to point to a white object, and keeping the
// main invariant matters, we mark the white object immediately (markObject:
// gray and queued, or black for a string) rather than waiting to revisit
// p (spec §4.2; lgc.h's luaC_barrier_, used for
// objects not revisited automatically by ordinary propagation, e.g. a
// closure's upvalue or a userdata's metatable).
func (gc *GC) barrierForward(parent *gcObject, v Value) {
	if parent == nil || parent.color != colorBlack {
		return
	}
	if gc.phase > gcAtomic {
		return // invariant not enforced once sweeping
	}
	h := v.collectableHeader()
	if h != nil && h.isWhite(gc.currentWhite) {
		gc.markObject(h)
	}
}

// barrierTableWrite implements the "back" write barrier used for tables:
// rather than re-blackening every value written into a black table (which
// would defeat incremental marking's whole point for write-heavy tables),
// the table itself is turned back gray and queued on grayAgain to be
// rescanned in the atomic phase (spec §4.2; lgc.h's luaC_barrierback_).
func (gc *GC) barrierTableWrite(t *Table, v Value) {
	h := &t.gc
	if h.color != colorBlack || gc.phase > gcAtomic {
		return
	}
	if vh := v.collectableHeader(); vh == nil || !vh.isWhite(gc.currentWhite) {
		return
	}
	h.color = colorGray
	h.grayNext = gc.grayAgain
	gc.grayAgain = h
}

// --- per-kind traversal, invoked during propagation ---

func (gc *GC) propagateOne(h *gcObject) {
	h.color = colorBlack
	switch h.kind {
	case TypeTable:
		gc.traverseTable(tableFromHeader(h))
	case TypeFunction:
		gc.traverseClosure(closureFromHeader(h))
	case TypeUserdata:
		gc.traverseUserdata(userdataFromHeader(h))
	case TypeThread:
		gc.traverseThread(threadFromHeader(h))
	}
}

func (gc *GC) traverseTable(t *Table) {
	if t.Metatable != nil {
		gc.markObject(&t.Metatable.gc)
	}
	weakKeys, weakVals := gc.tableWeakness(t)
	for _, v := range t.array {
		if !weakVals {
			gc.markValue(v)
		}
	}
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.val.IsNil() || isDeadKeyValue(n.key) {
			continue
		}
		if !weakKeys {
			gc.markValue(n.key)
		}
		if !weakVals {
			gc.markValue(n.val)
		}
	}
	if weakKeys || weakVals {
		gc.queueWeakTable(t, weakKeys, weakVals)
	}
}

// tableWeakness reads the __mode metafield ("k", "v", or "kv") set on t's
// own metatable (spec §4.2 "weak/ephemeron tables").
func (gc *GC) tableWeakness(t *Table) (weakKeys, weakVals bool) {
	if t.Metatable == nil {
		return false, false
	}
	mode := t.Metatable.GetStr(gc.g.TMName[TMMode], gc.g.Seed)
	if !mode.IsString() {
		return false, false
	}
	for _, b := range asString(mode).Bytes() {
		switch b {
		case 'k':
			weakKeys = true
		case 'v':
			weakVals = true
		}
	}
	return weakKeys, weakVals
}

func (gc *GC) queueWeakTable(t *Table, weakKeys, weakVals bool) {
	h := &t.gc
	switch {
	case weakKeys && weakVals:
		h.grayNext = gc.allWeak
		gc.allWeak = h
	case weakKeys:
		h.grayNext = gc.ephemeron
		gc.ephemeron = h
	default:
		h.grayNext = gc.weak
		gc.weak = h
	}
}

func (gc *GC) traverseClosure(c *Closure) {
	if c.IsScript() {
		gc.markObject(&c.Proto.gc)
		for _, uv := range c.Upvalues {
			if uv != nil {
				gc.markObject(&uv.gc)
				if !uv.open {
					gc.markValue(uv.closedValue)
				}
			}
		}
	} else {
		for _, v := range c.HostUpvalues {
			gc.markValue(v)
		}
	}
}

func (gc *GC) traverseUserdata(u *Userdata) {
	if u.Metatable != nil {
		gc.markObject(&u.Metatable.gc)
	}
	if tv, ok := u.Data.(Value); ok {
		gc.markValue(tv)
	}
}

func (gc *GC) traverseThread(th *Thread) {
	for i := 0; i < th.Stack.Top; i++ {
		gc.markValue(th.Stack.slots[i])
	}
	for uv := th.OpenUpvalues; uv != nil; uv = uv.next {
		gc.markObject(&uv.gc)
	}
	for ci := th.BaseCI; ci != nil; ci = ci.Next {
		if ci.Closure != nil {
			gc.markObject(&ci.Closure.gc)
		}
	}
}

func ptrOf(h *gcObject) unsafe.Pointer { return unsafe.Pointer(h) }

func tableFromHeader(h *gcObject) *Table       { return containerOf(h).(*Table) }
func closureFromHeader(h *gcObject) *Closure   { return containerOf(h).(*Closure) }
func userdataFromHeader(h *gcObject) *Userdata { return containerOf(h).(*Userdata) }
func threadFromHeader(h *gcObject) *Thread     { return containerOf(h).(*Thread) }

// containerOf recovers the owning object from its embedded gcObject. Each
// collectable kind embeds gc as its first field, so the header's address
// is also the object's address; containerOf exists so the cast sites above
// read as intent rather than raw unsafe arithmetic sprinkled through
// traverse*.
func containerOf(h *gcObject) interface{} {
	switch h.kind {
	case TypeTable:
		return (*Table)(ptrOf(h))
	case TypeFunction:
		return (*Closure)(ptrOf(h))
	case TypeUserdata:
		return (*Userdata)(ptrOf(h))
	case TypeThread:
		return (*Thread)(ptrOf(h))
	case TypeString:
		return (*String)(ptrOf(h))
	default:
		return nil
	}
}

// --- cycle driving ---

// markRoots paints the permanent roots gray at the start of a cycle
// (spec §4.2 "pause"): the main thread and the registry (which itself
// holds the globals table and every other long-lived root). Both are
// fixed, which markObject skips, so they are queued here directly.
func (gc *GC) markRoots() {
	root := func(h *gcObject) {
		if h.color != colorGray {
			h.color = colorGray
			h.next2gray(gc)
		}
	}
	root(&gc.g.Registry.gc)
	if gc.g.MainThread != nil {
		root(&gc.g.MainThread.gc)
	}
	for _, mt := range gc.g.TypeMetatables {
		if mt != nil {
			gc.markObject(&mt.gc)
		}
	}
}

// Step performs one bounded unit of incremental work, advancing through
// at most one phase transition (spec §4.2 "debt-based pacing"; lgc.c's
// singlestep+luaC_step). It returns nothing. Steps run only when a caller
// invokes Step (Thread.GC's GCStep, FullGC); allocation adds to gcDebt but
// never runs a step by itself.
func (gc *GC) Step() {
	switch gc.phase {
	case gcPause:
		gc.markRoots()
		gc.phase = gcPropagate
	case gcPropagate:
		if gc.gray == nil {
			gc.phase = gcAtomic
			return
		}
		h := gc.gray
		gc.gray = h.grayNext
		gc.propagateOne(h)
	case gcAtomic:
		gc.atomic()
		gc.phase = gcSweepAllGC
		gc.sweepNext = &gc.allGC
	case gcSweepAllGC:
		gc.sweepStep(gcStepSize)
	case gcSweepToBeFnz:
		gc.callOneFinalizer()
	case gcCallFin:
		gc.phase = gcPause
		gc.gcDebt = -gc.gcEstimate * int64(gc.pauseMul) / 100
	}
}

// atomic finishes propagation without interruption (spec §4.2 "atomic"):
// rescans back-barriered tables, flips the current white so sweep can tell
// "marked this cycle" from "stale from before", and resolves weak tables
// against the now-final liveness set. Dead userdata with a finalizer are
// moved to toBeFnz later, by sweepStep.
func (gc *GC) atomic() {
	for gc.grayAgain != nil {
		h := gc.grayAgain
		gc.grayAgain = h.grayNext
		gc.propagateOne(h)
		for gc.gray != nil {
			g2 := gc.gray
			gc.gray = g2.grayNext
			gc.propagateOne(g2)
		}
	}
	// Everything still white at this point was never marked this cycle.
	// Flipping here — before sweep, not after (lgc.c's atomic) — is what
	// lets isDead recognize that: an object's color was stamped with
	// whichever white was "current" at track time, so the only way sweep
	// can tell stale-white from this-cycle-white is if "current" has
	// already moved on by the time sweep asks.
	gc.currentWhite = gc.otherWhite()
	gc.clearWeakTables(gc.weak, false, true)
	gc.clearWeakTables(gc.ephemeron, true, false)
	gc.clearWeakTables(gc.allWeak, true, true)
}

// clearWeakTables drops entries whose weakly-held side died during
// propagation (spec §4.2 "weak/ephemeron tables").
func (gc *GC) clearWeakTables(list *gcObject, keysWeak, valsWeak bool) {
	for h := list; h != nil; h = h.grayNext {
		t := tableFromHeader(h)
		for i := range t.array {
			if valsWeak && t.array[i].IsCollectable() {
				if ch := t.array[i].collectableHeader(); ch != nil && ch.isDead(gc.currentWhite) {
					t.array[i] = Nil
				}
			}
		}
		for i := range t.nodes {
			n := &t.nodes[i]
			if n.val.IsNil() {
				continue
			}
			dead := false
			if keysWeak && n.key.IsCollectable() {
				if ch := n.key.collectableHeader(); ch != nil && ch.isDead(gc.currentWhite) {
					dead = true
				}
			}
			if valsWeak && n.val.IsCollectable() {
				if ch := n.val.collectableHeader(); ch != nil && ch.isDead(gc.currentWhite) {
					dead = true
				}
			}
			if dead {
				t.killNode(i)
			}
		}
	}
}

// sweepStep walks up to n objects of the allGC list starting at the
// cursor, freeing dead ones and repainting live ones the current white
// (spec §4.2 "sweep"; lgc.c's sweeplist).
func (gc *GC) sweepStep(n int) {
	for ; n > 0 && *gc.sweepNext != nil; n-- {
		h := *gc.sweepNext
		if h.fixed {
			gc.sweepNext = &h.next
			continue
		}
		if h.isDead(gc.currentWhite) {
			if h.kind == TypeUserdata {
				u := userdataFromHeader(h)
				if u.Metatable != nil && !u.Metatable.GetStr(gc.g.TMName[TMGC], gc.g.Seed).IsNil() {
					*gc.sweepNext = h.next
					h.next = gc.toBeFnz
					gc.toBeFnz = h
					continue
				}
			}
			*gc.sweepNext = h.next
			if h.kind == TypeString {
				gc.g.Strings.remove(stringFromHeader(h))
			}
			gc.totalBytes -= gcObjectUnit
			if gc.gcEstimate > gcObjectUnit {
				gc.gcEstimate -= gcObjectUnit
			} else {
				gc.gcEstimate = 0
			}
			continue
		}
		h.color = gc.currentWhite
		gc.sweepNext = &h.next
	}
	if *gc.sweepNext == nil {
		gc.phase = gcSweepToBeFnz
	}
}

func stringFromHeader(h *gcObject) *String { return (*String)(ptrOf(h)) }

func (gc *GC) callOneFinalizer() {
	if gc.toBeFnz == nil {
		gc.phase = gcCallFin
		return
	}
	h := gc.toBeFnz
	gc.toBeFnz = h.next
	h.color = gc.currentWhite
	h.next = gc.allGC
	gc.allGC = h
	// The object is resurrected (live again, reachable through allGC)
	// before __gc runs, exactly as the original does: a finalizer that
	// re-stores itself somewhere must find a fully-alive object. Actually
	// invoking __gc needs a live Thread to drive the call, so the object
	// is just queued here; api.go's RunPendingFinalizers drains this queue.
	gc.pendingFinalize = append(gc.pendingFinalize, userdataFromHeader(h))
}

// popPendingFinalizer removes and returns the oldest resurrected userdata
// still awaiting its __gc call, or nil once the queue is empty.
func (gc *GC) popPendingFinalizer() *Userdata {
	if len(gc.pendingFinalize) == 0 {
		return nil
	}
	u := gc.pendingFinalize[0]
	gc.pendingFinalize = gc.pendingFinalize[1:]
	return u
}

// FullGC runs every remaining phase of the current cycle plus one more
// complete cycle, for an explicit host-requested collection (spec §4.2
// "emergency full collection"). emergency=true only skips the gcEstimate
// update; no allocation path in this package fails, so nothing here runs
// an emergency collection or retries an allocation.
func (gc *GC) FullGC(emergency bool) {
	// Finish whatever cycle is already in progress.
	for gc.phase != gcPause {
		gc.Step()
	}
	// Run one complete fresh cycle, pause to pause.
	gc.Step()
	for gc.phase != gcPause {
		gc.Step()
	}
	if !emergency {
		gc.gcEstimate = gc.totalBytes
	}
}
