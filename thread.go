// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

// ThreadStatus is a coroutine's scheduling state (spec §4.7 "Thread/
// coroutine", §5; ported from the LUA_OK/LUA_YIELD-based status lcorolib.c
// reports through lua_status, generalized into one enum per costatus's own
// "running"/"suspended"/"normal"/"dead" vocabulary).
type ThreadStatus int

const (
	// ThreadSuspended is not-yet-started or yielded: resumable.
	ThreadSuspended ThreadStatus = iota
	// ThreadRunning is the thread currently executing.
	ThreadRunning
	// ThreadNormal resumed another thread and is itself suspended pending
	// that thread's completion or yield.
	ThreadNormal
	// ThreadDead has returned, errored, or never been started and been
	// discarded.
	ThreadDead
)

func (s ThreadStatus) String() string {
	switch s {
	case ThreadSuspended:
		return "suspended"
	case ThreadRunning:
		return "running"
	case ThreadNormal:
		return "normal"
	case ThreadDead:
		return "dead"
	default:
		return "unknown"
	}
}

// ThreadBody is the entry point a coroutine runs the first time it is
// resumed. The bytecode interpreter loop that would drive a *scripted*
// body is out of scope here; ThreadBody models the host-function half of
// spec §4.7, which Resume/Yield must support regardless of what drives the
// frames above it.
type ThreadBody func(th *Thread, args []Value) ([]Value, error)

type coroEventKind int

const (
	coroYield coroEventKind = iota
	coroReturn
	coroError
)

type coroEvent struct {
	kind   coroEventKind
	values []Value
	err    error
}

// Thread is one coroutine: its own stack and call-info chain, sharing
// everything else (string pool, registry, GC state) with its GlobalState
// (spec §5 "Concurrency & resource model"). Cooperative scheduling is
// implemented with a goroutine plus a pair of unbuffered channels acting
// as a rendezvous — the idiomatic Go stand-in for the original's
// setjmp/longjmp-based stack-switch, and one that preserves the
// single-runnable-thread-at-a-time invariant the spec requires.
type Thread struct {
	gc gcObject

	Global *GlobalState
	Status ThreadStatus

	Stack        *Stack
	BaseCI       *CallInfo
	CurrentCI    *CallInfo
	OpenUpvalues *Upvalue

	Resumer *Thread
	NNY     int // count of non-yieldable calls above the current point
	NCCalls int

	// twupsNext links this thread onto GlobalState.twupsHead when it has
	// open upvalues, so a dying thread's upvalues can be found and closed
	// (lfunc.h's isintwups / lstate.h's twups).
	twupsNext *Thread
	inTwups   bool

	body      ThreadBody
	started   bool
	resumeCh  chan []Value
	eventCh   chan coroEvent

	// Debug-hook state (debug.go), ported from lstate.h's hook/hookmask/
	// basehookcount/hookcount/oldpc fields.
	hookFn        Hook
	hookMask      HookMask
	baseHookCount int
	hookCount     int
	oldLine       int
}

func (th *Thread) header() *gcObject { return &th.gc }

// NewThread allocates a fresh coroutine sharing g's global state. Slot 0
// of the stack is reserved for the base call info's own "function" value
// (mirroring lstate.c's stack_init, where L->ci->func always points at a
// real slot, even for the bottommost frame), so every later index relative
// to BaseCI starts counting at 1.
func NewThread(g *GlobalState) *Thread {
	th := &Thread{Global: g, Status: ThreadSuspended, Stack: NewStack(), NNY: 1}
	th.gc.kind = TypeThread
	th.BaseCI = newBaseCallInfo()
	th.CurrentCI = th.BaseCI
	th.Stack.Push(Nil)
	return th
}

// Start attaches the function a coroutine will run on its first Resume.
// Must be called before the first Resume; calling it twice, or on an
// already-started thread, is a programming error the host must avoid.
func (th *Thread) Start(body ThreadBody) {
	th.body = body
}

func (th *Thread) addToTwups() {
	if th.inTwups || th.OpenUpvalues == nil {
		return
	}
	th.twupsNext = th.Global.twupsHead
	th.Global.twupsHead = th
	th.inTwups = true
}

// Resume runs th until it yields, returns, or errors (spec §4.7 "Resume/
// yield/status state machine"). from is the resuming thread, or nil for
// the host calling directly; it is parked at ThreadNormal for the
// duration.
func Resume(th, from *Thread, args []Value) ([]Value, Status, error) {
	if th.Status == ThreadDead {
		return nil, ErrRun, ErrCannotResume
	}
	if th.Status != ThreadSuspended {
		return nil, ErrRun, ErrCannotResume
	}

	th.Resumer = from
	th.Status = ThreadRunning
	th.NNY = 0 // resuming always (re)allows yields, ported from ldo.c's lua_resume
	if from != nil {
		from.Status = ThreadNormal
	}

	if !th.started {
		th.started = true
		th.resumeCh = make(chan []Value)
		th.eventCh = make(chan coroEvent)
		body := th.body
		go func() {
			firstArgs := <-th.resumeCh
			results, err := body(th, firstArgs)
			if err != nil {
				th.eventCh <- coroEvent{kind: coroError, err: err}
				return
			}
			th.eventCh <- coroEvent{kind: coroReturn, values: results}
		}()
	}

	th.resumeCh <- args
	ev := <-th.eventCh

	if from != nil {
		from.Status = ThreadRunning
	}

	switch ev.kind {
	case coroYield:
		th.Status = ThreadSuspended
		return ev.values, Yield, nil
	case coroReturn:
		th.Status = ThreadDead
		return ev.values, OK, nil
	default: // coroError
		th.Status = ThreadDead
		return nil, ErrRun, ev.err
	}
}

// Yield suspends th, handing values back to whoever called Resume, and
// blocks until the next Resume supplies fresh arguments (spec §4.7
// "yield-crossing only through continuation-registered host frames").
// Must be called from within th's own running goroutine (i.e. from code
// reached through ThreadBody). On a thread that has never been resumed it
// returns ErrCannotYield, since NNY is still 1.
func (th *Thread) Yield(values []Value) ([]Value, error) {
	if th.NNY > 0 {
		return nil, ErrCannotYield
	}
	th.eventCh <- coroEvent{kind: coroYield, values: values}
	return <-th.resumeCh, nil
}
