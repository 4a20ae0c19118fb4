// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stephens2424/writerset"
)

// Options configures a GlobalState at construction time (spec §4.8
// "Global state", enriched with the ambient config surface the teacher's
// file.go Options struct models for a single parse run).
type Options struct {
	// Logger receives the engine's diagnostics; currently the only message
	// logged is a finalizer (__gc) error from RunPendingFinalizers. Defaults
	// to a filtered stdout logger when nil.
	Logger log.Logger

	// GCPauseMul and GCStepMul tune the incremental collector's pacing
	// (spec §4.8's debt-based pacing; lstate.h's gcpause/gcstepmul,
	// defaults 200 matching LUAI_GCPAUSE/LUAI_GCMUL).
	GCPauseMul int
	GCStepMul  int

	// Seed fixes the per-instance hash seed instead of drawing one from
	// crypto/rand, for reproducible test runs.
	Seed *uint32

	// Panic is stored in GlobalState.Panic (spec §7 "Error handling design";
	// lstate.h's panic field). Nothing in this package calls it: an error
	// that escapes every protected call is returned to the host as a Go
	// error.
	Panic func(th *Thread, err error)

	// Trace, when non-empty, is attached to every thread's debug-hook
	// broadcaster at construction time (debug.go's AttachTracer), so call/
	// return/line/count events are visible without installing a Hook.
	Trace []io.Writer
}

func (o *Options) withDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	cp := *o
	if cp.GCPauseMul == 0 {
		cp.GCPauseMul = 200
	}
	if cp.GCStepMul == 0 {
		cp.GCStepMul = 200
	}
	return &cp
}

// GlobalState is the shared state of one engine instance (spec §5
// "Global state ... shared across all threads of one instance; multiple
// instances fully isolated"). It owns the string pool, the registry, the
// per-type default metatables, the collector, and ambient services
// (logging, randomized seed); everything else hangs off one of its
// threads.
type GlobalState struct {
	Strings  *stringTable
	Registry *Table
	Seed     uint32

	TMName          [metamethodCount]*String
	TypeMetatables  [9]*Table

	MainThread *Thread
	twupsHead  *Thread

	GC *GC

	Logger *log.Helper
	Panic  func(th *Thread, err error)

	// Tracers fans out every thread's formatted debug-hook lines to every
	// attached io.Writer (debug.go's AttachTracer/DetachTracer; spec §1.3's
	// Trace io.Writer-broadcaster list).
	Tracers *writerset.WriterSet

	memErrMsg *String

	// apiMu backs Lock/Unlock (api.go): an embedder driving this state
	// from more than one goroutine serializes entry with it. Unused by
	// the engine itself, which assumes single-goroutine access within
	// one call-in.
	apiMu sync.Mutex
}

// registry keys mirroring lstate.h's LUA_RIDX_MAINTHREAD/LUA_RIDX_GLOBALS.
const (
	registryMainThread int64 = 1
	registryGlobals    int64 = 2
)

func randomSeed() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0x9e3779b9 // fallback: a fixed odd constant, never zero
	}
	return binary.LittleEndian.Uint32(b[:])
}

// NewGlobalState constructs a fully-initialized, isolated engine instance:
// string pool, registry (with the main thread and an empty globals table
// installed), interned metamethod names, and a fresh collector, matching
// lstate.c's lua_newstate/f_luaopen/luaT_init sequence (spec §4.8).
func NewGlobalState(opts *Options) *GlobalState {
	opts = opts.withDefaults()

	seed := randomSeed()
	if opts.Seed != nil {
		seed = *opts.Seed
	}

	g := &GlobalState{
		Strings: newStringTable(seed),
		Seed:    seed,
		Panic:   opts.Panic,
		Logger:  loggerFor(opts.Logger),
		Tracers: writerset.New(),
	}
	for _, w := range opts.Trace {
		g.AttachTracer(w)
	}

	g.GC = newGC(g, opts.GCPauseMul, opts.GCStepMul)
	g.Strings.gc = g.GC

	errStr := g.Strings.intern([]byte(ErrOutOfMemory.Error()))
	errStr.gc.fixed = true
	g.memErrMsg = errStr

	g.TMName = initMetamethodNames(g)

	g.Registry = g.NewTable()
	g.Registry.gc.fixed = true

	g.MainThread = NewThread(g)
	g.MainThread.gc.fixed = true

	globals := NewTable()
	_ = g.Registry.SetInt(nil, registryMainThread, fromObject(TypeThread, variantNone, g.MainThread))
	_ = g.Registry.SetInt(nil, registryGlobals, fromObject(TypeTable, variantNone, globals))

	return g
}

// Globals returns the engine's global-variables table (registry slot
// LUA_RIDX_GLOBALS).
func (g *GlobalState) Globals() *Table {
	v := g.Registry.GetInt(registryGlobals)
	return (*Table)(v.obj)
}
