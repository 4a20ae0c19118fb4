// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

// Metamethod identifies one of the metatable event slots (spec §4.5
// "Metatable dispatch"). Order matches original_source/src/ltm.c's ORDER
// TM exactly, since the first six are the ones cacheable in a table's
// flags byte (table.go's noMeta* bits index this same ordering).
type Metamethod int

const (
	TMIndex Metamethod = iota
	TMNewIndex
	TMGC
	TMMode
	TMLen
	TMEq // only these six are cacheable; see maxCacheableMeta below

	TMAdd
	TMSub
	TMMul
	TMMod
	TMPow
	TMDiv
	TMIDiv
	TMBAnd
	TMBOr
	TMBXor
	TMShl
	TMShr
	TMUnm
	TMBNot
	TMLt
	TMLe
	TMConcat
	TMCall

	metamethodCount
)

// maxCacheableMeta is the last event index eligible for a table's
// per-table "lacks this metamethod" flag cache (ltm.c: "lua_assert(event
// <= TM_EQ)").
const maxCacheableMeta = TMEq

var metamethodNames = [metamethodCount]string{
	TMIndex: "__index", TMNewIndex: "__newindex",
	TMGC: "__gc", TMMode: "__mode", TMLen: "__len", TMEq: "__eq",
	TMAdd: "__add", TMSub: "__sub", TMMul: "__mul", TMMod: "__mod", TMPow: "__pow",
	TMDiv: "__div", TMIDiv: "__idiv",
	TMBAnd: "__band", TMBOr: "__bor", TMBXor: "__bxor", TMShl: "__shl", TMShr: "__shr",
	TMUnm: "__unm", TMBNot: "__bnot", TMLt: "__lt", TMLe: "__le",
	TMConcat: "__concat", TMCall: "__call",
}

func (m Metamethod) String() string { return metamethodNames[m] }

// cacheBit returns the noMeta* bit for m, valid only for m <= maxCacheableMeta.
func (m Metamethod) cacheBit() uint8 { return 1 << uint(m) }

// initMetamethodNames interns every event name once into fixed strings,
// mirroring ltm.c's luaT_init ("never collect these names").
func initMetamethodNames(g *GlobalState) [metamethodCount]*String {
	var names [metamethodCount]*String
	for i, n := range metamethodNames {
		s := g.Strings.intern([]byte(n))
		s.gc.fixed = true
		names[i] = s
	}
	return names
}

// metatableOf returns the metatable governing v: a table or userdata's own
// metatable, or the per-type default from the global state (spec §4.5
// "Per-type default metatables" vs "Per-object own metatable").
func metatableOf(g *GlobalState, v Value) *Table {
	switch v.Type() {
	case TypeTable:
		return (*Table)(v.obj).Metatable
	case TypeUserdata:
		return (*Userdata)(v.obj).Metatable
	default:
		return g.TypeMetatables[v.Type()]
	}
}

// getMetamethod looks up event in v's governing metatable, consulting and
// maintaining the table-level flag cache when v is itself a table and
// event is cacheable (spec §4.5 "Flag-byte cache").
func getMetamethod(g *GlobalState, v Value, event Metamethod) Value {
	var mt *Table
	if v.Type() == TypeTable {
		t := (*Table)(v.obj)
		if event <= maxCacheableMeta && t.hasNoMetamethod(event.cacheBit()) {
			return Nil
		}
		mt = t.Metatable
		if mt == nil {
			if event <= maxCacheableMeta {
				t.setNoMetamethod(event.cacheBit())
			}
			return Nil
		}
		tm := mt.GetStr(g.TMName[event], g.Seed)
		if tm.IsNil() && event <= maxCacheableMeta {
			t.setNoMetamethod(event.cacheBit())
		}
		return tm
	}
	mt = metatableOf(g, v)
	if mt == nil {
		return Nil
	}
	return mt.GetStr(g.TMName[event], g.Seed)
}

// getBinMetamethod tries the first operand's metatable, then the second's
// (spec §4.5 "Binary-op dispatch: first operand, then second operand"),
// matching ltm.c's luaT_callbinTM lookup half.
func getBinMetamethod(g *GlobalState, a, b Value, event Metamethod) Value {
	if tm := getMetamethod(g, a, event); !tm.IsNil() {
		return tm
	}
	return getMetamethod(g, b, event)
}
