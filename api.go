// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import (
	"math"
	"strconv"
	"strings"
)

// Lock/Unlock give an embedder driving the same GlobalState from more than
// one goroutine a place to serialize entry (spec §4.9's "implementation-
// defined guard ... enabling optional embedding-level locking"; the
// original has no equivalent since it is never itself concurrent). Unlike
// the reference implementation's lua_lock/lua_unlock, this is not threaded
// through every internal API call — a host function invoked via a
// metamethod or Call calls back into this same Thread's API on the same
// goroutine, so locking at that granularity would deadlock on reentry.
// Instead the embedder locks once around a whole call-in (e.g. a Resume
// or Call issued from a fresh goroutine) and unlocks once it returns.
func (g *GlobalState) Lock()   { g.apiMu.Lock() }
func (g *GlobalState) Unlock() { g.apiMu.Unlock() }

// index2addr resolves a host-interface stack index the way lapi.c's
// index2addr does for positive/negative indices, through
// th.Stack.AbsIndex. No pseudo-indices are recognized: there is no
// registry or upvalue index, and any such index gives ErrInvalidIndex
// (the registry is GlobalState.Registry; a host closure's captured values
// are read with Upvalue/SetUpvalue).
func (th *Thread) index2addr(idx int) (int, error) {
	return th.Stack.AbsIndex(th.CurrentCI.FuncIndex+1, idx)
}

// GetTop returns the index of the topmost stack value relative to the
// current frame's first argument slot (lapi.c's lua_gettop).
func (th *Thread) GetTop() int {
	return th.Stack.Top - (th.CurrentCI.FuncIndex + 1)
}

// SetTop sets the stack top to idx slots above the current frame's base,
// padding any newly-exposed slots with nil (lua_settop). A negative idx
// truncates from the current top.
func (th *Thread) SetTop(idx int) error {
	base := th.CurrentCI.FuncIndex + 1
	var newTop int
	if idx >= 0 {
		newTop = base + idx
	} else {
		newTop = th.Stack.Top + idx + 1
	}
	if newTop < base {
		return ErrInvalidIndex
	}
	if newTop > th.Stack.Top {
		if err := th.Stack.EnsureSpace(newTop - th.Stack.Top); err != nil {
			return err
		}
		for i := th.Stack.Top; i < newTop; i++ {
			th.Stack.Set(i, Nil)
		}
	} else {
		for i := newTop; i < th.Stack.Top; i++ {
			th.Stack.Set(i, Nil)
		}
	}
	th.Stack.Top = newTop
	return nil
}

// Pop discards the top n values (a thin wrapper over SetTop, as in lauxlib.h).
func (th *Thread) Pop(n int) { th.SetTop(-n - 1) }

// Rotate rotates the values from idx up to the top by n positions
// (positive: towards the top), as lua_rotate's "pancake flip" does to splice an
// extracted value elsewhere on the stack without an intermediate buffer.
func (th *Thread) Rotate(idx, n int) error {
	from, err := th.index2addr(idx)
	if err != nil {
		return err
	}
	to := th.Stack.Top - 1
	var m int
	if n >= 0 {
		m = to - n
	} else {
		m = from - n - 1
	}
	reverseSlots(th.Stack, from, m)
	reverseSlots(th.Stack, m+1, to)
	reverseSlots(th.Stack, from, to)
	return nil
}

func reverseSlots(s *Stack, from, to int) {
	for from < to {
		a, b := s.Get(from), s.Get(to)
		s.Set(from, b)
		s.Set(to, a)
		from++
		to--
	}
}

// Copy overwrites the value at toIdx with the value at fromIdx (lua_copy).
func (th *Thread) Copy(fromIdx, toIdx int) error {
	from, err := th.index2addr(fromIdx)
	if err != nil {
		return err
	}
	to, err := th.index2addr(toIdx)
	if err != nil {
		return err
	}
	th.Stack.Set(to, th.Stack.Get(from))
	return nil
}

// PushValue pushes a copy of the value at idx onto the top of the stack
// (lua_pushvalue).
func (th *Thread) PushValue(idx int) error {
	abs, err := th.index2addr(idx)
	if err != nil {
		return err
	}
	return th.Stack.Push(th.Stack.Get(abs))
}

// XMove moves the top n values from th to dst, both threads of the same
// global state (lua_xmove; spec §4.9 "move a run of values between two
// threads belonging to the same global state").
func XMove(th, dst *Thread, n int) error {
	if th.Global != dst.Global {
		return ErrInvalidIndex
	}
	if err := dst.Stack.EnsureSpace(n); err != nil {
		return err
	}
	start := th.Stack.Top - n
	for i := 0; i < n; i++ {
		dst.Stack.Push(th.Stack.Get(start + i))
	}
	th.Stack.Top = start
	return nil
}

// --- pushers ---

func (th *Thread) PushNil() error           { return th.Stack.Push(Nil) }
func (th *Thread) PushBool(b bool) error    { return th.Stack.Push(Bool(b)) }
func (th *Thread) PushInt(n int64) error    { return th.Stack.Push(Int(n)) }
func (th *Thread) PushFloat(f float64) error { return th.Stack.Push(Float(f)) }

func (th *Thread) PushString(s string) error {
	return th.Stack.Push(th.Global.NewString(s))
}

func (th *Thread) PushLightUserdata(p interface{}) error {
	u := th.Global.NewUserdata(p)
	return th.Stack.Push(UserdataValue(u))
}

// PushClosure pops the top n values as captured upvalues and pushes a host
// closure wrapping fn (spec §4.9 "invoking a create-closure-with-N-
// upvalues op that pops them"; lua_pushcclosure).
func (th *Thread) PushClosure(fn HostFunction, n int) error {
	ups := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		ups[i] = th.Stack.Pop()
	}
	c, err := th.Global.NewHostClosure(fn, ups)
	if err != nil {
		return err
	}
	return th.Stack.Push(ClosureValue(c))
}

func (th *Thread) PushLightFunction(fn HostFunction) error {
	return th.Stack.Push(LightHostFunction(fn))
}

// Upvalue returns the i'th (1-based) value captured by the host closure
// currently executing, mirroring how a scripted closure's Upvalues slice
// is indexed (closure.go). It fails for a light host function (which
// closes over nothing) or when i is out of range.
func (th *Thread) Upvalue(i int) (Value, error) {
	cl := th.CurrentCI.Closure
	if cl == nil || i < 1 || i > len(cl.HostUpvalues) {
		return Nil, ErrInvalidIndex
	}
	return cl.HostUpvalues[i-1], nil
}

// SetUpvalue overwrites the i'th (1-based) value captured by the host
// closure currently executing.
func (th *Thread) SetUpvalue(i int, v Value) error {
	cl := th.CurrentCI.Closure
	if cl == nil || i < 1 || i > len(cl.HostUpvalues) {
		return ErrInvalidIndex
	}
	cl.HostUpvalues[i-1] = v
	return nil
}

// NewTable pushes a freshly allocated, empty table (lua_createtable).
func (th *Thread) NewTable() error {
	return th.Stack.Push(fromObject(TypeTable, variantNone, th.Global.NewTable()))
}

// --- readers ---

func (th *Thread) valueAt(idx int) (Value, error) {
	abs, err := th.index2addr(idx)
	if err != nil {
		return Nil, err
	}
	return th.Stack.Get(abs), nil
}

func (th *Thread) Type(idx int) (Type, error) {
	v, err := th.valueAt(idx)
	if err != nil {
		return TypeNil, err
	}
	return v.Type(), nil
}

// ToNumber converts the value at idx to a float64, reporting ok=false
// without error for a value that is neither a number nor a numeric string
// (lua_tonumberx's "fail with flag" contract, spec §4.9 "Readers").
func (th *Thread) ToNumber(idx int) (f float64, ok bool) {
	v, err := th.valueAt(idx)
	if err != nil {
		return 0, false
	}
	if n, isNum := v.Number(); isNum {
		return n, true
	}
	if v.IsString() {
		if n, perr := strconv.ParseFloat(strings.TrimSpace(asString(v).String()), 64); perr == nil {
			return n, true
		}
	}
	return 0, false
}

func (th *Thread) ToInt(idx int) (n int64, ok bool) {
	f, ok := th.ToNumber(idx)
	if !ok || math.Trunc(f) != f {
		return 0, false
	}
	return int64(f), true
}

func (th *Thread) ToBool(idx int) bool {
	v, err := th.valueAt(idx)
	if err != nil {
		return false
	}
	return v.IsTruthy()
}

// ToString converts the value at idx to its string form, writing the
// converted Value back into the slot for numbers (lua_tolstring: "may
// produce a new string value and mutate the slot"). Any other value yields
// its type name (e.g. "table") instead of an error; no address is added and
// __tostring is not consulted.
func (th *Thread) ToString(idx int) (string, error) {
	abs, err := th.index2addr(idx)
	if err != nil {
		return "", err
	}
	v := th.Stack.Get(abs)
	switch {
	case v.IsString():
		return asString(v).String(), nil
	case v.IsInt():
		s := strconv.FormatInt(v.AsInt(), 10)
		sv := th.Global.NewString(s)
		th.Stack.Set(abs, sv)
		return s, nil
	case v.IsFloat():
		s := strconv.FormatFloat(v.AsFloat(), 'g', -1, 64)
		sv := th.Global.NewString(s)
		th.Stack.Set(abs, sv)
		return s, nil
	case v.IsNil():
		return "nil", nil
	case v.IsBoolean():
		return strconv.FormatBool(v.AsBool()), nil
	default:
		return v.Type().String(), nil
	}
}

// RawLen returns the raw (non-metamethod) length of the value at idx:
// a table's border, or a string's byte length (lua_rawlen).
func (th *Thread) RawLen(idx int) (int64, error) {
	v, err := th.valueAt(idx)
	if err != nil {
		return 0, err
	}
	switch {
	case v.IsTable():
		return int64((*Table)(v.obj).Len()), nil
	case v.IsString():
		return int64(asString(v).Len()), nil
	default:
		return 0, ErrInvalidIndex
	}
}

// --- table ops ---

// RawGetTable pushes t[key] without invoking __index (lua_rawget, applied
// to the table at idx with the key already on top of the stack, then
// replacing it with the result — same calling convention as the original).
func (th *Thread) RawGetTable(idx int) error {
	tv, err := th.valueAt(idx)
	if err != nil {
		return err
	}
	if !tv.IsTable() {
		return ErrInvalidIndex
	}
	key := th.Stack.Pop()
	val := (*Table)(tv.obj).Get(key, th.Global.Seed)
	return th.Stack.Push(val)
}

// RawSetTable performs t[key] = val for the key/val pair on top of the
// stack (in that order) without invoking __newindex (lua_rawset).
func (th *Thread) RawSetTable(idx int) error {
	tv, err := th.valueAt(idx)
	if err != nil {
		return err
	}
	if !tv.IsTable() {
		return ErrInvalidIndex
	}
	val := th.Stack.Pop()
	key := th.Stack.Pop()
	return (*Table)(tv.obj).SetRaw(th.Global, key, val)
}

// GetTable pushes t[key] (key popped from the top of stack), following
// __index through tables and non-table values alike (spec §4.5 "Metatable
// dispatch"; lua_gettable).
func (th *Thread) GetTable(idx int) error {
	tv, err := th.valueAt(idx)
	if err != nil {
		return err
	}
	key := th.Stack.Pop()
	v, err := th.indexGet(tv, key)
	if err != nil {
		return err
	}
	return th.Stack.Push(v)
}

// indexGet implements luaV_gettable's loop: raw table lookup, then
// __index chasing (a function is called, a table is followed) up to a
// fixed depth to guard against a metatable cycle (ldebug.c's MAXTAGLOOP).
func (th *Thread) indexGet(tv, key Value) (Value, error) {
	const maxTagLoop = 2000
	for i := 0; i < maxTagLoop; i++ {
		if tv.IsTable() {
			t := (*Table)(tv.obj)
			v := t.Get(key, th.Global.Seed)
			if !v.IsNil() {
				return v, nil
			}
			h := getMetamethod(th.Global, tv, TMIndex)
			if h.IsNil() {
				return Nil, nil
			}
			if h.IsFunction() {
				return th.call1(h, []Value{tv, key})
			}
			tv = h
			continue
		}
		h := getMetamethod(th.Global, tv, TMIndex)
		if h.IsNil() {
			return Nil, newRuntimeError(th.CurrentCI, ErrNotAFunction)
		}
		if h.IsFunction() {
			return th.call1(h, []Value{tv, key})
		}
		tv = h
	}
	return Nil, newRuntimeError(th.CurrentCI, ErrRunaway)
}

// SetTable performs t[key] = val (key, val popped from the stack, in that
// order), following __newindex (lua_settable).
func (th *Thread) SetTable(idx int) error {
	tv, err := th.valueAt(idx)
	if err != nil {
		return err
	}
	val := th.Stack.Pop()
	key := th.Stack.Pop()
	return th.indexSet(tv, key, val)
}

func (th *Thread) indexSet(tv, key, val Value) error {
	const maxTagLoop = 2000
	for i := 0; i < maxTagLoop; i++ {
		if tv.IsTable() {
			t := (*Table)(tv.obj)
			if !t.Get(key, th.Global.Seed).IsNil() {
				return t.SetRaw(th.Global, key, val)
			}
			h := getMetamethod(th.Global, tv, TMNewIndex)
			if h.IsNil() {
				return t.SetRaw(th.Global, key, val)
			}
			if h.IsFunction() {
				_, err := th.call1(h, []Value{tv, key, val})
				return err
			}
			tv = h
			continue
		}
		h := getMetamethod(th.Global, tv, TMNewIndex)
		if h.IsNil() {
			return newRuntimeError(th.CurrentCI, ErrNotAFunction)
		}
		if h.IsFunction() {
			_, err := th.call1(h, []Value{tv, key, val})
			return err
		}
		tv = h
	}
	return newRuntimeError(th.CurrentCI, ErrRunaway)
}

// GetField/SetField are GetTable/SetTable specialized for a string key
// (lua_getfield/lua_setfield).
func (th *Thread) GetField(idx int, name string) error {
	if err := th.PushString(name); err != nil {
		return err
	}
	return th.GetTable(idx)
}

func (th *Thread) SetField(idx int, name string) error {
	v := th.popValue()
	if err := th.PushString(name); err != nil {
		return err
	}
	if err := th.PushValueRaw(v); err != nil {
		return err
	}
	return th.SetTable(idx)
}

// PushValueRaw pushes an already-constructed Value without re-resolving
// any index, the building block GetField/SetField use to reorder a value
// already popped off the stack.
func (th *Thread) PushValueRaw(v Value) error {
	return th.Stack.Push(v)
}

func (th *Thread) popValue() Value {
	return th.Stack.Pop()
}

// GetMetatable pushes obj's governing metatable, reporting false and
// pushing nothing if it has none (lua_getmetatable).
func (th *Thread) GetMetatable(idx int) (bool, error) {
	v, err := th.valueAt(idx)
	if err != nil {
		return false, err
	}
	mt := metatableOf(th.Global, v)
	if mt == nil {
		return false, nil
	}
	return true, th.Stack.Push(fromObject(TypeTable, variantNone, mt))
}

// SetMetatable pops the top of stack (a table, or nil to clear) and
// installs it as obj's own metatable (lua_setmetatable; only tables and
// userdata carry their own metatable, spec §4.5).
func (th *Thread) SetMetatable(idx int) error {
	abs, err := th.index2addr(idx)
	if err != nil {
		return err
	}
	obj := th.Stack.Get(abs)
	mtv := th.Stack.Pop()
	var mt *Table
	if !mtv.IsNil() {
		if !mtv.IsTable() {
			return ErrInvalidIndex
		}
		mt = (*Table)(mtv.obj)
	}
	switch {
	case obj.IsTable():
		(*Table)(obj.obj).Metatable = mt
	case obj.IsUserdata():
		(*Userdata)(obj.obj).Metatable = mt
	default:
		th.Global.TypeMetatables[obj.Type()] = mt
	}
	return nil
}

// --- arithmetic, comparison, concat, length ---

// ArithOp identifies one of lua_arith's operators.
type ArithOp int

const (
	OpAdd ArithOp = iota
	OpSub
	OpMul
	OpMod
	OpPow
	OpDiv
	OpIDiv
	OpBAnd
	OpBOr
	OpBXor
	OpShl
	OpShr
	OpUnm
	OpBNot
)

var arithMetamethod = [...]Metamethod{
	OpAdd: TMAdd, OpSub: TMSub, OpMul: TMMul, OpMod: TMMod, OpPow: TMPow,
	OpDiv: TMDiv, OpIDiv: TMIDiv, OpBAnd: TMBAnd, OpBOr: TMBOr, OpBXor: TMBXor,
	OpShl: TMShl, OpShr: TMShr, OpUnm: TMUnm, OpBNot: TMBNot,
}

// Arith pops one (unary) or two (binary) operands and pushes the result,
// trying a numeric fast path first and falling back to the operator's
// metamethod (lua_arith; spec §4.9 "Arithmetic ... operators (metamethod-
// aware)").
func (th *Thread) Arith(op ArithOp) error {
	unary := op == OpUnm || op == OpBNot
	var a, b Value
	if unary {
		a = th.Stack.Pop()
		b = a
	} else {
		b = th.Stack.Pop()
		a = th.Stack.Pop()
	}
	if v, ok := numericArith(op, a, b); ok {
		return th.Stack.Push(v)
	}
	h := getBinMetamethod(th.Global, a, b, arithMetamethod[op])
	if h.IsNil() {
		return newRuntimeError(th.CurrentCI, ErrNotAFunction)
	}
	res, err := th.call1(h, []Value{a, b})
	if err != nil {
		return err
	}
	return th.Stack.Push(res)
}

func numericArith(op ArithOp, a, b Value) (Value, bool) {
	af, aok := a.Number()
	bf, bok := b.Number()
	if !aok || (!bok && op != OpUnm) {
		return Nil, false
	}
	switch op {
	case OpAdd:
		return Float(af + bf), true
	case OpSub:
		return Float(af - bf), true
	case OpMul:
		return Float(af * bf), true
	case OpDiv:
		return Float(af / bf), true
	case OpMod:
		return Float(af - math.Floor(af/bf)*bf), true
	case OpPow:
		return Float(math.Pow(af, bf)), true
	case OpIDiv:
		return Float(math.Floor(af / bf)), true
	case OpUnm:
		return Float(-af), true
	case OpBAnd, OpBOr, OpBXor, OpShl, OpShr, OpBNot:
		if math.Trunc(af) != af || (op != OpBNot && math.Trunc(bf) != bf) {
			return Nil, false
		}
		ai, bi := int64(af), int64(bf)
		switch op {
		case OpBAnd:
			return Int(ai & bi), true
		case OpBOr:
			return Int(ai | bi), true
		case OpBXor:
			return Int(ai ^ bi), true
		case OpShl:
			return Int(ai << uint(bi)), true
		case OpShr:
			return Int(ai >> uint(bi)), true
		case OpBNot:
			return Int(^ai), true
		}
	}
	return Nil, false
}

// CompareOp identifies one of lua_compare's operators.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpLt
	OpLe
)

// Compare reports whether the values at idx1, idx2 satisfy op, trying raw
// comparison first for OpEq and falling back to __eq/__lt/__le (lua_compare).
func (th *Thread) Compare(idx1, idx2 int, op CompareOp) (bool, error) {
	a, err := th.valueAt(idx1)
	if err != nil {
		return false, err
	}
	b, err := th.valueAt(idx2)
	if err != nil {
		return false, err
	}
	switch op {
	case OpEq:
		if RawEqual(a, b) {
			return true, nil
		}
		if a.Type() != b.Type() || (a.Type() != TypeTable && a.Type() != TypeUserdata) {
			return false, nil
		}
		h := getBinMetamethod(th.Global, a, b, TMEq)
		if h.IsNil() {
			return false, nil
		}
		res, err := th.call1(h, []Value{a, b})
		if err != nil {
			return false, err
		}
		return res.IsTruthy(), nil
	case OpLt, OpLe:
		if af, aok := a.Number(); aok {
			if bf, bok := b.Number(); bok {
				if op == OpLt {
					return af < bf, nil
				}
				return af <= bf, nil
			}
		}
		if a.IsString() && b.IsString() {
			cmp := strings.Compare(asString(a).String(), asString(b).String())
			if op == OpLt {
				return cmp < 0, nil
			}
			return cmp <= 0, nil
		}
		event := TMLt
		if op == OpLe {
			event = TMLe
		}
		h := getBinMetamethod(th.Global, a, b, event)
		if h.IsNil() {
			return false, newRuntimeError(th.CurrentCI, ErrNotAFunction)
		}
		res, err := th.call1(h, []Value{a, b})
		if err != nil {
			return false, err
		}
		return res.IsTruthy(), nil
	}
	return false, ErrInvalidIndex
}

// Concat pops the top n values and pushes their concatenation, falling
// back to __concat (right-to-left, matching lua_concat/luaV_concat's
// pairwise fold) the moment a pair isn't both string-or-number.
func (th *Thread) Concat(n int) error {
	if n == 0 {
		return th.Stack.Push(th.Global.NewString(""))
	}
	vals := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		vals[i] = th.Stack.Pop()
	}
	acc := vals[len(vals)-1]
	for i := len(vals) - 2; i >= 0; i-- {
		left := vals[i]
		if concatable(left) && concatable(acc) {
			acc = th.Global.NewString(concatString(left) + concatString(acc))
			continue
		}
		h := getBinMetamethod(th.Global, left, acc, TMConcat)
		if h.IsNil() {
			return newRuntimeError(th.CurrentCI, ErrNotAFunction)
		}
		res, err := th.call1(h, []Value{left, acc})
		if err != nil {
			return err
		}
		acc = res
	}
	return th.Stack.Push(acc)
}

func concatable(v Value) bool { return v.IsString() || v.IsNumber() }

func concatString(v Value) string {
	if v.IsString() {
		return asString(v).String()
	}
	if v.IsInt() {
		return strconv.FormatInt(v.AsInt(), 10)
	}
	return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64)
}

// Len pushes the length of the value at idx, invoking __len when present
// (lua_len; spec §4.9 "length operators (metamethod-aware)").
func (th *Thread) Len(idx int) error {
	v, err := th.valueAt(idx)
	if err != nil {
		return err
	}
	if h := getMetamethod(th.Global, v, TMLen); !h.IsNil() {
		res, err := th.call1(h, []Value{v})
		if err != nil {
			return err
		}
		return th.Stack.Push(res)
	}
	switch {
	case v.IsTable():
		return th.Stack.Push(Int(int64((*Table)(v.obj).Len())))
	case v.IsString():
		return th.Stack.Push(Int(int64(asString(v).Len())))
	default:
		return newRuntimeError(th.CurrentCI, ErrNotAFunction)
	}
}

// --- calling ---

// call1 is the host-side convenience used by metamethod dispatch: push fn
// and args, Call with exactly one expected result, and return it.
func (th *Thread) call1(fn Value, args []Value) (Value, error) {
	base := th.Stack.Top
	if err := th.Stack.Push(fn); err != nil {
		return Nil, err
	}
	for _, a := range args {
		if err := th.Stack.Push(a); err != nil {
			return Nil, err
		}
	}
	if err := th.callAt(base, len(args), 1); err != nil {
		return Nil, err
	}
	return th.Stack.Pop(), nil
}

// Call invokes the callable at stack slot (Top-nargs-1) with the nargs
// values above it, replacing all of it with nresults results (-1 meaning
// "as many as the callee returns"); errors propagate to the caller's own
// protected call rather than being caught here (lua_callk's non-protected
// form; spec §7 "errors propagate through Go's own panic/recover").
func (th *Thread) Call(nargs, nresults int) error {
	return th.callAt(th.Stack.Top-nargs-1, nargs, nresults)
}

func (th *Thread) callAt(funcIndex, nargs, nresults int) error {
	fn := th.Stack.Get(funcIndex)
	if !fn.IsFunction() {
		h := getMetamethod(th.Global, fn, TMCall)
		if h.IsNil() {
			return ErrNotAFunction
		}
		// __call receives fn itself as an implicit first argument.
		th.Stack.Set(funcIndex, h)
		argsAbove := make([]Value, nargs)
		for i := 0; i < nargs; i++ {
			argsAbove[i] = th.Stack.Get(funcIndex + 1 + i)
		}
		th.Stack.Top = funcIndex + 1
		th.Stack.Push(fn)
		for _, a := range argsAbove {
			th.Stack.Push(a)
		}
		nargs++
		fn = h
	}

	if fn.variant == variantLightHostFunc {
		return th.callHostFn(nil, asLightHostFunction(fn), funcIndex, nargs, nresults)
	}
	cl := asClosure(fn)
	if cl.IsScript() {
		// The bytecode interpreter loop that actually steps a scripted
		// closure's instructions is out of this runtime's scope (spec
		// §1); what's in scope is everything around it, so a scripted
		// call can be framed (CallInfo pushed, Base/Top set) but not
		// driven to completion here.
		return ErrNotAFunction
	}
	return th.callHostFn(cl, cl.Host, funcIndex, nargs, nresults)
}

// callHostFn frames and invokes fn, whose captured upvalues (if any) live
// on cl.HostUpvalues; cl is nil for a light host function, which closes
// over nothing, so CurrentCI.Closure is left nil in that case too and
// Upvalue calls made from within fn will report ErrInvalidIndex.
func (th *Thread) callHostFn(cl *Closure, fn HostFunction, funcIndex, nargs, nresults int) error {
	prev := th.CurrentCI
	ci := extendCallInfo(prev)
	ci.FuncIndex = funcIndex
	ci.Base = funcIndex + 1
	ci.NResults = nresults
	ci.Status = 0
	ci.Closure = cl
	th.CurrentCI = ci
	th.NNY++
	th.traceCall()
	th.traceCount()

	resultCount, err := fn(th)

	th.NNY--
	th.traceReturn()
	th.CurrentCI = prev

	if err != nil {
		return err
	}

	resultsBase := th.Stack.Top - resultCount
	want := resultCount
	if nresults >= 0 {
		want = nresults
	}
	for i := 0; i < want; i++ {
		var v Value
		if i < resultCount {
			v = th.Stack.Get(resultsBase + i)
		}
		th.Stack.Set(funcIndex+i, v)
	}
	th.Stack.Top = funcIndex + want
	return nil
}

// PCall runs Call under protectedCall, converting a panic-based throwError
// (or a returned error) into a Status instead of propagating it further
// (lua_pcallk; spec §7 "Error handling design").
func (th *Thread) PCall(nargs, nresults int) (Status, error) {
	wasYPCall := th.CurrentCI.Status & cistYPCall
	th.CurrentCI.Status |= cistYPCall
	defer func() { th.CurrentCI.Status = th.CurrentCI.Status&^cistYPCall | wasYPCall }()

	return protectedCall(func() error {
		return th.Call(nargs, nresults)
	})
}

// Error raises the value on top of the stack as a runtime error, unwinding
// to the nearest protected call (lua_error).
func (th *Thread) Error() error {
	v := th.Stack.Pop()
	var cause error
	if v.IsString() {
		cause = &simpleError{asString(v).String()}
	} else {
		cause = &simpleError{"(non-string error object)"}
	}
	throwError(ErrRun, newRuntimeError(th.CurrentCI, cause))
	return nil // unreachable: throwError never returns
}

type simpleError struct{ msg string }

func (e *simpleError) Error() string { return e.msg }

// Next implements stateless table traversal for the host, mirroring
// lua_next: pops a key, pushes the next key/value pair, returns false
// when traversal is exhausted.
func (th *Thread) Next(idx int) (bool, error) {
	tv, err := th.valueAt(idx)
	if err != nil {
		return false, err
	}
	if !tv.IsTable() {
		return false, ErrInvalidIndex
	}
	key := th.Stack.Pop()
	nk, nv, ok, err := (*Table)(tv.obj).Next(key, th.Global.Seed)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := th.Stack.Push(nk); err != nil {
		return false, err
	}
	return true, th.Stack.Push(nv)
}

// --- load / dump / gc control ---

// Load compiles chunk body into a pushed closure (lua_load; the compiler
// front end producing the FuncProto from source text is out of scope —
// Load only accepts an already-dumped precompiled chunk, see chunk.go).
func (th *Thread) Load(body, signature []byte, opts *LoadOptions) error {
	proto, err := Load(th.Global, body, signature, opts)
	if err != nil {
		return err
	}
	cl := th.Global.NewScriptClosure(proto)
	return th.Stack.Push(ClosureValue(cl))
}

// Dump serializes the prototype of the script closure at idx (lua_dump).
func (th *Thread) Dump(idx int, opts *DumpOptions) (body, signature []byte, err error) {
	v, err := th.valueAt(idx)
	if err != nil {
		return nil, nil, err
	}
	if !v.IsFunction() {
		return nil, nil, ErrInvalidIndex
	}
	cl := asClosure(v)
	if cl == nil || !cl.IsScript() {
		return nil, nil, ErrInvalidIndex
	}
	return Dump(cl.Proto, opts)
}

// GCOp identifies one of lua_gc's control operations.
type GCOp int

const (
	GCStep GCOp = iota
	GCCollect
	GCStop
	GCRestart
	GCCount // returns total bytes tracked, per gc.go's totalBytes accounting
)

// GC drives the collector (lua_gc). data is the step-size hint for GCStep,
// ignored otherwise; the returned value is meaningful only for GCCount.
func (th *Thread) GC(op GCOp, data int) int64 {
	gc := th.Global.GC
	switch op {
	case GCStep:
		gc.Step()
		return 0
	case GCCollect:
		gc.FullGC(false)
		return 0
	case GCStop:
		gc.running = false
		return 0
	case GCRestart:
		gc.running = true
		return 0
	case GCCount:
		return gc.totalBytes
	}
	return 0
}

// --- string building ---

// Buffer is a growable byte accumulator for building a single string
// result out of many pieces without an intermediate allocation per piece
// (lauxlib.h's luaL_Buffer: "addsize doubles capacity, addvalue appends a
// stack value's string form, result turns the buffer into one pushed
// string").
type Buffer struct {
	th  *Thread
	buf []byte
}

// NewBuffer starts a buffer whose eventual result will be pushed on th.
func (th *Thread) NewBuffer() *Buffer {
	return &Buffer{th: th, buf: make([]byte, 0, 64)}
}

// AddString appends s to the buffer.
func (b *Buffer) AddString(s string) { b.buf = append(b.buf, s...) }

// AddByte appends a single byte to the buffer.
func (b *Buffer) AddByte(c byte) { b.buf = append(b.buf, c) }

// AddValue converts the value at idx (via ToString, so number formatting
// applies; __tostring does not) and appends it, consuming nothing from
// the stack itself.
func (b *Buffer) AddValue(idx int) error {
	s, err := b.th.ToString(idx)
	if err != nil {
		return err
	}
	b.AddString(s)
	return nil
}

// Push pushes the accumulated content as one string value, the buffer's
// terminal operation (luaL_pushresult).
func (b *Buffer) Push() error {
	return b.th.Stack.Push(b.th.Global.NewString(string(b.buf)))
}

// RunPendingFinalizers calls __gc on every userdata the collector has
// resurrected since the last call (spec §4.2's last collection phase,
// gcCallFin; DESIGN.md Open Question (c): a failing finalizer is logged
// and reported back as ErrGCMM, but does not stop the remaining queue
// from draining). Call this periodically from the host's own event loop,
// the same way the original interpreter runs finalizers between bytecode
// instructions rather than synchronously inside the sweep.
func (th *Thread) RunPendingFinalizers() (Status, error) {
	var firstErr error
	for {
		u := th.Global.GC.popPendingFinalizer()
		if u == nil {
			break
		}
		if u.Metatable == nil {
			continue
		}
		h := u.Metatable.GetStr(th.Global.TMName[TMGC], th.Global.Seed)
		if h.IsNil() || !h.IsFunction() {
			continue
		}
		_, err := th.call1(h, []Value{UserdataValue(u)})
		if err != nil {
			th.Global.Logger.Errorf("nyx: finalizer error: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return ErrGCMM, firstErr
	}
	return OK, nil
}
