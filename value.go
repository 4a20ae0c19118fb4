// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import (
	"math"
	"unsafe"
)

// Type is the base type of a Value (spec §3 "Value": a 4-bit base type).
type Type int

const (
	TypeNil Type = iota
	TypeBoolean
	TypeLightUserdata
	TypeNumber
	TypeString
	TypeTable
	TypeFunction
	TypeUserdata
	TypeThread
)

func (t Type) String() string {
	switch t {
	case TypeNil:
		return "nil"
	case TypeBoolean:
		return "boolean"
	case TypeLightUserdata:
		return "userdata"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeTable:
		return "table"
	case TypeFunction:
		return "function"
	case TypeUserdata:
		return "userdata"
	case TypeThread:
		return "thread"
	default:
		return "no value"
	}
}

// variant distinguishes sub-kinds within a base type (spec §3: "a 2-bit
// variant"). Only TypeNumber and TypeFunction currently use more than one
// variant; TypeString's short/long distinction is tracked on the String
// object itself rather than in the Value tag, since it never changes the
// dispatch of table/equality operations at the Value level.
type variant uint8

const (
	variantNone variant = iota

	// number variants
	variantInt
	variantFloat

	// function variants
	variantScriptClosure
	variantHostClosure
	variantLightHostFunc
)

// gcObject is the shared prefix of every heap object, embedded by value
// (spec §3 "Collectable object"). color encodes one of the five states:
// white0, white1, gray, black, finalized.
type gcColor uint8

const (
	colorWhite0 gcColor = iota
	colorWhite1
	colorGray
	colorBlack
	colorFinalized
)

type gcObject struct {
	next  *gcObject // thread onto the allgc/toBeFnz list
	// grayNext threads this object onto whichever gray-family list
	// (gray, grayAgain, weak, ephemeron, allWeak) currently holds it; see
	// gc.go. Disjoint in time from next's use, exactly as in the original
	// where both are the same embedded GCObject* link reused phase by
	// phase — kept as two fields here since Go has no anonymous union.
	grayNext *gcObject
	kind     Type // concrete object kind (TypeString, TypeTable, ...)
	color    gcColor
	// fixed marks objects that must never be collected (reserved strings,
	// the registry's own backing table, etc).
	fixed bool
}

func (o *gcObject) isWhite(currentWhite gcColor) bool {
	return o.color == colorWhite0 || o.color == colorWhite1
}

func (o *gcObject) isDead(currentWhite gcColor) bool {
	return o.isWhite(currentWhite) && o.color != currentWhite
}

// collectable is implemented by every heap-allocated object kind: String,
// Table, Closure, FuncProto, Userdata, Thread, Upvalue.
type collectable interface {
	header() *gcObject
}

// Value is the tagged union carrying either an immediate scalar or a
// reference to a collectable object (spec §3 "Value", §4.1). typ+variant is
// the tag; the payload is either the immediate bits (n) or a pointer (obj),
// held via unsafe.Pointer so that Value itself stays a flat,
// comparable-by-field struct. The tag and the two payload fields are kept
// separately, so a Value takes four machine words on a 64-bit platform,
// not two.
type Value struct {
	typ     Type
	variant variant
	n       uint64         // immediate payload: bool/int/float bits
	obj     unsafe.Pointer // collectable payload, light-userdata pointer, or light host function box
}

// Nil is the canonical nil value.
var Nil = Value{typ: TypeNil}

// True and False are the canonical boolean values.
var (
	True  = Value{typ: TypeBoolean, n: 1}
	False = Value{typ: TypeBoolean, n: 0}
)

// Bool returns True or False.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Int returns an integer-variant number value.
func Int(i int64) Value {
	return Value{typ: TypeNumber, variant: variantInt, n: uint64(i)}
}

// Float returns a float-variant number value.
func Float(f float64) Value {
	return Value{typ: TypeNumber, variant: variantFloat, n: math.Float64bits(f)}
}

// LightUserdata wraps a host pointer that the GC never scans or collects.
func LightUserdata(p unsafe.Pointer) Value {
	return Value{typ: TypeLightUserdata, obj: p}
}

// fromObject builds a Value around a collectable object of the given kind.
func fromObject(t Type, v variant, o collectable) Value {
	return Value{typ: t, variant: v, obj: unsafe.Pointer(o.header())}
}

// IsNil reports whether v is the nil value.
func (v Value) IsNil() bool { return v.typ == TypeNil }

// IsFalsy reports whether v is falsy. Only nil and false are falsy; every
// other value — including integer zero — is truthy (spec §3).
func (v Value) IsFalsy() bool {
	return v.typ == TypeNil || (v.typ == TypeBoolean && v.n == 0)
}

// IsTruthy is the negation of IsFalsy.
func (v Value) IsTruthy() bool { return !v.IsFalsy() }

// Type returns the value's base type.
func (v Value) Type() Type { return v.typ }

// IsNumber, IsInt, IsFloat, IsString, IsTable, IsFunction, IsThread,
// IsUserdata report precise type membership.
func (v Value) IsNumber() bool   { return v.typ == TypeNumber }
func (v Value) IsInt() bool      { return v.typ == TypeNumber && v.variant == variantInt }
func (v Value) IsFloat() bool    { return v.typ == TypeNumber && v.variant == variantFloat }
func (v Value) IsString() bool   { return v.typ == TypeString }
func (v Value) IsTable() bool    { return v.typ == TypeTable }
func (v Value) IsFunction() bool { return v.typ == TypeFunction }
func (v Value) IsThread() bool   { return v.typ == TypeThread }
func (v Value) IsUserdata() bool { return v.typ == TypeUserdata }
func (v Value) IsBoolean() bool  { return v.typ == TypeBoolean }

// IsCollectable reports whether the value holds a heap-managed reference.
func (v Value) IsCollectable() bool {
	switch v.typ {
	case TypeString, TypeTable, TypeUserdata, TypeThread:
		return true
	case TypeFunction:
		return v.variant != variantLightHostFunc
	default:
		return false
	}
}

// AsBool extracts the boolean payload; caller must have checked IsBoolean.
func (v Value) AsBool() bool { return v.n != 0 }

// AsInt extracts the integer payload; caller must have checked IsInt.
func (v Value) AsInt() int64 { return int64(v.n) }

// AsFloat extracts the float payload; caller must have checked IsFloat.
func (v Value) AsFloat() float64 { return math.Float64frombits(v.n) }

// Number returns the value as a float64 regardless of variant, plus whether
// v was actually a number.
func (v Value) Number() (float64, bool) {
	switch {
	case v.IsInt():
		return float64(v.AsInt()), true
	case v.IsFloat():
		return v.AsFloat(), true
	default:
		return 0, false
	}
}

// AsLightUserdata extracts the raw pointer payload for a light-userdata
// value.
func (v Value) AsLightUserdata() unsafe.Pointer { return v.obj }

// objHeader returns the embedded gcObject for a collectable value, or nil.
func (v Value) objHeader() *gcObject {
	if !v.IsCollectable() {
		return nil
	}
	return (*gcObject)(v.obj)
}

// pointerIdentity returns the value's pointer payload, used by table.go's
// mainPosition to hash keys by object identity.
func (v Value) pointerIdentity() unsafe.Pointer { return v.obj }

// RawEqual implements value equality without invoking any metamethod
// (spec §3 "Table": "floats equal iff bit-identical after normalizing
// integer-valued floats into integer keys"; applied generally here too, so
// that `1 == 1.0` at the raw level, matching spec.md Open Question (a)).
func RawEqual(a, b Value) bool {
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TypeNil:
		return true
	case TypeBoolean:
		return a.n == b.n
	case TypeNumber:
		if a.variant == b.variant {
			return a.n == b.n
		}
		af, _ := a.Number()
		bf, _ := b.Number()
		return af == bf
	case TypeLightUserdata:
		return a.obj == b.obj
	case TypeString:
		return stringsEqual(asString(a), asString(b))
	default:
		return a.obj == b.obj
	}
}

// asString returns the *String backing a TypeString value. Panics if v is
// not a string; callers are expected to have checked IsString.
func asString(v Value) *String {
	return (*String)(v.obj)
}
