// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

// Userdata wraps a host-owned block of data inside a scripted value,
// given identity and (optionally) a metatable of its own (spec §3 "full
// userdata"; ported from original_source/src/lobject.h's Udata — the
// embedded user value is kept as a Go `any` rather than a raw byte block,
// since nothing in the host interface needs to peer inside it bit for
// bit).
type Userdata struct {
	gc        gcObject
	Metatable *Table
	Data      interface{}
}

func (u *Userdata) header() *gcObject { return &u.gc }

// NewUserdata wraps data as a full userdata value.
func NewUserdata(data interface{}) *Userdata {
	u := &Userdata{Data: data}
	u.gc.kind = TypeUserdata
	return u
}

// UserdataValue wraps u as a Value.
func UserdataValue(u *Userdata) Value {
	return fromObject(TypeUserdata, variantNone, u)
}

func asUserdata(v Value) *Userdata { return (*Userdata)(v.obj) }
