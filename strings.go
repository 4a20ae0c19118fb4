// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

// ShortStringLimit is the maximum byte length for a string to be interned
// (spec §3 "String": "length <= a configurable threshold, typically 40").
const ShortStringLimit = 40

// hashSizeLimit is the log2 of roughly how many bytes luaHash samples for
// long inputs (the stride is (len >> hashSizeLimit) + 1, so about 32),
// matching original_source/src/lstring.c's LUAI_HASHLIMIT (a
// string's hash is a function of its length and a geometrically-strided
// sample of its bytes, not every byte, so hashing a megabyte-long string
// stays cheap).
const hashSizeLimit = 5

// String is an immutable byte sequence (spec §3 "String"). Short strings
// are interned: two short strings with equal content are the same object.
// Long strings are not interned and compare by length then bytes.
type String struct {
	gc     gcObject
	data   []byte
	hash   uint32
	long   bool // true once classified as a long string
	hashed bool // for long strings: whether hash has been computed yet
	hnext  *String
	// reservedWord is >=0 for short strings that name a reserved keyword of
	// the (out-of-scope) lexer, placed on the fixed list and never collected.
	reservedWord int
}

func (s *String) header() *gcObject { return &s.gc }

// Bytes returns the string's raw contents. Callers must not mutate it.
func (s *String) Bytes() []byte { return s.data }

// Len returns the string's byte length.
func (s *String) Len() int { return len(s.data) }

func (s *String) String() string { return string(s.data) }

// stringsEqual implements spec §3's equality rule: short strings compare by
// identity (pointer equality, since they're interned); long strings compare
// length then bytes.
func stringsEqual(a, b *String) bool {
	if a == b {
		return true
	}
	if a.long != b.long {
		// A short and a long string can never be equal: interning would
		// have unified them had their content and length class matched.
		return false
	}
	if !a.long {
		return false // distinct short-string objects are never equal
	}
	if len(a.data) != len(b.data) {
		return false
	}
	for i := range a.data {
		if a.data[i] != b.data[i] {
			return false
		}
	}
	return true
}

// luaHash reproduces original_source/src/lstring.c's luaS_hash: it mixes in
// length and seed, then folds in a geometrically-strided sample of bytes so
// hashing remains O(1)-ish even for very long strings.
func luaHash(data []byte, seed uint32) uint32 {
	h := seed ^ uint32(len(data))
	step := (len(data) >> hashSizeLimit) + 1
	for l1 := len(data); l1 >= step; l1 -= step {
		b := data[l1-1]
		h ^= (h << 5) + (h >> 2) + uint32(b)
	}
	return h
}

// stringTable is the interning pool for short strings (spec §4.2). Long
// strings never pass through it.
type stringTable struct {
	buckets []*String
	nuse    int
	seed    uint32

	// gc tracks every string intern allocates onto the collector's allGC
	// list, set once by NewGlobalState right after the collector itself is
	// constructed (a stringTable built before its GlobalState's GC exists
	// has gc == nil, and intern simply skips tracking until it is wired).
	gc *GC
}

func newStringTable(seed uint32) *stringTable {
	return &stringTable{buckets: make([]*String, 0), seed: seed}
}

const initialStringTableSize = 32

// intern returns the canonical *String for data, allocating a new one on
// first sight (spec §4.2 "Intern"). Strings longer than ShortStringLimit
// bypass interning entirely and are always freshly allocated (long-string
// path, §4.2's "never interned, hash computed lazily").
func (st *stringTable) intern(data []byte) *String {
	if len(data) > ShortStringLimit {
		s := &String{
			data: append([]byte(nil), data...),
			long: true,
		}
		s.gc.kind = TypeString
		if st.gc != nil {
			st.gc.track(s)
		}
		return s
	}

	if len(st.buckets) == 0 {
		st.buckets = make([]*String, initialStringTableSize)
	}

	h := luaHash(data, st.seed)
	idx := h % uint32(len(st.buckets))
	for s := st.buckets[idx]; s != nil; s = s.hnext {
		if len(s.data) == len(data) && bytesEqual(s.data, data) {
			if st.gc != nil && s.gc.isDead(st.gc.currentWhite) {
				// Resurrected: re-referenced after going white but before
				// sweep collected it (spec §3 lifecycles, §8 round-trip).
				s.gc.color = st.gc.currentWhite
			}
			return s
		}
	}

	if st.nuse >= len(st.buckets) && len(st.buckets) <= (1<<30) {
		st.resize(len(st.buckets) * 2)
		idx = h % uint32(len(st.buckets))
	}

	s := &String{data: append([]byte(nil), data...), hash: h, hashed: true}
	s.gc.kind = TypeString
	if st.gc != nil {
		st.gc.track(s)
	}
	s.hnext = st.buckets[idx]
	st.buckets[idx] = s
	st.nuse++
	return s
}

// internReserved interns word as a short string, records its reserved-word
// index, and fixes it so the GC never reclaims it (spec §4.2 "Reserved
// language keywords").
func (st *stringTable) internReserved(word string, idx int) *String {
	s := st.intern([]byte(word))
	s.reservedWord = idx
	s.gc.fixed = true
	return s
}

// resize doubles or halves the bucket array and rehashes every live entry
// in place (spec §4.2 "Resize"), matching lstring.c's luaS_resize.
func (st *stringTable) resize(newSize int) {
	if newSize < 1 {
		newSize = 1
	}
	newBuckets := make([]*String, newSize)
	for _, head := range st.buckets {
		for s := head; s != nil; {
			next := s.hnext
			idx := s.hash % uint32(newSize)
			s.hnext = newBuckets[idx]
			newBuckets[idx] = s
			s = next
		}
	}
	st.buckets = newBuckets
}

// remove unlinks a dead short string during sweep (spec §4.2 "Remove").
func (st *stringTable) remove(target *String) {
	idx := target.hash % uint32(len(st.buckets))
	pp := &st.buckets[idx]
	for *pp != nil {
		if *pp == target {
			*pp = target.hnext
			st.nuse--
			return
		}
		pp = &(*pp).hnext
	}
}

// maybeShrink halves capacity once usage drops well below it, mirroring the
// resize-on-shrink half of spec §4.2 ("capacity shrinks well below
// capacity, halve").
func (st *stringTable) maybeShrink() {
	if len(st.buckets) > initialStringTableSize && st.nuse < len(st.buckets)/4 {
		st.resize(len(st.buckets) / 2)
	}
}

// ensureHash computes a long string's hash lazily, the first time it is
// used as a table key (spec §4.2 "Long-string path").
func ensureHash(s *String, seed uint32) uint32 {
	if !s.long {
		return s.hash
	}
	if !s.hashed {
		s.hash = luaHash(s.data, seed)
		s.hashed = true
	}
	return s.hash
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// NewString interns (or freshly allocates, for long strings) a Value
// wrapping s, through the global state's string table. Part of the host
// interface surface but kept here beside the type it constructs.
func (g *GlobalState) NewString(s string) Value {
	str := g.Strings.intern([]byte(s))
	return fromObject(TypeString, variantNone, str)
}

// NewStringBytes is NewString for a raw byte slice (may contain zeros,
// spec §3 "Immutable byte sequence with explicit length (zeros permitted in
// body)").
func (g *GlobalState) NewStringBytes(b []byte) Value {
	str := g.Strings.intern(b)
	return fromObject(TypeString, variantNone, str)
}
