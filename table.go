// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import (
	"math"
	"math/bits"
)

// Cacheable "lacks this metamethod" bits for Table.flags (spec §3 Table
// invariants: "a per-table flag byte caches 'this table lacks metamethod X'
// bits"). Only the handful of commonly-probed events are worth caching;
// see meta.go.
const (
	noMetaIndex uint8 = 1 << iota
	noMetaNewIndex
	noMetaGC
	noMetaMode
	noMetaLen
	noMetaEq
)

// maxArraySize bounds how large an integer key may be and still be a
// candidate for the array part (original_source/src/ltable.c's MAXASIZE).
const maxArraySize = 1 << 26

// typeDeadKey is an internal-only Value tag (never returned from the
// public Value.Type() surface in practice, since only table.go ever builds
// or inspects one) marking a hash-node key whose referent object has been
// collected while the node itself must remain linked for chain-walk
// correctness (spec.md Open Question (d)).
const typeDeadKey Type = 100

func deadKeyValue(original Value) Value {
	return Value{typ: typeDeadKey, obj: original.obj}
}

func isDeadKeyValue(v Value) bool { return v.typ == typeDeadKey }

// tableNode is one slot of the hash part: a key/value pair plus the index
// of the next node in its collision chain (-1 terminates). Storing an
// absolute index instead of the original's relative pointer offset avoids
// pointer arithmetic while preserving exactly the same chain-walk and
// Brent's-variation relocation semantics.
type tableNode struct {
	key  Value
	val  Value
	next int
}

// Table is the universal associative container (spec §3 "Table", §4.3):
// a dense array part for keys 1..N plus a closed-addressed hash part using
// Brent's variation for collision resolution.
type Table struct {
	gc        gcObject
	array     []Value
	nodes     []tableNode
	lastFree  int // search cursor for getFreePos, scans downward
	Metatable *Table
	flags     uint8
}

func (t *Table) header() *gcObject { return &t.gc }

// NewTable allocates an empty table.
func NewTable() *Table {
	t := &Table{lastFree: 0}
	t.gc.kind = TypeTable
	return t
}

// normalizeKey folds any float key whose value is exactly an integer into
// an integer-variant key, so that t[1] and t[1.0] name the same slot
// (spec.md Open Question (a)).
func normalizeKey(key Value) Value {
	if key.IsFloat() {
		f := key.AsFloat()
		if f == math.Trunc(f) && f >= -9.2233720368547758e18 && f < 9.2233720368547758e18 {
			return Int(int64(f))
		}
	}
	return key
}

// arrayIndex reports whether key is an integer in the range that makes it
// eligible for the array part, and if so its 1-based index.
func arrayIndex(key Value) (int, bool) {
	if key.IsInt() {
		k := key.AsInt()
		if k > 0 && k <= maxArraySize {
			return int(k), true
		}
	}
	return 0, false
}

func ceilLog2(x int) int {
	if x <= 1 {
		return 0
	}
	return bits.Len(uint(x - 1))
}

// hashPow2 reduces a hash value modulo the (power-of-two) node count using
// a mask, matching original_source/src/ltable.c's hashpow2 macro — used for
// integers and strings, whose hashes are already well distributed.
func (t *Table) hashPow2(n uint32) int {
	if len(t.nodes) == 0 {
		return 0
	}
	return int(n) & (len(t.nodes) - 1)
}

// hashMod reduces modulo an odd divisor derived from the node count,
// matching ltable.c's hashmod macro — used for floats and pointer-identity
// keys, which tend to have many low-order zero bits that would otherwise
// collide badly under a pure power-of-two mask.
func (t *Table) hashMod(n uint32) int {
	size := len(t.nodes)
	if size <= 1 {
		return 0
	}
	m := size - 1
	if m%2 == 0 {
		m++
	}
	return int(n) % m
}

// hashFloat ports ltable.c's hashfloat: an frexp-based distribution so that
// floats with the same fractional structure don't collapse onto one slot.
func (t *Table) hashFloat(n float64) int {
	frac, exp := math.Frexp(n)
	i := int64(frac * float64(math.MaxInt32-1074))
	i += int64(exp)
	if i < 0 {
		i = -i
	}
	return t.hashMod(uint32(uint64(i)))
}

// mainPosition returns the main (hash-of-key) slot for key (spec §3
// "Main position", §4.3).
func (t *Table) mainPosition(key Value, seed uint32) int {
	switch {
	case key.IsInt():
		return t.hashPow2(uint32(key.AsInt()))
	case key.IsFloat():
		return t.hashFloat(key.AsFloat())
	case key.IsString():
		return t.hashPow2(ensureHash(asString(key), seed))
	case key.IsBoolean():
		if key.AsBool() {
			return t.hashPow2(1)
		}
		return t.hashPow2(0)
	case key.Type() == TypeLightUserdata:
		return t.hashMod(uint32(uintptr(key.AsLightUserdata())))
	default:
		return t.hashMod(uint32(uintptr(key.pointerIdentity())))
	}
}

func rawEqualKeyNode(nodeKey, searchKey Value) bool {
	if isDeadKeyValue(nodeKey) {
		return searchKey.IsCollectable() && nodeKey.obj == searchKey.obj
	}
	return RawEqual(nodeKey, searchKey)
}

// getNodeIndex looks up key in the hash part, returning its node index.
func (t *Table) getNodeIndex(key Value, seed uint32) (int, bool) {
	if len(t.nodes) == 0 {
		return 0, false
	}
	idx := t.mainPosition(key, seed)
	for {
		if rawEqualKeyNode(t.nodes[idx].key, key) {
			return idx, true
		}
		nx := t.nodes[idx].next
		if nx == -1 {
			return 0, false
		}
		idx = nx
	}
}

// Get performs a raw (non-metamethod) lookup (spec §4.3 "Key lookup").
func (t *Table) Get(key Value, seed uint32) Value {
	key = normalizeKey(key)
	if ai, ok := arrayIndex(key); ok && ai <= len(t.array) {
		return t.array[ai-1]
	}
	idx, found := t.getNodeIndex(key, seed)
	if !found {
		return Nil
	}
	return t.nodes[idx].val
}

// GetInt is Get specialized for integer keys (the hot path, per
// ltable.c's luaH_getint).
func (t *Table) GetInt(key int64) Value {
	if key >= 1 && int(key) <= len(t.array) {
		return t.array[key-1]
	}
	return t.Get(Int(key), 0)
}

// GetStr is Get specialized for short-string keys.
func (t *Table) GetStr(s *String, seed uint32) Value {
	return t.Get(fromObject(TypeString, variantNone, s), seed)
}

func (t *Table) getFreePos() (int, bool) {
	for t.lastFree > 0 {
		t.lastFree--
		if t.nodes[t.lastFree].key.IsNil() {
			return t.lastFree, true
		}
	}
	return 0, false
}

func (t *Table) setNodeVector(size int, seed uint32) {
	if size == 0 {
		t.nodes = nil
		t.lastFree = 0
		return
	}
	lsize := ceilLog2(size)
	actual := 1 << uint(lsize)
	t.nodes = make([]tableNode, actual)
	for i := range t.nodes {
		t.nodes[i].next = -1
	}
	t.lastFree = actual
}

// newKeySlot inserts key (with a Nil value) using Brent's variation
// (spec §4.3 "Key insertion") and returns its node index, or -1 when it
// had to rehash first: nothing is inserted then, and the caller restarts
// the whole insertion, since the key may now belong in the array part.
// Callers must have already confirmed key is absent and not nil/NaN.
func (t *Table) newKeySlot(key Value, seed uint32) int {
	if len(t.nodes) == 0 {
		t.rehash(key, seed)
		return -1
	}
	mp := t.mainPosition(key, seed)
	if !t.nodes[mp].key.IsNil() {
		f, ok := t.getFreePos()
		if !ok {
			t.rehash(key, seed)
			return -1
		}
		other := t.mainPosition(t.nodes[mp].key, seed)
		if other != mp {
			// Colliding occupant isn't in its own main position: relocate
			// it to the free slot and reclaim mp for the new key.
			p := other
			for t.nodes[p].next != mp {
				p = t.nodes[p].next
			}
			t.nodes[p].next = f
			t.nodes[f] = t.nodes[mp]
			t.nodes[mp] = tableNode{next: -1}
			t.nodes[mp].key = key
			return mp
		}
		// Occupant legitimately owns mp; the new key goes to the free slot
		// and is spliced into mp's chain.
		t.nodes[f].next = t.nodes[mp].next
		t.nodes[mp].next = f
		t.nodes[f].key = key
		t.nodes[f].val = Nil
		return f
	}
	t.nodes[mp].key = key
	t.nodes[mp].next = -1
	return mp
}

// setInternal performs the get-or-create write without validation, GC
// barriers, or metamethod-cache invalidation — used both by SetRaw and by
// resize's reinsertion pass.
func (t *Table) setInternal(key, val Value, seed uint32) {
	if ai, ok := arrayIndex(key); ok && ai <= len(t.array) {
		t.array[ai-1] = val
		return
	}
	if idx, found := t.getNodeIndex(key, seed); found {
		t.nodes[idx].val = val
		return
	}
	if val.IsNil() {
		return
	}
	slot := t.newKeySlot(key, seed)
	if slot < 0 {
		t.setInternal(key, val, seed)
		return
	}
	t.nodes[slot].val = val
}

// SetRaw performs a raw (non-metamethod) assignment (spec §4.3, §8
// "Universal properties"). g may be nil for tables not yet attached to a
// global state (e.g. during bootstrap); when non-nil, a write barrier runs
// so a black table holding a fresh white reference is re-scanned.
func (t *Table) SetRaw(g *GlobalState, key, val Value) error {
	key = normalizeKey(key)
	if key.IsNil() {
		return ErrTableKeyIsNil
	}
	if key.IsFloat() && math.IsNaN(key.AsFloat()) {
		return ErrTableKeyIsNaN
	}
	var seed uint32
	if g != nil {
		seed = g.Seed
	}
	t.setInternal(key, val, seed)
	t.flags = 0
	if g != nil {
		g.GC.barrierTableWrite(t, val)
	}
	return nil
}

// SetInt is SetRaw specialized for integer keys.
func (t *Table) SetInt(g *GlobalState, key int64, val Value) error {
	return t.SetRaw(g, Int(key), val)
}

// numUseArray counts non-nil array-part entries into the per-power-of-two
// histogram nums (ltable.c's numusearray).
func (t *Table) numUseArray(nums []int) int {
	ause := 0
	i := 1
	ttlg := 1
	for lg := 0; lg < len(nums); lg++ {
		lim := ttlg
		if lim > len(t.array) {
			lim = len(t.array)
			if i > lim {
				break
			}
		}
		lc := 0
		for ; i <= lim; i++ {
			if !t.array[i-1].IsNil() {
				lc++
			}
		}
		nums[lg] += lc
		ause += lc
		ttlg *= 2
	}
	return ause
}

// numUseHash counts hash-part entries eligible for the array part into
// nums, and returns the total live entry count (ltable.c's numusehash).
func (t *Table) numUseHash(nums []int, pnasize *int) int {
	totalUse := 0
	ause := 0
	for i := range t.nodes {
		if t.nodes[i].val.IsNil() || isDeadKeyValue(t.nodes[i].key) {
			continue
		}
		totalUse++
		if ai, ok := arrayIndex(t.nodes[i].key); ok {
			nums[ceilLog2(ai)]++
			ause++
		}
	}
	*pnasize += ause
	return totalUse
}

// computeSizes picks the largest array size such that at least half its
// slots would be filled (spec §4.3 "Rehash"; ltable.c's computesizes).
func computeSizes(nums []int, narray *int) int {
	a, na, n := 0, 0, 0
	twotoi := 1
	for i := 0; twotoi/2 < *narray; i++ {
		if nums[i] > 0 {
			a += nums[i]
			if a > twotoi/2 {
				n = twotoi
				na = a
			}
		}
		if a == *narray {
			break
		}
		twotoi *= 2
		if i+1 >= len(nums) {
			break
		}
	}
	*narray = n
	return na
}

// rehash grows the table to accommodate extraKey in addition to every
// currently-live element, choosing new array/hash sizes per computeSizes
// (spec §4.3 "Rehash": "triggered whenever insertion finds no free slot").
func (t *Table) rehash(extraKey Value, seed uint32) {
	var nums [64]int
	nasize := t.numUseArray(nums[:])
	totalUse := nasize
	totalUse += t.numUseHash(nums[:], &nasize)
	if ai, ok := arrayIndex(extraKey); ok {
		nums[ceilLog2(ai)]++
		nasize++
	}
	totalUse++

	na := computeSizes(nums[:], &nasize)
	t.resize(nasize, totalUse-na, seed)
}

// resize reallocates both parts to the given sizes and reinserts every
// live element (spec §4.3 "Rehash"; ltable.c's luaH_resize).
func (t *Table) resize(nasize, nhsize int, seed uint32) {
	oldArraySize := len(t.array)
	oldNodes := t.nodes

	if nasize > oldArraySize {
		newArr := make([]Value, nasize)
		copy(newArr, t.array)
		t.array = newArr
	}

	t.setNodeVector(nhsize, seed)

	if nasize < oldArraySize {
		tail := append([]Value(nil), t.array[nasize:oldArraySize]...)
		shrunk := make([]Value, nasize)
		copy(shrunk, t.array[:nasize])
		t.array = shrunk
		for i, v := range tail {
			if !v.IsNil() {
				t.setInternal(Int(int64(nasize+i+1)), v, seed)
			}
		}
	}

	for _, n := range oldNodes {
		if !n.val.IsNil() && !isDeadKeyValue(n.key) {
			t.setInternal(n.key, n.val, seed)
		}
	}
}

// unboundSearch finds a boundary when the hash part is non-empty
// (ltable.c's unbound_search): exponential probe then binary search.
func (t *Table) unboundSearch(j int) int {
	i := j
	j++
	for !t.GetInt(int64(j)).IsNil() {
		i = j
		if j > math.MaxInt32/2 {
			i = 1
			for !t.GetInt(int64(i)).IsNil() {
				i++
			}
			return i - 1
		}
		j *= 2
	}
	for j-i > 1 {
		m := (i + j) / 2
		if t.GetInt(int64(m)).IsNil() {
			j = m
		} else {
			i = m
		}
	}
	return i
}

// Len returns *a* boundary (spec §4.3 "Length operator", §8): an integer i
// such that t[i] is non-nil (or i==0) and t[i+1] is nil. Not necessarily
// unique when the table has holes.
func (t *Table) Len() int64 {
	j := len(t.array)
	if j > 0 && t.array[j-1].IsNil() {
		i := 0
		for j-i > 1 {
			m := (i + j) / 2
			if t.array[m-1].IsNil() {
				j = m
			} else {
				i = m
			}
		}
		return int64(i)
	}
	if len(t.nodes) == 0 {
		return int64(j)
	}
	return int64(t.unboundSearch(j))
}

// findIndex computes the ordinal traversal position of key: array part
// first, then hash part, 0 meaning "start" (ltable.c's findindex).
func (t *Table) findIndex(key Value, seed uint32) (int, error) {
	if key.IsNil() {
		return 0, nil
	}
	key = normalizeKey(key)
	if ai, ok := arrayIndex(key); ok && ai <= len(t.array) {
		return ai, nil
	}
	if len(t.nodes) == 0 {
		return 0, ErrInvalidIndex
	}
	idx := t.mainPosition(key, seed)
	for {
		if rawEqualKeyNode(t.nodes[idx].key, key) {
			return idx + 1 + len(t.array), nil
		}
		nx := t.nodes[idx].next
		if nx == -1 {
			return 0, ErrInvalidIndex
		}
		idx = nx
	}
}

// Next implements table traversal (spec §4.3 "Traversal (next)", §8
// "Round-trip laws"): given the current key (Nil to start), returns the
// next live key/value pair.
func (t *Table) Next(key Value, seed uint32) (k, v Value, ok bool, err error) {
	i, err := t.findIndex(key, seed)
	if err != nil {
		return Nil, Nil, false, err
	}
	for ; i < len(t.array); i++ {
		if !t.array[i].IsNil() {
			return Int(int64(i + 1)), t.array[i], true, nil
		}
	}
	for hi := i - len(t.array); hi < len(t.nodes); hi++ {
		if !t.nodes[hi].val.IsNil() && !isDeadKeyValue(t.nodes[hi].key) {
			return t.nodes[hi].key, t.nodes[hi].val, true, nil
		}
	}
	return Nil, Nil, false, nil
}

// killNode replaces a dying collectable key with a dead-key placeholder so
// chain traversal stays correct (spec.md Open Question (d)), used by the
// collector's atomic phase (gc.go's clearWeakTables) on weak-table entries
// whose weakly-held key or value turned out unreachable.
func (t *Table) killNode(idx int) {
	t.nodes[idx].key = deadKeyValue(t.nodes[idx].key)
	t.nodes[idx].val = Nil
}

// hasNoMetamethod and setNoMetamethod implement the per-table cache of
// confirmed-absent metamethods (spec §4.5).
func (t *Table) hasNoMetamethod(bit uint8) bool { return t.flags&bit != 0 }
func (t *Table) setNoMetamethod(bit uint8)      { t.flags |= bit }
