package vm

import (
	"errors"
	"math"
)

// Table key errors.
var (
	ErrNilKey = errors.New("table key is nil")
	ErrNaNKey = errors.New("table key is NaN")
	// ErrInvalidNext is reported when Next is given a key that is not
	// present in the table.
	ErrInvalidNext = errors.New("invalid key to iteration")
)

// Table is the hash+array hybrid associative container. Contiguous positive
// integer keys from 1 live in a dense array part; everything else lives in
// the hash part. A key never maps to nil: storing nil removes it.
//
// The hash part keeps insertion-ordered key bookkeeping so that stateless
// iteration via Next stays consistent as long as no new key is inserted
// during a traversal. Deletions during traversal are safe.
type Table struct {
	hdr   gcHeader
	array []Value
	hash  map[Value]Value
	keys  []Value       // hash keys in insertion order; may contain dead entries
	keyAt map[Value]int // key -> index in keys
	meta  *Table
}

func (t *Table) header() *gcHeader { return &t.hdr }
func (t *Table) trace(h *Heap) {
	for _, v := range t.array {
		h.markValue(v)
	}
	for k, v := range t.hash {
		h.markValue(k)
		h.markValue(v)
	}
	if t.meta != nil {
		h.markObject(t.meta)
	}
}

// Metatable returns the table's metatable, or nil.
func (t *Table) Metatable() *Table { return t.meta }

// SetMetatable replaces the table's metatable (nil clears it).
func (t *Table) SetMetatable(h *Heap, mt *Table) {
	t.meta = mt
	h.WriteBarrier(t)
}

// normKey canonicalizes a table key: float keys with an exact integer
// representation become integer keys, -0.0 becomes 0.0, and nil/NaN keys are
// rejected.
func normKey(k Value) (Value, error) {
	switch k.kind {
	case ValNil:
		return Nil(), ErrNilKey
	case ValFloat:
		f := k.AsFloat()
		if math.IsNaN(f) {
			return Nil(), ErrNaNKey
		}
		if i, ok := exactInt(f); ok {
			return Int(i), nil
		}
		if f == 0 {
			return Float(0), nil
		}
		return k, nil
	}
	return k, nil
}

// arrayIndex returns the array-part index for the key, if it has one.
func (t *Table) arrayIndex(k Value) (int, bool) {
	if k.kind != ValInt {
		return 0, false
	}
	i := k.AsInt()
	if i >= 1 && i <= int64(len(t.array)) {
		return int(i - 1), true
	}
	return 0, false
}

// Get returns the value stored under key, or nil if absent. This is a raw
// access; metatable dispatch happens in the interpreter.
func (t *Table) Get(k Value) Value {
	k, err := normKey(k)
	if err != nil {
		return Nil()
	}
	if i, ok := t.arrayIndex(k); ok {
		return t.array[i]
	}
	if t.hash == nil {
		return Nil()
	}
	return t.hash[k] // zero Value is Nil
}

// Set stores v under key; storing nil removes the key. This is a raw store;
// the __newindex metamethod is never consulted here.
func (t *Table) Set(h *Heap, k, v Value) error {
	k, err := normKey(k)
	if err != nil {
		return err
	}

	if i, ok := t.arrayIndex(k); ok {
		t.array[i] = v
		h.WriteBarrier(t)
		return nil
	}

	// appending right past the array part extends it
	if k.kind == ValInt && k.AsInt() == int64(len(t.array))+1 && !v.IsNil() {
		t.array = append(t.array, v)
		t.migrateFromHash(h)
		h.WriteBarrier(t)
		return nil
	}

	if v.IsNil() {
		if t.hash != nil {
			delete(t.hash, k)
		}
		return nil
	}

	if t.hash == nil {
		t.hash = make(map[Value]Value, 4)
		t.keyAt = make(map[Value]int, 4)
	}
	if _, seen := t.keyAt[k]; !seen {
		t.maybeCompact()
		t.keyAt[k] = len(t.keys)
		t.keys = append(t.keys, k)
	}
	t.hash[k] = v
	h.WriteBarrier(t)
	return nil
}

// migrateFromHash pulls keys that became contiguous with the array part out
// of the hash part.
func (t *Table) migrateFromHash(h *Heap) {
	if t.hash == nil {
		return
	}
	for {
		k := Int(int64(len(t.array)) + 1)
		v, ok := t.hash[k]
		if !ok {
			return
		}
		delete(t.hash, k)
		t.array = append(t.array, v)
	}
}

// maybeCompact rebuilds the iteration bookkeeping when it has accumulated
// too many dead entries. Only called on insertion, which is the one point
// where invalidating an in-flight traversal is allowed.
func (t *Table) maybeCompact() {
	if len(t.keys) < 32 || len(t.keys) < 2*len(t.hash) {
		return
	}
	live := make([]Value, 0, len(t.hash))
	at := make(map[Value]int, len(t.hash))
	for _, k := range t.keys {
		if _, ok := t.hash[k]; ok {
			at[k] = len(live)
			live = append(live, k)
		}
	}
	t.keys = live
	t.keyAt = at
}

// Len returns a border of the table: an index n where t[n] is non-nil and
// t[n+1] is nil. For a table holding a contiguous sequence 1..n this is
// exactly n; for tables with holes any border may be returned, matching the
// language's documented ambiguity.
func (t *Table) Len() int64 {
	alen := int64(len(t.array))
	if alen > 0 && t.array[alen-1].IsNil() {
		// a border exists inside the array part; binary search for it
		lo, hi := int64(0), alen
		for hi-lo > 1 {
			mid := lo + (hi-lo)/2
			if t.array[mid-1].IsNil() {
				hi = mid
			} else {
				lo = mid
			}
		}
		return lo
	}
	if len(t.hash) == 0 {
		return alen
	}
	// probe the hash part for a nil entry to bound a binary search
	lo := alen
	hi := alen + 1
	for t.hashHasInt(hi) {
		if hi > math.MaxInt64/2 {
			// pathological table; give a pathological answer
			for t.hashHasInt(hi + 1) {
				hi++
			}
			return hi
		}
		hi *= 2
	}
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if t.hashHasInt(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

func (t *Table) hashHasInt(i int64) bool {
	if i <= int64(len(t.array)) {
		if i <= 0 {
			return false
		}
		return !t.array[i-1].IsNil()
	}
	if t.hash == nil {
		return false
	}
	_, ok := t.hash[Int(i)]
	return ok
}

// Next returns the key/value pair following the given key in iteration
// order. A nil key starts the traversal; a (nil, nil) result with no error
// ends it. Passing a key not present in the table reports ErrInvalidNext.
func (t *Table) Next(k Value) (Value, Value, error) {
	if k.IsNil() {
		return t.seek(0, 0)
	}
	k, err := normKey(k)
	if err != nil {
		return Nil(), Nil(), ErrInvalidNext
	}
	if i, ok := t.arrayIndex(k); ok {
		// a deleted key stays a valid cursor, so traversals may clear the
		// entry they are standing on
		return t.seek(i+1, 0)
	}
	if t.keyAt != nil {
		if idx, ok := t.keyAt[k]; ok {
			return t.seek(len(t.array), idx+1)
		}
	}
	return Nil(), Nil(), ErrInvalidNext
}

// seek finds the first live entry at or after the given array index, then
// at or after the given hash key index.
func (t *Table) seek(ai, hi int) (Value, Value, error) {
	for ; ai < len(t.array); ai++ {
		if !t.array[ai].IsNil() {
			return Int(int64(ai + 1)), t.array[ai], nil
		}
	}
	for ; hi < len(t.keys); hi++ {
		k := t.keys[hi]
		if v, ok := t.hash[k]; ok {
			return k, v, nil
		}
	}
	return Nil(), Nil(), nil
}

// ArrayLen reports the current size of the dense array part. Used by the
// collector's work accounting and by tests.
func (t *Table) ArrayLen() int { return len(t.array) }

// HashLen reports the number of live hash entries.
func (t *Table) HashLen() int { return len(t.hash) }
