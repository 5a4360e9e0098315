package vm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableSetGet(t *testing.T) {
	h := testHeap()
	tb := h.NewTable()

	require.NoError(t, tb.Set(h, h.StringValue("k"), Int(1)))
	require.NoError(t, tb.Set(h, Int(1), h.StringValue("one")))
	require.NoError(t, tb.Set(h, Bool(true), Float(0.5)))

	assert.Equal(t, Int(1), tb.Get(h.StringValue("k")))
	assert.Equal(t, "one", tb.Get(Int(1)).AsString().Str())
	assert.Equal(t, Float(0.5), tb.Get(Bool(true)))
	assert.True(t, tb.Get(h.StringValue("absent")).IsNil())
}

func TestTableFloatKeyNormalization(t *testing.T) {
	h := testHeap()
	tb := h.NewTable()

	// 2.0 and 2 are the same key
	require.NoError(t, tb.Set(h, Float(2.0), h.StringValue("two")))
	assert.Equal(t, "two", tb.Get(Int(2)).AsString().Str())

	// -0.0 and 0 are the same key
	require.NoError(t, tb.Set(h, Float(math.Copysign(0, -1)), Int(9)))
	assert.Equal(t, Int(9), tb.Get(Int(0)))
}

func TestTableInvalidKeys(t *testing.T) {
	h := testHeap()
	tb := h.NewTable()

	assert.ErrorIs(t, tb.Set(h, Nil(), Int(1)), ErrNilKey)
	assert.ErrorIs(t, tb.Set(h, Float(math.NaN()), Int(1)), ErrNaNKey)

	// reads with those keys just miss
	assert.True(t, tb.Get(Nil()).IsNil())
	assert.True(t, tb.Get(Float(math.NaN())).IsNil())
}

func TestTableNilDeletes(t *testing.T) {
	h := testHeap()
	tb := h.NewTable()

	require.NoError(t, tb.Set(h, h.StringValue("x"), Int(1)))
	require.NoError(t, tb.Set(h, h.StringValue("x"), Nil()))
	assert.True(t, tb.Get(h.StringValue("x")).IsNil())

	require.NoError(t, tb.Set(h, Int(1), Int(10)))
	require.NoError(t, tb.Set(h, Int(1), Nil()))
	assert.True(t, tb.Get(Int(1)).IsNil())
}

func TestTableSequenceLength(t *testing.T) {
	h := testHeap()
	tb := h.NewTable()
	for i := int64(1); i <= 10; i++ {
		require.NoError(t, tb.Set(h, Int(i), Int(i*i)))
	}
	assert.Equal(t, int64(10), tb.Len())

	// growing through the hash part still yields the right border
	require.NoError(t, tb.Set(h, Int(11), Int(121)))
	assert.Equal(t, int64(11), tb.Len())
}

func TestTableLengthWithHoleIsABorder(t *testing.T) {
	h := testHeap()
	tb := h.NewTable()
	require.NoError(t, tb.Set(h, Int(1), Int(1)))
	require.NoError(t, tb.Set(h, Int(2), Int(2)))
	require.NoError(t, tb.Set(h, Int(4), Int(4)))

	// with a hole at 3, any border is a valid length
	n := tb.Len()
	assert.True(t, n == 2 || n == 4, "length %d is not a border", n)
	assert.False(t, tb.Get(Int(n)).IsNil())
	assert.True(t, tb.Get(Int(n+1)).IsNil())
}

func TestTableHashToArrayMigration(t *testing.T) {
	h := testHeap()
	tb := h.NewTable()
	// insert 2..5 first (hash part), then 1 to bridge them into the array
	for i := int64(2); i <= 5; i++ {
		require.NoError(t, tb.Set(h, Int(i), Int(i)))
	}
	require.NoError(t, tb.Set(h, Int(1), Int(1)))

	assert.Equal(t, int64(5), tb.Len())
	for i := int64(1); i <= 5; i++ {
		assert.Equal(t, Int(i), tb.Get(Int(i)))
	}
}

func TestTableNext(t *testing.T) {
	h := testHeap()
	tb := h.NewTable()
	want := map[Value]Value{
		Int(1):              h.StringValue("a"),
		Int(2):              h.StringValue("b"),
		h.StringValue("k1"): Int(10),
		h.StringValue("k2"): Int(20),
	}
	for k, v := range want {
		require.NoError(t, tb.Set(h, k, v))
	}

	seen := map[Value]Value{}
	k := Nil()
	for {
		nk, nv, err := tb.Next(k)
		require.NoError(t, err)
		if nk.IsNil() {
			break
		}
		seen[nk] = nv
		k = nk
	}
	assert.Equal(t, want, seen)
}

func TestTableNextSkipsDeleted(t *testing.T) {
	h := testHeap()
	tb := h.NewTable()
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, tb.Set(h, h.StringValue(string(rune('a'+i))), Int(i)))
	}
	require.NoError(t, tb.Set(h, h.StringValue("b"), Nil()))

	count := 0
	k := Nil()
	for {
		nk, nv, err := tb.Next(k)
		require.NoError(t, err)
		if nk.IsNil() {
			break
		}
		assert.False(t, nv.IsNil())
		count++
		k = nk
	}
	assert.Equal(t, 2, count)
}

func TestTableNextInvalidKey(t *testing.T) {
	h := testHeap()
	tb := h.NewTable()
	require.NoError(t, tb.Set(h, Int(1), Int(1)))

	_, _, err := tb.Next(h.StringValue("never-inserted"))
	assert.ErrorIs(t, err, ErrInvalidNext)
}

func TestTableNextAfterDeleteOfCurrentKey(t *testing.T) {
	// deleting the key under the iterator then calling Next with it is the
	// documented supported mutation during traversal
	h := testHeap()
	tb := h.NewTable()
	keys := []Value{h.StringValue("p"), h.StringValue("q"), h.StringValue("r")}
	for i, k := range keys {
		require.NoError(t, tb.Set(h, k, Int(int64(i))))
	}

	k, _, err := tb.Next(Nil())
	require.NoError(t, err)
	require.NoError(t, tb.Set(h, k, Nil()))

	rest := 0
	for {
		nk, _, nerr := tb.Next(k)
		require.NoError(t, nerr)
		if nk.IsNil() {
			break
		}
		rest++
		k = nk
	}
	assert.Equal(t, 2, rest)
}
