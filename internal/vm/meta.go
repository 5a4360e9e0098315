package vm

// metamethod enumerates the operator-overloading hooks a metatable may
// provide. Dispatch is explicit branching over this closed set.
type metamethod int

const (
	mmIndex metamethod = iota
	mmNewIndex
	mmCall
	mmAdd
	mmSub
	mmMul
	mmDiv
	mmIDiv
	mmMod
	mmPow
	mmUnm
	mmConcat
	mmLen
	mmEq
	mmLt
	mmLe
	mmToString
	mmCount
)

func (m metamethod) name() string {
	switch m {
	case mmIndex:
		return "__index"
	case mmNewIndex:
		return "__newindex"
	case mmCall:
		return "__call"
	case mmAdd:
		return "__add"
	case mmSub:
		return "__sub"
	case mmMul:
		return "__mul"
	case mmDiv:
		return "__div"
	case mmIDiv:
		return "__idiv"
	case mmMod:
		return "__mod"
	case mmPow:
		return "__pow"
	case mmUnm:
		return "__unm"
	case mmConcat:
		return "__concat"
	case mmLen:
		return "__len"
	case mmEq:
		return "__eq"
	case mmLt:
		return "__lt"
	case mmLe:
		return "__le"
	case mmToString:
		return "__tostring"
	}
	return "?"
}

// metatableOf returns the metatable attached to a value, or nil. Only
// tables and userdata carry individual metatables.
func metatableOf(v Value) *Table {
	switch v.kind {
	case ValTable:
		return v.AsTable().meta
	case ValUserData:
		return v.AsUserData().meta
	}
	return nil
}

// metaField looks up a metamethod handler on the value, returning nil-Value
// when absent.
func (h *Heap) metaField(v Value, mm metamethod) Value {
	mt := metatableOf(v)
	if mt == nil {
		return Nil()
	}
	return mt.Get(stringVal(h.mmNames[mm]))
}
