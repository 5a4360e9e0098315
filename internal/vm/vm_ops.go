package vm

import (
	"math"
	"strings"

	"github.com/lumenvm/lumen/internal/chunk"
)

// longest metamethod chain followed before declaring a loop
const maxMetaDepth = 100

// callMeta arranges a metamethod invocation. The handler's results land
// exactly where the triggering instruction would have pushed its own, so
// execution simply continues at the next instruction once the handler
// returns, however many suspensions happen in between.
func (ex *Executor) callMeta(t *Thread, handler Value, args []Value, want int, shape resultShape) (*StepResult, error) {
	base := t.sp
	t.push(handler)
	for _, a := range args {
		t.push(a)
	}
	return ex.call(t, base, len(args), want, false, shape)
}

var arithMM = map[chunk.Op]metamethod{
	chunk.OpAdd:  mmAdd,
	chunk.OpSub:  mmSub,
	chunk.OpMul:  mmMul,
	chunk.OpDiv:  mmDiv,
	chunk.OpIDiv: mmIDiv,
	chunk.OpMod:  mmMod,
	chunk.OpPow:  mmPow,
	chunk.OpNeg:  mmUnm,
}

func (ex *Executor) arith(t *Thread, op chunk.Op) (*StepResult, error) {
	if op == chunk.OpNeg {
		a := t.pop()
		if n, ok := coerceNumber(a); ok {
			if n.IsInt() {
				t.push(Int(-n.AsInt()))
			} else {
				t.push(Float(-n.AsFloat()))
			}
			return nil, nil
		}
		return ex.arithMeta(t, op, a, a)
	}

	b := t.pop()
	a := t.pop()
	na, aok := coerceNumber(a)
	nb, bok := coerceNumber(b)
	if !aok || !bok {
		return ex.arithMeta(t, op, a, b)
	}

	if na.IsInt() && nb.IsInt() && op != chunk.OpDiv && op != chunk.OpPow {
		x, y := na.AsInt(), nb.AsInt()
		switch op {
		case chunk.OpAdd:
			t.push(Int(x + y))
		case chunk.OpSub:
			t.push(Int(x - y))
		case chunk.OpMul:
			t.push(Int(x * y))
		case chunk.OpIDiv:
			if y == 0 {
				return nil, ex.runtimeError("attempt to perform 'n//0'")
			}
			q := x / y
			if x%y != 0 && (x^y) < 0 {
				q--
			}
			t.push(Int(q))
		case chunk.OpMod:
			if y == 0 {
				return nil, ex.runtimeError("attempt to perform 'n%%0'")
			}
			m := x % y
			if m != 0 && (m^y) < 0 {
				m += y
			}
			t.push(Int(m))
		}
		return nil, nil
	}

	x, _ := na.toFloat()
	y, _ := nb.toFloat()
	switch op {
	case chunk.OpAdd:
		t.push(Float(x + y))
	case chunk.OpSub:
		t.push(Float(x - y))
	case chunk.OpMul:
		t.push(Float(x * y))
	case chunk.OpDiv:
		t.push(Float(x / y))
	case chunk.OpIDiv:
		t.push(Float(math.Floor(x / y)))
	case chunk.OpMod:
		r := math.Mod(x, y)
		if r != 0 && (r < 0) != (y < 0) {
			r += y
		}
		t.push(Float(r))
	case chunk.OpPow:
		t.push(Float(math.Pow(x, y)))
	}
	return nil, nil
}

func (ex *Executor) arithMeta(t *Thread, op chunk.Op, a, b Value) (*StepResult, error) {
	mm := arithMM[op]
	handler := ex.heap.metaField(a, mm)
	if handler.IsNil() {
		handler = ex.heap.metaField(b, mm)
	}
	if handler.IsNil() {
		bad := a
		if _, ok := coerceNumber(a); ok {
			bad = b
		}
		return nil, ex.typeError("perform arithmetic on", bad)
	}
	return ex.callMeta(t, handler, []Value{a, b}, 1, shapeNone)
}

// equality implements == and ~=. Raw equality is identity for heap values;
// __eq is consulted only for two tables or two userdata that compare
// raw-unequal.
func (ex *Executor) equality(t *Thread, op chunk.Op) (*StepResult, error) {
	b := t.pop()
	a := t.pop()
	eq := a.Equals(b)
	if !eq && a.kind == b.kind && (a.kind == ValTable || a.kind == ValUserData) {
		handler := ex.heap.metaField(a, mmEq)
		if handler.IsNil() {
			handler = ex.heap.metaField(b, mmEq)
		}
		if !handler.IsNil() {
			shape := shapeBool
			if op == chunk.OpNe {
				shape = shapeBoolNot
			}
			return ex.callMeta(t, handler, []Value{a, b}, 1, shape)
		}
	}
	if op == chunk.OpNe {
		eq = !eq
	}
	t.push(Bool(eq))
	return nil, nil
}

func (ex *Executor) compare(t *Thread, op chunk.Op) (*StepResult, error) {
	b := t.pop()
	a := t.pop()
	// a > b is b < a; a >= b is b <= a
	switch op {
	case chunk.OpGt:
		a, b = b, a
		op = chunk.OpLt
	case chunk.OpGe:
		a, b = b, a
		op = chunk.OpLe
	}

	if a.IsNumber() && b.IsNumber() {
		var res bool
		switch {
		case a.IsInt() && b.IsInt():
			if op == chunk.OpLt {
				res = a.AsInt() < b.AsInt()
			} else {
				res = a.AsInt() <= b.AsInt()
			}
		case a.IsFloat() && b.IsFloat():
			if op == chunk.OpLt {
				res = a.AsFloat() < b.AsFloat()
			} else {
				res = a.AsFloat() <= b.AsFloat()
			}
		default:
			if op == chunk.OpLt {
				res = numLess(a, b)
			} else {
				res = numLessEq(a, b)
			}
		}
		t.push(Bool(res))
		return nil, nil
	}

	if a.IsString() && b.IsString() {
		c := strings.Compare(a.AsString().Str(), b.AsString().Str())
		if op == chunk.OpLt {
			t.push(Bool(c < 0))
		} else {
			t.push(Bool(c <= 0))
		}
		return nil, nil
	}

	mm := mmLt
	if op == chunk.OpLe {
		mm = mmLe
	}
	handler := ex.heap.metaField(a, mm)
	if handler.IsNil() {
		handler = ex.heap.metaField(b, mm)
	}
	if handler.IsNil() {
		return nil, ex.runtimeError("attempt to compare %s with %s", a.kind, b.kind)
	}
	return ex.callMeta(t, handler, []Value{a, b}, 1, shapeBool)
}

func (ex *Executor) length(t *Thread) (*StepResult, error) {
	v := t.pop()
	if v.IsString() {
		t.push(Int(int64(v.AsString().Len())))
		return nil, nil
	}
	if handler := ex.heap.metaField(v, mmLen); !handler.IsNil() {
		return ex.callMeta(t, handler, []Value{v}, 1, shapeNone)
	}
	if tb := v.AsTable(); tb != nil {
		t.push(Int(tb.Len()))
		return nil, nil
	}
	return nil, ex.typeError("get length of", v)
}

// concatString renders a value for use in concatenation; only strings and
// numbers concatenate without a metamethod.
func concatString(v Value) (string, bool) {
	switch v.kind {
	case ValString:
		return v.AsString().Str(), true
	case ValInt, ValFloat:
		return numberString(v), true
	}
	return "", false
}

func (ex *Executor) concat(t *Thread) (*StepResult, error) {
	b := t.pop()
	a := t.pop()
	sa, aok := concatString(a)
	sb, bok := concatString(b)
	if aok && bok {
		t.push(ex.heap.StringValue(sa + sb))
		return nil, nil
	}
	handler := ex.heap.metaField(a, mmConcat)
	if handler.IsNil() {
		handler = ex.heap.metaField(b, mmConcat)
	}
	if handler.IsNil() {
		bad := a
		if aok {
			bad = b
		}
		return nil, ex.typeError("concatenate", bad)
	}
	return ex.callMeta(t, handler, []Value{a, b}, 1, shapeNone)
}

// getIndex resolves obj[key] with the full __index protocol: raw table hit
// first, then table handlers rehash the lookup, function handlers are
// called with the result landing where the value belongs on the stack.
func (ex *Executor) getIndex(t *Thread, obj, key Value) (*StepResult, error) {
	for depth := 0; depth < maxMetaDepth; depth++ {
		if tb := obj.AsTable(); tb != nil {
			v := tb.Get(key)
			if !v.IsNil() || tb.Metatable() == nil {
				t.push(v)
				return nil, nil
			}
			handler := ex.heap.metaField(obj, mmIndex)
			if handler.IsNil() {
				t.push(Nil())
				return nil, nil
			}
			if handler.AsTable() != nil {
				obj = handler
				continue
			}
			return ex.callMeta(t, handler, []Value{obj, key}, 1, shapeNone)
		}

		handler := ex.heap.metaField(obj, mmIndex)
		if handler.IsNil() {
			return nil, ex.typeError("index", obj)
		}
		if handler.AsTable() != nil {
			obj = handler
			continue
		}
		return ex.callMeta(t, handler, []Value{obj, key}, 1, shapeNone)
	}
	return nil, ex.runtimeError("'__index' chain too long; possible loop")
}

// setIndex resolves obj[key] = v with the __newindex protocol. The handler
// is consulted only when the key is absent from the table.
func (ex *Executor) setIndex(t *Thread, obj, key, v Value) (*StepResult, error) {
	for depth := 0; depth < maxMetaDepth; depth++ {
		if tb := obj.AsTable(); tb != nil {
			if !tb.Get(key).IsNil() || tb.Metatable() == nil {
				return nil, ex.rawSet(tb, key, v)
			}
			handler := ex.heap.metaField(obj, mmNewIndex)
			if handler.IsNil() {
				return nil, ex.rawSet(tb, key, v)
			}
			if handler.AsTable() != nil {
				obj = handler
				continue
			}
			return ex.callMeta(t, handler, []Value{obj, key, v}, 0, shapeNone)
		}

		handler := ex.heap.metaField(obj, mmNewIndex)
		if handler.IsNil() {
			return nil, ex.typeError("index", obj)
		}
		if handler.AsTable() != nil {
			obj = handler
			continue
		}
		return ex.callMeta(t, handler, []Value{obj, key, v}, 0, shapeNone)
	}
	return nil, ex.runtimeError("'__newindex' chain too long; possible loop")
}

func (ex *Executor) rawSet(tb *Table, key, v Value) error {
	if err := tb.Set(ex.heap, key, v); err != nil {
		return ex.runtimeError("%s", err)
	}
	return nil
}
