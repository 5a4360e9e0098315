// Package vm implements the Lumen virtual machine: the runtime value model,
// the tracked heap with its incremental collector, and the stackless bytecode
// interpreter with coroutine support.
package vm

import (
	"math"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// Kind identifies the runtime type of a Value.
type Kind uint8

const (
	ValNil Kind = iota
	ValBool
	ValInt
	ValFloat
	ValString
	ValTable
	ValFunction
	ValThread
	ValUserData
)

// String returns the script-visible type name for the kind.
func (k Kind) String() string {
	switch k {
	case ValNil:
		return "nil"
	case ValBool:
		return "boolean"
	case ValInt, ValFloat:
		return "number"
	case ValString:
		return "string"
	case ValTable:
		return "table"
	case ValFunction:
		return "function"
	case ValThread:
		return "thread"
	case ValUserData:
		return "userdata"
	}
	return "invalid"
}

// Value is a tagged union over the runtime types. Small values (nil, bool,
// int, float) live entirely in the struct; heap-backed kinds carry a tracked
// object pointer. Values are copied freely; the heap object is shared.
type Value struct {
	kind Kind
	n    uint64 // int64 bits, float64 bits, or bool (0/1)
	obj  Object // heap-backed payload, nil for scalar kinds
}

// Constructors

func Nil() Value { return Value{} }

func Bool(b bool) Value {
	var n uint64
	if b {
		n = 1
	}
	return Value{kind: ValBool, n: n}
}

func Int(i int64) Value {
	return Value{kind: ValInt, n: uint64(i)}
}

func Float(f float64) Value {
	return Value{kind: ValFloat, n: math.Float64bits(f)}
}

func stringVal(s *String) Value   { return Value{kind: ValString, obj: s} }
func tableVal(t *Table) Value     { return Value{kind: ValTable, obj: t} }
func closureVal(c *Closure) Value { return Value{kind: ValFunction, obj: c} }
func nativeVal(n *Native) Value   { return Value{kind: ValFunction, obj: n} }
func threadVal(t *Thread) Value   { return Value{kind: ValThread, obj: t} }
func userDataVal(u *UserData) Value {
	return Value{kind: ValUserData, obj: u}
}

// Accessors

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNil() bool    { return v.kind == ValNil }
func (v Value) IsBool() bool   { return v.kind == ValBool }
func (v Value) IsInt() bool    { return v.kind == ValInt }
func (v Value) IsFloat() bool  { return v.kind == ValFloat }
func (v Value) IsString() bool { return v.kind == ValString }
func (v Value) IsTable() bool  { return v.kind == ValTable }
func (v Value) IsNumber() bool {
	return v.kind == ValInt || v.kind == ValFloat
}
func (v Value) IsFunction() bool { return v.kind == ValFunction }
func (v Value) IsThread() bool   { return v.kind == ValThread }

func (v Value) AsBool() bool { return v.n == 1 }
func (v Value) AsInt() int64 { return int64(v.n) }
func (v Value) AsFloat() float64 {
	return math.Float64frombits(v.n)
}

// The As* accessors return nil when the value holds a different kind, so
// callers can probe and branch without a preceding kind check.

func (v Value) AsString() *String {
	s, _ := v.obj.(*String)
	return s
}

func (v Value) AsTable() *Table {
	t, _ := v.obj.(*Table)
	return t
}

func (v Value) AsThread() *Thread {
	t, _ := v.obj.(*Thread)
	return t
}

func (v Value) AsUserData() *UserData {
	u, _ := v.obj.(*UserData)
	return u
}

// AsClosure returns the closure payload, or nil if the function is native.
func (v Value) AsClosure() *Closure {
	c, _ := v.obj.(*Closure)
	return c
}

// AsNative returns the native payload, or nil if the function is a closure.
func (v Value) AsNative() *Native {
	n, _ := v.obj.(*Native)
	return n
}

// Truthy implements the language's boolean coercion: nil and false are
// falsy, everything else (including 0 and "") is truthy.
func (v Value) Truthy() bool {
	return !(v.kind == ValNil || (v.kind == ValBool && v.n == 0))
}

// Equals implements raw equality, without metamethod dispatch. Numbers
// compare by mathematical value across Int/Float; NaN never equals itself.
// Strings compare by identity, which interning makes equivalent to content
// equality. All other heap kinds compare by identity.
func (v Value) Equals(o Value) bool {
	if v.kind != o.kind {
		// the only cross-kind equality is numeric
		if v.IsNumber() && o.IsNumber() {
			return numEq(v, o)
		}
		return false
	}
	switch v.kind {
	case ValNil:
		return true
	case ValBool:
		return v.n == o.n
	case ValInt:
		return int64(v.n) == int64(o.n)
	case ValFloat:
		return v.AsFloat() == o.AsFloat()
	default:
		return v.obj == o.obj
	}
}

// numEq reports mathematical equality across an Int/Float pair. Above 2^53
// a float64 cannot represent every int64, so the float side is reduced to
// an exact integer instead of widening the int.
func numEq(a, b Value) bool {
	if a.kind == ValFloat {
		a, b = b, a
	}
	if a.kind != ValInt || b.kind != ValFloat {
		return false
	}
	i, ok := exactInt(b.AsFloat())
	return ok && i == int64(a.n)
}

// twoPow63 is the first float64 above every int64.
const twoPow63 = 9223372036854775808.0

// numLess orders a mixed Int/Float pair exactly: the float is bracketed
// against the int64 range, then floored or ceiled so the comparison happens
// in integers. NaN orders after everything.
func numLess(a, b Value) bool {
	if a.kind == ValInt {
		f := b.AsFloat()
		switch {
		case math.IsNaN(f):
			return false
		case f >= twoPow63:
			return true
		case f < -twoPow63:
			return false
		}
		return int64(a.n) < int64(math.Ceil(f))
	}
	f := a.AsFloat()
	switch {
	case math.IsNaN(f):
		return false
	case f >= twoPow63:
		return false
	case f < -twoPow63:
		return true
	}
	return int64(math.Floor(f)) < int64(b.n)
}

func numLessEq(a, b Value) bool {
	if a.kind == ValInt {
		f := b.AsFloat()
		switch {
		case math.IsNaN(f):
			return false
		case f >= twoPow63:
			return true
		case f < -twoPow63:
			return false
		}
		return int64(a.n) <= int64(math.Floor(f))
	}
	f := a.AsFloat()
	switch {
	case math.IsNaN(f):
		return false
	case f >= twoPow63:
		return false
	case f < -twoPow63:
		return true
	}
	return int64(math.Ceil(f)) <= int64(b.n)
}

// toFloat converts a number to float64, reporting false for non-numbers.
// Strings are not coerced here; see coerceNumber.
func (v Value) toFloat() (float64, bool) {
	switch v.kind {
	case ValInt:
		return float64(int64(v.n)), true
	case ValFloat:
		return v.AsFloat(), true
	}
	return 0, false
}

// exactInt converts a float to int64 only when the conversion round-trips.
func exactInt(f float64) (int64, bool) {
	// float->int overflow conversions are platform-defined in Go, so the
	// int64 range is checked up front. 2^63 itself is out of range.
	if f < -twoPow63 || f >= twoPow63 {
		return 0, false
	}
	i, err := safecast.Convert[int64](f)
	if err != nil {
		return 0, false
	}
	return i, true
}

// coerceNumber applies the arithmetic coercion rules: numbers pass through,
// strings holding numerals are parsed. The bool result reports success.
func coerceNumber(v Value) (Value, bool) {
	switch v.kind {
	case ValInt, ValFloat:
		return v, true
	case ValString:
		return parseNumber(v.AsString().s)
	}
	return Nil(), false
}

// parseNumber parses a numeric literal the way the language does: optional
// surrounding whitespace, decimal or hex integers, then float syntax.
func parseNumber(s string) (Value, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Nil(), false
	}
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return Int(i), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Float(f), true
	}
	return Nil(), false
}

// numberString formats a number for concat and tostring coercion.
func numberString(v Value) string {
	if v.kind == ValInt {
		return strconv.FormatInt(v.AsInt(), 10)
	}
	f := v.AsFloat()
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', 14, 64)
	// keep floats visibly floats
	if !strings.ContainsAny(s, ".eEni") {
		s += ".0"
	}
	return s
}
