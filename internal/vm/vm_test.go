package vm

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenvm/lumen/internal/chunk"
)

func testHeap() *Heap {
	return NewHeap(DefaultHeapConfig())
}

// runProto drives a prototype to completion with ample fuel and returns its
// results.
func runProto(t *testing.T, h *Heap, p *chunk.Proto, args ...Value) []Value {
	t.Helper()
	ex := NewExecutor(h, h.NewClosure(p), args, Options{})
	defer ex.Close()
	OpenBase(ex)
	OpenMath(ex)
	res := ex.Step(1 << 30)
	require.Equal(t, StepFinished, res.Kind, "unexpected outcome: %+v", res.Err)
	return res.Values
}

func TestArithmetic(t *testing.T) {
	p := chunk.NewProto("main")
	p.EmitConst(chunk.OpConst, chunk.Int(2), 1)
	p.EmitConst(chunk.OpConst, chunk.Int(3), 1)
	p.EmitConst(chunk.OpConst, chunk.Int(4), 1)
	p.Emit(chunk.OpMul, 1)
	p.Emit(chunk.OpAdd, 1)
	p.Emit(chunk.OpReturn, 1, 1)

	vals := runProto(t, testHeap(), p)
	require.Len(t, vals, 1)
	assert.Equal(t, Int(14), vals[0])
}

func TestDivisionAlwaysFloat(t *testing.T) {
	p := chunk.NewProto("main")
	p.EmitConst(chunk.OpConst, chunk.Int(7), 1)
	p.EmitConst(chunk.OpConst, chunk.Int(2), 1)
	p.Emit(chunk.OpDiv, 1)
	p.Emit(chunk.OpReturn, 1, 1)

	vals := runProto(t, testHeap(), p)
	require.Len(t, vals, 1)
	assert.Equal(t, Float(3.5), vals[0])
}

func TestFloorDivAndMod(t *testing.T) {
	build := func(op chunk.Op, a, b int64) *chunk.Proto {
		p := chunk.NewProto("main")
		p.EmitConst(chunk.OpConst, chunk.Int(a), 1)
		p.EmitConst(chunk.OpConst, chunk.Int(b), 1)
		p.Emit(op, 1)
		p.Emit(chunk.OpReturn, 1, 1)
		return p
	}

	h := testHeap()
	assert.Equal(t, Int(-3), runProto(t, h, build(chunk.OpIDiv, -7, 3))[0])
	assert.Equal(t, Int(2), runProto(t, h, build(chunk.OpMod, -7, 3))[0])
	assert.Equal(t, Int(-2), runProto(t, h, build(chunk.OpMod, 7, -3))[0])
}

func TestStringConcatAndCoercion(t *testing.T) {
	p := chunk.NewProto("main")
	p.EmitConst(chunk.OpConst, chunk.Str("n="), 1)
	p.EmitConst(chunk.OpConst, chunk.Int(42), 1)
	p.Emit(chunk.OpConcat, 1)
	p.Emit(chunk.OpReturn, 1, 1)

	h := testHeap()
	vals := runProto(t, h, p)
	require.Len(t, vals, 1)
	assert.Equal(t, "n=42", vals[0].AsString().Str())
}

func TestGlobals(t *testing.T) {
	p := chunk.NewProto("main")
	p.EmitConst(chunk.OpConst, chunk.Int(7), 1)
	p.EmitConst(chunk.OpSetGlobal, chunk.Str("x"), 1)
	p.EmitConst(chunk.OpGetGlobal, chunk.Str("x"), 2)
	p.EmitConst(chunk.OpGetGlobal, chunk.Str("x"), 2)
	p.Emit(chunk.OpAdd, 2)
	p.Emit(chunk.OpReturn, 2, 1)

	vals := runProto(t, testHeap(), p)
	assert.Equal(t, Int(14), vals[0])
}

func TestConditionalJumps(t *testing.T) {
	// return 10 < 20 and "yes" or "no", spelled out with explicit jumps
	p := chunk.NewProto("main")
	p.EmitConst(chunk.OpConst, chunk.Int(10), 1)
	p.EmitConst(chunk.OpConst, chunk.Int(20), 1)
	p.Emit(chunk.OpLt, 1)
	elseJ := p.EmitJump(chunk.OpJumpIfFalse, 1)
	p.EmitConst(chunk.OpConst, chunk.Str("yes"), 2)
	endJ := p.EmitJump(chunk.OpJump, 2)
	p.PatchJump(elseJ)
	p.EmitConst(chunk.OpConst, chunk.Str("no"), 3)
	p.PatchJump(endJ)
	p.Emit(chunk.OpReturn, 4, 1)

	vals := runProto(t, testHeap(), p)
	assert.Equal(t, "yes", vals[0].AsString().Str())
}

// sumLoop builds a prototype computing 1 + 2 + ... + n with a loop.
func sumLoop(n int64) *chunk.Proto {
	p := chunk.NewProto("sum")
	p.NumSlots = 2 // i, acc
	p.EmitConst(chunk.OpConst, chunk.Int(1), 1)
	p.Emit(chunk.OpSetLocal, 1, 0)
	p.EmitConst(chunk.OpConst, chunk.Int(0), 1)
	p.Emit(chunk.OpSetLocal, 1, 1)

	top := len(p.Code)
	p.Emit(chunk.OpGetLocal, 2, 0)
	p.EmitConst(chunk.OpConst, chunk.Int(n), 2)
	p.Emit(chunk.OpLe, 2)
	exit := p.EmitJump(chunk.OpJumpIfFalse, 2)

	p.Emit(chunk.OpGetLocal, 3, 1)
	p.Emit(chunk.OpGetLocal, 3, 0)
	p.Emit(chunk.OpAdd, 3)
	p.Emit(chunk.OpSetLocal, 3, 1)

	p.Emit(chunk.OpGetLocal, 4, 0)
	p.EmitConst(chunk.OpConst, chunk.Int(1), 4)
	p.Emit(chunk.OpAdd, 4)
	p.Emit(chunk.OpSetLocal, 4, 0)
	p.EmitLoop(top, 4)

	p.PatchJump(exit)
	p.Emit(chunk.OpGetLocal, 5, 1)
	p.Emit(chunk.OpReturn, 5, 1)
	return p
}

func TestLoop(t *testing.T) {
	vals := runProto(t, testHeap(), sumLoop(100))
	assert.Equal(t, Int(5050), vals[0])
}

func TestFuelSplittingInvariance(t *testing.T) {
	// the same program must produce the same result whether it runs in one
	// slice or in many small ones
	h := testHeap()
	want := runProto(t, h, sumLoop(500))

	ex := NewExecutor(h, h.NewClosure(sumLoop(500)), nil, Options{})
	defer ex.Close()
	var res StepResult
	steps := 0
	for {
		res = ex.Step(7)
		if res.Kind != StepPending {
			break
		}
		steps++
		require.Less(t, steps, 100000, "computation did not finish")
	}
	require.Equal(t, StepFinished, res.Kind)
	assert.Equal(t, want, res.Values)
	assert.Greater(t, steps, 10, "expected the budget to split execution")
}

func TestStepOnIdleExecutor(t *testing.T) {
	h := testHeap()
	p := chunk.NewProto("main")
	p.Emit(chunk.OpReturn, 1, 0)
	ex := NewExecutor(h, h.NewClosure(p), nil, Options{})
	defer ex.Close()

	require.Equal(t, StepFinished, ex.Step(100).Kind)
	res := ex.Step(100)
	require.Equal(t, StepErrored, res.Kind)
	assert.ErrorIs(t, res.Err, ErrExecutorIdle)
}

func TestClosureCounters(t *testing.T) {
	// counter = function() n = n + 1; return n end, over a local n
	inner := chunk.NewProto("counter")
	inner.Upvals = []chunk.UpvalDesc{{InStack: true, Index: 0, Name: "n"}}
	inner.Emit(chunk.OpGetUpvalue, 2, 0)
	inner.EmitConst(chunk.OpConst, chunk.Int(1), 2)
	inner.Emit(chunk.OpAdd, 2)
	inner.Emit(chunk.OpDup, 2)
	inner.Emit(chunk.OpSetUpvalue, 2, 0)
	inner.Emit(chunk.OpReturn, 2, 1)

	maker := chunk.NewProto("makeCounter")
	maker.NumSlots = 1 // n
	maker.EmitConst(chunk.OpConst, chunk.Int(0), 1)
	maker.Emit(chunk.OpSetLocal, 1, 0)
	mi := maker.AddProto(inner)
	maker.WriteOp(chunk.OpClosure, 2)
	maker.WriteU16(uint16(mi), 2)
	maker.Emit(chunk.OpReturn, 2, 1)

	main := chunk.NewProto("main")
	main.NumSlots = 2 // c1, c2
	ci := main.AddProto(maker)
	emitMake := func(slot byte) {
		main.WriteOp(chunk.OpClosure, 1)
		main.WriteU16(uint16(ci), 1)
		main.Emit(chunk.OpCall, 1, 0, 1)
		main.Emit(chunk.OpSetLocal, 1, slot)
	}
	emitMake(0)
	emitMake(1)
	callCounter := func(slot byte) {
		main.Emit(chunk.OpGetLocal, 2, slot)
		main.Emit(chunk.OpCall, 2, 0, 1)
	}
	callCounter(0) // 1
	callCounter(0) // 2
	callCounter(1) // 1: independent state
	main.Emit(chunk.OpReturn, 3, 3)

	vals := runProto(t, testHeap(), main)
	require.Len(t, vals, 3)
	assert.Equal(t, []Value{Int(1), Int(2), Int(1)}, vals)
}

func TestUpvalueSharing(t *testing.T) {
	// two closures over the same local see each other's writes
	setter := chunk.NewProto("set")
	setter.NumParams = 1
	setter.NumSlots = 1
	setter.Upvals = []chunk.UpvalDesc{{InStack: true, Index: 0}}
	setter.Emit(chunk.OpGetLocal, 1, 0)
	setter.Emit(chunk.OpSetUpvalue, 1, 0)
	setter.Emit(chunk.OpReturn, 1, 0)

	getter := chunk.NewProto("get")
	getter.Upvals = []chunk.UpvalDesc{{InStack: true, Index: 0}}
	getter.Emit(chunk.OpGetUpvalue, 1, 0)
	getter.Emit(chunk.OpReturn, 1, 1)

	main := chunk.NewProto("main")
	main.NumSlots = 3 // shared, set, get
	main.EmitConst(chunk.OpConst, chunk.Int(0), 1)
	main.Emit(chunk.OpSetLocal, 1, 0)
	si := main.AddProto(setter)
	gi := main.AddProto(getter)
	main.WriteOp(chunk.OpClosure, 2)
	main.WriteU16(uint16(si), 2)
	main.Emit(chunk.OpSetLocal, 2, 1)
	main.WriteOp(chunk.OpClosure, 2)
	main.WriteU16(uint16(gi), 2)
	main.Emit(chunk.OpSetLocal, 2, 2)

	main.Emit(chunk.OpGetLocal, 3, 1)
	main.EmitConst(chunk.OpConst, chunk.Int(99), 3)
	main.Emit(chunk.OpCall, 3, 1, 0)
	main.Emit(chunk.OpGetLocal, 4, 2)
	main.Emit(chunk.OpCall, 4, 0, 1)
	main.Emit(chunk.OpReturn, 4, 1)

	vals := runProto(t, testHeap(), main)
	assert.Equal(t, Int(99), vals[0])
}

func TestTables(t *testing.T) {
	p := chunk.NewProto("main")
	p.NumSlots = 1
	p.Emit(chunk.OpNewTable, 1, 0, 0)
	p.Emit(chunk.OpSetLocal, 1, 0)

	p.Emit(chunk.OpGetLocal, 2, 0)
	p.EmitConst(chunk.OpConst, chunk.Int(10), 2)
	p.EmitConst(chunk.OpSetField, chunk.Str("x"), 2)

	p.Emit(chunk.OpGetLocal, 3, 0)
	p.EmitConst(chunk.OpGetField, chunk.Str("x"), 3)
	p.Emit(chunk.OpGetLocal, 3, 0)
	p.EmitConst(chunk.OpGetField, chunk.Str("missing"), 3)
	p.Emit(chunk.OpReturn, 3, 2)

	vals := runProto(t, testHeap(), p)
	require.Len(t, vals, 2)
	assert.Equal(t, Int(10), vals[0])
	assert.True(t, vals[1].IsNil())
}

func TestVarargs(t *testing.T) {
	f := chunk.NewProto("f")
	f.IsVararg = true
	f.Emit(chunk.OpVararg, 1, chunk.MultRet)
	f.Emit(chunk.OpReturn, 1, chunk.MultRet)

	main := chunk.NewProto("main")
	fi := main.AddProto(f)
	main.WriteOp(chunk.OpClosure, 1)
	main.WriteU16(uint16(fi), 1)
	main.EmitConst(chunk.OpConst, chunk.Int(1), 1)
	main.EmitConst(chunk.OpConst, chunk.Int(2), 1)
	main.EmitConst(chunk.OpConst, chunk.Int(3), 1)
	main.Emit(chunk.OpCall, 1, 3, chunk.MultRet)
	main.Emit(chunk.OpReturn, 1, chunk.MultRet)

	vals := runProto(t, testHeap(), main)
	assert.Equal(t, []Value{Int(1), Int(2), Int(3)}, vals)
}

func TestTailCallDepth(t *testing.T) {
	// f(n): if n <= 0 then return n end; return f(n - 1)
	// runs far past the frame limit, so it only passes if tail calls
	// actually replace the frame
	f := chunk.NewProto("f")
	f.NumParams = 1
	f.NumSlots = 1
	f.Emit(chunk.OpGetLocal, 1, 0)
	f.EmitConst(chunk.OpConst, chunk.Int(0), 1)
	f.Emit(chunk.OpLe, 1)
	rec := f.EmitJump(chunk.OpJumpIfFalse, 1)
	f.Emit(chunk.OpGetLocal, 2, 0)
	f.Emit(chunk.OpReturn, 2, 1)
	f.PatchJump(rec)
	f.EmitConst(chunk.OpGetGlobal, chunk.Str("f"), 3)
	f.Emit(chunk.OpGetLocal, 3, 0)
	f.EmitConst(chunk.OpConst, chunk.Int(1), 3)
	f.Emit(chunk.OpSub, 3)
	f.Emit(chunk.OpTailCall, 3, 1)

	main := chunk.NewProto("main")
	fi := main.AddProto(f)
	main.WriteOp(chunk.OpClosure, 1)
	main.WriteU16(uint16(fi), 1)
	main.EmitConst(chunk.OpSetGlobal, chunk.Str("f"), 1)
	main.EmitConst(chunk.OpGetGlobal, chunk.Str("f"), 2)
	main.EmitConst(chunk.OpConst, chunk.Int(100000), 2)
	main.Emit(chunk.OpCall, 2, 1, 1)
	main.Emit(chunk.OpReturn, 2, 1)

	vals := runProto(t, testHeap(), main)
	assert.Equal(t, Int(0), vals[0])
}

func TestPcallCatchesError(t *testing.T) {
	boom := chunk.NewProto("boom")
	boom.EmitConst(chunk.OpGetGlobal, chunk.Str("error"), 1)
	boom.EmitConst(chunk.OpConst, chunk.Str("kaboom"), 1)
	boom.Emit(chunk.OpCall, 1, 1, 0)
	boom.Emit(chunk.OpReturn, 1, 0)

	main := chunk.NewProto("main")
	bi := main.AddProto(boom)
	main.EmitConst(chunk.OpGetGlobal, chunk.Str("pcall"), 1)
	main.WriteOp(chunk.OpClosure, 1)
	main.WriteU16(uint16(bi), 1)
	main.Emit(chunk.OpCall, 1, 1, 2)
	main.Emit(chunk.OpReturn, 1, 2)

	vals := runProto(t, testHeap(), main)
	require.Len(t, vals, 2)
	assert.Equal(t, Bool(false), vals[0])
	assert.Equal(t, "kaboom", vals[1].AsString().Str())
}

func TestPcallSuccess(t *testing.T) {
	add1 := chunk.NewProto("add1")
	add1.NumParams = 1
	add1.NumSlots = 1
	add1.Emit(chunk.OpGetLocal, 1, 0)
	add1.EmitConst(chunk.OpConst, chunk.Int(1), 1)
	add1.Emit(chunk.OpAdd, 1)
	add1.Emit(chunk.OpReturn, 1, 1)

	main := chunk.NewProto("main")
	ai := main.AddProto(add1)
	main.EmitConst(chunk.OpGetGlobal, chunk.Str("pcall"), 1)
	main.WriteOp(chunk.OpClosure, 1)
	main.WriteU16(uint16(ai), 1)
	main.EmitConst(chunk.OpConst, chunk.Int(41), 1)
	main.Emit(chunk.OpCall, 1, 2, 2)
	main.Emit(chunk.OpReturn, 1, 2)

	vals := runProto(t, testHeap(), main)
	assert.Equal(t, []Value{Bool(true), Int(42)}, vals)
}

func TestUncaughtErrorCarriesTraceback(t *testing.T) {
	inner := chunk.NewProto("inner")
	inner.Source = "test.lum"
	inner.EmitConst(chunk.OpGetGlobal, chunk.Str("error"), 7)
	inner.EmitConst(chunk.OpConst, chunk.Str("deep failure"), 7)
	inner.Emit(chunk.OpCall, 7, 1, 0)
	inner.Emit(chunk.OpReturn, 7, 0)

	main := chunk.NewProto("main")
	main.Source = "test.lum"
	ii := main.AddProto(inner)
	main.WriteOp(chunk.OpClosure, 3)
	main.WriteU16(uint16(ii), 3)
	main.Emit(chunk.OpCall, 3, 0, 0)
	main.Emit(chunk.OpReturn, 3, 0)

	h := testHeap()
	ex := NewExecutor(h, h.NewClosure(main), nil, Options{})
	defer ex.Close()
	OpenBase(ex)
	res := ex.Step(1 << 30)
	require.Equal(t, StepErrored, res.Kind)

	var serr *ScriptError
	require.ErrorAs(t, res.Err, &serr)
	assert.Equal(t, "deep failure", serr.Error())
	require.NotEmpty(t, serr.Traceback)
	assert.Contains(t, serr.FormatTraceback(), "test.lum")
}

func TestStackOverflowIsCatchable(t *testing.T) {
	g := chunk.NewProto("g")
	g.EmitConst(chunk.OpGetGlobal, chunk.Str("g"), 1)
	g.Emit(chunk.OpCall, 1, 0, 0)
	g.Emit(chunk.OpReturn, 1, 0)

	main := chunk.NewProto("main")
	gi := main.AddProto(g)
	main.WriteOp(chunk.OpClosure, 1)
	main.WriteU16(uint16(gi), 1)
	main.EmitConst(chunk.OpSetGlobal, chunk.Str("g"), 1)
	main.EmitConst(chunk.OpGetGlobal, chunk.Str("pcall"), 2)
	main.EmitConst(chunk.OpGetGlobal, chunk.Str("g"), 2)
	main.Emit(chunk.OpCall, 2, 1, 2)
	main.Emit(chunk.OpReturn, 2, 2)

	h := testHeap()
	p := main
	ex := NewExecutor(h, h.NewClosure(p), nil, Options{MaxCallDepth: 200})
	defer ex.Close()
	OpenBase(ex)
	res := ex.Step(1 << 30)
	require.Equal(t, StepFinished, res.Kind)
	require.Len(t, res.Values, 2)
	assert.Equal(t, Bool(false), res.Values[0])
	assert.Contains(t, res.Values[1].AsString().Str(), "stack overflow")
}

func TestMetamethodIndexAndAdd(t *testing.T) {
	h := testHeap()

	main := chunk.NewProto("main")
	main.EmitConst(chunk.OpGetGlobal, chunk.Str("obj"), 1)
	main.EmitConst(chunk.OpGetField, chunk.Str("answer"), 1)
	main.EmitConst(chunk.OpGetGlobal, chunk.Str("obj"), 2)
	main.EmitConst(chunk.OpConst, chunk.Int(8), 2)
	main.Emit(chunk.OpAdd, 2)
	main.Emit(chunk.OpReturn, 2, 2)

	ex := NewExecutor(h, h.NewClosure(main), nil, Options{})
	defer ex.Close()

	obj := h.NewTable()
	mt := h.NewTable()
	indexFn := h.NewNative("__index", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		return []Value{Int(42)}, nil
	})
	addFn := h.NewNative("__add", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		b, _ := args[1].toFloat()
		return []Value{Int(34 + int64(b))}, nil
	})
	require.NoError(t, mt.Set(h, h.StringValue("__index"), indexFn))
	require.NoError(t, mt.Set(h, h.StringValue("__add"), addFn))
	obj.SetMetatable(h, mt)
	ex.SetGlobal("obj", tableVal(obj))

	res := ex.Step(1 << 30)
	require.Equal(t, StepFinished, res.Kind, "err: %v", res.Err)
	assert.Equal(t, []Value{Int(42), Int(42)}, res.Values)
}

func TestMetamethodClosureHandler(t *testing.T) {
	// __index implemented by a script closure: t[k] -> k .. "!"
	handler := chunk.NewProto("handler")
	handler.NumParams = 2
	handler.NumSlots = 2
	handler.Emit(chunk.OpGetLocal, 1, 1)
	handler.EmitConst(chunk.OpConst, chunk.Str("!"), 1)
	handler.Emit(chunk.OpConcat, 1)
	handler.Emit(chunk.OpReturn, 1, 1)

	main := chunk.NewProto("main")
	main.NumSlots = 2 // t, mt
	main.Emit(chunk.OpNewTable, 1, 0, 0)
	main.Emit(chunk.OpSetLocal, 1, 0)
	main.Emit(chunk.OpNewTable, 1, 0, 0)
	main.Emit(chunk.OpSetLocal, 1, 1)

	hi := main.AddProto(handler)
	main.Emit(chunk.OpGetLocal, 2, 1)
	main.WriteOp(chunk.OpClosure, 2)
	main.WriteU16(uint16(hi), 2)
	main.EmitConst(chunk.OpSetField, chunk.Str("__index"), 2)

	main.EmitConst(chunk.OpGetGlobal, chunk.Str("setmetatable"), 3)
	main.Emit(chunk.OpGetLocal, 3, 0)
	main.Emit(chunk.OpGetLocal, 3, 1)
	main.Emit(chunk.OpCall, 3, 2, 1)
	main.Emit(chunk.OpPop, 3)

	main.Emit(chunk.OpGetLocal, 4, 0)
	main.EmitConst(chunk.OpGetField, chunk.Str("hey"), 4)
	main.Emit(chunk.OpReturn, 4, 1)

	vals := runProto(t, testHeap(), main)
	require.Len(t, vals, 1)
	assert.Equal(t, "hey!", vals[0].AsString().Str())
}

func TestCallNonCallable(t *testing.T) {
	p := chunk.NewProto("main")
	p.EmitConst(chunk.OpConst, chunk.Int(5), 1)
	p.Emit(chunk.OpCall, 1, 0, 0)
	p.Emit(chunk.OpReturn, 1, 0)

	h := testHeap()
	ex := NewExecutor(h, h.NewClosure(p), nil, Options{})
	defer ex.Close()
	res := ex.Step(1 << 30)
	require.Equal(t, StepErrored, res.Kind)
	assert.True(t, strings.Contains(res.Err.Error(), "call"))
}

func TestNativeReentrantCall(t *testing.T) {
	// a native that calls back into a script closure synchronously
	double := chunk.NewProto("double")
	double.NumParams = 1
	double.NumSlots = 1
	double.Emit(chunk.OpGetLocal, 1, 0)
	double.EmitConst(chunk.OpConst, chunk.Int(2), 1)
	double.Emit(chunk.OpMul, 1)
	double.Emit(chunk.OpReturn, 1, 1)

	main := chunk.NewProto("main")
	di := main.AddProto(double)
	main.EmitConst(chunk.OpGetGlobal, chunk.Str("apply"), 1)
	main.WriteOp(chunk.OpClosure, 1)
	main.WriteU16(uint16(di), 1)
	main.EmitConst(chunk.OpConst, chunk.Int(21), 1)
	main.Emit(chunk.OpCall, 1, 2, 1)
	main.Emit(chunk.OpReturn, 1, 1)

	h := testHeap()
	ex := NewExecutor(h, h.NewClosure(main), nil, Options{})
	defer ex.Close()
	ex.SetGlobal("apply", h.NewNative("apply", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		return ctx.Call(args[0], args[1:])
	}))

	res := ex.Step(1 << 30)
	require.Equal(t, StepFinished, res.Kind, "err: %v", res.Err)
	assert.Equal(t, []Value{Int(42)}, res.Values)
}

func TestComparisonHugeIntAgainstFloat(t *testing.T) {
	// MaxInt64 sits just below the float 2^63; widening the int would
	// make them compare equal
	huge := chunk.Float(9223372036854775808.0)
	p := chunk.NewProto("main")
	p.EmitConst(chunk.OpConst, chunk.Int(math.MaxInt64), 1)
	p.EmitConst(chunk.OpConst, huge, 1)
	p.Emit(chunk.OpLt, 1)
	p.EmitConst(chunk.OpConst, chunk.Int(math.MaxInt64), 2)
	p.EmitConst(chunk.OpConst, huge, 2)
	p.Emit(chunk.OpEq, 2)
	p.Emit(chunk.OpReturn, 3, 2)

	vals := runProto(t, testHeap(), p)
	require.Len(t, vals, 2)
	assert.Equal(t, []Value{Bool(true), Bool(false)}, vals)
}
