package vm

import (
	"github.com/lumenvm/lumen/internal/chunk"
)

// fuelCost weights instructions so a fuel unit roughly tracks work done.
// Straight-line ops cost one; allocation and control transfers cost more.
func fuelCost(op chunk.Op) int {
	switch op {
	case chunk.OpCall, chunk.OpTailCall:
		return 4
	case chunk.OpClosure, chunk.OpNewTable:
		return 3
	case chunk.OpGetIndex, chunk.OpSetIndex, chunk.OpGetField, chunk.OpSetField,
		chunk.OpGetGlobal, chunk.OpSetGlobal, chunk.OpConcat, chunk.OpAppend:
		return 2
	case chunk.OpYield:
		return 2
	default:
		return 1
	}
}

// executeOneOp runs a single instruction of the current thread's topmost
// frame. The opcode byte has already been consumed; operands are read here.
// A non-nil StepResult means the root computation suspended or completed; a
// non-nil error starts the unwind protocol (or is a control signal from a
// native, handled upstream).
func (ex *Executor) executeOneOp(t *Thread, op chunk.Op) (*StepResult, error) {
	f := &t.frames[t.frameCount-1]
	p := f.closure.Proto
	code := p.Code

	readU8 := func() int {
		b := code[f.ip]
		f.ip++
		return int(b)
	}
	readU16 := func() int {
		v := int(code[f.ip])<<8 | int(code[f.ip+1])
		f.ip += 2
		return v
	}

	switch op {
	case chunk.OpConst:
		t.push(f.closure.consts[readU16()])

	case chunk.OpNil:
		t.push(Nil())
	case chunk.OpTrue:
		t.push(Bool(true))
	case chunk.OpFalse:
		t.push(Bool(false))

	case chunk.OpPop:
		t.pop()
	case chunk.OpDup:
		t.push(t.peek(0))

	case chunk.OpGetLocal:
		t.push(t.stack[f.base+1+readU8()])
	case chunk.OpSetLocal:
		t.stack[f.base+1+readU8()] = t.pop()

	case chunk.OpGetGlobal:
		key := f.closure.consts[readU16()]
		return ex.getIndex(t, tableVal(ex.globals), key)
	case chunk.OpSetGlobal:
		key := f.closure.consts[readU16()]
		v := t.pop()
		return ex.setIndex(t, tableVal(ex.globals), key, v)

	case chunk.OpGetUpvalue:
		t.push(f.closure.Upvalues[readU8()].Get())
	case chunk.OpSetUpvalue:
		f.closure.Upvalues[readU8()].Set(ex.heap, t.pop())
	case chunk.OpCloseUpvalues:
		t.closeUpvalues(ex.heap, f.base+1+readU8())

	case chunk.OpAdd, chunk.OpSub, chunk.OpMul, chunk.OpDiv,
		chunk.OpIDiv, chunk.OpMod, chunk.OpPow, chunk.OpNeg:
		return ex.arith(t, op)

	case chunk.OpEq, chunk.OpNe:
		return ex.equality(t, op)
	case chunk.OpLt, chunk.OpLe, chunk.OpGt, chunk.OpGe:
		return ex.compare(t, op)

	case chunk.OpNot:
		t.push(Bool(!t.pop().Truthy()))

	case chunk.OpLen:
		return ex.length(t)
	case chunk.OpConcat:
		return ex.concat(t)

	case chunk.OpJump:
		f.ip += readU16()
	case chunk.OpJumpIfFalse:
		off := readU16()
		if !t.pop().Truthy() {
			f.ip += off
		}
	case chunk.OpLoop:
		f.ip -= readU16()

	case chunk.OpNewTable:
		narr := readU8()
		nhash := readU8()
		t.push(tableVal(ex.heap.NewTableSize(narr, nhash)))

	case chunk.OpGetIndex:
		key := t.pop()
		obj := t.pop()
		return ex.getIndex(t, obj, key)
	case chunk.OpSetIndex:
		v := t.pop()
		key := t.pop()
		obj := t.pop()
		return ex.setIndex(t, obj, key, v)

	case chunk.OpGetField:
		key := f.closure.consts[readU16()]
		obj := t.pop()
		return ex.getIndex(t, obj, key)
	case chunk.OpSetField:
		key := f.closure.consts[readU16()]
		v := t.pop()
		obj := t.pop()
		return ex.setIndex(t, obj, key, v)

	case chunk.OpAppend:
		n := readU8()
		if byte(n) == chunk.MultRet {
			if f.resultsBase < 0 || f.resultsBase > t.sp {
				return nil, ex.runtimeError("no open result window")
			}
			n = t.sp - f.resultsBase
		}
		base := t.sp - n
		tb := t.stack[base-1].AsTable()
		if tb == nil {
			return nil, ex.typeError("append to", t.stack[base-1])
		}
		at := int64(tb.ArrayLen())
		for i := 0; i < n; i++ {
			at++
			if err := tb.Set(ex.heap, Int(at), t.stack[base+i]); err != nil {
				return nil, ex.runtimeError("%s", err)
			}
		}
		t.setTop(base)

	case chunk.OpClosure:
		sub := p.Protos[readU16()]
		c := ex.heap.NewClosure(sub)
		for i, ud := range sub.Upvals {
			if ud.InStack {
				c.Upvalues[i] = t.captureUpvalue(ex.heap, f.base+1+int(ud.Index))
			} else {
				c.Upvalues[i] = f.closure.Upvalues[ud.Index]
			}
		}
		ex.heap.WriteBarrier(c)
		t.push(closureVal(c))

	case chunk.OpCall:
		argcB := readU8()
		nretB := readU8()
		argc, base, err := ex.callWindow(t, f, argcB)
		if err != nil {
			return nil, err
		}
		want := int(nretB)
		if byte(nretB) == chunk.MultRet {
			want = wantMulti
		}
		return ex.call(t, base, argc, want, false, shapeNone)

	case chunk.OpTailCall:
		argcB := readU8()
		argc, base, err := ex.callWindow(t, f, argcB)
		if err != nil {
			return nil, err
		}
		top := frame{}
		top, t.frames = t.frames[t.frameCount-1], t.frames[:t.frameCount-1]
		t.frameCount--
		t.closeUpvalues(ex.heap, top.base)
		copy(t.stack[top.base:], t.stack[base:t.sp])
		newSp := top.base + 1 + argc
		for i := newSp; i < t.sp; i++ {
			t.stack[i] = Nil()
		}
		t.sp = newSp
		sr, err := ex.call(t, top.base, argc, top.want, top.protected, top.shape)
		if err != nil {
			// the boundary frame is gone; re-raise in the caller
			return sr, err
		}
		return sr, nil

	case chunk.OpReturn:
		nB := readU8()
		var vals []Value
		if byte(nB) == chunk.MultRet {
			if f.resultsBase < 0 || f.resultsBase > t.sp {
				return nil, ex.runtimeError("no open result window")
			}
			vals = make([]Value, t.sp-f.resultsBase)
			copy(vals, t.stack[f.resultsBase:t.sp])
		} else {
			vals = make([]Value, nB)
			copy(vals, t.stack[t.sp-nB:t.sp])
		}
		return ex.returnFromFrame(t, vals), nil

	case chunk.OpVararg:
		nB := readU8()
		if byte(nB) == chunk.MultRet {
			base := t.sp
			for _, v := range f.varargs {
				t.push(v)
			}
			f.resultsBase = base
		} else {
			for i := 0; i < nB; i++ {
				if i < len(f.varargs) {
					t.push(f.varargs[i])
				} else {
					t.push(Nil())
				}
			}
		}

	case chunk.OpYield:
		argcB := readU8()
		nretB := readU8()
		argc := argcB
		if byte(argcB) == chunk.MultRet {
			if f.resultsBase < 0 || f.resultsBase > t.sp {
				return nil, ex.runtimeError("no open result window")
			}
			argc = t.sp - f.resultsBase
		}
		want := int(nretB)
		if byte(nretB) == chunk.MultRet {
			want = wantMulti
		}
		vals := make([]Value, argc)
		copy(vals, t.stack[t.sp-argc:t.sp])
		t.setTop(t.sp - argc)
		t.dest = retDest{base: t.sp, want: want, mode: destRaw}
		return ex.doYield(t, vals)

	default:
		return nil, ex.runtimeError("invalid opcode %d", byte(op))
	}
	return nil, nil
}

// callWindow decodes an argc operand into a concrete argument count and the
// function slot. A MultRet argc consumes the open result window, whose first
// value sits just above the callee.
func (ex *Executor) callWindow(t *Thread, f *frame, argcB int) (argc, base int, err error) {
	if byte(argcB) == chunk.MultRet {
		if f.resultsBase < 1 || f.resultsBase > t.sp {
			return 0, 0, ex.runtimeError("no open result window")
		}
		argc = t.sp - f.resultsBase
		return argc, f.resultsBase - 1, nil
	}
	return argcB, t.sp - argcB - 1, nil
}
