package vm

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// OpenBase installs the base library and the coroutine table into the
// executor's globals.
func OpenBase(ex *Executor) {
	h := ex.heap
	g := ex.globals

	reg := func(tb *Table, name string, fn NativeFn) {
		_ = tb.Set(h, h.StringValue(name), h.NewNative(name, fn))
	}

	reg(g, "type", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return nil, ctx.Errorf("bad argument #1 to 'type' (value expected)")
		}
		return []Value{ctx.Heap().StringValue(args[0].Kind().String())}, nil
	})

	reg(g, "tostring", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return nil, ctx.Errorf("bad argument #1 to 'tostring' (value expected)")
		}
		v := args[0]
		if handler := ctx.Heap().metaField(v, mmToString); !handler.IsNil() {
			res, err := ctx.Call(handler, []Value{v})
			if err != nil {
				return nil, err
			}
			if len(res) > 0 {
				return res[:1], nil
			}
			return []Value{Nil()}, nil
		}
		return []Value{ctx.Heap().StringValue(ToString(v))}, nil
	})

	reg(g, "tonumber", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return []Value{Nil()}, nil
		}
		if len(args) >= 2 && !args[1].IsNil() {
			base, ok := args[1].toFloat()
			if !ok || base < 2 || base > 36 {
				return nil, ctx.Errorf("bad argument #2 to 'tonumber' (base out of range)")
			}
			s := args[0].AsString()
			if s == nil {
				return nil, ctx.Errorf("bad argument #1 to 'tonumber' (string expected)")
			}
			n, err := strconv.ParseInt(strings.TrimSpace(s.Str()), int(base), 64)
			if err != nil {
				return []Value{Nil()}, nil
			}
			return []Value{Int(n)}, nil
		}
		if n, ok := coerceNumber(args[0]); ok {
			return []Value{n}, nil
		}
		return []Value{Nil()}, nil
	})

	reg(g, "rawget", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		tb, err := tableArg(ctx, args, 0, "rawget")
		if err != nil {
			return nil, err
		}
		if len(args) < 2 {
			return nil, ctx.Errorf("bad argument #2 to 'rawget' (value expected)")
		}
		return []Value{tb.Get(args[1])}, nil
	})

	reg(g, "rawset", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		tb, err := tableArg(ctx, args, 0, "rawset")
		if err != nil {
			return nil, err
		}
		if len(args) < 3 {
			return nil, ctx.Errorf("bad argument #3 to 'rawset' (value expected)")
		}
		if err := tb.Set(ctx.Heap(), args[1], args[2]); err != nil {
			return nil, ctx.Errorf("%s", err)
		}
		return args[:1], nil
	})

	reg(g, "rawequal", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		var a, b Value
		if len(args) > 0 {
			a = args[0]
		}
		if len(args) > 1 {
			b = args[1]
		}
		return []Value{Bool(a.Equals(b))}, nil
	})

	reg(g, "rawlen", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		if len(args) > 0 {
			if s := args[0].AsString(); s != nil {
				return []Value{Int(int64(s.Len()))}, nil
			}
			if tb := args[0].AsTable(); tb != nil {
				return []Value{Int(tb.Len())}, nil
			}
		}
		return nil, ctx.Errorf("table or string expected")
	})

	reg(g, "setmetatable", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		tb, err := tableArg(ctx, args, 0, "setmetatable")
		if err != nil {
			return nil, err
		}
		var mt *Table
		if len(args) > 1 && !args[1].IsNil() {
			if mt = args[1].AsTable(); mt == nil {
				return nil, ctx.Errorf("bad argument #2 to 'setmetatable' (nil or table expected)")
			}
		}
		tb.SetMetatable(ctx.Heap(), mt)
		return args[:1], nil
	})

	reg(g, "getmetatable", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return []Value{Nil()}, nil
		}
		mt := metatableOf(args[0])
		if mt == nil {
			return []Value{Nil()}, nil
		}
		return []Value{tableVal(mt)}, nil
	})

	reg(g, "error", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		var v Value
		if len(args) > 0 {
			v = args[0]
		}
		return nil, ctx.RaiseValue(v)
	})

	reg(g, "assert", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		if len(args) == 0 || !args[0].Truthy() {
			if len(args) > 1 {
				return nil, ctx.RaiseValue(args[1])
			}
			return nil, ctx.Errorf("assertion failed!")
		}
		return args, nil
	})

	reg(g, "pcall", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return nil, ctx.Errorf("bad argument #1 to 'pcall' (value expected)")
		}
		return ctx.ProtectedCall(args[0], args[1:])
	})

	reg(g, "select", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return nil, ctx.Errorf("bad argument #1 to 'select' (number expected)")
		}
		if s := args[0].AsString(); s != nil && s.Str() == "#" {
			return []Value{Int(int64(len(args) - 1))}, nil
		}
		n, ok := args[0].toFloat()
		if !ok {
			return nil, ctx.Errorf("bad argument #1 to 'select' (number expected)")
		}
		i := int(n)
		switch {
		case i > 0:
			if i >= len(args) {
				return nil, nil
			}
			return args[i:], nil
		case i < 0:
			if -i > len(args)-1 {
				return nil, ctx.Errorf("bad argument #1 to 'select' (index out of range)")
			}
			return args[len(args)+i:], nil
		}
		return nil, ctx.Errorf("bad argument #1 to 'select' (index out of range)")
	})

	nextFn := h.NewNative("next", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		tb, err := tableArg(ctx, args, 0, "next")
		if err != nil {
			return nil, err
		}
		var k Value
		if len(args) > 1 {
			k = args[1]
		}
		nk, nv, nerr := tb.Next(k)
		if nerr != nil {
			return nil, ctx.Errorf("invalid key to 'next'")
		}
		if nk.IsNil() {
			return []Value{Nil()}, nil
		}
		return []Value{nk, nv}, nil
	})
	_ = g.Set(h, h.StringValue("next"), nextFn)

	pairsFn := h.NewNativeBound("pairs", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		if _, err := tableArg(ctx, args, 0, "pairs"); err != nil {
			return nil, err
		}
		return []Value{nextFn, args[0], Nil()}, nil
	}, nextFn)
	_ = g.Set(h, h.StringValue("pairs"), pairsFn)

	inext := h.NewNative("inext", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		tb, err := tableArg(ctx, args, 0, "inext")
		if err != nil {
			return nil, err
		}
		i := int64(1)
		if len(args) > 1 && args[1].IsInt() {
			i = args[1].AsInt() + 1
		}
		v := tb.Get(Int(i))
		if v.IsNil() {
			return []Value{Nil()}, nil
		}
		return []Value{Int(i), v}, nil
	})

	ipairsFn := h.NewNativeBound("ipairs", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		if _, err := tableArg(ctx, args, 0, "ipairs"); err != nil {
			return nil, err
		}
		return []Value{inext, args[0], Int(0)}, nil
	}, inext)
	_ = g.Set(h, h.StringValue("ipairs"), ipairsFn)

	reg(g, "unpack", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		tb, err := tableArg(ctx, args, 0, "unpack")
		if err != nil {
			return nil, err
		}
		n := tb.Len()
		out := make([]Value, 0, n)
		for i := int64(1); i <= n; i++ {
			out = append(out, tb.Get(Int(i)))
		}
		return out, nil
	})

	reg(g, "print", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		parts := make([]string, len(args))
		for i, v := range args {
			parts[i] = ToString(v)
		}
		fmt.Fprintln(os.Stdout, strings.Join(parts, "\t"))
		return nil, nil
	})

	// coroutine table

	co := h.NewTable()
	_ = g.Set(h, h.StringValue("coroutine"), tableVal(co))

	reg(co, "create", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		fn := closureArg(ctx, args, 0)
		if fn == nil {
			return nil, ctx.Errorf("bad argument #1 to 'create' (function expected)")
		}
		return []Value{threadVal(ctx.Heap().NewThread(fn))}, nil
	})

	reg(co, "resume", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		if len(args) == 0 || args[0].AsThread() == nil {
			return nil, ctx.Errorf("bad argument #1 to 'resume' (coroutine expected)")
		}
		return ctx.Resume(args[0].AsThread(), args[1:])
	})

	reg(co, "yield", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		return ctx.Yield(args)
	})

	reg(co, "status", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		if len(args) == 0 || args[0].AsThread() == nil {
			return nil, ctx.Errorf("bad argument #1 to 'status' (coroutine expected)")
		}
		return []Value{ctx.Heap().StringValue(args[0].AsThread().Status().String())}, nil
	})

	reg(co, "wrap", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		fn := closureArg(ctx, args, 0)
		if fn == nil {
			return nil, ctx.Errorf("bad argument #1 to 'wrap' (function expected)")
		}
		th := ctx.Heap().NewThread(fn)
		wrapped := func(ctx *NativeCtx, args []Value) ([]Value, error) {
			return ctx.ResumeRaw(th, args)
		}
		return []Value{ctx.Heap().NewNativeBound("wrapped", wrapped, threadVal(th))}, nil
	})

	reg(co, "isyieldable", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		t := ctx.Thread()
		yieldable := ctx.Executor().nestedRun == 0 && !(t.isMain && t.resumer == nil)
		return []Value{Bool(yieldable)}, nil
	})

	reg(co, "running", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		t := ctx.Thread()
		return []Value{threadVal(t), Bool(t.isMain)}, nil
	})
}

func tableArg(ctx *NativeCtx, args []Value, i int, fname string) (*Table, error) {
	if i < len(args) {
		if tb := args[i].AsTable(); tb != nil {
			return tb, nil
		}
	}
	return nil, ctx.Errorf("bad argument #%d to '%s' (table expected)", i+1, fname)
}

func closureArg(ctx *NativeCtx, args []Value, i int) *Closure {
	if i < len(args) {
		return args[i].AsClosure()
	}
	return nil
}
