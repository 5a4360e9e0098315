package vm

import (
	"math"
	"math/rand"
	"time"
)

// OpenMath installs the math table into the executor's globals.
func OpenMath(ex *Executor) {
	h := ex.heap
	m := h.NewTable()
	_ = ex.globals.Set(h, h.StringValue("math"), tableVal(m))

	reg := func(name string, fn NativeFn) {
		_ = m.Set(h, h.StringValue(name), h.NewNative(name, fn))
	}
	set := func(name string, v Value) {
		_ = m.Set(h, h.StringValue(name), v)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	set("pi", Float(math.Pi))
	set("huge", Float(math.Inf(1)))
	set("maxinteger", Int(math.MaxInt64))
	set("mininteger", Int(math.MinInt64))

	reg("abs", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		if len(args) > 0 && args[0].IsInt() {
			i := args[0].AsInt()
			if i < 0 {
				i = -i
			}
			return []Value{Int(i)}, nil
		}
		f, err := floatArg(ctx, args, 0, "abs")
		if err != nil {
			return nil, err
		}
		return []Value{Float(math.Abs(f))}, nil
	})

	float1 := func(name string, f func(float64) float64) {
		reg(name, func(ctx *NativeCtx, args []Value) ([]Value, error) {
			x, err := floatArg(ctx, args, 0, name)
			if err != nil {
				return nil, err
			}
			return []Value{Float(f(x))}, nil
		})
	}
	float1("acos", math.Acos)
	float1("asin", math.Asin)
	float1("cos", math.Cos)
	float1("sin", math.Sin)
	float1("tan", math.Tan)
	float1("exp", math.Exp)
	float1("sqrt", math.Sqrt)
	float1("log", math.Log)
	float1("log10", math.Log10)
	float1("deg", func(x float64) float64 { return x * 180 / math.Pi })
	float1("rad", func(x float64) float64 { return x * math.Pi / 180 })

	reg("atan", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		a, err := floatArg(ctx, args, 0, "atan")
		if err != nil {
			return nil, err
		}
		if len(args) > 1 && !args[1].IsNil() {
			b, err := floatArg(ctx, args, 1, "atan")
			if err != nil {
				return nil, err
			}
			return []Value{Float(math.Atan2(a, b))}, nil
		}
		return []Value{Float(math.Atan(a))}, nil
	})

	// floor and ceil collapse to an integer when the result is exact
	round1 := func(name string, f func(float64) float64) {
		reg(name, func(ctx *NativeCtx, args []Value) ([]Value, error) {
			if len(args) > 0 && args[0].IsInt() {
				return args[:1], nil
			}
			x, err := floatArg(ctx, args, 0, name)
			if err != nil {
				return nil, err
			}
			r := f(x)
			if i, ok := exactInt(r); ok {
				return []Value{Int(i)}, nil
			}
			return []Value{Float(r)}, nil
		})
	}
	round1("floor", math.Floor)
	round1("ceil", math.Ceil)

	reg("fmod", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		f, err := floatArg(ctx, args, 0, "fmod")
		if err != nil {
			return nil, err
		}
		g, err := floatArg(ctx, args, 1, "fmod")
		if err != nil {
			return nil, err
		}
		r := math.Abs(math.Mod(f, g))
		if f < 0 {
			r = -r
		}
		return []Value{Float(r)}, nil
	})

	reg("modf", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		f, err := floatArg(ctx, args, 0, "modf")
		if err != nil {
			return nil, err
		}
		return []Value{Int(int64(f)), Float(math.Mod(f, 1))}, nil
	})

	numLt := func(a, b Value) bool {
		switch {
		case a.IsInt() && b.IsInt():
			return a.AsInt() < b.AsInt()
		case a.IsFloat() && b.IsFloat():
			return a.AsFloat() < b.AsFloat()
		}
		return numLess(a, b)
	}
	minmax := func(name string, takeRight func(l, r Value) bool) {
		reg(name, func(ctx *NativeCtx, args []Value) ([]Value, error) {
			if len(args) == 0 {
				return nil, ctx.Errorf("bad argument #1 to '%s' (value expected)", name)
			}
			best := args[0]
			if !best.IsNumber() {
				return nil, ctx.Errorf("bad argument #1 to '%s' (number expected)", name)
			}
			for i, v := range args[1:] {
				if !v.IsNumber() {
					return nil, ctx.Errorf("bad argument #%d to '%s' (number expected)", i+2, name)
				}
				if takeRight(best, v) {
					best = v
				}
			}
			return []Value{best}, nil
		})
	}
	minmax("max", func(l, r Value) bool { return numLt(l, r) })
	minmax("min", func(l, r Value) bool { return numLt(r, l) })

	reg("random", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		switch len(args) {
		case 0:
			return []Value{Float(rng.Float64())}, nil
		case 1:
			a, err := intArg(ctx, args, 0, "random")
			if err != nil {
				return nil, err
			}
			if a < 1 {
				return nil, ctx.Errorf("bad argument #1 to 'random' (interval is empty)")
			}
			return []Value{Int(1 + rng.Int63n(a))}, nil
		default:
			a, err := intArg(ctx, args, 0, "random")
			if err != nil {
				return nil, err
			}
			b, err := intArg(ctx, args, 1, "random")
			if err != nil {
				return nil, err
			}
			if a > b {
				return nil, ctx.Errorf("bad argument #2 to 'random' (interval is empty)")
			}
			return []Value{Int(a + rng.Int63n(b-a+1))}, nil
		}
	})

	reg("randomseed", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		seed, err := intArg(ctx, args, 0, "randomseed")
		if err != nil {
			return nil, err
		}
		rng.Seed(seed)
		return nil, nil
	})

	reg("tointeger", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		if len(args) > 0 {
			if v, ok := toInteger(args[0]); ok {
				return []Value{v}, nil
			}
		}
		return []Value{Nil()}, nil
	})

	reg("type", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		if len(args) > 0 {
			switch args[0].Kind() {
			case ValInt:
				return []Value{ctx.Heap().StringValue("integer")}, nil
			case ValFloat:
				return []Value{ctx.Heap().StringValue("float")}, nil
			}
		}
		return []Value{Nil()}, nil
	})

	reg("ult", func(ctx *NativeCtx, args []Value) ([]Value, error) {
		a, err := intArg(ctx, args, 0, "ult")
		if err != nil {
			return nil, err
		}
		b, err := intArg(ctx, args, 1, "ult")
		if err != nil {
			return nil, err
		}
		return []Value{Bool(uint64(a) < uint64(b))}, nil
	})
}

// toInteger converts a value to an integer when it represents one exactly.
func toInteger(v Value) (Value, bool) {
	n, ok := coerceNumber(v)
	if !ok {
		return Nil(), false
	}
	if n.IsInt() {
		return n, true
	}
	if i, ok := exactInt(n.AsFloat()); ok {
		return Int(i), true
	}
	return Nil(), false
}

func floatArg(ctx *NativeCtx, args []Value, i int, fname string) (float64, error) {
	if i < len(args) {
		if n, ok := coerceNumber(args[i]); ok {
			f, _ := n.toFloat()
			return f, nil
		}
	}
	return 0, ctx.Errorf("bad argument #%d to '%s' (number expected)", i+1, fname)
}

func intArg(ctx *NativeCtx, args []Value, i int, fname string) (int64, error) {
	if i < len(args) {
		if v, ok := toInteger(args[i]); ok {
			return v.AsInt(), nil
		}
	}
	return 0, ctx.Errorf("bad argument #%d to '%s' (number expected)", i+1, fname)
}
