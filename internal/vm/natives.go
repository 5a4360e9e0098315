package vm

import (
	"fmt"

	"github.com/lumenvm/lumen/internal/chunk"
)

// NativeCtx is handed to every native callback. It exposes the executor's
// state and the control-transfer verbs available to natives: yield, tail
// call, protected call and coroutine resume all return sentinel errors that
// the native passes back through its ordinary return path, which keeps the
// machine stackless across host boundaries.
type NativeCtx struct {
	ex   *Executor
	t    *Thread
	base int
	want int
}

// Heap returns the heap of the running executor.
func (c *NativeCtx) Heap() *Heap { return c.ex.heap }

// Globals returns the executor's global table.
func (c *NativeCtx) Globals() *Table { return c.ex.globals }

// Thread returns the thread the native was called on.
func (c *NativeCtx) Thread() *Thread { return c.t }

// Executor returns the running executor.
func (c *NativeCtx) Executor() *Executor { return c.ex }

// Yield suspends the whole current thread with the given values. Use as
// `return ctx.Yield(vals)`; the values the next resume passes in become the
// native call's results.
func (c *NativeCtx) Yield(values []Value) ([]Value, error) {
	return nil, &yieldSignal{values: append([]Value(nil), values...)}
}

// TailCall replaces the native invocation with a call to fn. The callee's
// results become the native call's results without the native staying on
// the call chain, so yields inside fn suspend cleanly.
func (c *NativeCtx) TailCall(fn Value, args []Value) ([]Value, error) {
	return nil, &tailSignal{fn: fn, args: append([]Value(nil), args...)}
}

// ProtectedCall is TailCall with an error boundary: the callee's results
// arrive as (true, results...) and any error inside it as (false, errval).
func (c *NativeCtx) ProtectedCall(fn Value, args []Value) ([]Value, error) {
	return nil, &tailSignal{fn: fn, args: append([]Value(nil), args...), protected: true}
}

// Resume transfers control into a coroutine; the native's results become
// (true, yielded...) on success or (false, errval) on failure, the
// in-script resume shape.
func (c *NativeCtx) Resume(co *Thread, args []Value) ([]Value, error) {
	return nil, &resumeSignal{co: co, args: append([]Value(nil), args...), mode: destBool}
}

// ResumeRaw is Resume without the status flag: yielded values come back
// raw and errors inside the coroutine re-raise at the call site.
func (c *NativeCtx) ResumeRaw(co *Thread, args []Value) ([]Value, error) {
	return nil, &resumeSignal{co: co, args: append([]Value(nil), args...), mode: destRaw}
}

// Errorf raises a script error with a formatted string payload.
func (c *NativeCtx) Errorf(format string, args ...any) error {
	return &ScriptError{Value: c.ex.heap.StringValue(fmt.Sprintf(format, args...))}
}

// RaiseValue raises a script error carrying an arbitrary value payload.
func (c *NativeCtx) RaiseValue(v Value) error {
	return &ScriptError{Value: v}
}

// Call invokes a callable from inside a native and runs it to completion
// before returning, reentering the interpreter on the same thread. Yielding
// across this boundary is not possible; scripts that try get an error.
// Execution here is not metered against the host's fuel budget.
func (c *NativeCtx) Call(fn Value, args []Value) ([]Value, error) {
	ex, t := c.ex, c.t
	if ex.fatal != nil {
		return nil, ex.fatal
	}
	ex.nestedRun++
	defer func() { ex.nestedRun-- }()

	base := t.sp
	t.push(fn)
	for _, a := range args {
		t.push(a)
	}
	mark := t.frameCount

	sr, err := ex.call(t, base, len(args), wantMulti, true, shapeNone)
	if err != nil {
		// raised before any frame went up, e.g. calling a non-callable
		t.setTop(base)
		return nil, ex.asScriptError(t, err)
	}
	if sr != nil {
		panic("nested call escaped its thread")
	}

	for t.frameCount > mark {
		f := &t.frames[t.frameCount-1]
		code := f.closure.Proto.Code
		if f.ip >= len(code) {
			if sr := ex.returnFromFrame(t, nil); sr != nil {
				panic("nested call escaped its thread")
			}
			continue
		}
		op := chunk.Op(code[f.ip])
		f.ip++
		sr, err := ex.executeOneOp(t, op)
		if err != nil {
			if sr2 := ex.handleError(t, err); sr2 != nil {
				panic("nested call escaped its thread")
			}
			continue
		}
		if sr != nil {
			panic("nested call escaped its thread")
		}
	}

	// the protected window at base holds (true, results...) or (false, err)
	out := make([]Value, t.sp-base)
	copy(out, t.stack[base:t.sp])
	t.setTop(base)
	if len(out) == 0 || !out[0].Truthy() {
		var ev Value
		if len(out) > 1 {
			ev = out[1]
		}
		return nil, &ScriptError{Value: ev}
	}
	return out[1:], nil
}
