package vm

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lumenvm/lumen/internal/chunk"
)

// Default resource limits, overridable per executor.
const (
	DefaultMaxStack = 1 << 20 // value stack slots per thread
	DefaultMaxDepth = 4096    // call frames per thread
)

// Options tunes a new executor.
type Options struct {
	// MaxCallDepth bounds the frame store of every thread (0 = default).
	MaxCallDepth int
	// MaxStackSlots bounds the value stack of every thread (0 = default).
	MaxStackSlots int
	// Logger receives scheduling diagnostics. Zero value disables logging.
	Logger zerolog.Logger
}

// StepKind classifies the outcome of one Step call.
type StepKind uint8

const (
	// StepPending: fuel ran out; call Step again to continue.
	StepPending StepKind = iota
	// StepFinished: the armed computation returned.
	StepFinished
	// StepYielded: the armed coroutine yielded to the host.
	StepYielded
	// StepErrored: the computation failed with an unrecovered error.
	StepErrored
)

// StepResult is what one fuel-bounded execution slice produced.
type StepResult struct {
	Kind   StepKind
	Values []Value
	Err    error
}

// ResumeKind classifies the outcome of a run-to-suspension Resume call.
type ResumeKind uint8

const (
	ResumeReturned ResumeKind = iota
	ResumeYielded
	ResumeErrored
)

// ResumeResult is the outcome of resuming a coroutine to its next
// suspension point.
type ResumeResult struct {
	Kind   ResumeKind
	Values []Value
	Err    error
}

// Executor drives a chain of calls to completion or suspension. It owns the
// globals table and the main thread, schedules coroutines cooperatively, and
// meters execution in fuel units so the host can bound CPU per call.
//
// An executor is single-threaded in every sense: nothing here is safe for
// concurrent use, by design.
type Executor struct {
	id   uuid.UUID
	heap *Heap
	log  zerolog.Logger

	globals *Table
	main    *Thread

	// current is the running thread, nil while idle.
	current *Thread
	// root is the thread the host armed; its yield/return/error surfaces
	// through Step.
	root *Thread

	// nestedRun counts reentrant native-driven calls in progress; yields
	// are rejected while it is nonzero.
	nestedRun int

	// errValue holds the error payload while an unwind is in progress, so
	// the collector can't reclaim it mid-unwind.
	errValue Value

	maxDepth int
	maxStack int

	fatal error
}

// NewExecutor wraps a closure and its arguments into a ready-to-step
// computation over the given heap. The executor registers itself as a heap
// root; call Close when discarding it before the heap.
func NewExecutor(h *Heap, entry *Closure, args []Value, opts Options) *Executor {
	if opts.MaxCallDepth <= 0 {
		opts.MaxCallDepth = DefaultMaxDepth
	}
	if opts.MaxStackSlots <= 0 {
		opts.MaxStackSlots = DefaultMaxStack
	}
	ex := &Executor{
		id:       uuid.New(),
		heap:     h,
		log:      opts.Logger,
		globals:  h.NewTable(),
		maxDepth: opts.MaxCallDepth,
		maxStack: opts.MaxStackSlots,
	}
	ex.main = h.NewThread(entry)
	ex.main.isMain = true
	ex.adopt(ex.main)
	ex.main.transfer = append([]Value(nil), args...)
	ex.root = ex.main
	ex.current = ex.main
	h.AddRoot(ex)
	ex.log.Debug().Str("executor", ex.id.String()).Msg("executor created")
	return ex
}

// Close unregisters the executor from the heap's root set. The executor
// must not be used afterwards.
func (ex *Executor) Close() {
	ex.heap.RemoveRoot(ex)
	ex.fatal = ErrExecutorDead
}

// ID returns the executor's identity, used in log correlation.
func (ex *Executor) ID() uuid.UUID { return ex.id }

// Heap returns the heap this executor allocates from.
func (ex *Executor) Heap() *Heap { return ex.heap }

// Globals returns the executor's global table.
func (ex *Executor) Globals() *Table { return ex.globals }

// MainThread returns the executor's main thread.
func (ex *Executor) MainThread() *Thread { return ex.main }

// SetGlobal stores a value in the globals table under a string name.
func (ex *Executor) SetGlobal(name string, v Value) {
	_ = ex.globals.Set(ex.heap, ex.heap.StringValue(name), v)
}

// GetGlobal reads a global by name (raw access).
func (ex *Executor) GetGlobal(name string) Value {
	return ex.globals.Get(ex.heap.StringValue(name))
}

// TraceRoots implements Rooter: everything the executor holds live.
func (ex *Executor) TraceRoots(h *Heap) {
	h.markObject(ex.globals)
	h.markObject(ex.main)
	if ex.root != nil {
		h.markObject(ex.root)
	}
	if ex.current != nil {
		h.markObject(ex.current)
	}
	h.markValue(ex.errValue)
}

// adopt applies the executor's resource limits to a thread.
func (ex *Executor) adopt(t *Thread) {
	t.maxStack = ex.maxStack
	t.maxDepth = ex.maxDepth
}

// Step runs the armed computation for up to fuel units. It returns Pending
// with all state intact when the budget runs out; execution resumes exactly
// where it left off on the next call.
func (ex *Executor) Step(fuel int) (res StepResult) {
	if ex.fatal != nil {
		return StepResult{Kind: StepErrored, Err: ex.fatal}
	}
	if ex.current == nil {
		return StepResult{Kind: StepErrored, Err: ErrExecutorIdle}
	}
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok && err == ErrHeapExhausted {
				ex.fatal = err
				res = StepResult{Kind: StepErrored, Err: err}
				return
			}
			if _, ok := r.(stackOverflow); ok {
				if sr := ex.handleError(ex.current, ex.runtimeError("stack overflow")); sr != nil {
					res = *sr
					return
				}
				// caught by a protected call; continue on the next Step
				res = StepResult{Kind: StepPending}
				return
			}
			panic(r)
		}
	}()
	return ex.pump(&fuel)
}

// Resume transitions a suspended (or not-started) coroutine to running and
// drives it to its next suspension point with unbounded fuel. Protocol
// violations (dead or already-running coroutine, busy executor) are
// reported to the caller without touching any script state.
func (ex *Executor) Resume(t *Thread, args []Value) ResumeResult {
	if err := ex.Arm(t, args); err != nil {
		return ResumeResult{Kind: ResumeErrored, Err: err}
	}
	for {
		sr := ex.Step(math.MaxInt / 2)
		switch sr.Kind {
		case StepPending:
			continue
		case StepFinished:
			return ResumeResult{Kind: ResumeReturned, Values: sr.Values}
		case StepYielded:
			return ResumeResult{Kind: ResumeYielded, Values: sr.Values}
		default:
			return ResumeResult{Kind: ResumeErrored, Err: sr.Err}
		}
	}
}

// Arm prepares a coroutine as the executor's computation without running
// it, so the host can drive it with fuel-bounded Step calls.
func (ex *Executor) Arm(t *Thread, args []Value) error {
	if ex.fatal != nil {
		return ex.fatal
	}
	if ex.current != nil {
		return ErrExecutorBusy
	}
	switch t.status {
	case StatusDead:
		return ErrDeadCoroutine
	case StatusRunning, StatusNormal:
		return ErrRunningCoroutine
	}
	ex.adopt(t)
	t.transfer = append([]Value(nil), args...)
	t.resumer = nil
	ex.root = t
	ex.current = t
	return nil
}

// pump is the trampoline: it executes instructions of the current thread's
// topmost frame one at a time, handling calls, returns, yields, resumes and
// errors as explicit state transitions, until fuel runs out or the root
// computation suspends or completes.
func (ex *Executor) pump(fuel *int) StepResult {
	for {
		if *fuel <= 0 {
			return StepResult{Kind: StepPending}
		}
		t := ex.current
		if t.status != StatusRunning {
			if sr := ex.activate(t); sr != nil {
				return *sr
			}
			continue
		}

		f := &t.frames[t.frameCount-1]
		code := f.closure.Proto.Code
		if f.ip >= len(code) {
			// control fell off the end: implicit return of no values
			if sr := ex.returnFromFrame(t, nil); sr != nil {
				return *sr
			}
			continue
		}
		op := chunk.Op(code[f.ip])
		f.ip++
		*fuel -= fuelCost(op)

		sr, err := ex.executeOneOp(t, op)
		if err != nil {
			if sr2 := ex.handleError(t, err); sr2 != nil {
				return *sr2
			}
			continue
		}
		if sr != nil {
			return *sr
		}
	}
}

// activate delivers pending transfer values into a thread that is about to
// run: a first frame for a not-started thread, resume values to the
// suspension point otherwise.
func (ex *Executor) activate(t *Thread) *StepResult {
	args := t.transfer
	t.transfer = nil
	switch t.status {
	case StatusNotStarted:
		t.status = StatusRunning
		t.push(closureVal(t.entry))
		for _, a := range args {
			t.push(a)
		}
		if err := ex.pushFrame(t, 0, len(args), wantMulti, false, shapeNone); err != nil {
			return ex.handleError(t, err)
		}
	case StatusSuspended:
		t.status = StatusRunning
		return ex.deliverResume(t, true, args, Nil())
	default:
		// resumed threads are set Running by the scheduler before control
		// returns here; anything else is a bug
		panic(fmt.Sprintf("activate: thread in state %v", t.status))
	}
	return nil
}

// deliverResume lands values (or a failure) at a thread's recorded
// suspension destination.
func (ex *Executor) deliverResume(t *Thread, ok bool, vals []Value, errVal Value) *StepResult {
	d := t.dest
	switch d.mode {
	case destBool:
		if ok {
			vals = append([]Value{Bool(true)}, vals...)
		} else {
			vals = []Value{Bool(false), errVal}
		}
	case destRaw:
		if !ok {
			// propagate the failure into the resuming thread
			return ex.handleError(t, &ScriptError{Value: errVal})
		}
	case destHost:
		// host destinations never re-enter script
	}
	return ex.deliver(t, d.base, d.want, vals)
}

// deliver places a result window at base, adjusted to the wanted count.
// With no frames left the window is the thread's final result.
func (ex *Executor) deliver(t *Thread, base, want int, vals []Value) *StepResult {
	if t.frameCount == 0 {
		return ex.threadReturn(t, vals)
	}
	t.setTop(base)
	if want == wantMulti {
		for _, v := range vals {
			t.push(v)
		}
		t.frames[t.frameCount-1].resultsBase = base
	} else {
		for i := 0; i < want; i++ {
			if i < len(vals) {
				t.push(vals[i])
			} else {
				t.push(Nil())
			}
		}
	}
	return nil
}

// resultShape post-processes a call's results, for metamethod calls whose
// outcome feeds a boolean context.
type resultShape uint8

const (
	shapeNone resultShape = iota
	shapeBool
	shapeBoolNot
)

func applyShape(shape resultShape, vals []Value) []Value {
	switch shape {
	case shapeBool:
		var first Value
		if len(vals) > 0 {
			first = vals[0]
		}
		return []Value{Bool(first.Truthy())}
	case shapeBoolNot:
		var first Value
		if len(vals) > 0 {
			first = vals[0]
		}
		return []Value{Bool(!first.Truthy())}
	}
	return vals
}

// call invokes the callable at stack[base] with argc arguments sitting
// above it. For closures this pushes a frame; for natives it runs the
// callback and delivers its results; other values dispatch through __call.
func (ex *Executor) call(t *Thread, base, argc, want int, protected bool, shape resultShape) (*StepResult, error) {
	for hops := 0; ; hops++ {
		callee := t.stack[base]
		switch {
		case callee.kind == ValFunction && callee.AsClosure() != nil:
			return nil, ex.pushFrame(t, base, argc, want, protected, shape)

		case callee.kind == ValFunction:
			return ex.callNative(t, callee.AsNative(), base, argc, want, protected, shape)

		default:
			handler := ex.heap.metaField(callee, mmCall)
			if handler.IsNil() || hops >= 1 {
				return nil, ex.typeError("call", callee)
			}
			// shift the argument window up and prepend the handler
			t.push(Nil())
			copy(t.stack[base+1:base+2+argc], t.stack[base:base+1+argc])
			t.stack[base] = handler
			ex.heap.WriteBarrier(t)
			argc++
		}
	}
}

// callNative runs a host callback and interprets its result: plain values,
// a raised error, or one of the control-transfer signals.
func (ex *Executor) callNative(t *Thread, n *Native, base, argc, want int, protected bool, shape resultShape) (*StepResult, error) {
	args := make([]Value, argc)
	copy(args, t.stack[base+1:base+1+argc])
	ctx := &NativeCtx{ex: ex, t: t, base: base, want: want}

	vals, err := n.fn(ctx, args)
	if err != nil {
		switch sig := err.(type) {
		case *yieldSignal:
			t.dest = retDest{base: base, want: want, mode: destRaw}
			if protected {
				// keep pcall semantics across a yielding native: re-arm
				// the success flag on resumption
				t.dest.mode = destBool
			}
			return ex.doYield(t, sig.values)

		case *tailSignal:
			// replace the native invocation with a real call in place
			t.setTop(base)
			t.push(sig.fn)
			for _, a := range sig.args {
				t.push(a)
			}
			return ex.call(t, base, len(sig.args), want, protected || sig.protected, shape)

		case *resumeSignal:
			return ex.doResume(t, sig, base, want)

		default:
			if protected {
				serr := ex.asScriptError(t, err)
				return nil, ex.deliverProtected(t, base, want, serr)
			}
			return nil, err
		}
	}

	vals = applyShape(shape, vals)
	if protected {
		vals = append([]Value{Bool(true)}, vals...)
	}
	return ex.deliver(t, base, want, vals), nil
}

// deliverProtected lands a pcall failure result without unwinding.
func (ex *Executor) deliverProtected(t *Thread, base, want int, serr *ScriptError) error {
	if sr := ex.deliver(t, base, want, []Value{Bool(false), serr.Value}); sr != nil {
		// a protected delivery at frame zero cannot happen: the boundary
		// frame still exists underneath
		panic("protected delivery with no frames")
	}
	return nil
}

// pushFrame builds an activation record for the closure at stack[base].
// Arguments are adjusted to the prototype's arity; extras go to varargs for
// variadic prototypes. Frame depth and stack growth are checked here; both
// limits surface as ordinary script errors.
func (ex *Executor) pushFrame(t *Thread, base, argc, want int, protected bool, shape resultShape) error {
	c := t.stack[base].AsClosure()
	p := c.Proto

	if t.frameCount >= t.maxDepth {
		return ex.runtimeError("stack overflow (call depth %d)", t.frameCount)
	}

	fixed := int(p.NumParams)
	var varargs []Value
	if argc > fixed {
		if p.IsVararg {
			varargs = make([]Value, argc-fixed)
			copy(varargs, t.stack[base+1+fixed:base+1+argc])
		}
		t.setTop(base + 1 + fixed)
	} else {
		t.setTop(base + 1 + fixed)
	}

	slots := base + 1 + int(p.NumSlots)
	if slots >= t.maxStack {
		return ex.runtimeError("stack overflow (frame needs %d slots)", slots)
	}
	t.setTop(slots)

	t.frames = append(t.frames, frame{
		closure:     c,
		base:        base,
		want:        want,
		varargs:     varargs,
		protected:   protected,
		shape:       shape,
		resultsBase: -1,
	})
	t.frameCount++
	ex.heap.WriteBarrier(t)
	return nil
}

// returnFromFrame pops the topmost frame, closes its upvalues and forwards
// the result window to the caller's destination registers (or finishes the
// thread when it was the bottom frame).
func (ex *Executor) returnFromFrame(t *Thread, vals []Value) *StepResult {
	f := t.frames[t.frameCount-1]
	t.closeUpvalues(ex.heap, f.base)
	t.frameCount--
	t.frames = t.frames[:t.frameCount]

	vals = applyShape(f.shape, vals)
	if f.protected {
		vals = append([]Value{Bool(true)}, vals...)
	}
	return ex.deliver(t, f.base, f.want, vals)
}

// threadReturn finishes a thread normally and hands its results to the
// resumer (or the host, for the armed root thread).
func (ex *Executor) threadReturn(t *Thread, vals []Value) *StepResult {
	t.status = StatusDead
	t.setTop(0)
	r := t.resumer
	t.resumer = nil
	if r == nil {
		ex.current = nil
		ex.root = nil
		ex.log.Debug().Str("executor", ex.id.String()).Msg("computation finished")
		return &StepResult{Kind: StepFinished, Values: vals}
	}
	r.status = StatusRunning
	ex.current = r
	return ex.deliverResume(r, true, vals, Nil())
}

// doYield suspends the current thread's entire frame chain and returns
// control to its resumer. The destination for resumption values must have
// been recorded on the thread before calling.
func (ex *Executor) doYield(t *Thread, vals []Value) (*StepResult, error) {
	if ex.nestedRun > 0 {
		return nil, ex.asScriptError(t, ErrYieldAcrossNative)
	}
	if t.isMain && t.resumer == nil {
		return nil, ex.runtimeError("attempt to yield from the main thread")
	}
	t.status = StatusSuspended
	r := t.resumer
	t.resumer = nil
	if r == nil {
		// armed by the host: the yield surfaces through Step
		ex.current = nil
		ex.root = nil
		return &StepResult{Kind: StepYielded, Values: vals}, nil
	}
	r.status = StatusRunning
	ex.current = r
	return ex.deliverResume(r, true, vals, Nil()), nil
}

// doResume transfers control from the current thread into a coroutine, on
// behalf of an in-script resume. Status violations are delivered to the
// resume call site per its mode, never unwound through the target.
func (ex *Executor) doResume(t *Thread, sig *resumeSignal, base, want int) (*StepResult, error) {
	if ex.nestedRun > 0 {
		return nil, ex.asScriptError(t, ErrYieldAcrossNative)
	}
	co := sig.co
	if co == t || co.status == StatusRunning || co.status == StatusNormal {
		return ex.resumeFailure(t, sig, base, want, ErrRunningCoroutine)
	}
	if co.status == StatusDead {
		return ex.resumeFailure(t, sig, base, want, ErrDeadCoroutine)
	}

	t.status = StatusNormal
	t.dest = retDest{base: base, want: want, mode: sig.mode}
	ex.adopt(co)
	co.resumer = t
	co.transfer = append([]Value(nil), sig.args...)
	ex.current = co
	return nil, nil
}

func (ex *Executor) resumeFailure(t *Thread, sig *resumeSignal, base, want int, err error) (*StepResult, error) {
	if sig.mode == destRaw {
		return nil, ex.asScriptError(t, err)
	}
	msg := ex.heap.StringValue(err.Error())
	return ex.deliver(t, base, want, []Value{Bool(false), msg}), nil
}

// handleError is the unwind protocol: pop frames (closing upvalues) until a
// protected boundary catches the error, or the thread's chain is exhausted
// and the failure propagates to the resumer or the host.
func (ex *Executor) handleError(t *Thread, err error) *StepResult {
	serr := ex.asScriptError(t, err)
	ex.errValue = serr.Value

	for t.frameCount > 0 {
		f := t.frames[t.frameCount-1]
		t.closeUpvalues(ex.heap, f.base)
		t.frameCount--
		t.frames = t.frames[:t.frameCount]
		if f.protected {
			ex.errValue = Nil()
			if sr := ex.deliver(t, f.base, f.want, []Value{Bool(false), serr.Value}); sr != nil {
				return sr
			}
			return nil
		}
	}

	// chain exhausted: the thread dies with the error
	t.status = StatusDead
	t.setTop(0)
	r := t.resumer
	t.resumer = nil
	ex.errValue = Nil()
	if r == nil {
		ex.current = nil
		ex.root = nil
		return &StepResult{Kind: StepErrored, Err: serr}
	}
	r.status = StatusRunning
	ex.current = r
	return ex.deliverResume(r, false, nil, serr.Value)
}

// asScriptError wraps any raised error as a ScriptError with a traceback
// captured from the thread's current frame chain.
func (ex *Executor) asScriptError(t *Thread, err error) *ScriptError {
	if serr, ok := err.(*ScriptError); ok {
		if serr.Traceback == nil {
			serr.Traceback = captureTraceback(t)
		}
		return serr
	}
	return &ScriptError{
		Value:     ex.heap.StringValue(err.Error()),
		Traceback: captureTraceback(t),
	}
}

func captureTraceback(t *Thread) []TracebackEntry {
	tb := make([]TracebackEntry, 0, t.frameCount)
	for i := t.frameCount - 1; i >= 0; i-- {
		f := &t.frames[i]
		p := f.closure.Proto
		tb = append(tb, TracebackEntry{
			Name:   f.closure.Name(),
			Source: p.Source,
			Line:   p.Line(f.ip - 1),
		})
	}
	return tb
}

// runtimeError raises a script error with a formatted string payload.
func (ex *Executor) runtimeError(format string, args ...any) error {
	return &ScriptError{Value: ex.heap.StringValue(fmt.Sprintf(format, args...))}
}

// typeError reports an operation applied to a value of the wrong type.
func (ex *Executor) typeError(what string, v Value) error {
	return ex.runtimeError("attempt to %s a %s value", what, v.kind)
}

// Control-transfer signals returned by natives through NativeCtx. They
// implement error so a native can hand them back through its ordinary
// return path; the trampoline intercepts them before they reach script.

type yieldSignal struct{ values []Value }

func (*yieldSignal) Error() string { return "coroutine yield" }

type tailSignal struct {
	fn        Value
	args      []Value
	protected bool
}

func (*tailSignal) Error() string { return "tail call" }

type resumeSignal struct {
	co   *Thread
	args []Value
	mode destMode
}

func (*resumeSignal) Error() string { return "coroutine resume" }
