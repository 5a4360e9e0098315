package vm

// Status is the lifecycle state of a coroutine.
type Status uint8

const (
	// StatusNotStarted: created but never resumed.
	StatusNotStarted Status = iota
	// StatusRunning: currently executing.
	StatusRunning
	// StatusSuspended: paused in a yield, resumable.
	StatusSuspended
	// StatusNormal: alive but waiting on a coroutine it resumed.
	StatusNormal
	// StatusDead: returned or failed with an unrecovered error.
	StatusDead
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "suspended" // not-started reports as suspended, like the reference language
	case StatusRunning:
		return "running"
	case StatusSuspended:
		return "suspended"
	case StatusNormal:
		return "normal"
	case StatusDead:
		return "dead"
	}
	return "invalid"
}

// wantMulti as a frame's want means the caller takes however many results
// the callee produces.
const wantMulti = -1

// frame is one activation record. Frames are heap-resident data (slices
// owned by their Thread), never nodes on the native stack, so call depth is
// bounded only by configuration and execution can pause between any two
// instructions.
type frame struct {
	closure *Closure
	ip      int
	// base is the stack index of the function slot. Locals start at base+1;
	// results are delivered back to base.
	base int
	// want is the result count expected by the caller (wantMulti = all).
	want    int
	varargs []Value
	// protected marks a pcall boundary: errors unwinding into this frame
	// are converted to a failure result instead of propagating.
	protected bool
	// shape post-processes the frame's results, for metamethod calls whose
	// outcome feeds a boolean context.
	shape resultShape
	// resultsBase is the stack index where the currently open multi-value
	// window begins, or -1 when none is open.
	resultsBase int
}

// destMode says how values delivered to a suspended resume site are shaped.
type destMode uint8

const (
	// destHost: the values surface to the host API (raw).
	destHost destMode = iota
	// destBool: prepend a success flag, errors become (false, err).
	// This is the in-script coroutine.resume shape.
	destBool
	// destRaw: raw values, errors re-raised in the resuming thread.
	// This is the coroutine.wrap shape.
	destRaw
)

// retDest says where values crossing back into a thread should land.
type retDest struct {
	base int
	want int
	mode destMode
}

// Thread is an independent call chain: its own value stack, frame store and
// open-upvalue list, plus coroutine status. The main thread of an executor
// is a Thread like any other, flagged so that top-level yields can be
// rejected.
type Thread struct {
	hdr gcHeader

	entry  *Closure
	status Status
	isMain bool

	stack []Value
	sp    int

	frames     []frame
	frameCount int

	// open upvalues over this thread's stack, sorted by slot descending
	openUpvalues *Upvalue

	// resumer is the thread (or host, when nil) that resumed this one.
	resumer *Thread

	// transfer carries values into the thread at its next resumption and
	// out of it when it yields or returns.
	transfer []Value

	// dest is where resumption values land once the thread continues.
	dest retDest

	maxStack int
	maxDepth int
}

func newThread(entry *Closure) *Thread {
	return &Thread{
		entry:    entry,
		status:   StatusNotStarted,
		maxStack: DefaultMaxStack,
		maxDepth: DefaultMaxDepth,
	}
}

func (t *Thread) header() *gcHeader { return &t.hdr }
func (t *Thread) trace(h *Heap) {
	if t.entry != nil {
		h.markObject(t.entry)
	}
	for i := 0; i < t.sp; i++ {
		h.markValue(t.stack[i])
	}
	for i := 0; i < t.frameCount; i++ {
		f := &t.frames[i]
		if f.closure != nil {
			h.markObject(f.closure)
		}
		for _, v := range f.varargs {
			h.markValue(v)
		}
	}
	for uv := t.openUpvalues; uv != nil; uv = uv.next {
		h.markObject(uv)
	}
	for _, v := range t.transfer {
		h.markValue(v)
	}
	if t.resumer != nil {
		h.markObject(t.resumer)
	}
}

// Status returns the coroutine's lifecycle state.
func (t *Thread) Status() Status { return t.status }

// Entry returns the closure the thread was created over.
func (t *Thread) Entry() *Closure { return t.entry }

// stack operations

func (t *Thread) push(v Value) {
	if t.sp >= len(t.stack) {
		if t.sp >= t.maxStack {
			panic(stackOverflow{})
		}
		grow := len(t.stack)
		if grow < 64 {
			grow = 64
		}
		next := make([]Value, len(t.stack)+grow)
		copy(next, t.stack[:t.sp])
		t.stack = next
	}
	t.stack[t.sp] = v
	t.sp++
}

func (t *Thread) pop() Value {
	t.sp--
	v := t.stack[t.sp]
	t.stack[t.sp] = Nil()
	return v
}

func (t *Thread) peek(distance int) Value {
	return t.stack[t.sp-1-distance]
}

// setTop trims or nil-extends the stack to the given height.
func (t *Thread) setTop(top int) {
	for t.sp > top {
		t.sp--
		t.stack[t.sp] = Nil()
	}
	for t.sp < top {
		t.push(Nil())
	}
}

// captureUpvalue returns the open upvalue over the given stack slot,
// creating it if no closure has captured that slot yet. The open list is
// sorted by slot, highest first, so closures created in the same scope
// always share one cell.
func (t *Thread) captureUpvalue(h *Heap, slot int) *Upvalue {
	var prev *Upvalue
	uv := t.openUpvalues
	for uv != nil && uv.slot > slot {
		prev = uv
		uv = uv.next
	}
	if uv != nil && uv.slot == slot {
		return uv
	}

	created := h.newUpvalue(t, slot)
	created.next = uv
	if prev == nil {
		t.openUpvalues = created
	} else {
		prev.next = created
		h.WriteBarrier(prev)
	}
	return created
}

// closeUpvalues closes every open upvalue over slots >= from. Mandatory
// before a frame's slots are abandoned, so no cell dangles into a dead
// frame.
func (t *Thread) closeUpvalues(h *Heap, from int) {
	for t.openUpvalues != nil && t.openUpvalues.slot >= from {
		uv := t.openUpvalues
		uv.close()
		h.WriteBarrier(uv)
		t.openUpvalues = uv.next
		uv.next = nil
	}
}
