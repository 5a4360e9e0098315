package vm

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/lumenvm/lumen/internal/chunk"
)

// ErrHeapExhausted is the fatal out-of-memory condition: the configured
// object limit was exceeded. It is reported once; afterwards the heap and
// any executor over it are unusable.
var ErrHeapExhausted = errors.New("heap exhausted: object limit exceeded")

// HeapConfig tunes the heap and its collector.
type HeapConfig struct {
	// StepWork is the number of collection work units performed per
	// allocation while a cycle is in progress. 0 disables allocation-driven
	// collection entirely (the host must call Collect itself).
	StepWork int
	// PausePercent controls how much the heap may grow before a new cycle
	// starts, as a percentage of the live object count after the previous
	// cycle. 200 means "collect when the heap doubles".
	PausePercent int
	// ObjectLimit is the hard cap on tracked objects; exceeding it is fatal.
	// 0 means unlimited.
	ObjectLimit int
	// Logger receives cycle diagnostics. Zero value disables logging.
	Logger zerolog.Logger
}

// DefaultHeapConfig returns the tuning used when none is supplied.
func DefaultHeapConfig() HeapConfig {
	return HeapConfig{
		StepWork:     16,
		PausePercent: 200,
		Logger:       zerolog.Nop(),
	}
}

// Rooter is implemented by components whose values must survive collection.
// TraceRoots must call markValue/markObject for every held reference.
type Rooter interface {
	TraceRoots(h *Heap)
}

// gcPhase is the collector's current phase.
type gcPhase uint8

const (
	phaseIdle gcPhase = iota
	phaseMark
	phaseSweep
)

// Heap owns every garbage-collected object. All allocation goes through it,
// all pointer stores into tracked objects must pass the write barrier, and
// reclamation happens only through its incremental mark/sweep cycle.
//
// The string interning table is a heap field: independent heaps never share
// interned strings.
type Heap struct {
	cfg HeapConfig
	log zerolog.Logger

	interns map[string]*String

	all      Object // intrusive list of every tracked object
	objCount int

	phase     gcPhase
	gray      []Object
	grayAgain []Object // threads, re-traced in the atomic step
	sweepCur  Object
	sweepPrev Object

	roots []Rooter
	pins  map[Object]int

	// threshold is the object count that triggers the next cycle.
	threshold int

	protoConsts map[*chunk.Proto][]Value
	mmNames     [mmCount]*String

	fatal  error
	cycles uint64
	swept  uint64 // objects reclaimed by the last completed cycle
}

// HeapStats is a snapshot of collector counters.
type HeapStats struct {
	Objects   int
	Cycles    uint64
	LastSwept uint64
}

// NewHeap creates an empty heap with the given tuning.
func NewHeap(cfg HeapConfig) *Heap {
	if cfg.PausePercent <= 0 {
		cfg.PausePercent = 200
	}
	h := &Heap{
		cfg:         cfg,
		log:         cfg.Logger,
		interns:     make(map[string]*String, 64),
		pins:        make(map[Object]int),
		protoConsts: make(map[*chunk.Proto][]Value),
		threshold:   1024,
	}
	for i := range h.mmNames {
		h.mmNames[i] = h.NewString(metamethod(i).name())
	}
	return h
}

// Stats returns current collector counters.
func (h *Heap) Stats() HeapStats {
	return HeapStats{Objects: h.objCount, Cycles: h.cycles, LastSwept: h.swept}
}

// register links a fresh object into the heap, colored for the current
// collector phase, and applies pacing.
func (h *Heap) register(o Object) {
	if h.fatal != nil {
		panic(h.fatal)
	}
	if h.cfg.ObjectLimit > 0 && h.objCount >= h.cfg.ObjectLimit {
		h.fatal = ErrHeapExhausted
		panic(h.fatal)
	}

	// pacing may run collector steps; do it before the object is linked so
	// an unreferenced newborn can't be condemned by a cycle started here
	h.pace()

	hdr := o.header()
	hdr.next = h.all
	h.all = o
	h.objCount++

	switch h.phase {
	case phaseMark:
		// born reachable this cycle
		if _, leaf := o.(*String); leaf {
			hdr.color = gcBlack
		} else {
			hdr.color = gcGray
			h.gray = append(h.gray, o)
		}
	case phaseSweep:
		hdr.color = gcWhite
		// the new head is now the sweep cursor's predecessor
		if h.sweepPrev == nil && h.sweepCur != nil {
			h.sweepPrev = o
		}
	default:
		hdr.color = gcWhite
	}
}

// pace runs allocation-driven incremental collection.
func (h *Heap) pace() {
	if h.cfg.StepWork <= 0 {
		return
	}
	if h.phase == phaseIdle {
		if h.objCount >= h.threshold {
			h.Collect(h.cfg.StepWork)
		}
		return
	}
	h.Collect(h.cfg.StepWork)
}

// NewString returns the interned string object for s.
func (h *Heap) NewString(s string) *String {
	if existing, ok := h.interns[s]; ok {
		// resurrection guard: a condemned string found by lookup must not
		// be swept out from under a new reference
		if existing.hdr.color == gcWhite && h.phase != phaseIdle {
			existing.hdr.color = gcBlack
		}
		return existing
	}
	obj := &String{s: s}
	h.interns[s] = obj
	h.register(obj)
	return obj
}

// StringValue is NewString wrapped as a Value.
func (h *Heap) StringValue(s string) Value {
	return stringVal(h.NewString(s))
}

// NewTable allocates an empty table.
func (h *Heap) NewTable() *Table {
	t := &Table{}
	h.register(t)
	return t
}

// NewTableSize allocates a table with capacity hints for the array and hash
// parts.
func (h *Heap) NewTableSize(narr, nhash int) *Table {
	t := &Table{}
	if narr > 0 {
		t.array = make([]Value, 0, narr)
	}
	if nhash > 0 {
		t.hash = make(map[Value]Value, nhash)
		t.keyAt = make(map[Value]int, nhash)
	}
	h.register(t)
	return t
}

// TableValue is NewTable wrapped as a Value.
func (h *Heap) TableValue() Value { return tableVal(h.NewTable()) }

// NewClosure allocates a closure over the prototype with an unfilled
// upvalue list. The interpreter fills the upvalues at OpClosure time.
func (h *Heap) NewClosure(p *chunk.Proto) *Closure {
	c := &Closure{
		Proto:  p,
		consts: h.constants(p),
	}
	if n := len(p.Upvals); n > 0 {
		c.Upvalues = make([]*Upvalue, n)
	}
	h.register(c)
	return c
}

// ClosureValue is NewClosure wrapped as a Value.
func (h *Heap) ClosureValue(p *chunk.Proto) Value {
	return closureVal(h.NewClosure(p))
}

// NewNative wraps a host callback as a function value.
func (h *Heap) NewNative(name string, fn NativeFn) Value {
	n := &Native{name: name, fn: fn}
	h.register(n)
	return nativeVal(n)
}

// NewNativeBound is NewNative for callbacks that close over script values;
// the bound values stay reachable through the native itself.
func (h *Heap) NewNativeBound(name string, fn NativeFn, bound ...Value) Value {
	n := &Native{name: name, fn: fn, bound: bound}
	h.register(n)
	return nativeVal(n)
}

// NewUpvalue allocates an open upvalue over a stack slot.
func (h *Heap) newUpvalue(owner *Thread, slot int) *Upvalue {
	uv := &Upvalue{owner: owner, slot: slot}
	h.register(uv)
	return uv
}

// NewThread allocates a coroutine over the given closure, in the
// not-started state.
func (h *Heap) NewThread(entry *Closure) *Thread {
	t := newThread(entry)
	h.register(t)
	return t
}

// ThreadValue is NewThread wrapped as a Value.
func (h *Heap) ThreadValue(entry *Closure) Value {
	return threadVal(h.NewThread(entry))
}

// NewUserData wraps host data as a tracked value.
func (h *Heap) NewUserData(data any, meta *Table) Value {
	u := &UserData{Data: data, meta: meta}
	h.register(u)
	return userDataVal(u)
}

// constants converts a prototype's constant pool to Values, interning
// strings, and caches the result for the heap's lifetime.
func (h *Heap) constants(p *chunk.Proto) []Value {
	if vals, ok := h.protoConsts[p]; ok {
		return vals
	}
	vals := make([]Value, len(p.Consts))
	for i, c := range p.Consts {
		switch c.Kind {
		case chunk.ConstNil:
			vals[i] = Nil()
		case chunk.ConstBool:
			vals[i] = Bool(c.B)
		case chunk.ConstInt:
			vals[i] = Int(c.I)
		case chunk.ConstFloat:
			vals[i] = Float(c.F)
		case chunk.ConstString:
			vals[i] = h.StringValue(c.S)
		}
	}
	h.protoConsts[p] = vals
	return vals
}

// AddRoot registers a component whose references must survive collection.
func (h *Heap) AddRoot(r Rooter) {
	h.roots = append(h.roots, r)
}

// RemoveRoot unregisters a root previously added with AddRoot.
func (h *Heap) RemoveRoot(r Rooter) {
	for i, existing := range h.roots {
		if existing == r {
			h.roots = append(h.roots[:i], h.roots[i+1:]...)
			return
		}
	}
}

// Pin keeps a host-held value alive across collections until unpinned.
// Pins nest: each Pin needs a matching Unpin.
func (h *Heap) Pin(v Value) {
	if v.obj == nil {
		return
	}
	h.pins[v.obj]++
}

// Unpin releases one pin on the value.
func (h *Heap) Unpin(v Value) {
	if v.obj == nil {
		return
	}
	if c := h.pins[v.obj]; c <= 1 {
		delete(h.pins, v.obj)
	} else {
		h.pins[v.obj] = c - 1
	}
}
