package vm

import (
	"fmt"

	"github.com/lumenvm/lumen/internal/chunk"
)

// gcColor is the tri-color mark state of a heap object.
type gcColor uint8

const (
	gcWhite gcColor = iota // not yet reached this cycle
	gcGray                 // reached, children not yet traced
	gcBlack                // reached, children traced
)

// gcHeader is the collector metadata embedded in every tracked object. It is
// managed exclusively by the Heap.
type gcHeader struct {
	color gcColor
	next  Object // intrusive all-objects list
}

// Object is implemented by every heap-tracked type.
type Object interface {
	header() *gcHeader
	// trace marks every tracked object this one references.
	trace(h *Heap)
}

// String is an interned, immutable byte sequence. Two strings with equal
// content always share one heap object, so identity equality is content
// equality.
type String struct {
	hdr gcHeader
	s   string
}

func (s *String) header() *gcHeader { return &s.hdr }
func (s *String) trace(h *Heap)     {}

// Str returns the string's content.
func (s *String) Str() string { return s.s }

// Len returns the content length in bytes.
func (s *String) Len() int { return len(s.s) }

// Closure is a function prototype bound to its captured variables.
type Closure struct {
	hdr      gcHeader
	Proto    *chunk.Proto
	Upvalues []*Upvalue
	consts   []Value // constant pool converted to Values, shared per proto
}

func (c *Closure) header() *gcHeader { return &c.hdr }
func (c *Closure) trace(h *Heap) {
	for _, uv := range c.Upvalues {
		h.markObject(uv)
	}
}

// Name returns the prototype's debug name, or "?".
func (c *Closure) Name() string {
	if c.Proto.Name == "" {
		return "?"
	}
	return c.Proto.Name
}

// Upvalue is a shared mutable cell for a captured variable. While its
// defining frame lives, the cell is "open" and aliases that frame's stack
// slot on the owning thread; when the frame ends the cell is "closed" and
// owns its value.
type Upvalue struct {
	hdr   gcHeader
	owner *Thread // non-nil while open
	slot  int     // absolute stack index on owner while open
	v     Value   // the value once closed
	next  *Upvalue // open-upvalue list link, sorted by slot descending
}

func (uv *Upvalue) header() *gcHeader { return &uv.hdr }
func (uv *Upvalue) trace(h *Heap) {
	if uv.owner == nil {
		h.markValue(uv.v)
		return
	}
	// While open, the aliased slot lives on the owner's stack. The owner
	// may be unreachable otherwise (a closure escaping a dropped
	// coroutine), so the cell keeps it marked.
	h.markObject(uv.owner)
}

// Get reads the cell's current value.
func (uv *Upvalue) Get() Value {
	if uv.owner != nil {
		return uv.owner.stack[uv.slot]
	}
	return uv.v
}

// Set writes the cell. The heap is needed for the write barrier when the
// cell is closed.
func (uv *Upvalue) Set(h *Heap, v Value) {
	if uv.owner != nil {
		uv.owner.stack[uv.slot] = v
		h.WriteBarrier(uv.owner)
		return
	}
	uv.v = v
	h.WriteBarrier(uv)
}

// close promotes the cell from aliasing a stack slot to owning its value.
func (uv *Upvalue) close() {
	uv.v = uv.owner.stack[uv.slot]
	uv.owner = nil
	uv.slot = -1
}

// NativeFn is the signature for host callbacks. Args are the call arguments;
// the returned slice is the result window. Control transfers (yield, tail
// call, protected call) are requested by returning the signal from the
// corresponding NativeCtx method.
type NativeFn func(ctx *NativeCtx, args []Value) ([]Value, error)

// Native wraps a host callback as a callable function value. Values the
// callback closes over must go in bound, or the collector cannot see them.
type Native struct {
	hdr   gcHeader
	name  string
	fn    NativeFn
	bound []Value
}

func (n *Native) header() *gcHeader { return &n.hdr }
func (n *Native) trace(h *Heap) {
	for _, v := range n.bound {
		h.markValue(v)
	}
}

// Name returns the callback's registered name.
func (n *Native) Name() string { return n.name }

func (n *Native) String() string {
	return fmt.Sprintf("native: %s", n.name)
}

// UserData carries host-opaque data through the value model. The payload is
// invisible to the collector; only the metatable is traced.
type UserData struct {
	hdr  gcHeader
	Data any
	meta *Table
}

func (u *UserData) header() *gcHeader { return &u.hdr }
func (u *UserData) trace(h *Heap) {
	if u.meta != nil {
		h.markObject(u.meta)
	}
}

// Metatable returns the userdata's metatable, or nil.
func (u *UserData) Metatable() *Table { return u.meta }

// SetMetatable replaces the userdata's metatable.
func (u *UserData) SetMetatable(h *Heap, mt *Table) {
	u.meta = mt
	h.WriteBarrier(u)
}
