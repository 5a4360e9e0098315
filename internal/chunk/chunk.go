package chunk

import "fmt"

// ConstKind tags entries in a prototype's constant pool.
type ConstKind uint8

const (
	ConstNil ConstKind = iota
	ConstBool
	ConstInt
	ConstFloat
	ConstString
)

// Const is one constant pool entry. Exactly one payload field is meaningful,
// selected by Kind.
type Const struct {
	Kind ConstKind `msgpack:"k"`
	B    bool      `msgpack:"b,omitempty"`
	I    int64     `msgpack:"i,omitempty"`
	F    float64   `msgpack:"f,omitempty"`
	S    string    `msgpack:"s,omitempty"`
}

// Nil returns the nil constant.
func Nil() Const { return Const{Kind: ConstNil} }

// Bool returns a boolean constant.
func Bool(b bool) Const { return Const{Kind: ConstBool, B: b} }

// Int returns an integer constant.
func Int(i int64) Const { return Const{Kind: ConstInt, I: i} }

// Float returns a float constant.
func Float(f float64) Const { return Const{Kind: ConstFloat, F: f} }

// Str returns a string constant.
func Str(s string) Const { return Const{Kind: ConstString, S: s} }

func (c Const) String() string {
	switch c.Kind {
	case ConstNil:
		return "nil"
	case ConstBool:
		return fmt.Sprintf("%v", c.B)
	case ConstInt:
		return fmt.Sprintf("%d", c.I)
	case ConstFloat:
		return fmt.Sprintf("%g", c.F)
	case ConstString:
		return fmt.Sprintf("%q", c.S)
	}
	return "?"
}

// Equal reports whether two constants are identical pool entries.
func (c Const) Equal(o Const) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case ConstNil:
		return true
	case ConstBool:
		return c.B == o.B
	case ConstInt:
		return c.I == o.I
	case ConstFloat:
		return c.F == o.F
	case ConstString:
		return c.S == o.S
	}
	return false
}

// UpvalDesc describes one captured variable of a prototype. InStack means the
// variable lives in the enclosing frame's local slots; otherwise it refers to
// the enclosing closure's own upvalue list.
type UpvalDesc struct {
	InStack bool   `msgpack:"st"`
	Index   uint8  `msgpack:"ix"`
	Name    string `msgpack:"nm,omitempty"`
}

// Proto is one compiled function prototype: bytecode, constants, nested
// prototypes and the metadata the interpreter needs to build frames for it.
type Proto struct {
	// Name is the function's name for error messages ("?" when unknown).
	Name string `msgpack:"name,omitempty"`
	// Source names the chunk the prototype came from.
	Source string `msgpack:"src,omitempty"`

	NumParams uint8 `msgpack:"np"`
	IsVararg  bool  `msgpack:"va,omitempty"`
	// NumSlots is the local slot count of a frame, parameters included.
	NumSlots uint8 `msgpack:"ns"`

	Code   []byte      `msgpack:"code"`
	Consts []Const     `msgpack:"consts,omitempty"`
	Upvals []UpvalDesc `msgpack:"upvals,omitempty"`
	Protos []*Proto    `msgpack:"protos,omitempty"`

	// Lines maps each byte of Code to a source line, when debug info is
	// present. May be nil.
	Lines []int32 `msgpack:"lines,omitempty"`
}

// NewProto returns an empty prototype ready for assembly.
func NewProto(name string) *Proto {
	return &Proto{
		Name: name,
		Code: make([]byte, 0, 64),
	}
}

// Write appends a raw byte with line info.
func (p *Proto) Write(b byte, line int32) {
	p.Code = append(p.Code, b)
	p.Lines = append(p.Lines, line)
}

// WriteOp appends an opcode.
func (p *Proto) WriteOp(op Op, line int32) {
	p.Write(byte(op), line)
}

// WriteU16 appends a 16-bit big-endian operand.
func (p *Proto) WriteU16(v uint16, line int32) {
	p.Write(byte(v>>8), line)
	p.Write(byte(v), line)
}

// AddConst adds a constant to the pool, reusing an existing identical entry,
// and returns its index.
func (p *Proto) AddConst(c Const) int {
	for i, existing := range p.Consts {
		if existing.Equal(c) {
			return i
		}
	}
	p.Consts = append(p.Consts, c)
	return len(p.Consts) - 1
}

// Emit appends an opcode followed by u8 operands.
func (p *Proto) Emit(op Op, line int32, operands ...byte) {
	p.WriteOp(op, line)
	for _, b := range operands {
		p.Write(b, line)
	}
}

// EmitConst appends op followed by the pool index of c as a u16 operand.
func (p *Proto) EmitConst(op Op, c Const, line int32) {
	idx := p.AddConst(c)
	p.WriteOp(op, line)
	p.WriteU16(uint16(idx), line)
}

// EmitJump appends a forward jump with a placeholder offset and returns the
// position to pass to PatchJump once the target is known.
func (p *Proto) EmitJump(op Op, line int32) int {
	p.WriteOp(op, line)
	p.WriteU16(0xFFFF, line)
	return len(p.Code) - 2
}

// PatchJump fixes up a placeholder written by EmitJump to land on the current
// end of code.
func (p *Proto) PatchJump(at int) {
	// offset is measured from the instruction following the operand
	off := len(p.Code) - at - 2
	p.Code[at] = byte(off >> 8)
	p.Code[at+1] = byte(off)
}

// EmitLoop appends a backward jump to the given code position.
func (p *Proto) EmitLoop(target int, line int32) {
	p.WriteOp(OpLoop, line)
	// offset from after the operand back to target
	off := len(p.Code) + 2 - target
	p.WriteU16(uint16(off), line)
}

// AddProto registers a nested prototype and returns its index.
func (p *Proto) AddProto(sub *Proto) int {
	p.Protos = append(p.Protos, sub)
	return len(p.Protos) - 1
}

// Line returns the source line for a code offset, or 0 without debug info.
func (p *Proto) Line(offset int) int32 {
	if offset < 0 || offset >= len(p.Lines) {
		return 0
	}
	return p.Lines[offset]
}

// ReadU16 decodes a 16-bit big-endian operand at offset.
func (p *Proto) ReadU16(offset int) int {
	return int(p.Code[offset])<<8 | int(p.Code[offset+1])
}
