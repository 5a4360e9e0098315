package chunk

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProto() *Proto {
	inner := NewProto("inner")
	inner.NumParams = 1
	inner.NumSlots = 2
	inner.Upvals = []UpvalDesc{{InStack: true, Index: 0, Name: "x"}}
	inner.Emit(OpGetUpvalue, 1, 0)
	inner.Emit(OpReturn, 1, 1)

	p := NewProto("main")
	p.Source = "sample.lum"
	p.NumSlots = 1
	p.IsVararg = true
	p.EmitConst(OpConst, Int(42), 1)
	p.EmitConst(OpConst, Str("hello"), 1)
	p.Emit(OpAdd, 2)
	idx := p.AddProto(inner)
	p.WriteOp(OpClosure, 3)
	p.WriteU16(uint16(idx), 3)
	p.Emit(OpReturn, 3, 1)
	return p
}

func TestConstDedup(t *testing.T) {
	p := NewProto("t")
	a := p.AddConst(Int(7))
	b := p.AddConst(Int(7))
	c := p.AddConst(Int(8))
	d := p.AddConst(Str("7"))

	assert.Equal(t, a, b, "identical constants share a pool slot")
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d, "different kinds never collide")
}

func TestJumpPatching(t *testing.T) {
	p := NewProto("t")
	p.Emit(OpNil, 1)
	at := p.EmitJump(OpJumpIfFalse, 1)
	p.Emit(OpNil, 2)
	p.Emit(OpPop, 2)
	p.PatchJump(at)
	p.Emit(OpReturn, 3, 0)

	// the patched offset must land just past POP: two 1-byte instructions
	assert.Equal(t, 2, p.ReadU16(at))
}

func TestLoopOffset(t *testing.T) {
	p := NewProto("t")
	top := len(p.Code)
	p.Emit(OpNil, 1)
	p.Emit(OpPop, 1)
	p.EmitLoop(top, 1)

	off := p.ReadU16(len(p.Code) - 2)
	// ip sits after the operand when the offset is applied
	assert.Equal(t, len(p.Code), top+off)
}

func TestOpMetadata(t *testing.T) {
	assert.Equal(t, "CONST", OpConst.String())
	assert.Equal(t, 3, OpConst.Size())
	assert.Equal(t, 1, OpAdd.Size())
	assert.Equal(t, 3, OpCall.Size())
	assert.Equal(t, "UNKNOWN", Op(250).String())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := sampleProto()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, p))

	got, err := Decode(&buf)
	require.NoError(t, err)

	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.Source, got.Source)
	assert.Equal(t, p.Code, got.Code)
	assert.Equal(t, p.Consts, got.Consts)
	assert.Equal(t, p.Lines, got.Lines)
	assert.Equal(t, p.IsVararg, got.IsVararg)
	require.Len(t, got.Protos, 1)
	assert.Equal(t, p.Protos[0].Upvals, got.Protos[0].Upvals)
	assert.Equal(t, p.Protos[0].Code, got.Protos[0].Code)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("NOPE\x01garbage")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "magic")
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleProto()))
	raw := buf.Bytes()
	raw[4] = 0x7F

	_, err := Decode(bytes.NewReader(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestSaveLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.lmc")
	p := sampleProto()
	require.NoError(t, SaveFile(path, p))

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, p.Code, got.Code)
}

func TestDisassemble(t *testing.T) {
	out := Disassemble(sampleProto())
	assert.Contains(t, out, "== main (")
	assert.Contains(t, out, "== inner (")
	assert.Contains(t, out, "CONST")
	assert.Contains(t, out, "ADD")
	assert.Contains(t, out, "RETURN")
	assert.Contains(t, out, "42")
}
