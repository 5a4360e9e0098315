// Package chunk defines the compiled representation of Lumen code: function
// prototypes, constant pools, upvalue descriptors and the bytecode encoding.
// Chunks are produced by an external compiler (or assembled directly, see the
// Write* methods on Proto) and consumed by the interpreter.
package chunk

// Op is a single VM instruction opcode.
type Op byte

const (
	// Constants and literals
	OpConst Op = iota // u16 constant index
	OpNil
	OpTrue
	OpFalse

	// Stack manipulation
	OpPop
	OpDup

	// Variables
	OpGetLocal      // u8 slot
	OpSetLocal      // u8 slot
	OpGetGlobal     // u16 constant index (name)
	OpSetGlobal     // u16 constant index (name)
	OpGetUpvalue    // u8 upvalue index
	OpSetUpvalue    // u8 upvalue index
	OpCloseUpvalues // u8 slot; closes upvalues over slots >= slot

	// Arithmetic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpIDiv
	OpMod
	OpPow
	OpNeg

	// Comparison and logic
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpNot

	// Strings
	OpLen
	OpConcat

	// Control flow
	OpJump        // u16 forward offset
	OpJumpIfFalse // u16 forward offset; pops the condition
	OpLoop        // u16 backward offset

	// Tables
	OpNewTable // u8 array size hint, u8 hash size hint
	OpGetIndex // [t k] -> [v], metamethod-aware
	OpSetIndex // [t k v] -> [], metamethod-aware
	OpGetField // u16 constant index (string key); [t] -> [v]
	OpSetField // u16 constant index (string key); [t v] -> []
	OpAppend   // u8 count; pops count values, appends to the table below them

	// Functions
	OpClosure  // u16 nested prototype index
	OpCall     // u8 argc, u8 nret (MultRet = all)
	OpTailCall // u8 argc
	OpReturn   // u8 nret (MultRet = everything since the result base)
	OpVararg   // u8 n (MultRet = all varargs)

	// Coroutines
	OpYield // u8 argc, u8 nret wanted on resumption (MultRet = all)

	opCount
)

// MultRet in an argc/nret operand means "however many values there are".
const MultRet byte = 0xFF

// operand kinds, used by the disassembler and for instruction sizing
type opdKind byte

const (
	opdU8 opdKind = iota
	opdU16
	opdConst // u16 constant pool index
	opdJump  // u16 forward jump offset
	opdLoop  // u16 backward jump offset
	opdProto // u16 nested prototype index
)

type opInfo struct {
	Name string
	Opds []opdKind
}

var opTable = [opCount]opInfo{
	OpConst:         {"CONST", []opdKind{opdConst}},
	OpNil:           {"NIL", nil},
	OpTrue:          {"TRUE", nil},
	OpFalse:         {"FALSE", nil},
	OpPop:           {"POP", nil},
	OpDup:           {"DUP", nil},
	OpGetLocal:      {"GET_LOCAL", []opdKind{opdU8}},
	OpSetLocal:      {"SET_LOCAL", []opdKind{opdU8}},
	OpGetGlobal:     {"GET_GLOBAL", []opdKind{opdConst}},
	OpSetGlobal:     {"SET_GLOBAL", []opdKind{opdConst}},
	OpGetUpvalue:    {"GET_UPVALUE", []opdKind{opdU8}},
	OpSetUpvalue:    {"SET_UPVALUE", []opdKind{opdU8}},
	OpCloseUpvalues: {"CLOSE_UPVALUES", []opdKind{opdU8}},
	OpAdd:           {"ADD", nil},
	OpSub:           {"SUB", nil},
	OpMul:           {"MUL", nil},
	OpDiv:           {"DIV", nil},
	OpIDiv:          {"IDIV", nil},
	OpMod:           {"MOD", nil},
	OpPow:           {"POW", nil},
	OpNeg:           {"NEG", nil},
	OpEq:            {"EQ", nil},
	OpNe:            {"NE", nil},
	OpLt:            {"LT", nil},
	OpLe:            {"LE", nil},
	OpGt:            {"GT", nil},
	OpGe:            {"GE", nil},
	OpNot:           {"NOT", nil},
	OpLen:           {"LEN", nil},
	OpConcat:        {"CONCAT", nil},
	OpJump:          {"JUMP", []opdKind{opdJump}},
	OpJumpIfFalse:   {"JUMP_IF_FALSE", []opdKind{opdJump}},
	OpLoop:          {"LOOP", []opdKind{opdLoop}},
	OpNewTable:      {"NEW_TABLE", []opdKind{opdU8, opdU8}},
	OpGetIndex:      {"GET_INDEX", nil},
	OpSetIndex:      {"SET_INDEX", nil},
	OpGetField:      {"GET_FIELD", []opdKind{opdConst}},
	OpSetField:      {"SET_FIELD", []opdKind{opdConst}},
	OpAppend:        {"APPEND", []opdKind{opdU8}},
	OpClosure:       {"CLOSURE", []opdKind{opdProto}},
	OpCall:          {"CALL", []opdKind{opdU8, opdU8}},
	OpTailCall:      {"TAIL_CALL", []opdKind{opdU8}},
	OpReturn:        {"RETURN", []opdKind{opdU8}},
	OpVararg:        {"VARARG", []opdKind{opdU8}},
	OpYield:         {"YIELD", []opdKind{opdU8, opdU8}},
}

// String returns the mnemonic for the opcode.
func (op Op) String() string {
	if op >= opCount {
		return "UNKNOWN"
	}
	return opTable[op].Name
}

// Size returns the encoded size of the instruction in bytes, opcode included.
func (op Op) Size() int {
	if op >= opCount {
		return 1
	}
	n := 1
	for _, k := range opTable[op].Opds {
		if k == opdU8 {
			n++
		} else {
			n += 2
		}
	}
	return n
}
