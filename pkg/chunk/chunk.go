// Package chunk defines the bytecode container the compiler emits into
// and the VM executes: a flat byte array of opcodes and operands, a
// constant pool, and a run-length-encoded source line map.
//
// A []Instruction of {Op Opcode, Operand int} pairs would be easy to
// read but wastes a machine word of operand space on instructions that
// need none. A Chunk is instead a byte stream (one byte per opcode,
// operands packed into however many bytes they need) plus a side-table
// mapping byte offsets back to source lines.
package chunk

import "github.com/kristofer/loxvm/pkg/value"

// OpCode identifies a single bytecode instruction.
type OpCode byte

const (
	OpConstant OpCode = iota
	OpNil
	OpTrue
	OpFalse
	OpPop
	OpGetLocal
	OpSetLocal
	OpGetGlobal
	OpDefineGlobal
	OpSetGlobal
	OpGetUpvalue
	OpSetUpvalue
	OpGetProperty
	OpSetProperty
	OpGetSuper
	OpEqual
	OpNotEqual
	OpGreater
	OpGreaterEqual
	OpLess
	OpLessEqual
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpNot
	OpNegate
	OpPrint
	OpJump
	OpJumpIfFalse
	OpLoop
	OpCall
	OpInvoke
	OpSuperInvoke
	OpClosure
	OpCloseUpvalue
	OpReturn
	OpClass
	OpInherit
	OpMethod
	// OpTernary is reserved: no surface syntax compiles to it and the
	// VM does not implement it. Kept only so the disassembler can name
	// it if it is ever seen in hand-assembled test bytecode.
	OpTernary
)

var opNames = [...]string{
	OpConstant:      "OP_CONSTANT",
	OpNil:           "OP_NIL",
	OpTrue:          "OP_TRUE",
	OpFalse:         "OP_FALSE",
	OpPop:           "OP_POP",
	OpGetLocal:      "OP_GET_LOCAL",
	OpSetLocal:      "OP_SET_LOCAL",
	OpGetGlobal:     "OP_GET_GLOBAL",
	OpDefineGlobal:  "OP_DEFINE_GLOBAL",
	OpSetGlobal:     "OP_SET_GLOBAL",
	OpGetUpvalue:    "OP_GET_UPVALUE",
	OpSetUpvalue:    "OP_SET_UPVALUE",
	OpGetProperty:   "OP_GET_PROPERTY",
	OpSetProperty:   "OP_SET_PROPERTY",
	OpGetSuper:      "OP_GET_SUPER",
	OpEqual:         "OP_EQUAL",
	OpNotEqual:      "OP_NOT_EQUAL",
	OpGreater:       "OP_GREATER",
	OpGreaterEqual:  "OP_GREATER_EQUAL",
	OpLess:          "OP_LESS",
	OpLessEqual:     "OP_LESS_EQUAL",
	OpAdd:           "OP_ADD",
	OpSubtract:      "OP_SUBTRACT",
	OpMultiply:      "OP_MULTIPLY",
	OpDivide:        "OP_DIVIDE",
	OpNot:           "OP_NOT",
	OpNegate:        "OP_NEGATE",
	OpPrint:         "OP_PRINT",
	OpJump:          "OP_JUMP",
	OpJumpIfFalse:   "OP_JUMP_IF_FALSE",
	OpLoop:          "OP_LOOP",
	OpCall:          "OP_CALL",
	OpInvoke:        "OP_INVOKE",
	OpSuperInvoke:   "OP_SUPER_INVOKE",
	OpClosure:       "OP_CLOSURE",
	OpCloseUpvalue:  "OP_CLOSE_UPVALUE",
	OpReturn:        "OP_RETURN",
	OpClass:         "OP_CLASS",
	OpInherit:       "OP_INHERIT",
	OpMethod:        "OP_METHOD",
	OpTernary:       "OP_TERNARY",
}

func (op OpCode) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "OP_UNKNOWN"
}

// MaxConstants is the largest number of constants a single chunk may
// hold: the constant index operand is one byte wide.
const MaxConstants = 256

// lineRun is one entry of the run-length-encoded line map: Count
// consecutive bytes starting wherever the previous run left off belong
// to source Line.
type lineRun struct {
	Count int
	Line  int
}

// Chunk is a compiled unit of bytecode: the instruction stream, the
// constant pool it indexes into, and the line map used to produce
// diagnostics. Functions, methods and the top-level script each own one.
type Chunk struct {
	Code      []byte
	Constants []value.Value
	lines     []lineRun
}

// New returns an empty chunk ready to be written to.
func New() *Chunk {
	return &Chunk{}
}

// Write appends a raw byte (an opcode or an operand byte) to the code
// stream and extends the line map: if the previous byte was on the same
// source line, this just increments that run's count, otherwise it opens
// a new run. A run's Line field is a full int rather than a single byte,
// so files with more than 255 lines do not silently corrupt their line
// map.
func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	if n := len(c.lines); n > 0 && c.lines[n-1].Line == line {
		c.lines[n-1].Count++
		return
	}
	c.lines = append(c.lines, lineRun{Count: 1, Line: line})
}

// WriteOp is a convenience wrapper for Write that takes an OpCode.
func (c *Chunk) WriteOp(op OpCode, line int) {
	c.Write(byte(op), line)
}

// AddConstant appends a value to the constant pool and returns its
// index. Callers are responsible for keeping the value reachable (e.g.
// by pushing it on the VM's value stack) until it is safely referenced
// from the chunk, since interning or nested-function compilation between
// "construct the value" and "call AddConstant" can trigger a collection.
func (c *Chunk) AddConstant(v value.Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// GetLine walks the run-length-encoded line map, accumulating run
// lengths until the running total strictly exceeds offset, and returns
// that run's line number. An offset past the last byte yields the last
// run's line; an empty chunk yields 0.
func (c *Chunk) GetLine(offset int) int {
	total := 0
	for _, run := range c.lines {
		total += run.Count
		if total > offset {
			return run.Line
		}
	}
	if len(c.lines) == 0 {
		return 0
	}
	return c.lines[len(c.lines)-1].Line
}
