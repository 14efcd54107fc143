// Package debug implements the human-readable bytecode disassembler.
// The disassembler is debug-only tooling: the VM calls it only to trace
// execution, and the CLI calls it for the `disassemble` subcommand.
// StringifyValue is the exception: the VM's print instruction uses it to
// render values.
package debug

import (
	"fmt"
	"io"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/object"
	"github.com/kristofer/loxvm/pkg/value"
)

// Disassemble writes a full human-readable dump of c to w, labelled
// name, one instruction per line.
func Disassemble(w io.Writer, c *chunk.Chunk, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	for offset := 0; offset < len(c.Code); {
		offset = DisassembleInstruction(w, c, offset)
	}
}

// DisassembleInstruction writes one instruction at offset to w and
// returns the offset of the next instruction.
func DisassembleInstruction(w io.Writer, c *chunk.Chunk, offset int) int {
	fmt.Fprintf(w, "%04d ", offset)
	line := c.GetLine(offset)
	if offset > 0 && line == c.GetLine(offset-1) {
		fmt.Fprint(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", line)
	}

	op := chunk.OpCode(c.Code[offset])
	switch op {
	case chunk.OpNil, chunk.OpTrue, chunk.OpFalse, chunk.OpPop, chunk.OpEqual,
		chunk.OpNotEqual, chunk.OpGreater, chunk.OpGreaterEqual, chunk.OpLess,
		chunk.OpLessEqual, chunk.OpAdd, chunk.OpSubtract, chunk.OpMultiply,
		chunk.OpDivide, chunk.OpNot, chunk.OpNegate, chunk.OpPrint,
		chunk.OpCloseUpvalue, chunk.OpReturn, chunk.OpInherit, chunk.OpTernary:
		return simpleInstruction(w, op, offset)

	case chunk.OpConstant, chunk.OpGetGlobal, chunk.OpDefineGlobal,
		chunk.OpSetGlobal, chunk.OpClass, chunk.OpGetSuper, chunk.OpMethod:
		return constantInstruction(w, op, c, offset)

	case chunk.OpGetLocal, chunk.OpSetLocal, chunk.OpGetUpvalue,
		chunk.OpSetUpvalue, chunk.OpCall:
		return byteInstruction(w, op, c, offset)

	case chunk.OpGetProperty, chunk.OpSetProperty:
		return constantInstruction(w, op, c, offset)

	case chunk.OpJump, chunk.OpJumpIfFalse:
		return jumpInstruction(w, op, 1, c, offset)

	case chunk.OpLoop:
		return jumpInstruction(w, op, -1, c, offset)

	case chunk.OpInvoke, chunk.OpSuperInvoke:
		return invokeInstruction(w, op, c, offset)

	case chunk.OpClosure:
		return closureInstruction(w, c, offset)

	default:
		fmt.Fprintf(w, "Unknown opcode %d\n", c.Code[offset])
		return offset + 1
	}
}

func simpleInstruction(w io.Writer, op chunk.OpCode, offset int) int {
	fmt.Fprintf(w, "%s\n", op)
	return offset + 1
}

func byteInstruction(w io.Writer, op chunk.OpCode, c *chunk.Chunk, offset int) int {
	slot := c.Code[offset+1]
	fmt.Fprintf(w, "%-16s %4d\n", op, slot)
	return offset + 2
}

func jumpInstruction(w io.Writer, op chunk.OpCode, sign int, c *chunk.Chunk, offset int) int {
	jump := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
	fmt.Fprintf(w, "%-16s %4d -> %d\n", op, offset, offset+3+sign*jump)
	return offset + 3
}

func constantInstruction(w io.Writer, op chunk.OpCode, c *chunk.Chunk, offset int) int {
	idx := c.Code[offset+1]
	fmt.Fprintf(w, "%-16s %4d '%s'\n", op, idx, StringifyValue(c.Constants[idx]))
	return offset + 2
}

func invokeInstruction(w io.Writer, op chunk.OpCode, c *chunk.Chunk, offset int) int {
	idx := c.Code[offset+1]
	argCount := c.Code[offset+2]
	fmt.Fprintf(w, "%-16s (%d args) %4d '%s'\n", op, argCount, idx, StringifyValue(c.Constants[idx]))
	return offset + 3
}

func closureInstruction(w io.Writer, c *chunk.Chunk, offset int) int {
	offset++
	idx := c.Code[offset]
	offset++
	fmt.Fprintf(w, "%-16s %4d '%s'\n", chunk.OpClosure, idx, StringifyValue(c.Constants[idx]))

	fn := object.AsFunction(c.Constants[idx])
	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal := c.Code[offset]
		offset++
		index := c.Code[offset]
		offset++
		kind := "upvalue"
		if isLocal != 0 {
			kind = "local"
		}
		fmt.Fprintf(w, "%04d      |                     %s %d\n", offset-2, kind, index)
	}
	return offset
}

// StringifyValue renders a Value for disassembly and for the print
// statement.
func StringifyValue(v value.Value) string {
	switch {
	case value.IsNil(v):
		return "nil"
	case value.IsBool(v):
		return fmt.Sprintf("%t", value.AsBool(v))
	case value.IsNumber(v):
		return formatNumber(value.AsNumber(v))
	case value.IsObj(v):
		return stringifyObject(v)
	default:
		return "<unknown>"
	}
}

func formatNumber(n float64) string {
	return fmt.Sprintf("%g", n)
}

func stringifyObject(v value.Value) string {
	h := object.FromValue(v)
	switch h.Kind {
	case object.KindString:
		return object.AsString(v).Chars
	case object.KindFunction:
		fn := object.AsFunction(v)
		if fn.Name == nil {
			return "<script>"
		}
		return fmt.Sprintf("<fn %s>", fn.Name.Chars)
	case object.KindNative:
		return fmt.Sprintf("<native fn %s>", object.AsNative(v).Name)
	case object.KindClosure:
		return stringifyObject(object.AsClosure(v).Function.AsValue())
	case object.KindUpvalue:
		return "<upvalue>"
	case object.KindClass:
		return object.AsClass(v).Name.Chars
	case object.KindInstance:
		return fmt.Sprintf("%s instance", object.AsInstance(v).Class.Name.Chars)
	case object.KindBoundMethod:
		return stringifyObject(object.AsBoundMethod(v).Method.AsValue())
	default:
		return "<object>"
	}
}
