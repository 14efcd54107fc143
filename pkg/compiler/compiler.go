// Package compiler implements the single-pass Pratt-parsing compiler
// that turns lox source text directly into chunk bytecode: no AST is
// built. Compiler state is a per-function Compiler chained via
// enclosing, with a locals array and scope-depth bookkeeping, and a
// Pratt precedence table driving expression parsing.
package compiler

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/lexer"
	"github.com/kristofer/loxvm/pkg/object"
	"github.com/kristofer/loxvm/pkg/value"
)

// FunctionType distinguishes the kind of code a Compiler frame is
// assembling, since methods and initializers need slightly different
// treatment of slot 0 and of `return`.
type FunctionType int

const (
	TypeScript FunctionType = iota
	TypeFunction
	TypeMethod
	TypeInitializer
)

// MaxLocals is the largest number of local variables or upvalues live at
// once in a single function scope: the slot operand is one byte wide.
const MaxLocals = 256

// local is one entry of a Compiler's locals array.
type local struct {
	name       string
	depth      int // -1 while declared-but-uninitialized
	isCaptured bool
}

// upvalueRef is one entry of a Compiler's upvalue table.
type upvalueRef struct {
	index   byte
	isLocal bool
}

// loopState is one entry of the compile-time stack of enclosing loops,
// used to patch `break` jumps and to give `continue` the right target
// (the step/condition of a `for`, not the top of its body).
type loopState struct {
	enclosing  *loopState
	loopStart  int
	scopeDepth int
	breakJumps []int
}

// classCompiler is one entry of the compile-time stack of enclosing
// class declarations, used to reject `this`/`super` outside a class and
// to know whether the enclosing class has a superclass.
type classCompiler struct {
	enclosing     *classCompiler
	hasSuperclass bool
}

// Compiler holds the state for compiling a single function body (the
// top-level script counts as a function). Nested function/method
// literals get their own Compiler chained through enclosing.
type Compiler struct {
	parser    *Parser
	enclosing *Compiler

	function *object.Function
	fnType   FunctionType

	locals     [MaxLocals]local
	localCount int
	scopeDepth int

	upvalues [MaxLocals]upvalueRef

	loop  *loopState
	class *classCompiler
}

// Parser holds scanner cursor state and error-recovery flags shared by
// every Compiler frame compiling one source text. It is threaded
// explicitly rather than kept as package-level state, so multiple
// compiles can run independently.
type Parser struct {
	scanner *lexer.Scanner
	heap    *object.Heap

	current  lexer.Token
	previous lexer.Token

	hadError  bool
	panicMode bool

	errOut io.Writer

	compiler *Compiler // innermost Compiler frame currently being built
}

// markRoots marks every Function under construction in the compiler
// chain, innermost first. Installed as the heap's compiler-root hook for
// the duration of Compile.
func (p *Parser) markRoots(h *object.Heap) {
	for c := p.compiler; c != nil; c = c.enclosing {
		h.MarkObject(&c.function.Header)
	}
}

// Compile compiles source into a top-level script Function (wrapped by
// the caller in a Closure before execution). The returned bool is false
// iff a compile error occurred; the VM maps that to
// INTERPRET_COMPILE_ERROR.
func Compile(source string, heap *object.Heap, errOut io.Writer) (*object.Function, bool) {
	if errOut == nil {
		errOut = os.Stderr
	}
	p := &Parser{scanner: lexer.New(source), heap: heap, errOut: errOut}
	heap.SetCompilerRoot(p.markRoots)
	defer heap.SetCompilerRoot(nil)

	c := newCompiler(p, nil, TypeScript)

	p.advance()
	for !p.match(lexer.TokenEOF) {
		c.declaration()
	}

	fn := c.endCompiler()
	return fn, !p.hadError
}

func newCompiler(p *Parser, enclosing *Compiler, fnType FunctionType) *Compiler {
	c := &Compiler{
		parser:     p,
		enclosing:  enclosing,
		function:   p.heap.NewFunction(),
		fnType:     fnType,
		scopeDepth: 0,
	}
	if enclosing != nil {
		c.class = enclosing.class
	}
	p.compiler = c
	if fnType != TypeScript {
		c.function.Name = p.heap.CopyString(p.previous.Lexeme)
	}

	// Slot 0 is reserved. For methods and initializers it holds the
	// receiver (`this`); for plain functions and the script it holds an
	// unnameable empty-string local so user code can never shadow it.
	top := &c.locals[0]
	c.localCount = 1
	top.depth = 0
	if fnType == TypeMethod || fnType == TypeInitializer {
		top.name = "this"
	} else {
		top.name = ""
	}

	return c
}

func (c *Compiler) chunk() *chunk.Chunk { return c.function.Chunk }

func (c *Compiler) endCompiler() *object.Function {
	c.emitReturn()
	fn := c.function
	c.parser.compiler = c.enclosing
	if c.parser.hadError {
		return nil
	}
	return fn
}

// ---- error reporting ----

func (p *Parser) errorAt(tok lexer.Token, msg string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.hadError = true
	lexeme := tok.Lexeme
	if tok.Type == lexer.TokenEOF {
		lexeme = "end"
	}
	fmt.Fprintf(p.errOut, "[line %d column %d] Error at '%s': %s\n", tok.Line, tok.Column, lexeme, msg)
}

func (p *Parser) error(msg string)      { p.errorAt(p.previous, msg) }
func (p *Parser) errorHere(msg string)  { p.errorAt(p.current, msg) }

func (p *Parser) advance() {
	p.previous = p.current
	for {
		p.current = p.scanner.Next()
		if p.current.Type != lexer.TokenError {
			break
		}
		p.errorHere(p.current.Lexeme)
	}
}

func (p *Parser) check(t lexer.TokenType) bool { return p.current.Type == t }

func (p *Parser) match(t lexer.TokenType) bool {
	if !p.check(t) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) consume(t lexer.TokenType, msg string) {
	if p.current.Type == t {
		p.advance()
		return
	}
	p.errorHere(msg)
}

// synchronize skips tokens until it finds a likely statement boundary,
// clearing panicMode so subsequent errors are reported again.
func (p *Parser) synchronize() {
	p.panicMode = false
	for p.current.Type != lexer.TokenEOF {
		if p.previous.Type == lexer.TokenSemicolon {
			return
		}
		switch p.current.Type {
		case lexer.TokenClass, lexer.TokenFun, lexer.TokenVar, lexer.TokenFor,
			lexer.TokenIf, lexer.TokenWhile, lexer.TokenPrint, lexer.TokenReturn:
			return
		}
		p.advance()
	}
}

// ---- bytecode emission ----

func (c *Compiler) emitByte(b byte) {
	c.chunk().Write(b, c.parser.previous.Line)
}

func (c *Compiler) emitOp(op chunk.OpCode) {
	c.chunk().WriteOp(op, c.parser.previous.Line)
}

func (c *Compiler) emitOpByte(op chunk.OpCode, operand byte) {
	c.emitOp(op)
	c.emitByte(operand)
}

func (c *Compiler) emitReturn() {
	if c.fnType == TypeInitializer {
		c.emitOpByte(chunk.OpGetLocal, 0)
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.emitOp(chunk.OpReturn)
}

func (c *Compiler) makeConstant(v value.Value) byte {
	idx := c.chunk().AddConstant(v)
	if idx > chunk.MaxConstants-1 {
		c.parser.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitOpByte(chunk.OpConstant, c.makeConstant(v))
}

// emitJump emits a jump opcode with a placeholder 16-bit operand and
// returns the offset of that operand, to be patched later by patchJump.
func (c *Compiler) emitJump(op chunk.OpCode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.chunk().Code) - offset - 2
	if jump > 0xffff {
		c.parser.error("Too much code to jump over.")
	}
	c.chunk().Code[offset] = byte((jump >> 8) & 0xff)
	c.chunk().Code[offset+1] = byte(jump & 0xff)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(chunk.OpLoop)
	offset := len(c.chunk().Code) - loopStart + 2
	if offset > 0xffff {
		c.parser.error("Loop body too large.")
	}
	c.emitByte(byte((offset >> 8) & 0xff))
	c.emitByte(byte(offset & 0xff))
}

// ---- scopes ----

func (c *Compiler) beginScope() { c.scopeDepth++ }

func (c *Compiler) endScope() {
	c.scopeDepth--
	for c.localCount > 0 && c.locals[c.localCount-1].depth > c.scopeDepth {
		if c.locals[c.localCount-1].isCaptured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
		c.localCount--
	}
}

// ---- variable resolution ----

func identifierConstant(c *Compiler, name string) byte {
	return c.makeConstant(c.parser.heap.CopyString(name).AsValue())
}

func (c *Compiler) addLocal(name string) {
	if c.localCount == MaxLocals {
		c.parser.error("Too many local variables in function.")
		return
	}
	l := &c.locals[c.localCount]
	c.localCount++
	l.name = name
	l.depth = -1
	l.isCaptured = false
}

func (c *Compiler) declareVariable(name string) {
	if c.scopeDepth == 0 {
		return
	}
	for i := c.localCount - 1; i >= 0; i-- {
		l := &c.locals[i]
		if l.depth != -1 && l.depth < c.scopeDepth {
			break
		}
		if l.name == name {
			c.parser.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) parseVariable(errMsg string) byte {
	c.parser.consume(lexer.TokenIdentifier, errMsg)
	name := c.parser.previous.Lexeme
	c.declareVariable(name)
	if c.scopeDepth > 0 {
		return 0
	}
	return identifierConstant(c, name)
}

func (c *Compiler) markInitialized() {
	if c.scopeDepth == 0 {
		return
	}
	c.locals[c.localCount-1].depth = c.scopeDepth
}

func (c *Compiler) defineVariable(global byte) {
	if c.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(chunk.OpDefineGlobal, global)
}

func (c *Compiler) resolveLocal(name string) int {
	for i := c.localCount - 1; i >= 0; i-- {
		l := &c.locals[i]
		if l.name == name {
			if l.depth == -1 {
				c.parser.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) addUpvalue(index byte, isLocal bool) int {
	count := c.function.UpvalueCount
	for i := 0; i < count; i++ {
		uv := &c.upvalues[i]
		if int(uv.index) == int(index) && uv.isLocal == isLocal {
			return i
		}
	}
	if count == MaxLocals {
		c.parser.error("Too many closure variables in function.")
		return 0
	}
	c.upvalues[count] = upvalueRef{index: index, isLocal: isLocal}
	c.function.UpvalueCount++
	return count
}

func (c *Compiler) resolveUpvalue(name string) int {
	if c.enclosing == nil {
		return -1
	}
	if local := c.enclosing.resolveLocal(name); local != -1 {
		c.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(byte(local), true)
	}
	if up := c.enclosing.resolveUpvalue(name); up != -1 {
		return c.addUpvalue(byte(up), false)
	}
	return -1
}

// ---- numbers / strings ----

func parseNumberLiteral(lexeme string) float64 {
	n, _ := strconv.ParseFloat(lexeme, 64)
	return n
}
