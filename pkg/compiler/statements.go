package compiler

import (
	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/lexer"
)

func (c *Compiler) declaration() {
	switch {
	case c.parser.match(lexer.TokenClass):
		c.classDeclaration()
	case c.parser.match(lexer.TokenFun):
		c.funDeclaration()
	case c.parser.match(lexer.TokenVar):
		c.varDeclaration()
	default:
		c.statement()
	}

	if c.parser.panicMode {
		c.parser.synchronize()
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")

	if c.parser.match(lexer.TokenEqual) {
		c.expression()
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.parser.consume(lexer.TokenSemicolon, "Expect ';' after variable declaration.")

	c.defineVariable(global)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function_(TypeFunction)
	c.defineVariable(global)
}

func (c *Compiler) function_(fnType FunctionType) {
	sub := newCompiler(c.parser, c, fnType)
	sub.beginScope()

	sub.parser.consume(lexer.TokenLeftParen, "Expect '(' after function name.")
	if !sub.parser.check(lexer.TokenRightParen) {
		for {
			sub.function.Arity++
			if sub.function.Arity > 255 {
				sub.parser.errorHere("Can't have more than 255 parameters.")
			}
			constant := sub.parseVariable("Expect parameter name.")
			sub.defineVariable(constant)
			if !sub.parser.match(lexer.TokenComma) {
				break
			}
		}
	}
	sub.parser.consume(lexer.TokenRightParen, "Expect ')' after parameters.")
	sub.parser.consume(lexer.TokenLeftBrace, "Expect '{' before function body.")
	sub.block()

	fn := sub.endCompiler()
	idx := c.makeConstant(fn.AsValue())
	c.emitOpByte(chunk.OpClosure, idx)
	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal := byte(0)
		if sub.upvalues[i].isLocal {
			isLocal = 1
		}
		c.emitByte(isLocal)
		c.emitByte(sub.upvalues[i].index)
	}
}

func (c *Compiler) statement() {
	switch {
	case c.parser.match(lexer.TokenPrint):
		c.printStatement()
	case c.parser.match(lexer.TokenIf):
		c.ifStatement()
	case c.parser.match(lexer.TokenReturn):
		c.returnStatement()
	case c.parser.match(lexer.TokenWhile):
		c.whileStatement()
	case c.parser.match(lexer.TokenFor):
		c.forStatement()
	case c.parser.match(lexer.TokenBreak):
		c.breakStatement()
	case c.parser.match(lexer.TokenContinue):
		c.continueStatement()
	case c.parser.match(lexer.TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.parser.check(lexer.TokenRightBrace) && !c.parser.check(lexer.TokenEOF) {
		c.declaration()
	}
	c.parser.consume(lexer.TokenRightBrace, "Expect '}' after block.")
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.parser.consume(lexer.TokenSemicolon, "Expect ';' after expression.")
	c.emitOp(chunk.OpPop)
}

func (c *Compiler) printStatement() {
	c.expression()
	c.parser.consume(lexer.TokenSemicolon, "Expect ';' after value.")
	c.emitOp(chunk.OpPrint)
}

func (c *Compiler) returnStatement() {
	if c.fnType == TypeScript {
		c.parser.error("Can't return from top-level code.")
	}
	if c.parser.match(lexer.TokenSemicolon) {
		c.emitReturn()
		return
	}
	if c.fnType == TypeInitializer {
		c.parser.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.parser.consume(lexer.TokenSemicolon, "Expect ';' after return value.")
	c.emitOp(chunk.OpReturn)
}

func (c *Compiler) ifStatement() {
	c.parser.consume(lexer.TokenLeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.parser.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()

	elseJump := c.emitJump(chunk.OpJump)
	c.patchJump(thenJump)
	c.emitOp(chunk.OpPop)

	if c.parser.match(lexer.TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) pushLoop(loopStart int) *loopState {
	l := &loopState{enclosing: c.loop, loopStart: loopStart, scopeDepth: c.scopeDepth}
	c.loop = l
	return l
}

func (c *Compiler) popLoop() {
	c.loop = c.loop.enclosing
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.chunk().Code)
	c.pushLoop(loopStart)

	c.parser.consume(lexer.TokenLeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.parser.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(chunk.OpPop)

	c.patchBreaks()
	c.popLoop()
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.parser.consume(lexer.TokenLeftParen, "Expect '(' after 'for'.")

	switch {
	case c.parser.match(lexer.TokenSemicolon):
		// no initializer
	case c.parser.match(lexer.TokenVar):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.chunk().Code)
	exitJump := -1
	if !c.parser.match(lexer.TokenSemicolon) {
		c.expression()
		c.parser.consume(lexer.TokenSemicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(chunk.OpJumpIfFalse)
		c.emitOp(chunk.OpPop)
	}

	if !c.parser.check(lexer.TokenRightParen) {
		bodyJump := c.emitJump(chunk.OpJump)
		incrementStart := len(c.chunk().Code)
		c.expression()
		c.emitOp(chunk.OpPop)
		c.parser.consume(lexer.TokenRightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.pushLoop(loopStart)
	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(chunk.OpPop)
	}

	c.patchBreaks()
	c.popLoop()
	c.endScope()
}

func (c *Compiler) patchBreaks() {
	for _, offset := range c.loop.breakJumps {
		c.patchJump(offset)
	}
}

func (c *Compiler) breakStatement() {
	if c.loop == nil {
		c.parser.error("Can't use 'break' outside of a loop.")
		c.parser.consume(lexer.TokenSemicolon, "Expect ';' after 'break'.")
		return
	}
	c.closeLocalsToDepth(c.loop.scopeDepth)
	jump := c.emitJump(chunk.OpJump)
	c.loop.breakJumps = append(c.loop.breakJumps, jump)
	c.parser.consume(lexer.TokenSemicolon, "Expect ';' after 'break'.")
}

func (c *Compiler) continueStatement() {
	if c.loop == nil {
		c.parser.error("Can't use 'continue' outside of a loop.")
		c.parser.consume(lexer.TokenSemicolon, "Expect ';' after 'continue'.")
		return
	}
	c.closeLocalsToDepth(c.loop.scopeDepth)
	c.emitLoop(c.loop.loopStart)
	c.parser.consume(lexer.TokenSemicolon, "Expect ';' after 'continue'.")
}

// closeLocalsToDepth pops (or closes, if captured) every local declared
// more deeply than targetDepth without touching the compiler's notion of
// which locals are still in scope — used by break/continue, which jump
// out of scopes the compiler itself will still close normally once it
// finishes parsing them.
func (c *Compiler) closeLocalsToDepth(targetDepth int) {
	for i := c.localCount - 1; i >= 0 && c.locals[i].depth > targetDepth; i-- {
		if c.locals[i].isCaptured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
	}
}
