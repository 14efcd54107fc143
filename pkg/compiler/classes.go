package compiler

import (
	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/lexer"
)

func (c *Compiler) classDeclaration() {
	c.parser.consume(lexer.TokenIdentifier, "Expect class name.")
	className := c.parser.previous
	nameConstant := identifierConstant(c, className.Lexeme)
	c.declareVariable(className.Lexeme)

	c.emitOpByte(chunk.OpClass, nameConstant)
	c.defineVariable(nameConstant)

	classComp := &classCompiler{enclosing: c.class}
	c.class = classComp

	if c.parser.match(lexer.TokenLess) {
		c.parser.consume(lexer.TokenIdentifier, "Expect superclass name.")
		variable(c, false) // pushes the superclass value
		if className.Lexeme == c.parser.previous.Lexeme {
			c.parser.error("A class can't inherit from itself.")
		}

		c.beginScope()
		c.addLocal("super")
		c.defineVariable(0)

		namedVariable(c, className.Lexeme, false)
		c.emitOp(chunk.OpInherit)
		classComp.hasSuperclass = true
	}

	namedVariable(c, className.Lexeme, false)
	c.parser.consume(lexer.TokenLeftBrace, "Expect '{' before class body.")
	for !c.parser.check(lexer.TokenRightBrace) && !c.parser.check(lexer.TokenEOF) {
		c.method()
	}
	c.parser.consume(lexer.TokenRightBrace, "Expect '}' after class body.")
	c.emitOp(chunk.OpPop) // the class itself, left on the stack by namedVariable above

	if classComp.hasSuperclass {
		c.endScope()
	}

	c.class = c.class.enclosing
}

func (c *Compiler) method() {
	c.parser.consume(lexer.TokenIdentifier, "Expect method name.")
	name := c.parser.previous.Lexeme
	nameConstant := identifierConstant(c, name)

	fnType := TypeMethod
	if name == "init" {
		fnType = TypeInitializer
	}
	c.function_(fnType)
	c.emitOpByte(chunk.OpMethod, nameConstant)
}
