package compiler

import (
	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/lexer"
	"github.com/kristofer/loxvm/pkg/value"
)

func number(c *Compiler, _ bool) {
	n := parseNumberLiteral(c.parser.previous.Lexeme)
	c.emitConstant(value.Number(n))
}

func stringLiteral(c *Compiler, _ bool) {
	lexeme := c.parser.previous.Lexeme
	// Strip the surrounding quotes; no escape processing.
	s := lexeme[1 : len(lexeme)-1]
	c.emitConstant(c.parser.heap.CopyString(s).AsValue())
}

func literal(c *Compiler, _ bool) {
	switch c.parser.previous.Type {
	case lexer.TokenFalse:
		c.emitOp(chunk.OpFalse)
	case lexer.TokenTrue:
		c.emitOp(chunk.OpTrue)
	case lexer.TokenNil:
		c.emitOp(chunk.OpNil)
	}
}

func grouping(c *Compiler, _ bool) {
	c.expression()
	c.parser.consume(lexer.TokenRightParen, "Expect ')' after expression.")
}

func unary(c *Compiler, _ bool) {
	opType := c.parser.previous.Type
	c.parsePrecedence(PrecUnary)
	switch opType {
	case lexer.TokenBang:
		c.emitOp(chunk.OpNot)
	case lexer.TokenMinus:
		c.emitOp(chunk.OpNegate)
	}
}

func binary(c *Compiler, _ bool) {
	opType := c.parser.previous.Type
	rule := getRule(opType)
	c.parsePrecedence(rule.precedence + 1)

	switch opType {
	case lexer.TokenBangEqual:
		c.emitOp(chunk.OpNotEqual)
	case lexer.TokenEqualEqual:
		c.emitOp(chunk.OpEqual)
	case lexer.TokenGreater:
		c.emitOp(chunk.OpGreater)
	case lexer.TokenGreaterEqual:
		c.emitOp(chunk.OpGreaterEqual)
	case lexer.TokenLess:
		c.emitOp(chunk.OpLess)
	case lexer.TokenLessEqual:
		c.emitOp(chunk.OpLessEqual)
	case lexer.TokenPlus:
		c.emitOp(chunk.OpAdd)
	case lexer.TokenMinus:
		c.emitOp(chunk.OpSubtract)
	case lexer.TokenStar:
		c.emitOp(chunk.OpMultiply)
	case lexer.TokenSlash:
		c.emitOp(chunk.OpDivide)
	}
}

func and_(c *Compiler, _ bool) {
	endJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

func or_(c *Compiler, _ bool) {
	elseJump := c.emitJump(chunk.OpJumpIfFalse)
	endJump := c.emitJump(chunk.OpJump)
	c.patchJump(elseJump)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

func (c *Compiler) argumentList() byte {
	argCount := 0
	if !c.parser.check(lexer.TokenRightParen) {
		for {
			c.expression()
			if argCount == 255 {
				c.parser.error("Can't have more than 255 arguments.")
			}
			argCount++
			if !c.parser.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.parser.consume(lexer.TokenRightParen, "Expect ')' after arguments.")
	return byte(argCount)
}

func call(c *Compiler, _ bool) {
	argCount := c.argumentList()
	c.emitOpByte(chunk.OpCall, argCount)
}

func dot(c *Compiler, canAssign bool) {
	c.parser.consume(lexer.TokenIdentifier, "Expect property name after '.'.")
	name := identifierConstant(c, c.parser.previous.Lexeme)

	switch {
	case canAssign && c.parser.match(lexer.TokenEqual):
		c.expression()
		c.emitOpByte(chunk.OpSetProperty, name)
	case c.parser.match(lexer.TokenLeftParen):
		argCount := c.argumentList()
		c.emitOpByte(chunk.OpInvoke, name)
		c.emitByte(argCount)
	default:
		c.emitOpByte(chunk.OpGetProperty, name)
	}
}

func variable(c *Compiler, canAssign bool) {
	namedVariable(c, c.parser.previous.Lexeme, canAssign)
}

func namedVariable(c *Compiler, name string, canAssign bool) {
	var getOp, setOp chunk.OpCode
	arg := c.resolveLocal(name)
	if arg != -1 {
		getOp, setOp = chunk.OpGetLocal, chunk.OpSetLocal
	} else if arg = c.resolveUpvalue(name); arg != -1 {
		getOp, setOp = chunk.OpGetUpvalue, chunk.OpSetUpvalue
	} else {
		arg = int(identifierConstant(c, name))
		getOp, setOp = chunk.OpGetGlobal, chunk.OpSetGlobal
	}

	if canAssign && c.parser.match(lexer.TokenEqual) {
		c.expression()
		c.emitOpByte(setOp, byte(arg))
	} else {
		c.emitOpByte(getOp, byte(arg))
	}
}

func this_(c *Compiler, _ bool) {
	if c.class == nil {
		c.parser.error("Can't use 'this' outside of a class.")
		return
	}
	variable(c, false)
}

func super_(c *Compiler, _ bool) {
	if c.class == nil {
		c.parser.error("Can't use 'super' outside of a class.")
	} else if !c.class.hasSuperclass {
		c.parser.error("Can't use 'super' in a class with no superclass.")
	}

	c.parser.consume(lexer.TokenDot, "Expect '.' after 'super'.")
	c.parser.consume(lexer.TokenIdentifier, "Expect superclass method name.")
	name := identifierConstant(c, c.parser.previous.Lexeme)

	namedVariable(c, "this", false)
	if c.parser.match(lexer.TokenLeftParen) {
		argCount := c.argumentList()
		namedVariable(c, "super", false)
		c.emitOpByte(chunk.OpSuperInvoke, name)
		c.emitByte(argCount)
	} else {
		namedVariable(c, "super", false)
		c.emitOpByte(chunk.OpGetSuper, name)
	}
}
