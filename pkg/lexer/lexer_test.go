package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanAll(source string) []Token {
	s := New(source)
	var tokens []Token
	for {
		tok := s.Next()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return tokens
}

func TestScanPunctuationAndOperators(t *testing.T) {
	tokens := scanAll("(){},.-+;/* ! != == = < <= > >=")
	types := make([]TokenType, 0, len(tokens))
	for _, tok := range tokens {
		types = append(types, tok.Type)
	}
	assert.Equal(t, []TokenType{
		TokenLeftParen, TokenRightParen, TokenLeftBrace, TokenRightBrace,
		TokenComma, TokenDot, TokenMinus, TokenPlus, TokenSemicolon,
		TokenSlash, TokenStar, TokenBang, TokenBangEqual, TokenEqualEqual,
		TokenEqual, TokenLess, TokenLessEqual, TokenGreater, TokenGreaterEqual,
		TokenEOF,
	}, types)
}

func TestScanKeywordsAndIdentifiers(t *testing.T) {
	tokens := scanAll("class fun foo123 _bar while")
	require.Len(t, tokens, 6)
	assert.Equal(t, TokenClass, tokens[0].Type)
	assert.Equal(t, TokenFun, tokens[1].Type)
	assert.Equal(t, TokenIdentifier, tokens[2].Type)
	assert.Equal(t, "foo123", tokens[2].Lexeme)
	assert.Equal(t, TokenIdentifier, tokens[3].Type)
	assert.Equal(t, TokenWhile, tokens[4].Type)
}

func TestScanNumbers(t *testing.T) {
	tokens := scanAll("123 45.67 0")
	require.Len(t, tokens, 4)
	assert.Equal(t, "123", tokens[0].Lexeme)
	assert.Equal(t, "45.67", tokens[1].Lexeme)
	assert.Equal(t, "0", tokens[2].Lexeme)
}

func TestScanStringLiteral(t *testing.T) {
	tokens := scanAll(`"hello world"`)
	require.Len(t, tokens, 2)
	assert.Equal(t, TokenString, tokens[0].Type)
	assert.Equal(t, `"hello world"`, tokens[0].Lexeme)
}

func TestScanUnterminatedStringIsError(t *testing.T) {
	tokens := scanAll(`"never closes`)
	require.Len(t, tokens, 1)
	assert.Equal(t, TokenError, tokens[0].Type)
	assert.Equal(t, "Unterminated string.", tokens[0].Lexeme)
}

func TestScanSkipsLineComments(t *testing.T) {
	tokens := scanAll("var x = 1; // a comment\nvar y = 2;")
	var kinds []TokenType
	for _, tok := range tokens {
		kinds = append(kinds, tok.Type)
	}
	assert.Contains(t, kinds, TokenVar)
	assert.NotContains(t, kinds, TokenSlash)
}

func TestScanTracksLineAndColumn(t *testing.T) {
	tokens := scanAll("var x;\nvar y;")
	require.True(t, len(tokens) >= 6)
	assert.Equal(t, 1, tokens[0].Line)
	// "var" on the second line starts at line 2.
	var secondLineVar Token
	for _, tok := range tokens {
		if tok.Type == TokenVar && tok.Line == 2 {
			secondLineVar = tok
		}
	}
	assert.Equal(t, TokenVar, secondLineVar.Type)
	assert.Equal(t, 1, secondLineVar.Column)
}

func TestScanUnexpectedCharacterIsError(t *testing.T) {
	tokens := scanAll("@")
	require.Len(t, tokens, 1)
	assert.Equal(t, TokenError, tokens[0].Type)
	assert.Equal(t, "Unexpected character.", tokens[0].Lexeme)
}

func TestNextReturnsEOFForever(t *testing.T) {
	s := New("")
	first := s.Next()
	second := s.Next()
	assert.Equal(t, TokenEOF, first.Type)
	assert.Equal(t, TokenEOF, second.Type)
}
