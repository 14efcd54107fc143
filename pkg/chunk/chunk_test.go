package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/loxvm/pkg/value"
)

func TestWriteExtendsLineRuns(t *testing.T) {
	c := New()
	c.WriteOp(OpConstant, 1)
	c.Write(0, 1)
	c.WriteOp(OpReturn, 2)

	require.Len(t, c.Code, 3)
	assert.Equal(t, 1, c.GetLine(0))
	assert.Equal(t, 1, c.GetLine(1))
	assert.Equal(t, 2, c.GetLine(2))
}

func TestGetLineOnEmptyChunk(t *testing.T) {
	c := New()
	assert.Equal(t, 0, c.GetLine(0))
}

func TestGetLineBeyondLastByteReturnsLastLine(t *testing.T) {
	c := New()
	c.WriteOp(OpReturn, 7)
	assert.Equal(t, 7, c.GetLine(99))
}

func TestAddConstantReturnsIndex(t *testing.T) {
	c := New()
	i0 := c.AddConstant(value.Number(1))
	i1 := c.AddConstant(value.Number(2))
	assert.Equal(t, 0, i0)
	assert.Equal(t, 1, i1)
	assert.Equal(t, value.Number(1), c.Constants[0])
	assert.Equal(t, value.Number(2), c.Constants[1])
}

func TestOpCodeStringKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "OP_RETURN", OpReturn.String())
	assert.Equal(t, "OP_CONSTANT", OpConstant.String())
	assert.Equal(t, "OP_UNKNOWN", OpCode(250).String())
}

func TestLineRunSurvivesManyLinesPastByteRange(t *testing.T) {
	c := New()
	// A widened int line field must not truncate past 255, unlike a
	// single byte would.
	c.WriteOp(OpNil, 1000)
	assert.Equal(t, 1000, c.GetLine(0))
}
