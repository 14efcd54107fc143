package compiler

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/loxvm/pkg/object"
)

func TestCompileValidSourceSucceeds(t *testing.T) {
	heap := object.NewHeap()
	var errOut bytes.Buffer
	fn, ok := Compile(`print 1 + 2;`, heap, &errOut)
	require.True(t, ok)
	require.NotNil(t, fn)
	assert.Empty(t, errOut.String())
}

func TestCompileErrorFormatMatchesDiagnosticSpec(t *testing.T) {
	heap := object.NewHeap()
	var errOut bytes.Buffer
	_, ok := Compile(`print ;`, heap, &errOut)
	require.False(t, ok)
	assert.Contains(t, errOut.String(), "Error at ';'")
}

func TestCompileErrorAtEndOfFile(t *testing.T) {
	heap := object.NewHeap()
	var errOut bytes.Buffer
	_, ok := Compile(`var x = 1`, heap, &errOut)
	require.False(t, ok)
	assert.Contains(t, errOut.String(), "Error at 'end'")
}

func TestRedeclaringLocalInSameScopeIsError(t *testing.T) {
	heap := object.NewHeap()
	var errOut bytes.Buffer
	_, ok := Compile(`
		{
			var a = 1;
			var a = 2;
		}
	`, heap, &errOut)
	require.False(t, ok)
	assert.Contains(t, errOut.String(), "Already a variable with this name in this scope.")
}

func TestReturnFromTopLevelIsError(t *testing.T) {
	heap := object.NewHeap()
	var errOut bytes.Buffer
	_, ok := Compile(`return 1;`, heap, &errOut)
	require.False(t, ok)
	assert.Contains(t, errOut.String(), "Can't return from top-level code.")
}

func TestThisOutsideClassIsError(t *testing.T) {
	heap := object.NewHeap()
	var errOut bytes.Buffer
	_, ok := Compile(`print this;`, heap, &errOut)
	require.False(t, ok)
	assert.Contains(t, errOut.String(), "Can't use 'this' outside of a class.")
}

func TestClassInheritingFromItselfIsError(t *testing.T) {
	heap := object.NewHeap()
	var errOut bytes.Buffer
	_, ok := Compile(`class Oops < Oops {}`, heap, &errOut)
	require.False(t, ok)
	assert.Contains(t, errOut.String(), "A class can't inherit from itself.")
}

func TestBreakOutsideLoopIsError(t *testing.T) {
	heap := object.NewHeap()
	var errOut bytes.Buffer
	_, ok := Compile(`break;`, heap, &errOut)
	require.False(t, ok)
	assert.Contains(t, errOut.String(), "Can't use 'break' outside of a loop.")
}

func TestFunctionCompilesWithUpvalues(t *testing.T) {
	heap := object.NewHeap()
	var errOut bytes.Buffer
	fn, ok := Compile(`
		fun outer() {
			var x = 1;
			fun inner() {
				return x;
			}
			return inner;
		}
	`, heap, &errOut)
	require.True(t, ok)
	require.NotNil(t, fn)
	assert.Empty(t, errOut.String())
}
