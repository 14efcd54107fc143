package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run interprets source against a fresh VM and returns everything printed
// to stdout, trimmed of its trailing newline.
func run(t *testing.T, source string) (string, InterpretResult, error) {
	t.Helper()
	v := New()
	var stdout, stderr bytes.Buffer
	v.Stdout = &stdout
	v.Stderr = &stderr
	result, err := v.Interpret(source)
	if result == InterpretCompileError {
		t.Logf("compile diagnostics:\n%s", stderr.String())
	}
	return strings.TrimRight(stdout.String(), "\n"), result, err
}

func TestArithmeticAndPrint(t *testing.T) {
	out, result, err := run(t, `print 1 + 2 * 3;`)
	require.NoError(t, err)
	assert.Equal(t, InterpretOK, result)
	assert.Equal(t, "7", out)
}

func TestStringConcatenation(t *testing.T) {
	out, _, err := run(t, `print "foo" + "bar";`)
	require.NoError(t, err)
	assert.Equal(t, "foobar", out)
}

func TestGlobalAndLocalVariables(t *testing.T) {
	out, _, err := run(t, `
		var a = 10;
		{
			var b = 20;
			print a + b;
		}
		print a;
	`)
	require.NoError(t, err)
	assert.Equal(t, "30\n10", out)
}

func TestIfElse(t *testing.T) {
	out, _, err := run(t, `
		if (1 < 2) { print "yes"; } else { print "no"; }
		if (1 > 2) { print "yes"; } else { print "no"; }
	`)
	require.NoError(t, err)
	assert.Equal(t, "yes\nno", out)
}

func TestWhileLoopWithBreakAndContinue(t *testing.T) {
	out, _, err := run(t, `
		var i = 0;
		var sum = 0;
		while (i < 10) {
			i = i + 1;
			if (i == 5) { continue; }
			if (i == 8) { break; }
			sum = sum + i;
		}
		print sum;
	`)
	require.NoError(t, err)
	// 1+2+3+4 + 6+7 = 23
	assert.Equal(t, "23", out)
}

func TestForLoop(t *testing.T) {
	out, _, err := run(t, `
		var total = 0;
		for (var i = 0; i < 5; i = i + 1) {
			total = total + i;
		}
		print total;
	`)
	require.NoError(t, err)
	assert.Equal(t, "10", out)
}

func TestClosureCapturesByReference(t *testing.T) {
	out, _, err := run(t, `
		fun makeCounter() {
			var count = 0;
			fun increment() {
				count = count + 1;
				return count;
			}
			return increment;
		}
		var counter = makeCounter();
		print counter();
		print counter();
		print counter();
	`)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3", out)
}

func TestClassInitAndMethod(t *testing.T) {
	out, _, err := run(t, `
		class Counter {
			init(start) {
				this.value = start;
			}
			bump() {
				this.value = this.value + 1;
				return this.value;
			}
		}
		var c = Counter(10);
		print c.bump();
		print c.bump();
	`)
	require.NoError(t, err)
	assert.Equal(t, "11\n12", out)
}

func TestSingleInheritanceAndSuperCall(t *testing.T) {
	out, _, err := run(t, `
		class Animal {
			speak() {
				return "...";
			}
			describe() {
				return "An animal says " + this.speak();
			}
		}
		class Dog < Animal {
			speak() {
				return "Woof";
			}
			describe() {
				return super.describe() + "!";
			}
		}
		print Dog().describe();
	`)
	require.NoError(t, err)
	assert.Equal(t, "An animal says Woof!", out)
}

func TestSuperPropertyAccessWithoutCallBindsMethod(t *testing.T) {
	out, result, err := run(t, `
		class Animal {
			speak() {
				return "...";
			}
		}
		class Dog < Animal {
			speak() {
				return "Woof";
			}
			parentSpeak() {
				var bound = super.speak;
				return bound();
			}
		}
		print Dog().parentSpeak();
		print "after";
	`)
	require.NoError(t, err)
	assert.Equal(t, InterpretOK, result)
	assert.Equal(t, "...\nafter", out)
}

func TestBreakOutsideLoopIsCompileError(t *testing.T) {
	_, result, _ := run(t, `break;`)
	assert.Equal(t, InterpretCompileError, result)
}

func TestAddingNumberAndStringIsRuntimeError(t *testing.T) {
	_, result, err := run(t, `print 1 + "two";`)
	assert.Equal(t, InterpretRuntimeError, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Operands must be two numbers or two strings.")
}

func TestUndefinedVariableIsRuntimeError(t *testing.T) {
	_, result, err := run(t, `print undefinedThing;`)
	assert.Equal(t, InterpretRuntimeError, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Undefined variable 'undefinedThing'.")
}

func TestRuntimeErrorIncludesStackTrace(t *testing.T) {
	_, result, err := run(t, `
		fun inner() {
			return 1 + "two";
		}
		fun outer() {
			return inner();
		}
		outer();
	`)
	require.Equal(t, InterpretRuntimeError, result)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "in inner")
	assert.Contains(t, msg, "in outer")
	assert.Contains(t, msg, "in script")
}

func TestClockNativeReturnsNumber(t *testing.T) {
	out, result, err := run(t, `print clock() >= 0;`)
	require.NoError(t, err)
	assert.Equal(t, InterpretOK, result)
	assert.Equal(t, "true", out)
}

func TestStressGCPreservesLiveClosureState(t *testing.T) {
	v := New()
	v.Heap().StressGC = true
	var stdout, stderr bytes.Buffer
	v.Stdout = &stdout
	v.Stderr = &stderr

	result, err := v.Interpret(`
		fun makeCounter() {
			var count = 0;
			fun increment() {
				count = count + 1;
				return count;
			}
			return increment;
		}
		var counter = makeCounter();
		print counter();
		print counter();
		var wasted = "this string is garbage " + "as soon as this line finishes";
		print counter();
	`)
	require.NoError(t, err)
	assert.Equal(t, InterpretOK, result)
	assert.Equal(t, "1\n2\n3", strings.TrimRight(stdout.String(), "\n"))
}

func TestEachVMInstanceIsIndependent(t *testing.T) {
	a := New()
	b := New()
	assert.NotEqual(t, a.ID, b.ID)

	var bufA, bufB bytes.Buffer
	a.Stdout = &bufA
	b.Stdout = &bufB

	_, err := a.Interpret(`var x = 1; print x;`)
	require.NoError(t, err)
	_, err = b.Interpret(`var x = 2; print x;`)
	require.NoError(t, err)

	assert.Equal(t, "1", strings.TrimRight(bufA.String(), "\n"))
	assert.Equal(t, "2", strings.TrimRight(bufB.String(), "\n"))
}
