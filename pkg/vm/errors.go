// Package vm - runtime error formatting.
//
// RuntimeError carries a message plus a captured call-stack trace,
// rendered by an Error() string method in the wire format
// "<message>\n[line L] in <function-name-or-"script">\n" per frame,
// top to bottom.
package vm

import (
	"fmt"
	"strings"
)

// frameTrace is one captured line of a runtime error's stack trace: the
// source line active in that frame when the error propagated through
// it, and the frame's function name ("script" for the top-level frame).
type frameTrace struct {
	line int
	name string
}

// RuntimeError is a lox runtime error: a message plus the call stack
// active when it was raised, top frame first.
type RuntimeError struct {
	Message string
	Trace   []frameTrace
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	b.WriteByte('\n')
	for _, f := range e.Trace {
		fmt.Fprintf(&b, "[line %d] in %s\n", f.line, f.name)
	}
	return b.String()
}

func newRuntimeError(message string, trace []frameTrace) *RuntimeError {
	return &RuntimeError{Message: message, Trace: trace}
}
