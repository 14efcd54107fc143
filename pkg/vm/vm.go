// Package vm implements the bytecode virtual machine: a stack-based
// dispatch loop over chunk.OpCode, call frames, closures, method
// dispatch and the interpreter-facing embedding API.
//
// A VM struct owns a value stack, a call/frame stack, and a globals
// map, with run as the dispatch loop's entry point: every call pushes
// a CallFrame with its own instruction pointer and stack-slot base.
package vm

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/google/uuid"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/compiler"
	"github.com/kristofer/loxvm/pkg/debug"
	"github.com/kristofer/loxvm/pkg/object"
	"github.com/kristofer/loxvm/pkg/value"
)

// stackMax and framesMax are the VM's hard limits. The value stack
// is reserved at its maximum size up front rather than grown on demand:
// Upvalue.Location points directly into the stack, so growing it (which
// in Go means reallocating the backing array) would invalidate every
// such pointer. Reserving the maximum bound avoids ever having to rebase
// them. CallFrame refers to its slots by index (slotsBase) instead.
const (
	stackMax  = 1 << 16
	framesMax = 64
)

// CallFrame is one activation record: the closure being executed, its
// instruction pointer, and the index into the VM's value stack where its
// local variable slots begin (slot 0 is the receiver for methods, or the
// closure itself for plain calls).
type CallFrame struct {
	closure   *object.Closure
	ip        int
	slotsBase int
}

// InterpretResult is the three-way outcome Interpret returns.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

// VM is one interpreter instance: a value stack, a call-frame stack, the
// global variable table, the heap it and the compiler share, and the
// open-upvalue list. Nothing here is package-level/global state (per
// no package-level state), so multiple independent VMs can coexist
// in one process.
type VM struct {
	stack      [stackMax]value.Value
	stackTop   int
	frames     [framesMax]CallFrame
	frameCount int

	globals map[*object.String]value.Value
	heap    *object.Heap

	openUpvalues *object.Upvalue

	// lastErr carries a runtime error out of the callValue/invoke family
	// of helpers (which return a bool so ordinary dispatch-loop call
	// sites stay terse) back up to run/Interpret, which surface it as
	// the error return value.
	lastErr error

	Stdout io.Writer
	Stderr io.Writer

	// TraceExecution, when set, disassembles each instruction to Stderr
	// before it runs.
	TraceExecution bool

	// ID identifies this interpreter instance in trace/debug banners.
	// Several independently-constructed VMs (e.g. one per REPL session
	// in a test harness) are easy to tell apart in interleaved log
	// output this way.
	ID string
}

// New constructs a VM with an initialized heap, the "init" string
// interned, and the clock() native registered.
func New() *VM {
	vm := &VM{
		globals: make(map[*object.String]value.Value),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		ID:      uuid.NewString(),
	}
	vm.heap = object.NewHeap()
	vm.heap.SetCollectHook(vm.markRoots)
	vm.defineNative("clock", nativeClock)
	return vm
}

// Heap exposes the VM's heap, mainly so a host can toggle StressGC or
// attach a GC trace writer before calling Interpret.
func (vm *VM) Heap() *object.Heap { return vm.heap }

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

func (vm *VM) push(v value.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) defineNative(name string, fn object.NativeFn) {
	native := vm.heap.NewNative(name, fn)
	vm.globals[vm.heap.CopyString(name)] = native.AsValue()
}

// Interpret compiles and runs source, returning the three-way result.
// The VM's globals and heap persist across calls,
// so a REPL can call Interpret repeatedly on the same VM.
func (vm *VM) Interpret(source string) (InterpretResult, error) {
	vm.resetStack()

	fn, ok := compiler.Compile(source, vm.heap, vm.Stderr)
	if !ok {
		return InterpretCompileError, fmt.Errorf("compile error")
	}

	// Keep fn rooted on the stack while its closure is allocated: the
	// compiler chain no longer marks it once Compile has returned.
	vm.push(fn.AsValue())
	closure := vm.heap.NewClosure(fn, nil)
	vm.pop()
	vm.push(closure.AsValue())
	if !vm.callClosure(closure, 0) {
		return InterpretRuntimeError, vm.lastErr
	}

	return vm.run()
}

// markRoots marks every GC root this VM owns: the value stack, the
// call-frame closures, the open-upvalue list, and the globals table
// (both keys and values).
func (vm *VM) markRoots(h *object.Heap) {
	for i := 0; i < vm.stackTop; i++ {
		h.MarkValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		h.MarkObject(&vm.frames[i].closure.Header)
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.Next {
		h.MarkObject(&uv.Header)
	}
	for name, v := range vm.globals {
		h.MarkObject(&name.Header)
		h.MarkValue(v)
	}
	if h.InitString != nil {
		h.MarkObject(&h.InitString.Header)
	}
}

// run is the dispatch loop. It returns once the outermost frame
// (pushed by Interpret) returns, or a runtime error occurs.
func (vm *VM) run() (InterpretResult, error) {
	frame := &vm.frames[vm.frameCount-1]

	readByte := func() byte {
		b := frame.closure.Function.Chunk.Code[frame.ip]
		frame.ip++
		return b
	}
	readShort := func() int {
		hi := readByte()
		lo := readByte()
		return int(hi)<<8 | int(lo)
	}
	readConstant := func() value.Value {
		return frame.closure.Function.Chunk.Constants[readByte()]
	}
	readString := func() *object.String {
		return object.AsString(readConstant())
	}

	for {
		if vm.TraceExecution {
			fmt.Fprintf(vm.Stderr, "[%s] ", vm.ID)
			debug.DisassembleInstruction(vm.Stderr, frame.closure.Function.Chunk, frame.ip)
		}

		op := chunk.OpCode(readByte())
		switch op {
		case chunk.OpConstant:
			vm.push(readConstant())

		case chunk.OpNil:
			vm.push(value.Nil)
		case chunk.OpTrue:
			vm.push(value.True)
		case chunk.OpFalse:
			vm.push(value.False)
		case chunk.OpPop:
			vm.pop()

		case chunk.OpGetLocal:
			slot := readByte()
			vm.push(vm.stack[frame.slotsBase+int(slot)])
		case chunk.OpSetLocal:
			slot := readByte()
			vm.stack[frame.slotsBase+int(slot)] = vm.peek(0)

		case chunk.OpGetGlobal:
			name := readString()
			v, ok := vm.globals[name]
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)
		case chunk.OpDefineGlobal:
			name := readString()
			vm.globals[name] = vm.peek(0)
			vm.pop()
		case chunk.OpSetGlobal:
			name := readString()
			if _, ok := vm.globals[name]; !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.globals[name] = vm.peek(0)

		case chunk.OpGetUpvalue:
			slot := readByte()
			vm.push(*frame.closure.Upvalues[slot].Location)
		case chunk.OpSetUpvalue:
			slot := readByte()
			*frame.closure.Upvalues[slot].Location = vm.peek(0)

		case chunk.OpGetProperty:
			if !object.IsKind(vm.peek(0), object.KindInstance) {
				return vm.runtimeError("Only instances have properties.")
			}
			inst := object.AsInstance(vm.peek(0))
			name := readString()
			if v, ok := inst.Fields[name]; ok {
				vm.pop()
				vm.push(v)
				break
			}
			if !vm.bindMethod(inst.Class, name) {
				return vm.runtimeError("Undefined property '%s'.", name.Chars)
			}

		case chunk.OpSetProperty:
			if !object.IsKind(vm.peek(1), object.KindInstance) {
				return vm.runtimeError("Only instances have fields.")
			}
			inst := object.AsInstance(vm.peek(1))
			name := readString()
			inst.Fields[name] = vm.peek(0)
			v := vm.pop()
			vm.pop()
			vm.push(v)

		case chunk.OpGetSuper:
			name := readString()
			superclass := object.AsClass(vm.pop())
			if !vm.bindMethod(superclass, name) {
				return vm.runtimeError("Undefined property '%s'.", name.Chars)
			}

		case chunk.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))
		case chunk.OpNotEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.Bool(!value.Equal(a, b)))
		case chunk.OpGreater:
			res, err := vm.numericCompare(func(a, b float64) bool { return a > b })
			if err != nil {
				return InterpretRuntimeError, err
			}
			vm.push(res)
		case chunk.OpGreaterEqual:
			res, err := vm.numericCompare(func(a, b float64) bool { return a >= b })
			if err != nil {
				return InterpretRuntimeError, err
			}
			vm.push(res)
		case chunk.OpLess:
			res, err := vm.numericCompare(func(a, b float64) bool { return a < b })
			if err != nil {
				return InterpretRuntimeError, err
			}
			vm.push(res)
		case chunk.OpLessEqual:
			res, err := vm.numericCompare(func(a, b float64) bool { return a <= b })
			if err != nil {
				return InterpretRuntimeError, err
			}
			vm.push(res)

		case chunk.OpAdd:
			res, err := vm.add()
			if err != nil {
				return InterpretRuntimeError, err
			}
			vm.push(res)
		case chunk.OpSubtract:
			res, err := vm.arith(func(a, b float64) float64 { return a - b })
			if err != nil {
				return InterpretRuntimeError, err
			}
			vm.push(res)
		case chunk.OpMultiply:
			res, err := vm.arith(func(a, b float64) float64 { return a * b })
			if err != nil {
				return InterpretRuntimeError, err
			}
			vm.push(res)
		case chunk.OpDivide:
			// Division by zero is not checked: IEEE-754 defines it
			// (±Inf or NaN), which is not treated as a
			// lox runtime error.
			res, err := vm.arith(func(a, b float64) float64 { return a / b })
			if err != nil {
				return InterpretRuntimeError, err
			}
			vm.push(res)

		case chunk.OpNot:
			vm.push(value.Bool(value.IsFalsey(vm.pop())))

		case chunk.OpNegate:
			if !value.IsNumber(vm.peek(0)) {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.stack[vm.stackTop-1] = value.Number(-value.AsNumber(vm.stack[vm.stackTop-1]))

		case chunk.OpPrint:
			fmt.Fprintln(vm.Stdout, debug.StringifyValue(vm.pop()))

		case chunk.OpJump:
			offset := readShort()
			frame.ip += offset
		case chunk.OpJumpIfFalse:
			offset := readShort()
			if value.IsFalsey(vm.peek(0)) {
				frame.ip += offset
			}
		case chunk.OpLoop:
			offset := readShort()
			frame.ip -= offset

		case chunk.OpCall:
			argCount := int(readByte())
			if !vm.callValue(vm.peek(argCount), argCount) {
				return InterpretRuntimeError, vm.lastErr
			}
			frame = &vm.frames[vm.frameCount-1]

		case chunk.OpInvoke:
			method := readString()
			argCount := int(readByte())
			if !vm.invoke(method, argCount) {
				return InterpretRuntimeError, vm.lastErr
			}
			frame = &vm.frames[vm.frameCount-1]

		case chunk.OpSuperInvoke:
			method := readString()
			argCount := int(readByte())
			superclass := object.AsClass(vm.pop())
			if !vm.invokeFromClass(superclass, method, argCount) {
				return InterpretRuntimeError, vm.lastErr
			}
			frame = &vm.frames[vm.frameCount-1]

		case chunk.OpClosure:
			fn := object.AsFunction(readConstant())
			upvalues := make([]*object.Upvalue, fn.UpvalueCount)
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte()
				index := readByte()
				if isLocal != 0 {
					upvalues[i] = vm.captureUpvalue(frame.slotsBase + int(index))
				} else {
					upvalues[i] = frame.closure.Upvalues[index]
				}
			}
			closure := vm.heap.NewClosure(fn, upvalues)
			vm.push(closure.AsValue())

		case chunk.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case chunk.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slotsBase)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop() // the top-level closure pushed by Interpret
				return InterpretOK, nil
			}
			vm.stackTop = frame.slotsBase
			vm.push(result)
			frame = &vm.frames[vm.frameCount-1]

		case chunk.OpClass:
			vm.push(vm.heap.NewClass(readString()).AsValue())

		case chunk.OpInherit:
			superVal := vm.peek(1)
			if !object.IsKind(superVal, object.KindClass) {
				return vm.runtimeError("Superclass must be a class.")
			}
			subclass := object.AsClass(vm.peek(0))
			for name, method := range object.AsClass(superVal).Methods {
				subclass.Methods[name] = method
			}
			vm.pop() // subclass

		case chunk.OpMethod:
			vm.defineMethod(readString())

		case chunk.OpTernary:
			// reserved, never emitted by the compiler

		default:
			return vm.runtimeError("Unknown opcode %d.", byte(op))
		}
	}
}

// numericCompare and arith share the "both operands must be numbers"
// check that every comparison and arithmetic opcode but OpAdd performs.
func (vm *VM) numericCompare(cmp func(a, b float64) bool) (value.Value, error) {
	if !value.IsNumber(vm.peek(0)) || !value.IsNumber(vm.peek(1)) {
		_, err := vm.runtimeError("Operands must be numbers.")
		return value.Nil, err
	}
	b := value.AsNumber(vm.pop())
	a := value.AsNumber(vm.pop())
	return value.Bool(cmp(a, b)), nil
}

func (vm *VM) arith(op func(a, b float64) float64) (value.Value, error) {
	if !value.IsNumber(vm.peek(0)) || !value.IsNumber(vm.peek(1)) {
		_, err := vm.runtimeError("Operands must be numbers.")
		return value.Nil, err
	}
	b := value.AsNumber(vm.pop())
	a := value.AsNumber(vm.pop())
	return value.Number(op(a, b)), nil
}

// add implements OP_ADD's dual numeric/string behavior.
func (vm *VM) add() (value.Value, error) {
	bIsStr := object.IsKind(vm.peek(0), object.KindString)
	aIsStr := object.IsKind(vm.peek(1), object.KindString)
	switch {
	case aIsStr && bIsStr:
		b := object.AsString(vm.pop())
		a := object.AsString(vm.pop())
		return vm.heap.TakeString(a.Chars + b.Chars).AsValue(), nil
	case value.IsNumber(vm.peek(0)) && value.IsNumber(vm.peek(1)):
		b := value.AsNumber(vm.pop())
		a := value.AsNumber(vm.pop())
		return value.Number(a + b), nil
	default:
		_, err := vm.runtimeError("Operands must be two numbers or two strings.")
		return value.Nil, err
	}
}

// runtimeError builds a RuntimeError carrying the full call-stack trace
// active at the point of failure (deepest frame first),
// stashes it on vm.lastErr so callValue/invoke call sites propagate it,
// and returns it alongside InterpretRuntimeError for direct dispatch-loop
// returns.
func (vm *VM) runtimeError(format string, args ...interface{}) (InterpretResult, error) {
	message := fmt.Sprintf(format, args...)
	trace := make([]frameTrace, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		fr := &vm.frames[i]
		fn := fr.closure.Function
		line := fn.Chunk.GetLine(fr.ip - 1)
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Chars
		}
		trace = append(trace, frameTrace{line: line, name: name})
	}
	err := newRuntimeError(message, trace)
	vm.lastErr = err
	vm.resetStack()
	return InterpretRuntimeError, err
}

// callValue dispatches OP_CALL's callee, which may be a closure, a bound
// method, a class (construction), or a native function.
func (vm *VM) callValue(callee value.Value, argCount int) bool {
	if value.IsObj(callee) {
		switch object.FromValue(callee).Kind {
		case object.KindClosure:
			return vm.callClosure(object.AsClosure(callee), argCount)
		case object.KindNative:
			return vm.callNative(object.AsNative(callee), argCount)
		case object.KindClass:
			return vm.instantiate(object.AsClass(callee), argCount)
		case object.KindBoundMethod:
			bound := object.AsBoundMethod(callee)
			vm.stack[vm.stackTop-argCount-1] = bound.Receiver
			return vm.callClosure(bound.Method, argCount)
		}
	}
	vm.runtimeError("Can only call functions and classes.")
	return false
}

func (vm *VM) callClosure(closure *object.Closure, argCount int) bool {
	if argCount != closure.Function.Arity {
		vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argCount)
		return false
	}
	if vm.frameCount == framesMax {
		vm.runtimeError("Stack overflow.")
		return false
	}
	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = closure
	frame.ip = 0
	frame.slotsBase = vm.stackTop - argCount - 1
	return true
}

func (vm *VM) callNative(native *object.Native, argCount int) bool {
	args := vm.stack[vm.stackTop-argCount : vm.stackTop]
	result, err := native.Fn(args)
	if err != nil {
		vm.runtimeError("%s", err.Error())
		return false
	}
	vm.stackTop -= argCount + 1
	vm.push(result)
	return true
}

// instantiate allocates a new instance of cls and runs its init method
// (if any) over argCount arguments already on the stack.
func (vm *VM) instantiate(cls *object.Class, argCount int) bool {
	inst := vm.heap.NewInstance(cls)
	vm.stack[vm.stackTop-argCount-1] = inst.AsValue()
	if initializer, ok := cls.Methods[vm.heap.InitString]; ok {
		return vm.callClosure(initializer, argCount)
	}
	if argCount != 0 {
		vm.runtimeError("Expected 0 arguments but got %d.", argCount)
		return false
	}
	return true
}

// invoke resolves and calls method on the receiver at peek(argCount) in
// one step, skipping the intermediate BoundMethod allocation OP_GET_PROPERTY
// followed by OP_CALL would otherwise require (OP_INVOKE
// fast path).
func (vm *VM) invoke(name *object.String, argCount int) bool {
	receiver := vm.peek(argCount)
	if !object.IsKind(receiver, object.KindInstance) {
		vm.runtimeError("Only instances have methods.")
		return false
	}
	inst := object.AsInstance(receiver)
	if v, ok := inst.Fields[name]; ok {
		vm.stack[vm.stackTop-argCount-1] = v
		return vm.callValue(v, argCount)
	}
	return vm.invokeFromClass(inst.Class, name, argCount)
}

func (vm *VM) invokeFromClass(cls *object.Class, name *object.String, argCount int) bool {
	method, ok := cls.Methods[name]
	if !ok {
		vm.runtimeError("Undefined property '%s'.", name.Chars)
		return false
	}
	return vm.callClosure(method, argCount)
}

// bindMethod looks up name on cls and, if found, replaces the receiver
// on top of the stack with a fresh BoundMethod (OP_GET_PROPERTY
// method fallback).
func (vm *VM) bindMethod(cls *object.Class, name *object.String) bool {
	return vm.bindMethodOn(vm.peek(0), cls, name)
}

func (vm *VM) bindMethodOn(receiver value.Value, cls *object.Class, name *object.String) bool {
	method, ok := cls.Methods[name]
	if !ok {
		return false
	}
	bound := vm.heap.NewBoundMethod(receiver, method)
	vm.pop()
	vm.push(bound.AsValue())
	return true
}

func (vm *VM) defineMethod(name *object.String) {
	method := object.AsClosure(vm.peek(0))
	cls := object.AsClass(vm.peek(1))
	cls.Methods[name] = method
	vm.pop()
}

// indexOf recovers the stack slot a raw upvalue location points into.
// Every such pointer was handed out as &vm.stack[i] and the stack array
// never reallocates (see stackMax above), so this round-trip is safe for
// the lifetime of the VM.
func (vm *VM) indexOf(p *value.Value) int {
	return int((uintptr(unsafe.Pointer(p)) - uintptr(unsafe.Pointer(&vm.stack[0]))) / unsafe.Sizeof(vm.stack[0]))
}

// captureUpvalue finds or creates an open upvalue for the stack slot at
// absolute index slotIndex, keeping vm.openUpvalues sorted by descending
// slot index so later calls can stop scanning as soon as they pass the
// target slot.
func (vm *VM) captureUpvalue(slotIndex int) *object.Upvalue {
	var prev *object.Upvalue
	uv := vm.openUpvalues
	for uv != nil && vm.indexOf(uv.Location) > slotIndex {
		prev = uv
		uv = uv.Next
	}
	if uv != nil && vm.indexOf(uv.Location) == slotIndex {
		return uv
	}

	created := vm.heap.NewUpvalue(&vm.stack[slotIndex])
	created.Next = uv
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above the stack slot
// lastSlot, copying the live value out of the stack into the upvalue's
// own storage before the frame that owns that slot is popped.
func (vm *VM) closeUpvalues(lastSlot int) {
	for vm.openUpvalues != nil && vm.indexOf(vm.openUpvalues.Location) >= lastSlot {
		uv := vm.openUpvalues
		uv.Close()
		vm.openUpvalues = uv.Next
	}
}
