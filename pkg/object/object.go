// Package object implements the heap-resident object model that backs
// every non-number, non-boolean, non-nil Value: strings, functions,
// closures, upvalues, classes, instances and bound methods.
//
// Every concrete object type embeds Header as its first field, which
// lets the package convert between a typed object pointer and the
// value.Value that names it with a pair of unsafe.Pointer casts rather
// than a Go interface (an interface value is two words; this project's
// Value is one, per pkg/value's NaN-boxing).
package object

import (
	"unsafe"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/value"
)

// Kind discriminates the concrete type of a heap object.
type Kind byte

const (
	KindString Kind = iota
	KindFunction
	KindNative
	KindClosure
	KindUpvalue
	KindClass
	KindInstance
	KindBoundMethod
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	case KindNative:
		return "native"
	case KindClosure:
		return "closure"
	case KindUpvalue:
		return "upvalue"
	case KindClass:
		return "class"
	case KindInstance:
		return "instance"
	case KindBoundMethod:
		return "bound method"
	default:
		return "unknown"
	}
}

// Header is the common prefix of every heap object: its kind, the
// collector's mark bit, and the intrusive link threading every live
// object together for sweeping. It must be the first field of every
// concrete object type so that &concrete.Header and unsafe.Pointer(concrete)
// are the same address.
type Header struct {
	Kind   Kind
	Marked bool
	Next   *Header
}

// ToValue boxes an object header as a Value.
func ToValue(h *Header) value.Value {
	return value.Obj(uintptr(unsafe.Pointer(h)))
}

// FromValue unboxes a Value known to hold an object reference.
func FromValue(v value.Value) *Header {
	return (*Header)(unsafe.Pointer(value.AsObj(v)))
}

// IsKind reports whether v is an object reference of the given kind.
func IsKind(v value.Value, k Kind) bool {
	return value.IsObj(v) && FromValue(v).Kind == k
}

// String is an interned, immutable byte sequence.
type String struct {
	Header
	Chars string
	Hash  uint32
}

func (s *String) AsValue() value.Value { return ToValue(&s.Header) }

// AsString unboxes a Value known to hold a String.
func AsString(v value.Value) *String { return (*String)(unsafe.Pointer(FromValue(v))) }

// Function is a compiled, named (or anonymous, for the top-level script)
// chunk of bytecode together with its arity and upvalue count.
type Function struct {
	Header
	Arity        int
	UpvalueCount int
	Name         *String // nil for the implicit top-level script function
	Chunk        *chunk.Chunk
}

func (f *Function) AsValue() value.Value { return ToValue(&f.Header) }

func AsFunction(v value.Value) *Function { return (*Function)(unsafe.Pointer(FromValue(v))) }

// NativeFn is a host-implemented function exposed to lox as a global.
type NativeFn func(args []value.Value) (value.Value, error)

// Native wraps a host function so it can be called like any lox value.
type Native struct {
	Header
	Name string
	Fn   NativeFn
}

func (n *Native) AsValue() value.Value { return ToValue(&n.Header) }

func AsNative(v value.Value) *Native { return (*Native)(unsafe.Pointer(FromValue(v))) }

// Upvalue lets a closure reference a variable owned by an enclosing,
// possibly-already-returned activation. While Location != &Closed the
// upvalue is "open" and points into the VM's value stack; Close copies
// the current value into Closed and redirects Location to it.
type Upvalue struct {
	Header
	Location *value.Value
	Closed   value.Value
	Next     *Upvalue // open-upvalue list, sorted by descending stack slot
}

func (u *Upvalue) AsValue() value.Value { return ToValue(&u.Header) }

func AsUpvalue(v value.Value) *Upvalue { return (*Upvalue)(unsafe.Pointer(FromValue(v))) }

// Close copies the current pointee into the Closed cell and redirects
// Location there, detaching the upvalue from the stack slot it used to
// observe.
func (u *Upvalue) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
}

// Closure pairs a compiled Function with the live upvalues it captured
// at creation time. Functions with no free variables are still wrapped
// in a Closure (with an empty Upvalues slice) so the VM has one calling
// convention.
type Closure struct {
	Header
	Function *Function
	Upvalues []*Upvalue
}

func (c *Closure) AsValue() value.Value { return ToValue(&c.Header) }

func AsClosure(v value.Value) *Closure { return (*Closure)(unsafe.Pointer(FromValue(v))) }

// Class is a named bag of methods. Method tables are copied, not
// chained, at inheritance time (OP_INHERIT copies the superclass's
// table into the subclass's), so method lookup is a single flat map
// access regardless of inheritance depth.
type Class struct {
	Header
	Name    *String
	Methods map[*String]*Closure
}

func (c *Class) AsValue() value.Value { return ToValue(&c.Header) }

func AsClass(v value.Value) *Class { return (*Class)(unsafe.Pointer(FromValue(v))) }

// Instance is a class reference plus a mutable field table.
type Instance struct {
	Header
	Class  *Class
	Fields map[*String]value.Value
}

func (i *Instance) AsValue() value.Value { return ToValue(&i.Header) }

func AsInstance(v value.Value) *Instance { return (*Instance)(unsafe.Pointer(FromValue(v))) }

// BoundMethod is produced when a method is accessed as a value (e.g.
// `var m = instance.method;`): it remembers the receiver so that a later
// call re-supplies `this` without the caller having to.
type BoundMethod struct {
	Header
	Receiver value.Value
	Method   *Closure
}

func (b *BoundMethod) AsValue() value.Value { return ToValue(&b.Header) }

func AsBoundMethod(v value.Value) *BoundMethod { return (*BoundMethod)(unsafe.Pointer(FromValue(v))) }
