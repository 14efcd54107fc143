package object

import (
	"io"
	"unsafe"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/value"
)

// defaultGrowFactor is how much the collection threshold grows by after
// every cycle, absent a host override.
const defaultGrowFactor = 2

// Heap owns every object this interpreter has allocated: the intrusive
// object list used for sweeping, the string intern table, and the
// incremental bookkeeping (bytesAllocated/nextGC) that decides when to
// collect. A single Heap is shared by the compiler (while it builds
// nested function constants) and the VM (for everything after).
//
// Long-lived REPL sessions need an actual collection cycle rather than
// letting allocations accumulate for the life of the process, so the
// heap runs a full tracing mark-and-sweep pass rather than only
// tracking allocations.
type Heap struct {
	objects        *Header
	strings        *stringTable
	gray           []*Header
	bytesAllocated int
	nextGC         int
	growFactor     int
	StressGC       bool
	InitString     *String

	// TraceGC, when non-nil, receives a line of text for every
	// collection cycle (bytes before/after, objects freed).
	TraceGC io.Writer

	// onCollect marks every GC root. It is installed by whoever is
	// driving execution (see pkg/vm.New) because the heap
	// itself has no notion of a value stack, call frames, or an
	// in-progress compiler chain — those are the roots, and they live
	// one layer up.
	onCollect func(*Heap)

	// compilerRoot marks whatever function chain a compiler currently
	// has in progress. It is set for the duration of a single compile
	// (see pkg/compiler.Compile) and cleared afterward, so that an
	// allocation-triggered collection mid-compile does not sweep away a
	// nested function literal still under construction: compiled
	// constants (strings, nested functions) are heap objects and must
	// stay GC-rooted from both the compiler chain and the VM stack
	// during compilation.
	compilerRoot func(*Heap)
}

// SetCompilerRoot installs or clears (pass nil) the mark-the-in-progress
// compiler hook. Only one compile can be in flight against a given heap
// at a time.
func (h *Heap) SetCompilerRoot(fn func(*Heap)) {
	h.compilerRoot = fn
}

const defaultInitialNextGC = 1 << 20 // 1 MiB

// NewHeap constructs an empty heap and interns the "init" string once,
// exactly once at VM startup.
func NewHeap() *Heap {
	h := &Heap{
		strings:    newStringTable(),
		nextGC:     defaultInitialNextGC,
		growFactor: defaultGrowFactor,
	}
	h.InitString = h.CopyString("init")
	return h
}

// SetGCTuning overrides the collection threshold this heap starts at and
// the factor it grows that threshold by after every cycle. A
// non-positive value leaves the corresponding setting at its default,
// so a host can override just one of the two.
func (h *Heap) SetGCTuning(initialThreshold, growFactor int) {
	if initialThreshold > 0 {
		h.nextGC = initialThreshold
	}
	if growFactor > 0 {
		h.growFactor = growFactor
	}
}

// SetCollectHook installs the root-marking callback. Called once by the
// owner (vm.VM) at construction time.
func (h *Heap) SetCollectHook(fn func(*Heap)) {
	h.onCollect = fn
}

// track links obj into the object list so it starts participating in GC.
//
// The size check runs before obj is linked in, not after: a collection
// triggered here cannot see obj yet (it isn't a root and nothing
// references it), so it can never be the very allocation that gets swept
// by its own triggering collection. This covers only the allocation in
// progress: an object allocated earlier must already be reachable from a
// root (the VM stack, the compiler chain) before the next allocation, or
// that allocation's collection sweeps it.
func (h *Heap) track(obj *Header, kind Kind, size int) {
	h.maybeCollect(size)
	obj.Kind = kind
	obj.Marked = false
	obj.Next = h.objects
	h.objects = obj
}

func (h *Heap) maybeCollect(size int) {
	h.bytesAllocated += size
	if h.onCollect == nil {
		return
	}
	if h.StressGC || h.bytesAllocated > h.nextGC {
		h.Collect()
	}
}

// CopyString interns a copy of s, returning the existing canonical
// String if one with the same content already exists.
func (h *Heap) CopyString(s string) *String {
	hash := fnv1a32(s)
	if existing := h.strings.find(s, hash); existing != nil {
		return existing
	}
	return h.allocateString(s, hash)
}

// TakeString interns s the same way CopyString does. The two names exist
// to distinguish "copy these bytes" (source text not owned by the new
// string) from "take ownership of this buffer" (a freshly concatenated
// result already owned by the caller); Go's strings are immutable, so
// both paths behave identically here, but the VM's concatenation path
// calls this one and the compiler's literal path calls CopyString.
func (h *Heap) TakeString(s string) *String {
	return h.CopyString(s)
}

func (h *Heap) allocateString(s string, hash uint32) *String {
	str := &String{Chars: s, Hash: hash}
	h.track(&str.Header, KindString, len(s)+16)
	// The fresh string must be reachable before set() can possibly
	// trigger a resize that walks live entries, and it must stay
	// reachable across the table mutation itself, so root it on the
	// object list first (done by track above) and only then intern it.
	h.strings.set(str)
	return str
}

// NewFunction allocates an empty function shell; callers fill in Arity,
// Name and Chunk as compilation of its body proceeds.
func (h *Heap) NewFunction() *Function {
	fn := &Function{Chunk: chunk.New()}
	h.track(&fn.Header, KindFunction, 64)
	return fn
}

// NewNative wraps a host function as a heap object.
func (h *Heap) NewNative(name string, fn NativeFn) *Native {
	n := &Native{Name: name, Fn: fn}
	h.track(&n.Header, KindNative, 32)
	return n
}

// NewClosure allocates a closure over fn with upvalues already resolved
// by the VM.
func (h *Heap) NewClosure(fn *Function, upvalues []*Upvalue) *Closure {
	c := &Closure{Function: fn, Upvalues: upvalues}
	h.track(&c.Header, KindClosure, 32+8*len(upvalues))
	return c
}

// NewUpvalue allocates an open upvalue pointing at a VM stack slot.
func (h *Heap) NewUpvalue(slot *value.Value) *Upvalue {
	u := &Upvalue{Location: slot}
	h.track(&u.Header, KindUpvalue, 32)
	return u
}

// NewClass allocates an empty class named name.
func (h *Heap) NewClass(name *String) *Class {
	c := &Class{Name: name, Methods: make(map[*String]*Closure)}
	h.track(&c.Header, KindClass, 48)
	return c
}

// NewInstance allocates a fresh instance of class cls with no fields set.
func (h *Heap) NewInstance(cls *Class) *Instance {
	i := &Instance{Class: cls, Fields: make(map[*String]value.Value)}
	h.track(&i.Header, KindInstance, 48)
	return i
}

// NewBoundMethod allocates a bound method pairing receiver with method.
func (h *Heap) NewBoundMethod(receiver value.Value, method *Closure) *BoundMethod {
	b := &BoundMethod{Receiver: receiver, Method: method}
	h.track(&b.Header, KindBoundMethod, 32)
	return b
}

// MarkValue marks v's referent if v is an object reference; otherwise it
// is a no-op (numbers, booleans and nil are never heap objects).
func (h *Heap) MarkValue(v value.Value) {
	if !value.IsObj(v) {
		return
	}
	h.MarkObject(FromValue(v))
}

// MarkObject marks obj gray (adds it to the trace worklist) unless it is
// already marked. Idempotent.
func (h *Heap) MarkObject(obj *Header) {
	if obj == nil || obj.Marked {
		return
	}
	obj.Marked = true
	h.gray = append(h.gray, obj)
}

// Collect runs one full stop-the-world mark/trace/sweep cycle: mark
// roots via the installed hook, trace the gray stack to blacken every
// reachable object, prune the intern table of unmarked strings, sweep
// unreachable objects, and grow the next threshold.
func (h *Heap) Collect() {
	before := h.bytesAllocated
	if h.onCollect != nil {
		h.onCollect(h)
	}
	if h.compilerRoot != nil {
		h.compilerRoot(h)
	}
	h.trace()
	h.strings.removeWhite()
	freed := h.sweep()
	h.nextGC = h.bytesAllocated * h.growFactor
	if h.TraceGC != nil {
		writeGCTrace(h.TraceGC, before, h.bytesAllocated, freed, h.nextGC)
	}
}

func (h *Heap) trace() {
	for len(h.gray) > 0 {
		obj := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		h.blacken(obj)
	}
}

// blacken marks every object obj directly references.
func (h *Heap) blacken(obj *Header) {
	switch obj.Kind {
	case KindString, KindNative:
		// no outgoing references
	case KindFunction:
		fn := (*Function)(unsafe.Pointer(obj))
		if fn.Name != nil {
			h.MarkObject(&fn.Name.Header)
		}
		for _, c := range fn.Chunk.Constants {
			h.MarkValue(c)
		}
	case KindClosure:
		cl := (*Closure)(unsafe.Pointer(obj))
		h.MarkObject(&cl.Function.Header)
		for _, uv := range cl.Upvalues {
			h.MarkObject(&uv.Header)
		}
	case KindUpvalue:
		uv := (*Upvalue)(unsafe.Pointer(obj))
		h.MarkValue(uv.Closed)
	case KindClass:
		cls := (*Class)(unsafe.Pointer(obj))
		h.MarkObject(&cls.Name.Header)
		for name, method := range cls.Methods {
			h.MarkObject(&name.Header)
			h.MarkObject(&method.Header)
		}
	case KindInstance:
		inst := (*Instance)(unsafe.Pointer(obj))
		h.MarkObject(&inst.Class.Header)
		for name, v := range inst.Fields {
			h.MarkObject(&name.Header)
			h.MarkValue(v)
		}
	case KindBoundMethod:
		bm := (*BoundMethod)(unsafe.Pointer(obj))
		h.MarkValue(bm.Receiver)
		h.MarkObject(&bm.Method.Header)
	}
}

// sweep frees every unmarked object and clears the mark bit on
// survivors, returning the count of objects freed.
func (h *Heap) sweep() int {
	var prev *Header
	obj := h.objects
	freed := 0
	h.bytesAllocated = 0
	for obj != nil {
		if obj.Marked {
			obj.Marked = false
			h.bytesAllocated += sizeOf(obj)
			prev = obj
			obj = obj.Next
			continue
		}
		unreached := obj
		obj = obj.Next
		if prev != nil {
			prev.Next = obj
		} else {
			h.objects = obj
		}
		freed++
		_ = unreached // left for the Go GC to reclaim; no explicit free step
	}
	return freed
}

func sizeOf(obj *Header) int {
	switch obj.Kind {
	case KindString:
		return len((*String)(unsafe.Pointer(obj)).Chars) + 16
	case KindFunction:
		return 64
	case KindNative:
		return 32
	case KindClosure:
		return 32 + 8*len((*Closure)(unsafe.Pointer(obj)).Upvalues)
	case KindUpvalue:
		return 32
	case KindClass:
		return 48
	case KindInstance:
		return 48
	case KindBoundMethod:
		return 32
	default:
		return 16
	}
}
