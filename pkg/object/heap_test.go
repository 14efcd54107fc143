package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/loxvm/pkg/value"
)

func TestCopyStringInterns(t *testing.T) {
	h := NewHeap()
	a := h.CopyString("hello")
	b := h.CopyString("hello")
	assert.Same(t, a, b)

	c := h.CopyString("world")
	assert.NotSame(t, a, c)
}

func TestTakeStringBehavesLikeCopyString(t *testing.T) {
	h := NewHeap()
	a := h.CopyString("concat")
	b := h.TakeString("concat")
	assert.Same(t, a, b)
}

func TestNewHeapInternsInitStringOnce(t *testing.T) {
	h := NewHeap()
	require.NotNil(t, h.InitString)
	assert.Equal(t, "init", h.InitString.Chars)
	assert.Same(t, h.InitString, h.CopyString("init"))
}

func TestCollectFreesUnreachableObjects(t *testing.T) {
	h := NewHeap()

	var roots []*Header
	h.SetCollectHook(func(heap *Heap) {
		for _, r := range roots {
			heap.MarkObject(r)
		}
	})

	kept := h.CopyString("kept")
	roots = []*Header{&kept.Header}

	_ = h.CopyString("garbage")

	before := h.bytesAllocated
	h.Collect()

	assert.True(t, kept.Marked == false, "survivors have their mark bit cleared after sweep")
	assert.Nil(t, h.strings.find("garbage", fnv1a32("garbage")))
	assert.Same(t, kept, h.strings.find("kept", fnv1a32("kept")))
	assert.Less(t, h.bytesAllocated, before+1<<20)
}

func TestCollectRetainsObjectsReachableThroughGraph(t *testing.T) {
	h := NewHeap()

	cls := h.NewClass(h.CopyString("Greeter"))
	fn := h.NewFunction()
	fn.Name = h.CopyString("greet")
	closure := h.NewClosure(fn, nil)
	cls.Methods[h.CopyString("greet")] = closure

	h.SetCollectHook(func(heap *Heap) {
		heap.MarkObject(&cls.Header)
	})

	h.Collect()

	assert.False(t, cls.Marked)
	assert.False(t, closure.Marked)
	assert.False(t, fn.Marked)
	// The method table entry must have survived the sweep: looking it up
	// again should return the same closure, not a freed one.
	assert.Same(t, closure, cls.Methods[h.CopyString("greet")])
}

func TestStressGCCollectsOnEveryAllocation(t *testing.T) {
	h := NewHeap()
	h.StressGC = true
	h.SetCollectHook(func(heap *Heap) {})

	for i := 0; i < 50; i++ {
		h.NewInstance(h.NewClass(h.CopyString("C")))
	}
	// Nothing panics and the heap stays internally consistent; with no
	// roots marked, every allocation is collected almost immediately.
	assert.True(t, h.bytesAllocated >= 0)
}

func TestMarkValueIgnoresNonObjects(t *testing.T) {
	h := NewHeap()
	h.MarkValue(value.Number(42))
	h.MarkValue(value.Nil)
	h.MarkValue(value.True)
	// No panic, no gray entries added.
	assert.Empty(t, h.gray)
}

func TestUpvalueClose(t *testing.T) {
	h := NewHeap()
	slot := value.Number(7)
	uv := h.NewUpvalue(&slot)
	assert.Equal(t, &slot, uv.Location)

	slot = value.Number(9)
	uv.Close()
	assert.Equal(t, value.Number(9), uv.Closed)
	assert.Equal(t, &uv.Closed, uv.Location)
}
