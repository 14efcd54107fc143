package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberRoundTrip(t *testing.T) {
	tests := []float64{0, 1, -1, 3.5, -3.5, math.MaxFloat64, -math.MaxFloat64, 1e300}
	for _, n := range tests {
		v := Number(n)
		require.True(t, IsNumber(v))
		assert.False(t, IsNil(v))
		assert.False(t, IsBool(v))
		assert.False(t, IsObj(v))
		assert.Equal(t, n, AsNumber(v))
	}
}

func TestNumberCanonicalizesComputedNaN(t *testing.T) {
	nan := math.NaN()
	v := Number(nan)
	require.True(t, IsNumber(v))
	assert.True(t, math.IsNaN(AsNumber(v)))
}

func TestBoolAndNilSingletons(t *testing.T) {
	assert.True(t, IsBool(True))
	assert.True(t, AsBool(True))
	assert.True(t, IsBool(False))
	assert.False(t, AsBool(False))
	assert.True(t, IsNil(Nil))
	assert.False(t, IsNumber(Nil))
	assert.False(t, IsObj(Nil))
}

func TestIsFalsey(t *testing.T) {
	assert.True(t, IsFalsey(Nil))
	assert.True(t, IsFalsey(False))
	assert.False(t, IsFalsey(True))
	assert.False(t, IsFalsey(Number(0)))
	assert.False(t, IsFalsey(Number(-1)))
}

func TestObjRoundTrip(t *testing.T) {
	var dummy int
	ptr := uintptr(0xdeadbeef)
	_ = dummy
	v := Obj(ptr)
	require.True(t, IsObj(v))
	assert.False(t, IsNumber(v))
	assert.Equal(t, ptr, AsObj(v))
}

func TestEqualNumbersByValue(t *testing.T) {
	assert.True(t, Equal(Number(1), Number(1)))
	assert.False(t, Equal(Number(1), Number(2)))
}

func TestEqualObjectsByIdentity(t *testing.T) {
	a := Obj(uintptr(0x1000))
	b := Obj(uintptr(0x1000))
	c := Obj(uintptr(0x2000))
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
}

func TestEqualNilAndBool(t *testing.T) {
	assert.True(t, Equal(Nil, Nil))
	assert.True(t, Equal(True, True))
	assert.False(t, Equal(True, False))
	assert.False(t, Equal(Nil, False))
}
