package hfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorAllocateSetsBit(t *testing.T) {
	a := NewAllocator(8)

	idx, err := a.Allocate()
	require.NoError(t, err)
	assert.True(t, a.IsSet(idx))
	assert.Equal(t, uint32(7), a.CountFree())
}

func TestAllocatorAllocateSkipsReserved(t *testing.T) {
	a := NewAllocator(4)
	a.Set(0, true)

	idx, err := a.Allocate()
	require.NoError(t, err)
	assert.NotEqual(t, uint32(0), idx)
}

func TestAllocatorFreeClearsBit(t *testing.T) {
	a := NewAllocator(4)
	idx, err := a.Allocate()
	require.NoError(t, err)

	a.Free(idx)
	assert.False(t, a.IsSet(idx))
	assert.Equal(t, uint32(4), a.CountFree())
}

func TestAllocatorExhaustion(t *testing.T) {
	a := NewAllocator(2)
	_, err := a.Allocate()
	require.NoError(t, err)
	_, err = a.Allocate()
	require.NoError(t, err)

	_, err = a.Allocate()
	assert.Error(t, err)
}

func TestLoadAllocatorPreservesBits(t *testing.T) {
	a := NewAllocator(16)
	idx, err := a.Allocate()
	require.NoError(t, err)

	reloaded := LoadAllocator(a.Bytes(), 16)
	assert.True(t, reloaded.IsSet(idx))
	assert.Equal(t, a.CountFree(), reloaded.CountFree())
}
