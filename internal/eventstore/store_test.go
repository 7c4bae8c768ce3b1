package eventstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_EvictsOldestAtCapacity(t *testing.T) {
	s := New[string, int](2)
	s.Put("a", 1)
	s.Put("b", 2)
	s.Put("c", 3)

	_, ok := s.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")
	require.Equal(t, []string{"b", "c"}, s.Keys())
	require.Equal(t, 2, s.Len())
}

func TestStore_PutExistingKeyRefreshesPosition(t *testing.T) {
	s := New[string, int](2)
	s.Put("a", 1)
	s.Put("b", 2)
	s.Put("a", 10)
	s.Put("c", 3)

	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
	_, ok = s.Get("b")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "c"}, s.Keys())
}

func TestStore_Delete(t *testing.T) {
	s := New[string, string](0)
	s.Put("resource-1", "entry")
	s.Delete("resource-1")
	s.Delete("missing")

	_, ok := s.Get("resource-1")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestStore_DefaultCapacity(t *testing.T) {
	s := New[int, int](-1)
	for i := 0; i < DefaultCapacity+5; i++ {
		s.Put(i, i)
	}
	assert.Equal(t, DefaultCapacity, s.Len())
	assert.Equal(t, 5, s.Keys()[0])
}
