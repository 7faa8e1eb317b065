package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyringRotation(t *testing.T) {
	k := NewKeyring([]string{"a", "b", "c"})

	var order []string
	for i := 0; i < 5; i++ {
		key, _ := k.Next()
		order = append(order, key)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b"}, order)
}

func TestKeyringIndices(t *testing.T) {
	k := NewKeyring([]string{"a", "b"})
	_, i0 := k.Next()
	_, i1 := k.Next()
	_, i2 := k.Next()
	assert.Equal(t, []int{0, 1, 0}, []int{i0, i1, i2})
}

func TestKeyringEmpty(t *testing.T) {
	k := NewKeyring(nil)
	assert.Zero(t, k.Len())
	key, idx := k.Next()
	assert.Empty(t, key)
	assert.Equal(t, -1, idx)
}

func TestParseKeyring(t *testing.T) {
	k := ParseKeyring(" key1 , ,key2,")
	assert.Equal(t, 2, k.Len())
	first, _ := k.Next()
	assert.Equal(t, "key1", first)
}
