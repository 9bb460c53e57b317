package visited

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisitedSet(t *testing.T) {
	v := New(10)

	assert.False(t, v.Visited(1))
	assert.True(t, v.Visit(1))
	assert.False(t, v.Visit(1))
	assert.True(t, v.Visited(1))
	assert.False(t, v.Visited(5))
	assert.Equal(t, 1, v.Count())

	v.Reset()
	assert.False(t, v.Visited(1))
	assert.Equal(t, 0, v.Count())
}

func TestVisitedSet_Grow(t *testing.T) {
	v := New(2)
	v.Visit(1)
	v.Visit(1000)
	assert.True(t, v.Visited(1000))
	assert.True(t, v.Visited(1))
	assert.False(t, v.Visited(999))
}
