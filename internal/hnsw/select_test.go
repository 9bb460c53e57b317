package hnsw

import (
	"testing"

	"github.com/hupe1980/voyago/internal/queue"
	"github.com/stretchr/testify/assert"
)

// points on a line; distance is the absolute difference.
func lineDistance(pos map[uint32]float32) func(a, b uint32) float32 {
	return func(a, b uint32) float32 {
		d := pos[a] - pos[b]
		if d < 0 {
			return -d
		}
		return d
	}
}

func TestSelectNeighbors(t *testing.T) {
	// Node sits at 0. Candidates 1 and 2 are on the same side, 3 on the other.
	pos := map[uint32]float32{1: 1, 2: 2, 3: -3}
	between := lineDistance(pos)

	candidates := []queue.Item{
		{Node: 1, Distance: 1},
		{Node: 2, Distance: 2},
		{Node: 3, Distance: 3},
	}

	t.Run("diversity", func(t *testing.T) {
		got := SelectNeighbors(candidates, 3, between, false)
		assert.Equal(t, []queue.Item{{Node: 1, Distance: 1}, {Node: 3, Distance: 3}}, got)
	})

	t.Run("keep pruned", func(t *testing.T) {
		got := SelectNeighbors(candidates, 3, between, true)
		assert.Equal(t, candidates, got)
	})

	t.Run("cap", func(t *testing.T) {
		got := SelectNeighbors(candidates, 1, between, false)
		assert.Equal(t, []queue.Item{{Node: 1, Distance: 1}}, got)
	})

	t.Run("zero", func(t *testing.T) {
		assert.Nil(t, SelectNeighbors(candidates, 0, between, false))
	})

	t.Run("does not alias", func(t *testing.T) {
		got := SelectNeighbors(candidates, 3, between, true)
		got[0].Node = 99
		assert.Equal(t, uint32(1), candidates[0].Node)
	})
}
