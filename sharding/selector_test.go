package sharding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honeycombio/queuerouter/controlstore"
)

func shards(weights map[string]int) []controlstore.Shard {
	var out []controlstore.Shard
	for _, id := range []string{"a", "b", "c", "d"} {
		if w, ok := weights[id]; ok {
			out = append(out, controlstore.Shard{ID: id, Weight: w})
		}
	}
	return out
}

func fixed(point int) func(int) int {
	return func(n int) int { return point % n }
}

func TestSelectWeightedNoCandidate(t *testing.T) {
	_, ok := SelectWeighted[controlstore.Shard](nil)
	assert.False(t, ok)

	_, ok = SelectWeighted(shards(map[string]int{"a": 0, "b": 0}))
	assert.False(t, ok)

	_, ok = SelectWeighted(shards(map[string]int{"a": -4}))
	assert.False(t, ok)
}

func TestSelectWeightedCumulative(t *testing.T) {
	candidates := shards(map[string]int{"a": 0, "b": 3, "c": 1})
	tests := []struct {
		point int
		want  string
	}{
		{0, "b"},
		{1, "b"},
		{2, "b"},
		{3, "c"},
	}
	for _, tt := range tests {
		got, ok := selectWeighted(candidates, fixed(tt.point))
		require.True(t, ok)
		assert.Equal(t, tt.want, got.ID, "point %d", tt.point)
	}
}

func TestSelectWeightedNeverPicksZeroWeight(t *testing.T) {
	candidates := shards(map[string]int{"a": 0, "b": 1, "c": 0})
	for range 1000 {
		got, ok := SelectWeighted(candidates)
		require.True(t, ok)
		assert.Equal(t, "b", got.ID)
	}
}

func TestSelectWeightedIsProportional(t *testing.T) {
	candidates := shards(map[string]int{"a": 1, "b": 3})
	const draws = 20000
	heavy := 0
	for range draws {
		got, _ := SelectWeighted(candidates)
		if got.ID == "b" {
			heavy++
		}
	}
	assert.InDelta(t, 0.75, float64(heavy)/draws, 0.03)
}

func TestSelectWeightedPartitions(t *testing.T) {
	candidates := []controlstore.Partition{{Name: "p1", Weight: 0}, {Name: "p2", Weight: 7}}
	got, ok := selectWeighted(candidates, fixed(6))
	require.True(t, ok)
	assert.Equal(t, "p2", got.Name)
}
