package generics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := NewSet(1, 2, 2)
	s.Add(3, 3)

	assert.True(t, s.Contains(1))
	assert.True(t, s.Contains(2))
	assert.True(t, s.Contains(3))
	assert.ElementsMatch(t, []int{1, 2, 3}, s.Members())

	s.Remove(2, 9)
	assert.False(t, s.Contains(2))
	assert.ElementsMatch(t, []int{1, 3}, s.Members())
}

func TestDifference(t *testing.T) {
	a := NewSet(1, 1, 2, 3, 3, 4)
	b := NewSet(3, 3, 4, 5, 6, 6)
	assert.ElementsMatch(t, []int{1, 2}, a.Difference(b).Members())
	assert.ElementsMatch(t, []int{5, 6}, b.Difference(a).Members())
}

func TestAfter(t *testing.T) {
	s := NewSet("s3", "s1", "s4", "s0", "s2")

	assert.Equal(t, []string{"s0", "s1", "s2", "s3", "s4"}, SortedMembers(s))
	assert.Equal(t, []string{"s0", "s1"}, After(s, "", 2))
	assert.Equal(t, []string{"s2", "s3", "s4"}, After(s, "s1", 0))
	assert.Empty(t, After(s, "s4", 10))
	assert.Empty(t, After(NewSet[string](), "", 0))
}
