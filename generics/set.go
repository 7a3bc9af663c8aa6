package generics

import (
	"cmp"
	"maps"
	"slices"
)

// Set is a map[T]struct{}-backed unique set of items.
type Set[T comparable] map[T]struct{}

// NewSet returns a new Set with elements `es`.
func NewSet[T comparable](es ...T) Set[T] {
	s := make(Set[T], len(es))
	s.Add(es...)
	return s
}

// Add adds elements `es` to the Set.
func (s Set[T]) Add(es ...T) {
	for _, e := range es {
		s[e] = struct{}{}
	}
}

func (s Set[T]) Remove(es ...T) {
	for _, e := range es {
		delete(s, e)
	}
}

// Contains returns true if the Set contains `e`.
func (s Set[T]) Contains(e T) bool {
	_, ok := s[e]
	return ok
}

// Members returns the unique elements of the Set in indeterminate order.
func (s Set[T]) Members() []T {
	return slices.Collect(maps.Keys(s))
}

// Difference returns the elements from the Set that do not exist in `b`.
func (s Set[T]) Difference(b Set[T]) Set[T] {
	c := NewSet[T]()
	for v := range s {
		if !b.Contains(v) {
			c.Add(v)
		}
	}
	return c
}

// SortedMembers returns the elements of s in ascending order.
func SortedMembers[T cmp.Ordered](s Set[T]) []T {
	return slices.Sorted(maps.Keys(s))
}

// After returns up to limit elements of s that sort strictly after marker, in
// ascending order. A limit of 0 or less returns every such element.
func After[T cmp.Ordered](s Set[T], marker T, limit int) []T {
	var out []T
	for _, v := range SortedMembers(s) {
		if v <= marker {
			continue
		}
		out = append(out, v)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
