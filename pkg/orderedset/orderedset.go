// Package orderedset provides an ordered set with O(1) swap-delete.
package orderedset

// Set is a growable array with an index map. Remove swaps the last
// element into the removed slot, so positions are not stable across removals.
type Set[T comparable] struct {
	items []T
	index map[T]int
}

func New[T comparable]() *Set[T] {
	return &Set[T]{index: make(map[T]int)}
}

// Add appends v and reports whether it was absent.
func (s *Set[T]) Add(v T) bool {
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = len(s.items)
	s.items = append(s.items, v)
	return true
}

// Remove deletes v in O(1) and reports whether it was present.
func (s *Set[T]) Remove(v T) bool {
	i, ok := s.index[v]
	if !ok {
		return false
	}
	last := len(s.items) - 1
	if i != last {
		moved := s.items[last]
		s.items[i] = moved
		s.index[moved] = i
	}
	var zero T
	s.items[last] = zero
	s.items = s.items[:last]
	delete(s.index, v)
	return true
}

func (s *Set[T]) Contains(v T) bool {
	_, ok := s.index[v]
	return ok
}

func (s *Set[T]) Len() int { return len(s.items) }

// At returns the element at position i.
func (s *Set[T]) At(i int) T { return s.items[i] }

// IndexOf returns the position of v.
func (s *Set[T]) IndexOf(v T) (int, bool) {
	i, ok := s.index[v]
	return i, ok
}

// Values returns a copy of the elements in position order.
func (s *Set[T]) Values() []T {
	return append([]T(nil), s.items...)
}

// Clone returns an independent copy preserving positions.
func (s *Set[T]) Clone() *Set[T] {
	c := New[T]()
	for _, v := range s.items {
		c.Add(v)
	}
	return c
}
