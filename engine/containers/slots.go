package containers

import "fmt"

// SlotArray is a growable array of nullable slots. Freed slots leave holes
// which are handed out again, lowest index first, before the array grows.
// Every slot carries a generation that is bumped when the slot is freed, so
// an index+generation pair identifies one occupant over the slot's lifetime.
type SlotArray[T any] struct {
	slots       []*T
	generations []uint32
	length      int
}

// NewSlotArray creates an empty array with room for capacity slots.
func NewSlotArray[T any](capacity int) *SlotArray[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &SlotArray[T]{
		slots:       make([]*T, capacity),
		generations: make([]uint32, capacity),
	}
}

// Acquire stores value in the first free slot and returns its index and generation.
func (s *SlotArray[T]) Acquire(value *T) (uint32, uint32) {
	for i := 0; i < s.length; i++ {
		// Existing free spot. Take it.
		if s.slots[i] == nil {
			s.slots[i] = value
			return uint32(i), s.generations[i]
		}
	}

	// If here, no existing free slots. Push one, doubling the capacity if needed.
	if s.length == len(s.slots) {
		size := len(s.slots) * 2
		slots := make([]*T, size)
		copy(slots, s.slots)
		generations := make([]uint32, size)
		copy(generations, s.generations)
		s.slots = slots
		s.generations = generations
	}
	index := s.length
	s.slots[index] = value
	s.length++
	return uint32(index), s.generations[index]
}

// Release empties the slot at index and invalidates its current generation.
func (s *SlotArray[T]) Release(index uint32) error {
	if int(index) >= s.length {
		return fmt.Errorf("slot index '%d' out of range (len=%d)", index, s.length)
	}
	if s.slots[index] == nil {
		return fmt.Errorf("slot index '%d' is already free", index)
	}
	s.slots[index] = nil
	s.generations[index]++
	return nil
}

// At returns the occupant of index if its generation still matches.
func (s *SlotArray[T]) At(index, generation uint32) (*T, bool) {
	if int(index) >= s.length {
		return nil, false
	}
	v := s.slots[index]
	if v == nil || s.generations[index] != generation {
		return nil, false
	}
	return v, true
}

// Each calls fn for every occupied slot in index order until fn returns false.
func (s *SlotArray[T]) Each(fn func(index uint32, value *T) bool) {
	for i := 0; i < s.length; i++ {
		if s.slots[i] == nil {
			continue
		}
		if !fn(uint32(i), s.slots[i]) {
			return
		}
	}
}

// Len is the number of slots in use or previously used (holes included).
func (s *SlotArray[T]) Len() int {
	return s.length
}

// Cap is the number of slots allocated.
func (s *SlotArray[T]) Cap() int {
	return len(s.slots)
}

// Count is the number of occupied slots.
func (s *SlotArray[T]) Count() int {
	n := 0
	for i := 0; i < s.length; i++ {
		if s.slots[i] != nil {
			n++
		}
	}
	return n
}
