package store

// Ring is a fixed-capacity circular buffer. When full, Push overwrites the
// oldest element. It is not safe for concurrent use; Store serialises access.
type Ring[T any] struct {
	items []T
	head  int // index of the oldest element
	size  int
}

// NewRing creates a ring holding at most capacity elements (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when the ring is full.
func (r *Ring[T]) Push(v T) {
	if r.size < len(r.items) {
		r.items[(r.head+r.size)%len(r.items)] = v
		r.size++
		return
	}
	r.items[r.head] = v
	r.head = (r.head + 1) % len(r.items)
}

// Len returns the number of elements held.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.items) }

// Do calls fn for every element from oldest to newest until fn returns false.
func (r *Ring[T]) Do(fn func(T) bool) {
	for i := 0; i < r.size; i++ {
		if !fn(r.items[(r.head+i)%len(r.items)]) {
			return
		}
	}
}

// Snapshot returns a copy of the contents, oldest first.
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, 0, r.size)
	r.Do(func(v T) bool {
		out = append(out, v)
		return true
	})
	return out
}
