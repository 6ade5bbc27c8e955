package kamel

// Cell holds a message field that is either unknown or known. The zero value
// is unknown.
//
// A known cell is never overwritten: once a value has been observed on the
// wire it stays, so partial fetches can be merged into the same record.
type Cell[T any] struct {
	value T
	known bool
}

// Known returns a cell holding v.
func Known[T any](v T) Cell[T] {
	return Cell[T]{value: v, known: true}
}

// Get returns the value and whether it is known.
func (c Cell[T]) Get() (T, bool) {
	return c.value, c.known
}

// IsKnown reports whether the cell has a value.
func (c Cell[T]) IsKnown() bool {
	return c.known
}

// Value returns the value, or the zero value of T if unknown.
func (c Cell[T]) Value() T {
	return c.value
}

// Set stores v if the cell is still unknown. It returns false if the cell
// was already known, in which case it is left untouched.
func (c *Cell[T]) Set(v T) bool {
	if c.known {
		return false
	}
	c.value = v
	c.known = true
	return true
}

// Merge copies other into c if c is unknown and other is known.
func (c *Cell[T]) Merge(other Cell[T]) {
	if v, ok := other.Get(); ok {
		c.Set(v)
	}
}
