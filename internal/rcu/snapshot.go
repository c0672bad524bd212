package rcu

import (
	"sync/atomic"
)

// Snapshot is a lock-free container for read-mostly data. Readers load the
// current pointer without locking; writers publish a freshly built value via
// atomic pointer replacement. Used for the rule table, which is rebuilt
// wholesale on reload and read on every request.
type Snapshot[T any] struct {
	ptr atomic.Pointer[T]
}

// NewSnapshot creates a snapshot container holding init.
func NewSnapshot[T any](init *T) *Snapshot[T] {
	s := &Snapshot[T]{}
	s.ptr.Store(init)
	return s
}

// Load returns the current snapshot. The returned value must be treated as
// immutable.
func (s *Snapshot[T]) Load() *T {
	return s.ptr.Load()
}

// Replace publishes next as the current snapshot. The caller must hand over a
// newly built value and not modify it afterwards.
func (s *Snapshot[T]) Replace(next *T) {
	s.ptr.Store(next)
}
