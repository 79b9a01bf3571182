// Package reconcile holds externally sourced state behind a structural
// equality check, so that an unchanged fetch never looks like an update.
//
// A Cell's version only moves when its value really changes; consumers use
// the version the way a UI uses reference identity, to skip redraws and
// dependent recomputation.
package reconcile

import (
	"slices"
	"sync"
)

// EqualFunc reports whether two values are semantically the same.
type EqualFunc[T any] func(a, b T) bool

// Cell holds one reconciled value.
type Cell[T any] struct {
	mu        sync.RWMutex
	value     T
	version   uint64
	set       bool
	equal     EqualFunc[T]
	listeners []func(T)
}

// NewCell creates a cell with an initial value at version 0.
func NewCell[T any](initial T, equal EqualFunc[T]) *Cell[T] {
	return &Cell[T]{value: initial, equal: equal}
}

// Set stores v if it differs from the held value and reports whether it
// did. An equal v leaves both the value and the version untouched.
func (c *Cell[T]) Set(v T) bool {
	c.mu.Lock()
	if c.equal(c.value, v) {
		c.set = true
		c.mu.Unlock()
		return false
	}
	c.value = v
	c.version++
	c.set = true
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
	return true
}

// Get returns the held value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Load returns the held value together with its version.
func (c *Cell[T]) Load() (T, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.version
}

// Version returns the number of real changes so far.
func (c *Cell[T]) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Loaded reports whether any value has been stored since creation or Reset.
func (c *Cell[T]) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set
}

// OnChange registers fn to be called after every real change.
func (c *Cell[T]) OnChange(fn func(T)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Reset replaces the value unconditionally, bumping the version. Used when
// the owning session ends.
func (c *Cell[T]) Reset(v T) {
	c.mu.Lock()
	c.value = v
	c.version++
	c.set = false
	c.mu.Unlock()
}
