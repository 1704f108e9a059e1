// Package chain implements the ordered, type-checked stage pipeline that
// backs every API exposed by this broker. A Chain is an append-only,
// named sequence of stages of a single type T; it never mutates once
// built and is safe for concurrent reads from many executors.
package chain

import "fmt"

// Chain is a named, ordered sequence of stages of type T.
type Chain[T any] struct {
	name   string
	stages []T
}

// New returns an empty chain with the given name.
func New[T any](name string) *Chain[T] {
	return &Chain[T]{name: name}
}

// Name returns the chain's configured name.
func (c *Chain[T]) Name() string {
	return c.name
}

// Len returns the number of stages in the chain.
func (c *Chain[T]) Len() int {
	return len(c.stages)
}

// Append adds a stage to the end of the chain.
func (c *Chain[T]) Append(stage T) {
	c.stages = append(c.stages, stage)
}

// At returns the stage at index i.
func (c *Chain[T]) At(i int) (T, error) {
	var zero T
	if i < 0 || i >= len(c.stages) {
		return zero, fmt.Errorf("chain %q: index %d out of range (len %d)", c.name, i, len(c.stages))
	}
	return c.stages[i], nil
}
