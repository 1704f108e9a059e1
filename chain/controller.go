package chain

import (
	"fmt"
	"sync"
)

// Controller owns the set of named chains for a single API and mints
// fresh forward executors for dispatching requests into them. Chains are
// registered once at startup (by the Builder) and never removed, so reads
// need no locking beyond what the map itself requires during registration.
type Controller[T any] struct {
	mu     sync.RWMutex
	chains map[string]*Chain[T]
}

// NewController returns an empty controller.
func NewController[T any]() *Controller[T] {
	return &Controller[T]{chains: make(map[string]*Chain[T])}
}

// Register adds a built chain under its own name. It is an error to
// register two chains with the same name.
func (ctl *Controller[T]) Register(c *Chain[T]) error {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if _, exists := ctl.chains[c.Name()]; exists {
		return fmt.Errorf("chain %q already registered", c.Name())
	}
	ctl.chains[c.Name()] = c
	return nil
}

// Executor returns a fresh ForwardExecutor positioned before the named
// chain's first stage, ready for its first Next() call.
func (ctl *Controller[T]) Executor(chainName string) (*ForwardExecutor[T], error) {
	ctl.mu.RLock()
	c, ok := ctl.chains[chainName]
	ctl.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("chain %q not found", chainName)
	}
	return NewForwardExecutor(c), nil
}

// Chain returns the named chain, primarily so a stage can build a
// ReverseExecutor starting at its own index within it.
func (ctl *Controller[T]) Chain(chainName string) (*Chain[T], error) {
	ctl.mu.RLock()
	defer ctl.mu.RUnlock()
	c, ok := ctl.chains[chainName]
	if !ok {
		return nil, fmt.Errorf("chain %q not found", chainName)
	}
	return c, nil
}

// Names returns the registered chain names.
func (ctl *Controller[T]) Names() []string {
	ctl.mu.RLock()
	defer ctl.mu.RUnlock()
	names := make([]string, 0, len(ctl.chains))
	for name := range ctl.chains {
		names = append(names, name)
	}
	return names
}
