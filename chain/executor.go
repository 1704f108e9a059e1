package chain

// ForwardExecutor walks a Chain from its first stage towards its last.
// It is the handle a request-dispatching stage receives as "next": calling
// Next advances the cursor by one position and returns the stage now at
// that position, or ok=false once the chain is exhausted.
type ForwardExecutor[T any] struct {
	c   *Chain[T]
	idx int
}

// NewForwardExecutor returns an executor positioned just before the first
// stage of c (the first call to Next returns stage 0).
func NewForwardExecutor[T any](c *Chain[T]) *ForwardExecutor[T] {
	return &ForwardExecutor[T]{c: c, idx: -1}
}

// Next advances the cursor and returns the stage now under it. ok is false
// once every stage has been visited.
func (e *ForwardExecutor[T]) Next() (stage T, ok bool) {
	if e.idx+1 >= e.c.Len() {
		var zero T
		return zero, false
	}
	e.idx++
	stage, _ = e.c.At(e.idx)
	return stage, true
}

// Copy returns an independent executor positioned identically to e.
// Mutating the copy (via Next) never affects e.
func (e *ForwardExecutor[T]) Copy() *ForwardExecutor[T] {
	return &ForwardExecutor[T]{c: e.c, idx: e.idx}
}

// Index returns the cursor's current stage index (-1 before the first Next).
func (e *ForwardExecutor[T]) Index() int {
	return e.idx
}

// Chain returns the chain this executor walks.
func (e *ForwardExecutor[T]) Chain() *Chain[T] {
	return e.c
}

// ReverseExecutor walks a Chain from the stage just before a starting
// position back towards the first stage. It backs reverse-propagation
// operations (e.g. an upstream-side update notification travelling back
// towards the client-facing stages).
type ReverseExecutor[T any] struct {
	c   *Chain[T]
	idx int
}

// NewReverseExecutor returns an executor that will first yield the stage at
// startIdx-1, i.e. the stage immediately preceding startIdx in the chain.
func NewReverseExecutor[T any](c *Chain[T], startIdx int) *ReverseExecutor[T] {
	return &ReverseExecutor[T]{c: c, idx: startIdx}
}

// Next moves the cursor one position towards the start of the chain and
// returns the stage now under it. ok is false once index 0 has been passed.
func (e *ReverseExecutor[T]) Next() (stage T, ok bool) {
	if e.idx-1 < 0 {
		var zero T
		return zero, false
	}
	e.idx--
	stage, _ = e.c.At(e.idx)
	return stage, true
}

// Copy returns an independent executor positioned identically to e.
func (e *ReverseExecutor[T]) Copy() *ReverseExecutor[T] {
	return &ReverseExecutor[T]{c: e.c, idx: e.idx}
}

// Index returns the cursor's current stage index.
func (e *ReverseExecutor[T]) Index() int {
	return e.idx
}
