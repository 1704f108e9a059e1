package upstream

import (
	"context"
	"fmt"
	"sync"
)

// MemoryClient is an in-process Client used by tests and local
// development, standing in for a real upstream secrets manager the way
// the teacher's test suites use an in-memory double rather than hitting a
// live backend.
type MemoryClient struct {
	mu      sync.Mutex
	byID    map[string]*Secret
	nextSeq int
}

// NewMemoryClient returns an empty MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{byID: make(map[string]*Secret)}
}

func (c *MemoryClient) Sync(_ context.Context) ([]Secret, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Secret, 0, len(c.byID))
	for _, s := range c.byID {
		out = append(out, *s)
	}
	return out, nil
}

func (c *MemoryClient) GetByID(_ context.Context, id string) (*Secret, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (c *MemoryClient) Create(_ context.Context, key, value string) (*Secret, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.byID {
		if s.Key == key {
			s.Value = value
			cp := *s
			return &cp, nil
		}
	}
	c.nextSeq++
	s := &Secret{ID: fmt.Sprintf("secret-%d", c.nextSeq), Key: key, Value: value}
	c.byID[s.ID] = s
	cp := *s
	return &cp, nil
}

var _ Client = (*MemoryClient)(nil)
