package cache

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. Contents are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemory() *MemoryStore {
	return &MemoryStore{items: make(map[string]string)}
}

func (c *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.items[key]
	return v, ok, nil
}

func (c *MemoryStore) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = value
	return nil
}

func (c *MemoryStore) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	return nil
}

func (c *MemoryStore) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]string)
}

var _ Store = (*MemoryStore)(nil)
