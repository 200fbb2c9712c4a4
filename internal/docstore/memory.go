package docstore

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Store used by tests and the memory driver.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memCollection)}
}

func (m *Memory) Collection(name string) Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		c = &memCollection{docs: make(map[string]map[string]any)}
		m.collections[name] = c
	}
	return c
}

func (m *Memory) Ping(context.Context) error  { return nil }
func (m *Memory) Close(context.Context) error { return nil }

type memCollection struct {
	mu    sync.RWMutex
	order []string
	docs  map[string]map[string]any
}

func (c *memCollection) Get(_ context.Context, id string, dst any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[id]
	if !ok {
		return ErrNotFound
	}
	return decodeInto(doc, dst)
}

func (c *memCollection) Find(_ context.Context, filters []Filter, dst any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]map[string]any, 0)
	for _, id := range c.order {
		if doc := c.docs[id]; matches(doc, filters) {
			out = append(out, doc)
		}
	}
	return decodeInto(out, dst)
}

func (c *memCollection) Add(_ context.Context, doc any) (string, error) {
	m, err := toMap(doc)
	if err != nil {
		return "", err
	}
	id := idOf(m)
	if id == "" {
		id = newID()
		m["id"] = id
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[id]; exists {
		return "", fmt.Errorf("docstore: duplicate id %q", id)
	}
	c.docs[id] = m
	c.order = append(c.order, id)
	return id, nil
}

func (c *memCollection) Update(_ context.Context, id string, fields map[string]any) error {
	patch, err := normalize(fields)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		doc[k] = v
	}
	return nil
}

func (c *memCollection) Increment(_ context.Context, id, field string, delta int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[id]
	if !ok {
		return ErrNotFound
	}
	var current float64
	switch v := doc[field].(type) {
	case float64:
		current = v
	case nil:
	default:
		return fmt.Errorf("docstore: field %q is not numeric", field)
	}
	doc[field] = current + float64(delta)
	return nil
}
