package store

import (
	"context"
	"sync"
)

// Memory is an in-process Backend. The zero value is ready to use.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string][]byte),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.set(key, value)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// Update holds the lock for the whole read-modify-write cycle.
func (m *Memory) Update(_ context.Context, key string, fn func(old []byte) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var old []byte
	if v, ok := m.data[key]; ok {
		old = clone(v)
	}
	v, err := fn(old)
	if err != nil {
		return err
	}
	if v != nil {
		m.set(key, v)
	}
	return nil
}

func (m *Memory) set(key string, value []byte) {
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = clone(value)
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
