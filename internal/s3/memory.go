package s3

import (
	"context"
	"sync"
)

// Memory is an in-process Client used when no bucket is configured and in tests.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *Memory) PutBytes(_ context.Context, key string, b []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), b...)
	m.types[key] = contentType
	return nil
}

func (m *Memory) GetBytes(_ context.Context, key string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, "", ErrNotExist
	}
	return append([]byte(nil), b...), m.types[key], nil
}

func (m *Memory) ReadJSON(ctx context.Context, key string, out any) (bool, error) {
	return readJSON(ctx, m, key, out)
}

func (m *Memory) WriteJSON(ctx context.Context, key string, v any) error {
	return writeJSON(ctx, m, key, v)
}

// Keys returns the stored keys in no particular order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
