package cache

import (
	"context"
	"encoding/json"
	"sync"
)

// Memory is the in-process fallback cache. Entries never expire; the process
// lifetime bounds them the way a TTL would on the real backend.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.items[key]
	return ok, nil
}

func (m *Memory) Get(_ context.Context, key string, dest any) error {
	m.mu.RLock()
	raw, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return ErrMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *Memory) Set(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.items[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *Memory) MultiGet(_ context.Context, keys []string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(keys))
	for i, key := range keys {
		if raw, ok := m.items[key]; ok {
			out[i] = raw
		}
	}
	return out, nil
}

func (m *Memory) MultiSet(_ context.Context, pairs []KV) error {
	encoded := make(map[string][]byte, len(pairs))
	for _, pair := range pairs {
		raw, err := json.Marshal(pair.Value)
		if err != nil {
			return err
		}
		encoded[pair.Key] = raw
	}
	m.mu.Lock()
	for key, raw := range encoded {
		m.items[key] = raw
	}
	m.mu.Unlock()
	return nil
}
