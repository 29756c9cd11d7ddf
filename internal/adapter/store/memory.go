package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"conduit-ai/internal/domain"
)

// Memory is an in-memory StateStore for tests and ephemeral hosts.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// Get implements domain.StateStore.
func (m *Memory) Get(key string, out any) (bool, error) {
	m.mu.RLock()
	raw, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("%w: decode %q: %v", domain.ErrStateStore, key, err)
	}
	return true, nil
}

// Set implements domain.StateStore.
func (m *Memory) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: encode %q: %v", domain.ErrStateStore, key, err)
	}
	m.mu.Lock()
	m.data[key] = string(raw)
	m.mu.Unlock()
	return nil
}

// Has implements domain.StateStore.
func (m *Memory) Has(key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

// Delete implements domain.StateStore.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Keys implements domain.StateStore.
func (m *Memory) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
