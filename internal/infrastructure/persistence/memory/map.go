// Package memory provides lock-protected in-process stores for state that is
// never persisted: registration sessions and, by default, one-time codes.
package memory

import (
	"context"
	"sync"
)

// Map is a mutex-protected map with an explicit lifecycle: values are put
// when a flow starts and deleted on a terminal transition.
type Map[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// NewMap creates an empty Map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{items: make(map[K]V)}
}

// Get returns the value for k.
func (m *Map[K, V]) Get(_ context.Context, k K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[k]
	return v, ok
}

// Put stores v under k, replacing any previous value.
func (m *Map[K, V]) Put(_ context.Context, k K, v V) {
	m.mu.Lock()
	m.items[k] = v
	m.mu.Unlock()
}

// Delete removes k.
func (m *Map[K, V]) Delete(_ context.Context, k K) {
	m.mu.Lock()
	delete(m.items, k)
	m.mu.Unlock()
}

// Len returns the number of live entries.
func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
