// Package kvcache provides the namespaced key-value store used as the
// client-side source of truth for onboarding state. Keys are dotted paths
// such as "onboarding.setupDone". The Redis implementation survives page
// reloads and is shared across tabs/devices; the in-memory implementation
// backs tests and single-process deployments.
package kvcache

import (
	"context"
	"strings"
	"sync"
)

// Store is a namespaced key-value store with dotted-path keys.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	// Clear removes every key under the given dotted prefix; an empty prefix
	// clears the whole namespace.
	Clear(ctx context.Context, prefix string) error
}

// Memory is a mutex-guarded in-process Store.
type Memory struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]string)}
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *Memory) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *Memory) Clear(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prefix == "" {
		m.items = make(map[string]string)
		return nil
	}
	for k := range m.items {
		if underPrefix(k, prefix) {
			delete(m.items, k)
		}
	}
	return nil
}

// Namespaced returns a view of store with every key prefixed by the given
// dotted namespace segments, e.g. Namespaced(s, "tenant", id) maps "plan" to
// "tenant.<id>.plan".
func Namespaced(store Store, segments ...string) Store {
	prefix := strings.Join(segments, ".")
	if prefix == "" {
		return store
	}
	return &namespaced{store: store, prefix: prefix}
}

type namespaced struct {
	store  Store
	prefix string
}

func (n *namespaced) key(key string) string {
	if key == "" {
		return n.prefix
	}
	return n.prefix + "." + key
}

func (n *namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.store.Get(ctx, n.key(key))
}

func (n *namespaced) Set(ctx context.Context, key, value string) error {
	return n.store.Set(ctx, n.key(key), value)
}

func (n *namespaced) Remove(ctx context.Context, key string) error {
	return n.store.Remove(ctx, n.key(key))
}

func (n *namespaced) Clear(ctx context.Context, prefix string) error {
	if prefix == "" {
		return n.store.Clear(ctx, n.prefix)
	}
	return n.store.Clear(ctx, n.key(prefix))
}

// underPrefix reports whether key sits at or below the dotted prefix.
func underPrefix(key, prefix string) bool {
	return key == prefix || strings.HasPrefix(key, prefix+".")
}
