// Package registry provides a concurrency-safe keyed registry.
package registry

import (
	"cmp"
	"slices"
	"sync"
)

// Registry holds values by key.
type Registry[K cmp.Ordered, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

func New[K cmp.Ordered, V any]() *Registry[K, V] {
	return &Registry[K, V]{items: make(map[K]V)}
}

// Register adds v under k, replacing any existing value.
func (r *Registry[K, V]) Register(k K, v V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[k] = v
}

func (r *Registry[K, V]) Get(k K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[k]
	return v, ok
}

// Remove deletes k and reports whether it was present.
func (r *Registry[K, V]) Remove(k K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.items[k]
	delete(r.items, k)
	return ok
}

func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Keys returns the registered keys in ascending order.
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]K, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// List returns the values ordered by key.
func (r *Registry[K, V]) List() []V {
	keys := r.Keys()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		if v, ok := r.items[k]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Range calls f for every entry in key order until f returns false. The
// registry is not locked while f runs.
func (r *Registry[K, V]) Range(f func(K, V) bool) {
	for _, k := range r.Keys() {
		v, ok := r.Get(k)
		if !ok {
			continue
		}
		if !f(k, v) {
			return
		}
	}
}
