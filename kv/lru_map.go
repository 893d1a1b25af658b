package kv

import "github.com/jellydator/ttlcache/v3"

// LRUMap is a KVS holding at most capacity entries. Once full, a Set evicts
// the entry read or written least recently.
type LRUMap[K comparable, V any] struct {
	c *ttlcache.Cache[K, V]
}

func NewLRUMap[K comparable, V any](capacity uint64) *LRUMap[K, V] {
	return &LRUMap[K, V]{
		c: ttlcache.New[K, V](ttlcache.WithCapacity[K, V](capacity)),
	}
}

var _ KVS[string, any] = (*LRUMap[string, any])(nil)

func (m *LRUMap[K, V]) Get(key K) (V, bool) {
	item := m.c.Get(key)
	if item == nil {
		var zero V
		return zero, false
	}
	return item.Value(), true
}

func (m *LRUMap[K, V]) Set(key K, value V) {
	m.c.Set(key, value, ttlcache.NoTTL)
}

func (m *LRUMap[K, V]) Delete(key K) {
	m.c.Delete(key)
}

func (m *LRUMap[K, V]) Range(f func(key K, value V) bool) {
	m.c.Range(func(item *ttlcache.Item[K, V]) bool {
		return f(item.Key(), item.Value())
	})
}

func (m *LRUMap[K, V]) Len() int {
	return m.c.Len()
}

func (m *LRUMap[K, V]) Clear() {
	m.c.DeleteAll()
}
