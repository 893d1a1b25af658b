package kv

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// XMap is a lock-free KVS on top of xsync.MapOf.
type XMap[K comparable, V any] struct {
	m *xsync.MapOf[K, V]
}

func NewXMap[K comparable, V any]() *XMap[K, V] {
	return &XMap[K, V]{m: xsync.NewMapOf[K, V]()}
}

var _ KVS[string, any] = (*XMap[string, any])(nil)

func (m *XMap[K, V]) Get(key K) (V, bool) {
	return m.m.Load(key)
}

func (m *XMap[K, V]) Set(key K, value V) {
	m.m.Store(key, value)
}

func (m *XMap[K, V]) Delete(key K) {
	m.m.Delete(key)
}

func (m *XMap[K, V]) Range(f func(key K, value V) bool) {
	m.m.Range(f)
}

func (m *XMap[K, V]) Len() int {
	return m.m.Size()
}

func (m *XMap[K, V]) Clear() {
	m.m.Clear()
}
