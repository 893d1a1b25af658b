// Package kv holds the in-process key-value maps used as the fast tier in
// front of the store.
package kv

// KVS is a concurrency safe map.
type KVS[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Delete(key K)
	Range(func(key K, value V) bool)
	Len() int
	Clear()
}
