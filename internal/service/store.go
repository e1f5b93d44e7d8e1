// Package service models a hosted service instance and its two string
// key-value stores: the live variables, which a reinstall or game switch
// wipes, and the app data, which survives both.
package service

import "sort"

// Store is a string key-value store attached to a service.
type Store interface {
	Has(key string) bool
	// HasValueAndSet reports whether key is present with a non-empty value.
	HasValueAndSet(key string) bool
	Get(key string) string
	Set(key, value string)
	Remove(key string)
	// Keys returns the stored keys in sorted order.
	Keys() []string
}

// MapStore is an in-memory Store. The zero value is not usable; use NewMapStore.
type MapStore struct {
	values map[string]string
}

var _ Store = (*MapStore)(nil)

// NewMapStore returns a store seeded with a copy of values.
func NewMapStore(values map[string]string) *MapStore {
	m := &MapStore{values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

func (m *MapStore) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

func (m *MapStore) HasValueAndSet(key string) bool {
	return m.values[key] != ""
}

func (m *MapStore) Get(key string) string {
	return m.values[key]
}

func (m *MapStore) Set(key, value string) {
	m.values[key] = value
}

func (m *MapStore) Remove(key string) {
	delete(m.values, key)
}

func (m *MapStore) Keys() []string {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot copies the store's contents into a new map.
func Snapshot(s Store) map[string]string {
	out := make(map[string]string)
	for _, k := range s.Keys() {
		out[k] = s.Get(k)
	}
	return out
}
