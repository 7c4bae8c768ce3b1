package eventstore

import (
	"container/list"
	"sync"
)

// DefaultCapacity bounds candidate stores built without an explicit size.
const DefaultCapacity = 50

// Store is a bounded, insertion-ordered key/value buffer used to correlate
// events produced at different times. When full, the oldest entry is evicted.
type Store[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	entries  map[K]*list.Element
	order    *list.List
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// New creates a store holding at most capacity entries.
func New[K comparable, V any](capacity int) *Store[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store[K, V]{
		capacity: capacity,
		entries:  make(map[K]*list.Element),
		order:    list.New(),
	}
}

// Put stores value under key. Re-putting an existing key replaces the value
// and moves it to the newest position.
func (s *Store[K, V]) Put(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, exists := s.entries[key]; exists {
		elem.Value.(*entry[K, V]).value = value
		s.order.MoveToBack(elem)
		return
	}

	if s.order.Len() >= s.capacity {
		if oldest := s.order.Front(); oldest != nil {
			delete(s.entries, oldest.Value.(*entry[K, V]).key)
			s.order.Remove(oldest)
		}
	}

	s.entries[key] = s.order.PushBack(&entry[K, V]{key: key, value: value})
}

// Get returns the value stored under key.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, exists := s.entries[key]
	if !exists {
		var zero V
		return zero, false
	}
	return elem.Value.(*entry[K, V]).value, true
}

// Delete removes key if present.
func (s *Store[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, exists := s.entries[key]; exists {
		delete(s.entries, key)
		s.order.Remove(elem)
	}
}

// Len returns the number of stored entries.
func (s *Store[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Keys returns keys oldest first.
func (s *Store[K, V]) Keys() []K {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]K, 0, s.order.Len())
	for e := s.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*entry[K, V]).key)
	}
	return keys
}
