package lavalink

// Store is a small key-value map for caller-defined per-player data.
// It is not safe for concurrent use on its own; Player guards it.
type Store[K comparable, V any] struct {
	data map[K]V
}

func NewStore[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{data: make(map[K]V)}
}

// Set stores value under key, replacing any previous value.
func (s *Store[K, V]) Set(key K, value V) {
	s.data[key] = value
}

// Get returns the value stored under key, or def when the key is absent.
func (s *Store[K, V]) Get(key K, def V) V {
	if v, ok := s.data[key]; ok {
		return v
	}
	return def
}

// Delete removes key. Absent keys are ignored.
func (s *Store[K, V]) Delete(key K) {
	delete(s.data, key)
}

func (s *Store[K, V]) Len() int { return len(s.data) }

func (s *Store[K, V]) Clear() {
	clear(s.data)
}
