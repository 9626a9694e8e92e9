// Package counterstore is the shared auxiliary map shape backing both the
// sequence allocator and the fencing-token allocator: an unordered
// byte-key to int64 map with an atomic increment-under-lock update,
// generalized from a fixed wraparound integer range to an open-ended
// counter keyed by arbitrary byte keys.
package counterstore

import "sync"

// Store is a concurrency-safe map from byte key to int64 counter value.
type Store struct {
	mu   sync.Mutex
	vals map[string]int64
}

// New returns an empty counter store.
func New() *Store {
	return &Store{vals: make(map[string]int64)}
}

// Get returns the stored value for key, or (0, false) if absent.
func (s *Store) Get(key []byte) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vals[string(key)]
	return v, ok
}

// Set stores value at key, overwriting any prior value.
func (s *Store) Set(key []byte, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[string(key)] = value
}

// Delete unconditionally removes key's record, if any.
func (s *Store) Delete(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vals, string(key))
}

// Update runs fn against the current value for key (0 if absent) under
// the store's lock and stores the result. Used for atomic
// read-then-write allocation logic by sequence and fencing.
func (s *Store) Update(key []byte, fn func(current int64, present bool) int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	skey := string(key)
	current, present := s.vals[skey]
	next := fn(current, present)
	s.vals[skey] = next
	return next
}

// Snapshot returns a copy of entries whose key matches the predicate.
// A nil predicate matches everything.
func (s *Store) Snapshot(match func(key string) bool) map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int64, len(s.vals))
	for k, v := range s.vals {
		if match == nil || match(k) {
			out[k] = v
		}
	}
	return out
}

// LoadAll merges entries into the store, overwriting existing keys.
func (s *Store) LoadAll(entries map[string]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range entries {
		s.vals[k] = v
	}
}
