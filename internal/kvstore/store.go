// Package kvstore is the ordered, thread-safe byte-key/byte-value primary
// store. It keeps an ascending slice of keys alongside a map for O(1)
// point lookups, generalized from int64-keyed object stores to arbitrary
// byte keys ordered by unsigned lexicographic comparison.
package kvstore

import (
	"bytes"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Entry is a single key/value pair as returned by range operations.
// Value is nil when an operation was asked to omit values (onlyKeys).
type Entry struct {
	Key   []byte
	Value []byte
}

// Store is the ordered primary K/V store. The zero value is not usable;
// construct with New.
type Store struct {
	log *zap.Logger

	mu   sync.RWMutex
	keys [][]byte          // ascending, unsigned lexicographic order
	vals map[string][]byte // string(key) -> value; owns its bytes
}

// New returns an empty, ready-to-use Store.
func New(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		log:  log.Named("kvstore"),
		keys: make([][]byte, 0),
		vals: make(map[string][]byte),
	}
}

// normalize maps a nil key to an empty, non-nil slice so read-path helpers
// never distinguish "nil" from "empty".
func normalize(key []byte) []byte {
	if key == nil {
		return []byte{}
	}
	return key
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// lowerBound returns the index of the first key >= key (insertion point).
// Must be called with s.mu held.
func (s *Store) lowerBound(key []byte) int {
	return sort.Search(len(s.keys), func(i int) bool {
		return bytes.Compare(s.keys[i], key) >= 0
	})
}

// Get returns the value for key, or (nil, false) if absent.
func (s *Store) Get(key []byte) ([]byte, bool) {
	key = normalize(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vals[string(key)]
	return clone(v), ok
}

// MultiGet returns, in the order of the input keys, the entries for those
// keys present in the store. Absent keys are omitted entirely rather than
// returned with a nil value.
func (s *Store) MultiGet(keys [][]byte) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		k = normalize(k)
		if v, ok := s.vals[string(k)]; ok {
			out = append(out, Entry{Key: clone(k), Value: clone(v)})
		}
	}
	return out
}

// put inserts or overwrites key with value. Must be called with s.mu held
// for writing. Mirrors ObjectStore.Upsert's overwrite/append/insert shape.
func (s *Store) put(key, value []byte) {
	skey := string(key)
	if _, exists := s.vals[skey]; exists {
		s.vals[skey] = value
		return
	}

	n := len(s.keys)
	if n == 0 || bytes.Compare(key, s.keys[n-1]) > 0 {
		s.keys = append(s.keys, key)
		s.vals[skey] = value
		return
	}

	idx := s.lowerBound(key)
	s.keys = append(s.keys, nil)
	copy(s.keys[idx+1:], s.keys[idx:])
	s.keys[idx] = key
	s.vals[skey] = value
}

// Put stores value at key, discarding any prior value. Idempotent under
// identical input.
func (s *Store) Put(key, value []byte) {
	key, value = clone(normalize(key)), clone(value)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, value)
}

// PutBatch applies a list of puts. Not atomic across distinct keys; each
// individual put is linearizable at its own key.
func (s *Store) PutBatch(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.put(clone(normalize(e.Key)), clone(e.Value))
	}
}

// GetAndPut stores value at key and returns the prior value, if any.
func (s *Store) GetAndPut(key, value []byte) ([]byte, bool) {
	key, value = clone(normalize(key)), clone(value)
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.vals[string(key)]
	s.put(key, value)
	return clone(prev), had
}

// PutIfAbsent stores value at key only if key is currently absent. Returns
// the prior value when present (and leaves the store unchanged), or
// (nil, false) when it performed the store. Atomic with respect to
// concurrent PutIfAbsent/GetAndPut on the same key.
func (s *Store) PutIfAbsent(key, value []byte) ([]byte, bool) {
	key = clone(normalize(key))
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, had := s.vals[string(key)]; had {
		return clone(prev), true
	}
	s.put(key, clone(value))
	return nil, false
}

// mergeDelim separates concatenated values under Merge.
const mergeDelim = 0x2C

// Merge sets key to value if absent, or to oldValue + 0x2C + value if
// present. Returns the value now stored at key. Atomic compute.
func (s *Store) Merge(key, value []byte) []byte {
	key = clone(normalize(key))
	s.mu.Lock()
	defer s.mu.Unlock()

	skey := string(key)
	prev, had := s.vals[skey]
	var next []byte
	if !had {
		next = clone(value)
	} else {
		next = make([]byte, 0, len(prev)+1+len(value))
		next = append(next, prev...)
		next = append(next, mergeDelim)
		next = append(next, value...)
	}
	s.put(key, next)
	return clone(next)
}

// Delete removes key if present. Succeeds regardless of prior presence;
// the return value only reports whether a value actually existed.
func (s *Store) Delete(key []byte) bool {
	key = normalize(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delete(key)
}

// delete must be called with s.mu held for writing.
func (s *Store) delete(key []byte) bool {
	skey := string(key)
	if _, ok := s.vals[skey]; !ok {
		return false
	}
	idx := s.lowerBound(key)
	delete(s.vals, skey)
	s.keys = append(s.keys[:idx], s.keys[idx+1:]...)
	return true
}

// upperBoundForEnd returns the exclusive end index for a range whose
// exclusive-or-open end is `end`: nil means "through the last key".
// Must be called with s.mu held.
func (s *Store) upperBoundForEnd(end []byte) int {
	if end == nil {
		return len(s.keys)
	}
	return s.lowerBound(end)
}

// boundsFor returns [lo, hi) indices covering [start, end) over s.keys.
// Must be called with s.mu held.
func (s *Store) boundsFor(start, end []byte) (int, int) {
	lo := 0
	if start != nil {
		lo = s.lowerBound(start)
	}
	hi := s.upperBoundForEnd(end)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// Scan returns up to limit entries with keys in [start, end), ascending.
// limit == 0 means unbounded. onlyKeys omits values from the result.
func (s *Store) Scan(start, end []byte, limit int, onlyKeys bool) []Entry {
	if limit == 0 {
		limit = int(^uint(0) >> 1) // max int
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	lo, hi := s.boundsFor(start, end)
	n := hi - lo
	if n > limit {
		n = limit
	}
	if n <= 0 {
		return []Entry{}
	}

	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		k := s.keys[lo+i]
		e := Entry{Key: clone(k)}
		if !onlyKeys {
			e.Value = clone(s.vals[string(k)])
		}
		out[i] = e
	}
	return out
}

// DeleteRange removes all entries with keys in [start, end). No effect if
// the range is empty. Returns the number of entries removed.
func (s *Store) DeleteRange(start, end []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	lo, hi := s.boundsFor(start, end)
	n := hi - lo
	if n <= 0 {
		return 0
	}

	for i := lo; i < hi; i++ {
		delete(s.vals, string(s.keys[i]))
	}
	s.keys = append(s.keys[:lo], s.keys[hi:]...)
	return n
}

// ApproximateKeysInRange returns the number of keys in [start, end).
// end == nil means "tail from start".
func (s *Store) ApproximateKeysInRange(start, end []byte) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo, hi := s.boundsFor(start, end)
	return hi - lo
}

// JumpOver returns the distance-th key at or after start (1-indexed). If
// fewer keys exist it returns the last key; it returns (nil, false) only
// when the tail from start is empty. The returned key is an independent
// copy, left as-is: whether the caller treats it as an inclusive or
// exclusive bound is up to them.
func (s *Store) JumpOver(start []byte, distance int) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo := 0
	if start != nil {
		lo = s.lowerBound(start)
	}
	if lo >= len(s.keys) {
		return nil, false
	}

	idx := lo + distance - 1
	if idx >= len(s.keys) {
		idx = len(s.keys) - 1
	}
	if idx < lo {
		idx = lo
	}
	return clone(s.keys[idx]), true
}

// Iterator is a restartable, point-in-time forward iterator over the keys
// that were present when it was created. It is safe against concurrent
// mutation of the store because it holds its own copy.
type Iterator struct {
	keys [][]byte
	pos  int
}

// LocalIterator returns a forward iterator over a snapshot of the current
// keys, in ascending order.
func (s *Store) LocalIterator() *Iterator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([][]byte, len(s.keys))
	copy(keys, s.keys)
	return &Iterator{keys: keys}
}

// Next returns the next key and true, or (nil, false) once exhausted.
func (it *Iterator) Next() ([]byte, bool) {
	if it.pos >= len(it.keys) {
		return nil, false
	}
	k := it.keys[it.pos]
	it.pos++
	return k, true
}

// Reset rewinds the iterator to its first key.
func (it *Iterator) Reset() {
	it.pos = 0
}

// RangeSlice returns a copy of all entries with keys in [start, end),
// ascending. end == nil means "tail from start". Used by the snapshot
// engine to stream a region's primary-store slice.
func (s *Store) RangeSlice(start, end []byte) []Entry {
	return s.Scan(start, end, 0, false)
}

// LoadEntries inserts each pair, overwriting any existing value at that
// key. Used by snapshot load; does not clear existing state first.
func (s *Store) LoadEntries(entries []Entry) {
	s.PutBatch(entries)
}

// Len returns the current number of keys in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
