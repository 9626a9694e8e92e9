// Package fencing implements the fencing-token allocator over a
// counterstore.Store, sharing counterstore's generic increment-under-lock
// implementation with package sequence.
package fencing

import "github.com/regionkv/kvengine/internal/counterstore"

// Allocator hands out strictly increasing per-key fencing tokens.
type Allocator struct {
	store *counterstore.Store
}

// New returns an allocator backed by a fresh counter store.
func New() *Allocator {
	return &Allocator{store: counterstore.New()}
}

func normalize(key []byte) []byte {
	if key == nil {
		return []byte{}
	}
	return key
}

// NextFencingToken atomically increments and returns key's counter,
// starting at 1 on first allocation.
func (a *Allocator) NextFencingToken(key []byte) int64 {
	key = normalize(key)
	return a.store.Update(key, func(current int64, present bool) int64 {
		if !present {
			return 1
		}
		return current + 1
	})
}

// InitFencingToken seeds childKey's counter from parentKey's current
// value, used to continue a parent region's monotonic sequence in a
// split/new region. No-op if parentKey is absent.
func (a *Allocator) InitFencingToken(parentKey, childKey []byte) {
	parentKey, childKey = normalize(parentKey), normalize(childKey)
	current, present := a.store.Get(parentKey)
	if !present {
		return
	}
	a.store.Set(childKey, current)
}

// Current returns the current counter value for key, or (0, false) if
// no token has ever been allocated.
func (a *Allocator) Current(key []byte) (int64, bool) {
	return a.store.Get(normalize(key))
}

// Snapshot returns a copy of entries whose key matches the predicate; nil
// matches everything. Used by the snapshot engine.
func (a *Allocator) Snapshot(match func(key string) bool) map[string]int64 {
	return a.store.Snapshot(match)
}

// LoadAll merges entries into the live store, overwriting existing keys.
func (a *Allocator) LoadAll(entries map[string]int64) {
	a.store.LoadAll(entries)
}
