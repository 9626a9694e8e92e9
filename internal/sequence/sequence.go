// Package sequence implements the monotonic sequence allocator over a
// counterstore.Store.
package sequence

import (
	"errors"
	"math"

	"github.com/regionkv/kvengine/internal/counterstore"
)

// ErrNegativeStep is returned when getSequence is called with a negative step.
var ErrNegativeStep = errors.New("sequence: step must be >= 0")

// Range is a half-open allocated range [Start, End).
type Range struct {
	Start int64
	End   int64
}

// Allocator allocates monotonically increasing ranges per key.
type Allocator struct {
	store *counterstore.Store
}

// New returns an allocator backed by a fresh counter store.
func New() *Allocator {
	return &Allocator{store: counterstore.New()}
}

// saturatingAdd computes current+step clamped to never overflow and never
// decrease below current.
func saturatingAdd(current, step int64) int64 {
	if step <= 0 {
		return current
	}
	if current > math.MaxInt64-step {
		return math.MaxInt64
	}
	return current + step
}

// GetSequence allocates step values from key's sequence, returning the
// half-open range [current, current+step), with the end saturating at
// math.MaxInt64. step == 0 returns (current,
// current) without mutating anything. step < 0 is rejected.
func (a *Allocator) GetSequence(key []byte, step int64) (Range, error) {
	if step < 0 {
		return Range{}, ErrNegativeStep
	}
	if step == 0 {
		current, _ := a.store.Get(key)
		return Range{Start: current, End: current}, nil
	}

	var start int64
	end := a.store.Update(key, func(current int64, present bool) int64 {
		start = current
		return saturatingAdd(current, step)
	})
	return Range{Start: start, End: end}, nil
}

// ResetSequence unconditionally removes key's sequence record.
func (a *Allocator) ResetSequence(key []byte) {
	a.store.Delete(key)
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
