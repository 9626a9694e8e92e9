// Package engine wires the primary store, sequence/fencing allocators,
// lock manager, and snapshot engine behind a uniform request surface.
// It is the aggregator, bundling several stores behind one constructor
// that takes a single *zap.Logger.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/regionkv/kvengine/internal/fencing"
	"github.com/regionkv/kvengine/internal/kvstore"
	"github.com/regionkv/kvengine/internal/lockstore"
	"github.com/regionkv/kvengine/internal/metrics"
	"github.com/regionkv/kvengine/internal/region"
	"github.com/regionkv/kvengine/internal/request"
	"github.com/regionkv/kvengine/internal/sequence"
	"github.com/regionkv/kvengine/internal/snapshot"
)

// Engine is the per-region state-machine backing: one ordered primary
// store plus the sequence, fencing, and lock auxiliary stores,
// dispatched through a uniform completion-based request surface.
type Engine struct {
	log  *zap.Logger
	sink metrics.Sink

	Primary  *kvstore.Store
	Sequence *sequence.Allocator
	Fencing  *fencing.Allocator
	Lock     *lockstore.Manager

	snapshotCfg snapshot.Config

	readGroup singleflight.Group
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithMetrics overrides the metrics sink (default metrics.NopSink{}).
func WithMetrics(sink metrics.Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithSnapshotConfig overrides the snapshot engine's segmenting and
// parallelism knobs (default: KeysPerSegment=1000, Workers=1).
func WithSnapshotConfig(cfg snapshot.Config) Option {
	return func(e *Engine) { e.snapshotCfg = cfg }
}

// New returns an empty Engine ready to serve operations.
func New(log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("engine")

	fencingAllocator := fencing.New()

	e := &Engine{
		log:      log,
		sink:     metrics.NopSink{},
		Primary:  kvstore.New(log),
		Sequence: sequence.New(),
		Fencing:  fencingAllocator,
		Lock:     lockstore.New(log, fencingAllocator),
		snapshotCfg: snapshot.Config{
			KeysPerSegment: 1000,
			Workers:        1,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ---- primary store surface -------------------------------------------------

// Get dispatches a point read.
func (e *Engine) Get(key []byte, c request.Completion[[]byte]) {
	request.Dispatch(e.log, e.sink, "GET", key, c, func() ([]byte, error) {
		v, _ := e.Primary.Get(key)
		return v, nil
	})
}

// MultiGet dispatches a batch of point reads.
func (e *Engine) MultiGet(keys [][]byte, c request.Completion[[]kvstore.Entry]) {
	request.Dispatch(e.log, e.sink, "MULTI_GET", nil, c, func() ([]kvstore.Entry, error) {
		return e.Primary.MultiGet(keys), nil
	})
}

// Put dispatches an unconditional write.
func (e *Engine) Put(key, value []byte, c request.Completion[struct{}]) {
	request.Dispatch(e.log, e.sink, "PUT", key, c, func() (struct{}, error) {
		e.Primary.Put(key, value)
		return struct{}{}, nil
	})
}

// PutBatch dispatches a batch of unconditional writes.
func (e *Engine) PutBatch(entries []kvstore.Entry, c request.Completion[struct{}]) {
	request.Dispatch(e.log, e.sink, "PUT_BATCH", nil, c, func() (struct{}, error) {
		e.Primary.PutBatch(entries)
		return struct{}{}, nil
	})
}

// GetAndPut dispatches a read-then-write, returning the prior value.
func (e *Engine) GetAndPut(key, value []byte, c request.Completion[[]byte]) {
	request.Dispatch(e.log, e.sink, "GET_AND_PUT", key, c, func() ([]byte, error) {
		prev, _ := e.Primary.GetAndPut(key, value)
		return prev, nil
	})
}

// PutIfAbsent dispatches a conditional write.
func (e *Engine) PutIfAbsent(key, value []byte, c request.Completion[[]byte]) {
	request.Dispatch(e.log, e.sink, "PUT_IF_ABSENT", key, c, func() ([]byte, error) {
		prev, _ := e.Primary.PutIfAbsent(key, value)
		return prev, nil
	})
}

// Merge dispatches a compute-style append/create.
func (e *Engine) Merge(key, value []byte, c request.Completion[[]byte]) {
	request.Dispatch(e.log, e.sink, "MERGE", key, c, func() ([]byte, error) {
		return e.Primary.Merge(key, value), nil
	})
}

// Delete dispatches a point delete.
func (e *Engine) Delete(key []byte, c request.Completion[struct{}]) {
	request.Dispatch(e.log, e.sink, "DELETE", key, c, func() (struct{}, error) {
		e.Primary.Delete(key)
		return struct{}{}, nil
	})
}

// scanKey identifies a read-range for singleflight de-duplication.
func scanKey(start, end []byte, limit int, onlyKeys bool) string {
	return fmt.Sprintf("%x:%x:%d:%t", start, end, limit, onlyKeys)
}

// Scan dispatches a range read. Concurrent identical (start, end, limit,
// onlyKeys) scans arriving from a batched apply path are collapsed via
// singleflight, grounded on internal/service/channel_summary.go's
// singleflight-backed refresh.
func (e *Engine) Scan(start, end []byte, limit int, onlyKeys bool, c request.Completion[[]kvstore.Entry]) {
	request.Dispatch(e.log, e.sink, "SCAN", start, c, func() ([]kvstore.Entry, error) {
		v, err, _ := e.readGroup.Do(scanKey(start, end, limit, onlyKeys), func() (any, error) {
			return e.Primary.Scan(start, end, limit, onlyKeys), nil
		})
		if err != nil {
			return nil, err
		}
		return v.([]kvstore.Entry), nil
	})
}

// DeleteRange dispatches a bulk range delete.
func (e *Engine) DeleteRange(start, end []byte, c request.Completion[int]) {
	request.Dispatch(e.log, e.sink, "DELETE_RANGE", start, c, func() (int, error) {
		return e.Primary.DeleteRange(start, end), nil
	})
}

// ApproximateKeysInRange dispatches a range-size estimate.
func (e *Engine) ApproximateKeysInRange(start, end []byte, c request.Completion[int]) {
	request.Dispatch(e.log, e.sink, "APPROX_COUNT", start, c, func() (int, error) {
		v, err, _ := e.readGroup.Do("count:"+scanKey(start, end, 0, false), func() (any, error) {
			return e.Primary.ApproximateKeysInRange(start, end), nil
		})
		if err != nil {
			return 0, err
		}
		return v.(int), nil
	})
}

// JumpOver dispatches a positional key lookup.
func (e *Engine) JumpOver(start []byte, distance int, c request.Completion[[]byte]) {
	request.Dispatch(e.log, e.sink, "JUMP_OVER", start, c, func() ([]byte, error) {
		k, _ := e.Primary.JumpOver(start, distance)
		return k, nil
	})
}

// LocalIterator returns a restartable point-in-time iterator. Unlike the
// other operations this is not dispatched through the completion surface
// since it never fails and returns a live handle, not a value.
func (e *Engine) LocalIterator() *kvstore.Iterator {
	return e.Primary.LocalIterator()
}

// ---- sequence / fencing surface --------------------------------------------

// GetSequence dispatches a sequence allocation.
func (e *Engine) GetSequence(key []byte, step int64, c request.Completion[sequence.Range]) {
	request.Dispatch(e.log, e.sink, "GET_SEQUENCE", key, c, func() (sequence.Range, error) {
		return e.Sequence.GetSequence(key, step)
	})
}

// ResetSequence dispatches a sequence reset.
func (e *Engine) ResetSequence(key []byte, c request.Completion[struct{}]) {
	request.Dispatch(e.log, e.sink, "RESET_SEQUENCE", key, c, func() (struct{}, error) {
		e.Sequence.ResetSequence(key)
		return struct{}{}, nil
	})
}

// NextFencingToken dispatches a fencing-token allocation.
func (e *Engine) NextFencingToken(key []byte, c request.Completion[int64]) {
	request.Dispatch(e.log, e.sink, "NEXT_FENCING_TOKEN", key, c, func() (int64, error) {
		return e.Fencing.NextFencingToken(key), nil
	})
}

// InitFencingToken dispatches seeding a child fencing counter from a
// parent's current value.
func (e *Engine) InitFencingToken(parentKey, childKey []byte, c request.Completion[struct{}]) {
	request.Dispatch(e.log, e.sink, "INIT_FENCING_TOKEN", childKey, c, func() (struct{}, error) {
		e.Fencing.InitFencingToken(parentKey, childKey)
		return struct{}{}, nil
	})
}

// ---- lock manager surface ---------------------------------------------------

// TryLock dispatches a try-lock. The response's Success field, not a
// failure terminal, carries lock-conflict outcomes: a conflicting lock
// is an expected outcome, not an error.
func (e *Engine) TryLock(key, fencingKey []byte, keepLease bool, acquirer lockstore.Acquirer, c request.Completion[lockstore.Owner]) {
	request.Dispatch(e.log, e.sink, "TRY_LOCK", key, c, func() (lockstore.Owner, error) {
		return e.Lock.TryLock(key, fencingKey, keepLease, acquirer), nil
	})
}

// ReleaseLock dispatches a release-lock.
func (e *Engine) ReleaseLock(key []byte, acquirer lockstore.Acquirer, c request.Completion[lockstore.Owner]) {
	request.Dispatch(e.log, e.sink, "RELEASE_LOCK", key, c, func() (lockstore.Owner, error) {
		return e.Lock.ReleaseLock(key, acquirer), nil
	})
}

// ---- snapshot surface -------------------------------------------------------

// SaveSnapshot dispatches a region-scoped snapshot save to dir.
func (e *Engine) SaveSnapshot(ctx context.Context, r region.Region, dir string, w snapshot.SectionWriter, c request.Completion[struct{}]) {
	request.Dispatch(e.log, e.sink, "SNAPSHOT_SAVE", nil, c, func() (struct{}, error) {
		stores := snapshot.Stores{Primary: e.Primary, Sequence: e.Sequence, Fencing: e.Fencing, Lock: e.Lock}
		return struct{}{}, snapshot.Save(ctx, e.log, stores, r, dir, w, e.snapshotCfg)
	})
}

// LoadSnapshot dispatches loading a snapshot from dir into live state.
// Existing state is not cleared first.
func (e *Engine) LoadSnapshot(ctx context.Context, dir string, r snapshot.SectionReader, c request.Completion[struct{}]) {
	request.Dispatch(e.log, e.sink, "SNAPSHOT_LOAD", nil, c, func() (struct{}, error) {
		stores := snapshot.Stores{Primary: e.Primary, Sequence: e.Sequence, Fencing: e.Fencing, Lock: e.Lock}
		return struct{}{}, snapshot.Load(ctx, e.log, stores, dir, r)
	})
}

// ---- synchronous convenience wrappers --------------------------------------
//
// These call the completion-based operations above through request.Sync,
// preferring a direct (value, error) return for callers that run the
// engine synchronously while keeping the sink for batched-apply callers.

// SyncGet is the synchronous convenience form of Get.
func (e *Engine) SyncGet(key []byte) ([]byte, error) {
	return request.Sync(func(c request.Completion[[]byte]) { e.Get(key, c) })
}

// SyncPut is the synchronous convenience form of Put.
func (e *Engine) SyncPut(key, value []byte) error {
	_, err := request.Sync(func(c request.Completion[struct{}]) { e.Put(key, value, c) })
	return err
}

// SyncScan is the synchronous convenience form of Scan.
func (e *Engine) SyncScan(start, end []byte, limit int, onlyKeys bool) ([]kvstore.Entry, error) {
	return request.Sync(func(c request.Completion[[]kvstore.Entry]) { e.Scan(start, end, limit, onlyKeys, c) })
}

// SyncTryLock is the synchronous convenience form of TryLock.
func (e *Engine) SyncTryLock(key, fencingKey []byte, keepLease bool, acquirer lockstore.Acquirer) (lockstore.Owner, error) {
	return request.Sync(func(c request.Completion[lockstore.Owner]) { e.TryLock(key, fencingKey, keepLease, acquirer, c) })
}

// SyncReleaseLock is the synchronous convenience form of ReleaseLock.
func (e *Engine) SyncReleaseLock(key []byte, acquirer lockstore.Acquirer) (lockstore.Owner, error) {
	return request.Sync(func(c request.Completion[lockstore.Owner]) { e.ReleaseLock(key, acquirer, c) })
}

// SyncGetSequence is the synchronous convenience form of GetSequence.
func (e *Engine) SyncGetSequence(key []byte, step int64) (sequence.Range, error) {
	return request.Sync(func(c request.Completion[sequence.Range]) { e.GetSequence(key, step, c) })
}

// SyncResetSequence is the synchronous convenience form of ResetSequence.
func (e *Engine) SyncResetSequence(key []byte) error {
	_, err := request.Sync(func(c request.Completion[struct{}]) { e.ResetSequence(key, c) })
	return err
}

// SyncMerge is the synchronous convenience form of Merge.
func (e *Engine) SyncMerge(key, value []byte) ([]byte, error) {
	return request.Sync(func(c request.Completion[[]byte]) { e.Merge(key, value, c) })
}

// SyncSaveSnapshot is the synchronous convenience form of SaveSnapshot.
func (e *Engine) SyncSaveSnapshot(ctx context.Context, r region.Region, dir string, w snapshot.SectionWriter) error {
	_, err := request.Sync(func(c request.Completion[struct{}]) { e.SaveSnapshot(ctx, r, dir, w, c) })
	return err
}

// SyncLoadSnapshot is the synchronous convenience form of LoadSnapshot.
func (e *Engine) SyncLoadSnapshot(ctx context.Context, dir string, r snapshot.SectionReader) error {
	_, err := request.Sync(func(c request.Completion[struct{}]) { e.LoadSnapshot(ctx, dir, r, c) })
	return err
}

// NowMillis is the canonical way callers should source "now" for lock
// operations in production: the engine itself never reads the system
// clock for lock decisions, so replaying the same inputs is deterministic.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
