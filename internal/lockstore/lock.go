// Package lockstore implements the distributed-lock manager:
// try-lock/release-lock with reentrancy, lease expiry, and fencing-token
// generation, built around an explicit-ownership map guarded by a single
// mutex, generalized from a counting semaphore to a per-key
// single-owner lease. Misuse by a caller (wrong acquirer) is a normal
// business outcome here (Owner.Success == false), never a panic: lock
// conflicts are structured responses, not protocol violations.
package lockstore

import (
	"sync"

	"go.uber.org/zap"

	"github.com/regionkv/kvengine/internal/fencing"
)

// Sentinel RemainingMillis codes. These are part of the external contract
// and must be preserved as named constants; the numeric value is
// authoritative for wire compatibility. TryLock's conflict response
// reports the remaining lease of a live owner, which is >= 0, so the
// sentinels live in negative space. ReleaseLock's wrong-acquirer response
// reports deadline minus now without checking expiry, so it can be
// negative.
const (
	KeepLeaseFail     int64 = -1
	KeepLeaseSuccess  int64 = -2
	FirstTimeSuccess  int64 = -3
	NewAcquireSuccess int64 = -4
	ReentrantSuccess  int64 = -5
)

// Owner is the lock-state record and the response shape for every lock
// operation.
type Owner struct {
	ID              []byte
	DeadlineMillis  int64
	RemainingMillis int64
	FencingToken    int64
	Acquires        int32
	Context         []byte
	Success         bool
}

// Acquirer identifies a lock-acquisition attempt.
type Acquirer struct {
	ID          []byte
	LeaseMillis int64
	NowMillis   int64
	Context     []byte
}

func normalize(key []byte) []byte {
	if key == nil {
		return []byte{}
	}
	return key
}

func sameAcquirer(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Manager holds one Owner record per locked key and issues fencing
// tokens through a shared fencing.Allocator.
type Manager struct {
	log     *zap.Logger
	fencing *fencing.Allocator

	mu     sync.Mutex
	owners map[string]Owner
}

// New returns a lock manager that mints fencing tokens from fenc.
func New(log *zap.Logger, fenc *fencing.Allocator) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		log:     log.Named("lockmanager"),
		fencing: fenc,
		owners:  make(map[string]Owner),
	}
}

// TryLock attempts to acquire or refresh the lock on key. fencingKey
// names the fencing counter consulted on a fresh acquisition (it may
// differ from key, e.g. when several lock keys in a region share one
// fencing sequence).
func (m *Manager) TryLock(key, fencingKey []byte, keepLease bool, acquirer Acquirer) Owner {
	key = normalize(key)
	deadline := acquirer.NowMillis + acquirer.LeaseMillis

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, present := m.owners[string(key)]

	if !present {
		if keepLease {
			return Owner{Success: false, RemainingMillis: KeepLeaseFail}
		}
		owner := Owner{
			ID:              clone(acquirer.ID),
			DeadlineMillis:  deadline,
			RemainingMillis: FirstTimeSuccess,
			FencingToken:    m.fencing.NextFencingToken(fencingKey),
			Acquires:        1,
			Context:         clone(acquirer.Context),
			Success:         true,
		}
		m.owners[string(key)] = owner
		return owner
	}

	expired := prev.DeadlineMillis < acquirer.NowMillis
	if expired {
		if keepLease {
			return Owner{
				Success:         false,
				ID:              clone(prev.ID),
				DeadlineMillis:  prev.DeadlineMillis,
				RemainingMillis: KeepLeaseFail,
				Context:         clone(prev.Context),
			}
		}
		owner := Owner{
			ID:              clone(acquirer.ID),
			DeadlineMillis:  deadline,
			RemainingMillis: NewAcquireSuccess,
			FencingToken:    m.fencing.NextFencingToken(fencingKey),
			Acquires:        1,
			Context:         clone(acquirer.Context),
			Success:         true,
		}
		m.owners[string(key)] = owner
		return owner
	}

	if sameAcquirer(prev.ID, acquirer.ID) {
		if keepLease {
			owner := prev
			owner.DeadlineMillis = deadline
			owner.RemainingMillis = KeepLeaseSuccess
			owner.Success = true
			m.owners[string(key)] = owner
			return owner
		}
		owner := prev
		owner.DeadlineMillis = deadline
		owner.RemainingMillis = ReentrantSuccess
		owner.Acquires = prev.Acquires + 1
		owner.Context = clone(acquirer.Context)
		owner.Success = true
		m.owners[string(key)] = owner
		return owner
	}

	// Live owner, different acquirer: fail, no mutation.
	return Owner{
		Success:         false,
		ID:              clone(prev.ID),
		DeadlineMillis:  prev.DeadlineMillis,
		RemainingMillis: prev.DeadlineMillis - acquirer.NowMillis,
		FencingToken:    prev.FencingToken,
		Acquires:        prev.Acquires,
		Context:         clone(prev.Context),
	}
}

// ReleaseLock releases key on behalf of acquirer. Releasing an absent
// key succeeds with a synthetic zero-acquires owner,
// tolerating a caller retrying after a release that already landed.
func (m *Manager) ReleaseLock(key []byte, acquirer Acquirer) Owner {
	key = normalize(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, present := m.owners[string(key)]
	if !present {
		m.log.Warn("release of absent lock, treating as already-released",
			zap.ByteString("key", key), zap.ByteString("acquirer", acquirer.ID))
		return Owner{
			ID:       clone(acquirer.ID),
			Acquires: 0,
			Success:  true,
		}
	}

	if !sameAcquirer(prev.ID, acquirer.ID) {
		return Owner{
			Success:         false,
			ID:              clone(prev.ID),
			DeadlineMillis:  prev.DeadlineMillis,
			FencingToken:    prev.FencingToken,
			Acquires:        prev.Acquires,
			Context:         clone(prev.Context),
			RemainingMillis: prev.DeadlineMillis - acquirer.NowMillis,
		}
	}

	owner := prev
	owner.Acquires--
	owner.Success = true
	if owner.Acquires <= 0 {
		delete(m.owners, string(key))
		owner.Acquires = 0
		return owner
	}
	m.owners[string(key)] = owner
	return owner
}

// Snapshot returns a copy of owner records whose key matches the
// predicate; nil matches everything. Used by the snapshot engine.
func (m *Manager) Snapshot(match func(key string) bool) map[string]Owner {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Owner, len(m.owners))
	for k, v := range m.owners {
		if match == nil || match(k) {
			out[k] = v
		}
	}
	return out
}

// LoadAll merges owner records into the live store, overwriting existing
// keys.
func (m *Manager) LoadAll(entries map[string]Owner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range entries {
		m.owners[k] = v
	}
}
