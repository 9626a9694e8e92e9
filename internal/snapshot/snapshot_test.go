package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/regionkv/kvengine/internal/fencing"
	"github.com/regionkv/kvengine/internal/kvstore"
	"github.com/regionkv/kvengine/internal/lockstore"
	"github.com/regionkv/kvengine/internal/region"
	"github.com/regionkv/kvengine/internal/sequence"
	"github.com/regionkv/kvengine/internal/snapshot/filebackend"
)

func newStores() Stores {
	return Stores{
		Primary:  kvstore.New(nil),
		Sequence: sequence.New(),
		Fencing:  fencing.New(),
		Lock:     lockstore.New(nil, fencing.New()),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	stores := newStores()

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		stores.Primary.Put([]byte(k), []byte(k))
	}
	stores.Sequence.GetSequence([]byte("seq1"), 5)
	stores.Fencing.NextFencingToken([]byte("fence1"))
	stores.Lock.TryLock([]byte("lock1"), []byte("lock1"), false, lockstore.Acquirer{ID: []byte("owner"), LeaseMillis: 100, NowMillis: 0})

	cfg := Config{KeysPerSegment: 2, Workers: 1}
	require.NoError(t, Save(context.Background(), nil, stores, region.All(), dir, filebackend.New(), cfg))

	fresh := newStores()
	require.NoError(t, Load(context.Background(), nil, fresh, dir, filebackend.New()))

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		v, ok := fresh.Primary.Get([]byte(k))
		require.True(t, ok)
		require.Equal(t, []byte(k), v)
	}

	r, err := fresh.Sequence.GetSequence([]byte("seq1"), 0)
	require.NoError(t, err)
	require.Equal(t, int64(5), r.Start)

	tok, ok := fresh.Fencing.Current([]byte("fence1"))
	require.True(t, ok)
	require.Equal(t, int64(1), tok)

	owner := fresh.Lock.ReleaseLock([]byte("lock1"), lockstore.Acquirer{ID: []byte("owner"), NowMillis: 10})
	require.True(t, owner.Success)
}

func TestSaveEmptyRegionWritesNoSegments(t *testing.T) {
	dir := t.TempDir()
	stores := newStores()

	cfg := Config{KeysPerSegment: 10, Workers: 1}
	require.NoError(t, Save(context.Background(), nil, stores, region.All(), dir, filebackend.New(), cfg))

	var tail int
	require.NoError(t, filebackend.New().ReadSection(context.Background(), dir, SectionTailIndex, &tail))
	require.Equal(t, -1, tail)

	var seg []kvstore.Entry
	err := filebackend.New().ReadSection(context.Background(), dir, "segment0", &seg)
	require.Error(t, err, "no segment file should exist when the region is empty")
}

func TestSaveFiltersByRegion(t *testing.T) {
	dir := t.TempDir()
	stores := newStores()
	for _, k := range []string{"a", "b", "c", "d"} {
		stores.Primary.Put([]byte(k), []byte(k))
	}

	r := region.Region{Start: []byte("b"), End: []byte("d")}
	cfg := Config{KeysPerSegment: 10, Workers: 1}
	require.NoError(t, Save(context.Background(), nil, stores, r, dir, filebackend.New(), cfg))

	fresh := newStores()
	require.NoError(t, Load(context.Background(), nil, fresh, dir, filebackend.New()))

	require.Equal(t, 2, fresh.Primary.Len())
	_, ok := fresh.Primary.Get([]byte("a"))
	require.False(t, ok)
	_, ok = fresh.Primary.Get([]byte("b"))
	require.True(t, ok)
}

func TestSaveParallelWorkersProduceSameResultAsSerial(t *testing.T) {
	stores := newStores()
	for i := 0; i < 50; i++ {
		stores.Primary.Put([]byte{byte(i)}, []byte{byte(i)})
	}

	serialDir := t.TempDir()
	parallelDir := t.TempDir()

	require.NoError(t, Save(context.Background(), nil, stores, region.All(), serialDir, filebackend.New(), Config{KeysPerSegment: 5, Workers: 1}))
	require.NoError(t, Save(context.Background(), nil, stores, region.All(), parallelDir, filebackend.New(), Config{KeysPerSegment: 5, Workers: 4}))

	serial := newStores()
	parallel := newStores()
	require.NoError(t, Load(context.Background(), nil, serial, serialDir, filebackend.New()))
	require.NoError(t, Load(context.Background(), nil, parallel, parallelDir, filebackend.New()))

	require.Equal(t, serial.Primary.Len(), parallel.Primary.Len())
	for i := 0; i < 50; i++ {
		sv, _ := serial.Primary.Get([]byte{byte(i)})
		pv, _ := parallel.Primary.Get([]byte{byte(i)})
		require.Equal(t, sv, pv)
	}
}

func TestSaveRejectsNonPositiveKeysPerSegment(t *testing.T) {
	stores := newStores()
	err := Save(context.Background(), nil, stores, region.All(), t.TempDir(), filebackend.New(), Config{KeysPerSegment: 0, Workers: 1})
	require.Error(t, err)
}
