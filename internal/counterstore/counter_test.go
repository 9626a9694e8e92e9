package counterstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetSetDelete(t *testing.T) {
	s := New()
	_, ok := s.Get([]byte("a"))
	require.False(t, ok)

	s.Set([]byte("a"), 5)
	v, ok := s.Get([]byte("a"))
	require.True(t, ok)
	require.Equal(t, int64(5), v)

	s.Delete([]byte("a"))
	_, ok = s.Get([]byte("a"))
	require.False(t, ok)
}

func TestUpdateAtomicReadModifyWrite(t *testing.T) {
	s := New()
	got := s.Update([]byte("a"), func(current int64, present bool) int64 {
		require.False(t, present)
		require.Equal(t, int64(0), current)
		return current + 1
	})
	require.Equal(t, int64(1), got)

	got = s.Update([]byte("a"), func(current int64, present bool) int64 {
		require.True(t, present)
		return current + 1
	})
	require.Equal(t, int64(2), got)
}

func TestSnapshotFiltersByPredicate(t *testing.T) {
	s := New()
	s.Set([]byte("region1/a"), 1)
	s.Set([]byte("region2/b"), 2)

	snap := s.Snapshot(func(key string) bool { return key == "region1/a" })
	require.Equal(t, map[string]int64{"region1/a": 1}, snap)

	all := s.Snapshot(nil)
	require.Len(t, all, 2)
}

func TestLoadAllOverwrites(t *testing.T) {
	s := New()
	s.Set([]byte("a"), 1)
	s.LoadAll(map[string]int64{"a": 9, "b": 2})

	v, _ := s.Get([]byte("a"))
	require.Equal(t, int64(9), v)
	v, _ = s.Get([]byte("b"))
	require.Equal(t, int64(2), v)
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update([]byte("counter"), func(current int64, present bool) int64 {
				return current + 1
			})
		}()
	}
	wg.Wait()

	v, _ := s.Get([]byte("counter"))
	require.Equal(t, int64(200), v)
}
