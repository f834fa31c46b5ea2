package store

import (
	"fmt"
	"testing"

	"github.com/graphd/graphd/pkg/config"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Default(t.TempDir())
	cfg.MemtableBudgetBytes = 256
	cfg.WALSegmentBytes = 1 << 20
	return cfg
}

func TestStorePutGet(t *testing.T) {
	s, err := Open(testConfig(t))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put([]byte("a"), []byte("1")))
	require.NoError(t, s.Put([]byte("b"), []byte("2")))

	v, found, err := s.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("1"), v)

	require.NoError(t, s.Delete([]byte("a")))
	_, found, err = s.Get([]byte("a"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestStoreFlushAndRecover(t *testing.T) {
	cfg := testConfig(t)
	s, err := Open(cfg)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		require.NoError(t, s.Put(key, []byte("value")))
	}
	require.NoError(t, s.Close())

	s2, err := Open(cfg)
	require.NoError(t, err)
	defer s2.Close()

	v, found, err := s2.Get([]byte("key-010"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("value"), v)
}

func TestStoreScanPrefix(t *testing.T) {
	s, err := Open(testConfig(t))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put([]byte("p:1"), []byte("a")))
	require.NoError(t, s.Put([]byte("p:2"), []byte("b")))
	require.NoError(t, s.Put([]byte("q:1"), []byte("c")))

	var got []string
	require.NoError(t, s.ScanPrefix([]byte("p:"), func(key, value []byte) bool {
		got = append(got, string(key))
		return true
	}))
	require.ElementsMatch(t, []string{"p:1", "p:2"}, got)
}

func TestBlobSinkRoundTrip(t *testing.T) {
	s, err := Open(testConfig(t))
	require.NoError(t, err)
	defer s.Close()

	data := []byte("some large value that would exceed the inline threshold")
	hash, err := s.PutBlob(data)
	require.NoError(t, err)

	got, err := s.GetBlob(hash)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestCompactionMergesAcrossLevels(t *testing.T) {
	cfg := testConfig(t)
	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	for round := 0; round < 10; round++ {
		for i := 0; i < 10; i++ {
			key := []byte(fmt.Sprintf("k-%03d", i))
			require.NoError(t, s.Put(key, []byte(fmt.Sprintf("v%d", round))))
		}
		require.NoError(t, s.Flush())
	}
	// ten L0 files, one per round, merge into a single L1 file
	require.NoError(t, s.Compact())
	require.Equal(t, []int{0, 1}, s.Stats().LevelCounts)

	v, found, err := s.Get([]byte("k-005"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v9"), v)
}
