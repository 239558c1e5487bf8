package hidock

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *MetadataCache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata.db")
	c, err := OpenMetadataCache(path)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestMetadataCacheSetGetDelete(t *testing.T) {
	c := openTestCache(t)

	entry := CacheEntry{Filename: "a.wav", FileLength: 1234, Duration: 5 * time.Second}
	require.NoError(t, c.Set(entry))

	got := c.Get("a.wav")
	require.NotNil(t, got)
	assert.Equal(t, entry.FileLength, got.FileLength)

	require.NoError(t, c.Delete("a.wav"))
	assert.Nil(t, c.Get("a.wav"))
}

func TestMetadataCacheGetMissing(t *testing.T) {
	c := openTestCache(t)
	assert.Nil(t, c.Get("missing.wav"))
}

func TestMetadataCacheGetAllMetadata(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.Set(CacheEntry{Filename: "a.wav", FileLength: 1}))
	require.NoError(t, c.Set(CacheEntry{Filename: "b.wav", FileLength: 2}))

	all := c.GetAllMetadata()
	assert.Len(t, all, 2)
}

func TestReconcileAuthoritativeWhenFreshCoversCache(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.Set(CacheEntry{Filename: "stale.wav", FileLength: 1}))
	require.NoError(t, c.Set(CacheEntry{Filename: "kept.wav", FileLength: 2}))

	fresh := []FileRecord{
		{Filename: "kept.wav", FileLength: 222},
		{Filename: "new.wav", FileLength: 333},
	}

	require.NoError(t, c.Reconcile(fresh))

	all := c.GetAllMetadata()
	names := make(map[string]uint32)
	for _, e := range all {
		names[e.Filename] = e.FileLength
	}

	assert.Len(t, all, 2)
	assert.Equal(t, uint32(222), names["kept.wav"])
	assert.Equal(t, uint32(333), names["new.wav"])
	_, staleStillPresent := names["stale.wav"]
	assert.False(t, staleStillPresent)
}

func TestSetLocalPathCreatesBareEntryIfMissing(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.SetLocalPath("a.wav", "/home/x/.hidock/downloads/a.wav", "deadbeef"))

	got := c.Get("a.wav")
	require.NotNil(t, got)
	assert.Equal(t, "/home/x/.hidock/downloads/a.wav", got.LocalPath)
	assert.Equal(t, "deadbeef", got.Checksum)
}

func TestSetLocalPathUpdatesExistingEntry(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.Set(CacheEntry{Filename: "a.wav", FileLength: 1234}))
	require.NoError(t, c.SetLocalPath("a.wav", "/tmp/a.wav", "cafef00d"))

	got := c.Get("a.wav")
	require.NotNil(t, got)
	assert.Equal(t, uint32(1234), got.FileLength)
	assert.Equal(t, "/tmp/a.wav", got.LocalPath)
	assert.Equal(t, "cafef00d", got.Checksum)
}

func TestReconcilePreservesLocalPathAndChecksum(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.Set(CacheEntry{Filename: "a.wav", FileLength: 1, LocalPath: "/tmp/a.wav", Checksum: "abc"}))

	fresh := []FileRecord{{Filename: "a.wav", FileLength: 999}}
	require.NoError(t, c.Reconcile(fresh))

	got := c.Get("a.wav")
	require.NotNil(t, got)
	assert.Equal(t, uint32(999), got.FileLength)
	assert.Equal(t, "/tmp/a.wav", got.LocalPath)
	assert.Equal(t, "abc", got.Checksum)
}

func TestReconcileKeepsStaleEntriesWhenFreshListIsShorter(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.Set(CacheEntry{Filename: "a.wav", FileLength: 1}))
	require.NoError(t, c.Set(CacheEntry{Filename: "b.wav", FileLength: 2}))
	require.NoError(t, c.Set(CacheEntry{Filename: "c.wav", FileLength: 3}))

	fresh := []FileRecord{{Filename: "a.wav", FileLength: 999}}

	require.NoError(t, c.Reconcile(fresh))

	all := c.GetAllMetadata()
	names := make(map[string]uint32)
	for _, e := range all {
		names[e.Filename] = e.FileLength
	}

	// Truncated fresh list: stale entries are preserved, not deleted.
	assert.Len(t, all, 3)
	assert.Equal(t, uint32(999), names["a.wav"])
	assert.Equal(t, uint32(2), names["b.wav"])
	assert.Equal(t, uint32(3), names["c.wav"])
}
