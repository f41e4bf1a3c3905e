package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cyverse/go-imageloader/clock"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameGenerators(t *testing.T) {
	expectedLengths := map[string]int{
		"md5":    32,
		"sha1":   40,
		"sha256": 64,
		"sha384": 96,
		"sha512": 128,
		"blake3": 64,
	}

	for name, length := range expectedLengths {
		generator, err := NewNameGenerator(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, generator.GetName())

		first := generator.GenerateName("http://example.com/a.png")
		second := generator.GenerateName("http://example.com/a.png")
		other := generator.GenerateName("http://example.com/b.png")

		assert.Len(t, first, length, name)
		assert.Equal(t, first, second, name)
		assert.NotEqual(t, first, other, name)
	}

	// well known digest of "abc"
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", NewSHA1NameGenerator().GenerateName("abc"))

	_, err := NewNameGenerator("crc32")
	assert.Error(t, err)
}

func TestUnlimitedStorageCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache, err := NewUnlimitedStorageCache(memfs.New(), Options{})
	require.NoError(t, err)

	ok, err := cache.Save(ctx, "k", bytes.NewReader([]byte("abc")))
	require.NoError(t, err)
	assert.True(t, ok)

	assert.True(t, cache.Exists(ctx, "k"))
	assert.True(t, cache.ExistsAndAlive(ctx, "k"))

	data, err := cache.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	// replace
	_, err = cache.Save(ctx, "k", bytes.NewReader([]byte("defg")))
	require.NoError(t, err)
	data, err = cache.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("defg"), data)

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(4), stats.TotalSize)

	require.NoError(t, cache.Clear(ctx))
	assert.False(t, cache.Exists(ctx, "k"))

	_, err = cache.Load(ctx, "k")
	assert.Error(t, err)
}

type failingReader struct {
	remaining int
}

func (reader *failingReader) Read(p []byte) (int, error) {
	if reader.remaining <= 0 {
		return 0, errors.New("connection reset")
	}
	n := len(p)
	if n > reader.remaining {
		n = reader.remaining
	}
	reader.remaining -= n
	return n, nil
}

func TestStorageCacheFailedSaveLeavesNoFile(t *testing.T) {
	ctx := context.Background()
	filesystem := memfs.New()
	cache, err := NewUnlimitedStorageCache(filesystem, Options{})
	require.NoError(t, err)

	ok, err := cache.Save(ctx, "k", &failingReader{remaining: 100})
	assert.Error(t, err)
	assert.False(t, ok)
	assert.False(t, cache.Exists(ctx, "k"))

	entries, err := filesystem.ReadDir(".")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStorageCacheCancelledSave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	filesystem := memfs.New()
	cache, err := NewLimitedStorageCache(filesystem, 1000, Options{})
	require.NoError(t, err)

	ok, err := cache.Save(ctx, "k", bytes.NewReader([]byte("abc")))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
	assert.False(t, cache.Exists(context.Background(), "k"))
	assert.Equal(t, 0, cache.GetTotalEntries())

	entries, err := filesystem.ReadDir(".")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLimitedStorageCacheEvictsOldest(t *testing.T) {
	ctx := context.Background()
	fakeClock := clock.Fake(time.Now())

	cache, err := NewLimitedStorageCache(memfs.New(), 1000, Options{Clock: fakeClock})
	require.NoError(t, err)

	_, err = cache.Save(ctx, "x", bytes.NewReader(make([]byte, 600)))
	require.NoError(t, err)
	fakeClock.Advance(time.Second)

	_, err = cache.Save(ctx, "y", bytes.NewReader(make([]byte, 600)))
	require.NoError(t, err)

	assert.False(t, cache.Exists(ctx, "x"))
	assert.True(t, cache.Exists(ctx, "y"))
	assert.Equal(t, int64(600), cache.GetTotalEntrySize())
	assert.Equal(t, int64(1), cache.Stats().Evictions)
}

func TestLimitedStorageCacheLoadRefreshesAccess(t *testing.T) {
	ctx := context.Background()
	cache, err := NewLimitedStorageCache(memfs.New(), 1000, Options{})
	require.NoError(t, err)

	for _, key := range []string{"a", "b", "c"} {
		_, err = cache.Save(ctx, key, bytes.NewReader(make([]byte, 300)))
		require.NoError(t, err)
	}

	_, err = cache.Load(ctx, "a")
	require.NoError(t, err)

	_, err = cache.Save(ctx, "d", bytes.NewReader(make([]byte, 300)))
	require.NoError(t, err)

	assert.True(t, cache.Exists(ctx, "a"))
	assert.False(t, cache.Exists(ctx, "b"))
	assert.True(t, cache.Exists(ctx, "c"))
	assert.True(t, cache.Exists(ctx, "d"))
	assert.Equal(t, int64(900), cache.GetTotalEntrySize())
}

func TestLimitedStorageCacheOversizedSave(t *testing.T) {
	ctx := context.Background()
	cache, err := NewLimitedStorageCache(memfs.New(), 100, Options{})
	require.NoError(t, err)

	_, err = cache.Save(ctx, "small", bytes.NewReader(make([]byte, 50)))
	require.NoError(t, err)

	// everything is evicted and the save still goes through
	ok, err := cache.Save(ctx, "huge", bytes.NewReader(make([]byte, 500)))
	require.NoError(t, err)
	assert.True(t, ok)

	assert.False(t, cache.Exists(ctx, "small"))
	assert.True(t, cache.Exists(ctx, "huge"))
	assert.Equal(t, int64(500), cache.GetTotalEntrySize())
}

func TestLimitedStorageCacheReplaceKeepsAccounting(t *testing.T) {
	ctx := context.Background()
	cache, err := NewLimitedStorageCache(memfs.New(), 1000, Options{})
	require.NoError(t, err)

	_, err = cache.Save(ctx, "k", bytes.NewReader(make([]byte, 400)))
	require.NoError(t, err)
	_, err = cache.Save(ctx, "k", bytes.NewReader(make([]byte, 700)))
	require.NoError(t, err)

	assert.Equal(t, 1, cache.GetTotalEntries())
	assert.Equal(t, int64(700), cache.GetTotalEntrySize())
	assert.Equal(t, int64(0), cache.Stats().Evictions)
}

type renameFailingFilesystem struct {
	billy.Filesystem
	failRename bool
}

func (filesystem *renameFailingFilesystem) Rename(from string, to string) error {
	if filesystem.failRename {
		return errors.New("rename failed")
	}
	return filesystem.Filesystem.Rename(from, to)
}

func TestLimitedStorageCacheFailedReplaceKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	filesystem := &renameFailingFilesystem{Filesystem: memfs.New()}

	cache, err := NewLimitedStorageCache(filesystem, 1000, Options{})
	require.NoError(t, err)

	_, err = cache.Save(ctx, "k", bytes.NewReader(make([]byte, 400)))
	require.NoError(t, err)

	filesystem.failRename = true
	saved, err := cache.Save(ctx, "k", bytes.NewReader(make([]byte, 300)))
	assert.False(t, saved)
	assert.Error(t, err)

	assert.Equal(t, 1, cache.GetTotalEntries())
	assert.Equal(t, int64(400), cache.GetTotalEntrySize())

	data, err := cache.Load(ctx, "k")
	require.NoError(t, err)
	assert.Len(t, data, 400)

	files, err := filesystem.ReadDir(".")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestStorageCacheAging(t *testing.T) {
	ctx := context.Background()
	filesystem, err := NewOSFilesystem(t.TempDir())
	require.NoError(t, err)

	fakeClock := clock.Fake(time.Now())
	cache, err := NewUnlimitedStorageCache(filesystem, Options{
		MaxAge: 7 * 24 * time.Hour,
		Clock:  fakeClock,
	})
	require.NoError(t, err)

	_, err = cache.Save(ctx, "k", strings.NewReader("abc"))
	require.NoError(t, err)
	assert.True(t, cache.ExistsAndAlive(ctx, "k"))

	fakeClock.Advance(8 * 24 * time.Hour)
	assert.False(t, cache.ExistsAndAlive(ctx, "k"))
	assert.True(t, cache.Exists(ctx, "k"))

	// non-positive max age never expires
	forever, err := NewUnlimitedStorageCache(filesystem, Options{Clock: fakeClock})
	require.NoError(t, err)
	assert.True(t, forever.ExistsAndAlive(ctx, "k"))
}

func TestLimitedStorageCacheScansExistingFiles(t *testing.T) {
	ctx := context.Background()
	rootPath := t.TempDir()
	generator := NewSHA1NameGenerator()

	now := time.Now()
	for i, key := range []string{"old", "middle", "new"} {
		path := filepath.Join(rootPath, generator.GenerateName(key))
		require.NoError(t, os.WriteFile(path, make([]byte, 300), 0o644))

		modTime := now.Add(time.Duration(i-3) * time.Hour)
		require.NoError(t, os.Chtimes(path, modTime, modTime))
	}

	// leftover from an interrupted save
	require.NoError(t, os.WriteFile(filepath.Join(rootPath, tempFilePrefix+"123"), []byte("partial"), 0o644))

	filesystem, err := NewOSFilesystem(rootPath)
	require.NoError(t, err)

	cache, err := NewLimitedStorageCache(filesystem, 1000, Options{NameGenerator: generator})
	require.NoError(t, err)

	assert.Equal(t, 3, cache.GetTotalEntries())
	assert.Equal(t, int64(900), cache.GetTotalEntrySize())
	assert.NoFileExists(t, filepath.Join(rootPath, tempFilePrefix+"123"))

	_, err = cache.Save(ctx, "fresh", bytes.NewReader(make([]byte, 300)))
	require.NoError(t, err)

	assert.False(t, cache.Exists(ctx, "old"))
	assert.True(t, cache.Exists(ctx, "middle"))
	assert.True(t, cache.Exists(ctx, "new"))
	assert.True(t, cache.Exists(ctx, "fresh"))
}

func TestLimitedStorageCacheRejectsInvalidCap(t *testing.T) {
	_, err := NewLimitedStorageCache(memfs.New(), 0, Options{})
	assert.Error(t, err)

	_, err = NewUnlimitedStorageCache(nil, Options{})
	assert.Error(t, err)
}
