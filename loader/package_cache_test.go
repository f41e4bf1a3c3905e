package loader

import (
	"context"
	"image"
	"io"
	"testing"
	"time"

	"github.com/cyverse/go-imageloader/decoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopDecoder struct {
	disposed bool
}

func (d *nopDecoder) Initialize(ctx context.Context, r io.Reader) (*decoder.ImagePackage, error) {
	return decoder.NewImagePackage(d, "nop", image.NewRGBA(image.Rect(0, 0, 1, 1)), 1, 1, false), nil
}
func (d *nopDecoder) Start() {}
func (d *nopDecoder) Stop()  {}
func (d *nopDecoder) RecreateSurfaces() (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}
func (d *nopDecoder) Dispose() {
	d.disposed = true
}

func newNopPackage(t *testing.T) (*decoder.ImagePackage, *nopDecoder) {
	d := &nopDecoder{}
	pkg, err := d.Initialize(context.Background(), nil)
	require.NoError(t, err)
	return pkg, d
}

func TestPackageCacheFirstWriterWins(t *testing.T) {
	cache := NewPackageCache(time.Minute, time.Minute)

	first, _ := newNopPackage(t)
	second, secondDecoder := newNopPackage(t)

	assert.True(t, cache.AddPackage("uri", first))
	assert.False(t, cache.AddPackage("uri", second))

	assert.Equal(t, 2, first.GetReferences())
	assert.Equal(t, 1, second.GetReferences())

	second.Release()
	assert.True(t, secondDecoder.disposed)

	got := cache.GetPackage("uri")
	assert.Same(t, first, got)
	assert.Equal(t, 3, first.GetReferences())
	got.Release()

	assert.Nil(t, cache.GetPackage("other"))
	assert.Equal(t, 1, cache.GetTotalPackages())
}

func TestPackageCacheReplacesReleasedPackage(t *testing.T) {
	cache := NewPackageCache(time.Minute, time.Minute)

	first, _ := newNopPackage(t)
	require.True(t, cache.AddPackage("uri", first))

	// over-released elsewhere
	first.Release()
	first.Release()
	require.True(t, first.IsReleased())

	assert.Nil(t, cache.GetPackage("uri"))

	second, _ := newNopPackage(t)
	assert.True(t, cache.AddPackage("uri", second))
	assert.Same(t, second, cache.GetPackage("uri"))
}

func TestPackageCacheClearReleases(t *testing.T) {
	cache := NewPackageCache(time.Minute, time.Minute)

	pkg, d := newNopPackage(t)
	require.True(t, cache.AddPackage("uri", pkg))
	pkg.Release()
	assert.False(t, d.disposed)

	cache.ClearPackages()
	assert.True(t, d.disposed)
	assert.Equal(t, 0, cache.GetTotalPackages())
}

func TestPackageCacheRemove(t *testing.T) {
	cache := NewPackageCache(time.Minute, time.Minute)

	pkg, d := newNopPackage(t)
	require.True(t, cache.AddPackage("uri", pkg))

	cache.RemovePackage("uri")
	assert.Equal(t, 1, pkg.GetReferences())
	assert.False(t, d.disposed)

	pkg.Release()
	assert.True(t, d.disposed)
}

func TestPackageCacheExpiry(t *testing.T) {
	cache := NewPackageCache(10*time.Millisecond, time.Hour)

	pkg, d := newNopPackage(t)
	require.True(t, cache.AddPackage("uri", pkg))
	pkg.Release()

	time.Sleep(30 * time.Millisecond)

	assert.Nil(t, cache.GetPackage("uri"))

	cache.ClearPackages()
	assert.True(t, d.disposed)
}

func TestPackageCacheReleasesExpiredOnAdd(t *testing.T) {
	cache := NewPackageCache(10*time.Millisecond, time.Hour)

	first, firstDecoder := newNopPackage(t)
	require.True(t, cache.AddPackage("uri", first))
	first.Release()

	time.Sleep(30 * time.Millisecond)

	second, _ := newNopPackage(t)
	assert.True(t, cache.AddPackage("uri", second))
	assert.True(t, first.IsReleased())
	assert.True(t, firstDecoder.disposed)
	assert.Equal(t, 2, second.GetReferences())
	second.Release()
}

func TestPackageCacheReleasesExpiredOnGet(t *testing.T) {
	cache := NewPackageCache(10*time.Millisecond, time.Hour)

	pkg, d := newNopPackage(t)
	require.True(t, cache.AddPackage("uri", pkg))
	pkg.Release()

	time.Sleep(30 * time.Millisecond)

	assert.Nil(t, cache.GetPackage("uri"))
	assert.True(t, d.disposed)
	assert.Equal(t, 0, cache.GetTotalPackages())
}
