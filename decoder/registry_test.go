package decoder

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/cyverse/go-imageloader/clock"
	"github.com/cyverse/go-imageloader/commons"
	"github.com/cyverse/go-imageloader/surface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makePNG(t *testing.T, width int, height int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	buf := &bytes.Buffer{}
	err := png.Encode(buf, img)
	require.NoError(t, err)
	return buf.Bytes()
}

func makeGIF(t *testing.T, width int, height int, frames int) []byte {
	palette := color.Palette{color.Transparent, color.RGBA{R: 255, A: 255}}

	anim := &gif.GIF{
		LoopCount: 0,
		Config: image.Config{
			ColorModel: palette,
			Width:      width,
			Height:     height,
		},
	}

	for i := 0; i < frames; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, width, height), palette)
		for x := 0; x < width; x++ {
			frame.SetColorIndex(x, 0, 1)
		}
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 5)
		anim.Disposal = append(anim.Disposal, gif.DisposalNone)
	}

	buf := &bytes.Buffer{}
	err := gif.EncodeAll(buf, anim)
	require.NoError(t, err)
	return buf.Bytes()
}

func testOptions() Options {
	return Options{
		Device: surface.NewSoftwareDevice(),
		Clock:  clock.Fake(time.Unix(0, 0)),
	}
}

type fixedDecoder struct {
	disposed bool
}

func (decoder *fixedDecoder) Initialize(ctx context.Context, r io.Reader) (*ImagePackage, error) {
	return NewImagePackage(decoder, "fixed", image.NewRGBA(image.Rect(0, 0, 1, 1)), 1, 1, false), nil
}
func (decoder *fixedDecoder) Start() {}
func (decoder *fixedDecoder) Stop()  {}
func (decoder *fixedDecoder) RecreateSurfaces() (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}
func (decoder *fixedDecoder) Dispose() {
	decoder.disposed = true
}

func fixedDescriptor(name string, priority int) Descriptor {
	return Descriptor{
		Name:       name,
		HeaderSize: 4,
		Priority: func(header []byte) int {
			return priority
		},
		New: func(options Options) Decoder {
			return &fixedDecoder{}
		},
	}
}

func TestHeaderChecks(t *testing.T) {
	assert.True(t, IsGifHeader([]byte("GIF89a")))
	assert.True(t, IsGifHeader([]byte("GIF87a....")))
	assert.False(t, IsGifHeader([]byte("GIF8")))
	assert.False(t, IsGifHeader([]byte("GIF88a")))

	assert.True(t, IsWebpHeader([]byte("RIFF\x10\x00\x00\x00WEBPVP8 ")))
	assert.False(t, IsWebpHeader([]byte("RIFF\x10\x00\x00\x00WAVE")))
	assert.False(t, IsWebpHeader([]byte("RIFF")))
}

func TestRegistryDefaultIsLast(t *testing.T) {
	registry, err := NewRegistry(GifDescriptor(), WebpDescriptor(), GifDescriptor())
	require.NoError(t, err)

	descriptors := registry.GetDescriptors()
	require.Len(t, descriptors, 3)
	assert.Equal(t, GifDecoderName, descriptors[0].Name)
	assert.Equal(t, WebpDecoderName, descriptors[1].Name)
	assert.Equal(t, DefaultDecoderName, descriptors[2].Name)
	assert.Equal(t, defaultHeaderSize, registry.MaxHeaderSize())
}

func TestRegistrySelect(t *testing.T) {
	registry, err := NewRegistryFromNames([]string{"gif", "webp"})
	require.NoError(t, err)

	assert.Equal(t, GifDecoderName, registry.Select([]byte("GIF89a")).Name)
	assert.Equal(t, WebpDecoderName, registry.Select([]byte("RIFF\x00\x00\x00\x00WEBP")).Name)
	assert.Equal(t, DefaultDecoderName, registry.Select([]byte("\x89PNG\r\n\x1a\n")).Name)
	assert.Equal(t, DefaultDecoderName, registry.Select(nil).Name)

	_, err = NewRegistryFromNames([]string{"heic"})
	assert.Error(t, err)
}

func TestRegistrySelectTieGoesToEarlier(t *testing.T) {
	registry, err := NewRegistry(fixedDescriptor("first", 10), fixedDescriptor("second", 10), fixedDescriptor("third", 5))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		assert.Equal(t, "first", registry.Select([]byte("abcd")).Name)
	}
}

func TestRegistryRejectsInvalidDescriptor(t *testing.T) {
	_, err := NewRegistry(Descriptor{Name: "broken"})
	assert.Error(t, err)

	_, err = NewRegistry(Descriptor{})
	assert.Error(t, err)
}

func TestDispatchPNG(t *testing.T) {
	registry, err := NewRegistryFromNames([]string{"gif", "webp"})
	require.NoError(t, err)

	data := makePNG(t, 4, 3, color.RGBA{G: 255, A: 255})

	session := registry.NewSession()
	assert.Equal(t, DispatchStateIdle, session.GetState())

	pkg, err := session.Run(context.Background(), data, testOptions())
	require.NoError(t, err)
	defer pkg.Release()

	assert.Equal(t, DispatchStateReady, session.GetState())
	assert.Equal(t, DefaultDecoderName, session.GetDecoderName())
	assert.Equal(t, DefaultDecoderName, pkg.GetDecoderName())
	assert.Equal(t, 4, pkg.GetPixelWidth())
	assert.Equal(t, 3, pkg.GetPixelHeight())
	assert.False(t, pkg.IsAnimated())

	r, g, _, a := pkg.GetSurface().At(1, 1).RGBA()
	assert.Equal(t, uint32(0), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), a)

	// a session runs once
	_, err = session.Run(context.Background(), data, testOptions())
	assert.Error(t, err)
}

func TestDispatchGIF(t *testing.T) {
	registry, err := NewRegistryFromNames([]string{"gif"})
	require.NoError(t, err)

	pkg, err := registry.Dispatch(context.Background(), makeGIF(t, 5, 2, 3), testOptions())
	require.NoError(t, err)
	defer pkg.Release()

	assert.Equal(t, GifDecoderName, pkg.GetDecoderName())
	assert.Equal(t, 5, pkg.GetPixelWidth())
	assert.Equal(t, 2, pkg.GetPixelHeight())
	assert.True(t, pkg.IsAnimated())

	gifDecoder, ok := pkg.GetDecoder().(*GifDecoder)
	require.True(t, ok)
	require.NotNil(t, gifDecoder.GetEngine())
}

func TestDispatchGIFWithoutGifDecoderFallsBack(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)

	pkg, err := registry.Dispatch(context.Background(), makeGIF(t, 5, 2, 3), testOptions())
	require.NoError(t, err)
	defer pkg.Release()

	assert.Equal(t, DefaultDecoderName, pkg.GetDecoderName())
	assert.False(t, pkg.IsAnimated())
}

func TestDispatchFailure(t *testing.T) {
	registry, err := NewRegistryFromNames([]string{"gif"})
	require.NoError(t, err)

	session := registry.NewSession()
	_, err = session.Run(context.Background(), []byte("GIF89a this is not a gif"), testOptions())
	require.Error(t, err)
	assert.True(t, commons.IsDecodeError(err))
	assert.Equal(t, DispatchStateFailed, session.GetState())
	assert.Equal(t, GifDecoderName, session.GetDecoderName())
	assert.Equal(t, err, session.GetError())

	_, err = registry.Dispatch(context.Background(), []byte{}, testOptions())
	require.Error(t, err)
	assert.True(t, commons.IsDecodeError(err))
}

func TestDispatchCancelled(t *testing.T) {
	registry, err := NewRegistryFromNames([]string{"gif"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pkg, err := registry.Dispatch(ctx, makeGIF(t, 2, 2, 2), testOptions())
	assert.Nil(t, pkg)
	require.Error(t, err)
	assert.True(t, commons.IsCancelledError(err))
	assert.False(t, commons.IsDecodeError(err))
}
