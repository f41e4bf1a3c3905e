package decoder

import (
	"bytes"
	"context"
	"image"
	"io"
	"sync"

	// formats understood by the default decoder
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/cyverse/go-imageloader/surface"
	"golang.org/x/xerrors"
)

const (
	DefaultDecoderName string = "default"
	WebpDecoderName    string = "webp"

	defaultHeaderSize int = 33
	webpHeaderSize    int = 12
)

// DefaultDescriptor returns the fallback decoder, it accepts any header with the lowest priority
func DefaultDescriptor() Descriptor {
	return Descriptor{
		Name:       DefaultDecoderName,
		HeaderSize: defaultHeaderSize,
		Priority: func(header []byte) int {
			return PriorityLowest
		},
		New: func(options Options) Decoder {
			return newStaticDecoder(DefaultDecoderName, options, func(r io.Reader) (image.Image, error) {
				img, _, err := image.Decode(r)
				return img, err
			})
		},
	}
}

// WebpDescriptor returns the webp decoder, it matches RIFF....WEBP headers
func WebpDescriptor() Descriptor {
	return Descriptor{
		Name:       WebpDecoderName,
		HeaderSize: webpHeaderSize,
		Priority: func(header []byte) int {
			if IsWebpHeader(header) {
				return PriorityWebp
			}
			return PriorityUnsupported
		},
		New: func(options Options) Decoder {
			return newStaticDecoder(WebpDecoderName, options, webp.Decode)
		},
	}
}

// IsWebpHeader checks the RIFF container signature with the WEBP form type
func IsWebpHeader(header []byte) bool {
	if len(header) < webpHeaderSize {
		return false
	}
	return bytes.Equal(header[0:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP"))
}

// staticDecoder renders a single image into a surface, playback calls do nothing
type staticDecoder struct {
	name    string
	options Options
	decode  func(r io.Reader) (image.Image, error)

	img     image.Image
	surface surface.Surface
	mutex   sync.Mutex
}

func newStaticDecoder(name string, options Options, decode func(r io.Reader) (image.Image, error)) *staticDecoder {
	return &staticDecoder{
		name:    name,
		options: options,
		decode:  decode,
	}
}

func (decoder *staticDecoder) Initialize(ctx context.Context, r io.Reader) (*ImagePackage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := decoder.decode(r)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode %s image: %w", decoder.name, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decoder.mutex.Lock()
	defer decoder.mutex.Unlock()

	decoder.img = img

	s, err := decoder.renderLocked()
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	return NewImagePackage(decoder, decoder.name, s, bounds.Dx(), bounds.Dy(), false), nil
}

func (decoder *staticDecoder) renderLocked() (surface.Surface, error) {
	if decoder.img == nil {
		return nil, xerrors.Errorf("%s decoder has no image", decoder.name)
	}

	if decoder.options.Device == nil {
		return nil, xerrors.Errorf("device must be given")
	}

	bounds := decoder.img.Bounds()
	s, err := decoder.options.Device.CreateSurface(bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, xerrors.Errorf("failed to create surface: %w", err)
	}

	err = decoder.options.Device.Draw(s, s.Bounds(), decoder.img)
	if err != nil {
		return nil, xerrors.Errorf("failed to draw image: %w", err)
	}

	decoder.surface = s
	return s, nil
}

func (decoder *staticDecoder) Start() {}

func (decoder *staticDecoder) Stop() {}

func (decoder *staticDecoder) RecreateSurfaces() (image.Image, error) {
	decoder.mutex.Lock()
	defer decoder.mutex.Unlock()

	return decoder.renderLocked()
}

func (decoder *staticDecoder) Dispose() {
	decoder.mutex.Lock()
	defer decoder.mutex.Unlock()

	decoder.img = nil
	decoder.surface = nil
}
