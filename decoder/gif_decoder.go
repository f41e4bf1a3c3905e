package decoder

import (
	"bytes"
	"context"
	"image"
	"io"

	"github.com/cyverse/go-imageloader/animation"
	"golang.org/x/xerrors"
)

const (
	GifDecoderName string = "gif"

	gifHeaderSize int = 6
)

// GifDescriptor returns the animated gif decoder, it matches GIF87a and GIF89a headers
func GifDescriptor() Descriptor {
	return Descriptor{
		Name:       GifDecoderName,
		HeaderSize: gifHeaderSize,
		Priority: func(header []byte) int {
			if IsGifHeader(header) {
				return PriorityGif
			}
			return PriorityUnsupported
		},
		New: func(options Options) Decoder {
			return &GifDecoder{
				options: options,
			}
		},
	}
}

// IsGifHeader checks the GIF87a / GIF89a signature
func IsGifHeader(header []byte) bool {
	if len(header) < gifHeaderSize {
		return false
	}
	return bytes.Equal(header[0:4], []byte("GIF8")) && (header[4] == '9' || header[4] == '7') && header[5] == 'a'
}

// GifDecoder plays gif frames through an animation engine
type GifDecoder struct {
	options Options
	engine  *animation.Engine
}

// GetEngine returns the animation engine, nil before Initialize
func (decoder *GifDecoder) GetEngine() *animation.Engine {
	return decoder.engine
}

func (decoder *GifDecoder) Initialize(ctx context.Context, r io.Reader) (*ImagePackage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if decoder.options.Device == nil {
		return nil, xerrors.Errorf("device must be given")
	}

	container, err := animation.NewGifContainer(r)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		container.Close()
		return nil, err
	}

	engine := animation.NewEngine(container, decoder.options.Device, decoder.options.Clock, animation.EngineOptions{
		ReleaseFramePixels: decoder.options.ReleaseFramePixels,
	})

	err = engine.Initialize()
	if err != nil {
		container.Close()
		return nil, xerrors.Errorf("failed to initialize animation: %w", err)
	}

	decoder.engine = engine

	properties := engine.Properties()
	return NewImagePackage(decoder, GifDecoderName, engine.Surface(), properties.PixelWidth, properties.PixelHeight, properties.IsAnimated), nil
}

func (decoder *GifDecoder) Start() {
	if decoder.engine != nil {
		decoder.engine.Start()
	}
}

func (decoder *GifDecoder) Stop() {
	if decoder.engine != nil {
		decoder.engine.Stop()
	}
}

func (decoder *GifDecoder) RecreateSurfaces() (image.Image, error) {
	if decoder.engine == nil {
		return nil, xerrors.Errorf("gif decoder is not initialized")
	}

	return decoder.engine.RecreateSurfaces()
}

func (decoder *GifDecoder) Dispose() {
	if decoder.engine != nil {
		decoder.engine.Dispose()
	}
}
