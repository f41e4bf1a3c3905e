package decoder

import (
	"context"
	"image"
	"io"
	"math"
	"strings"

	"github.com/cyverse/go-imageloader/clock"
	"github.com/cyverse/go-imageloader/surface"
	"golang.org/x/xerrors"
)

const (
	// PriorityUnsupported means the decoder cannot handle the header
	PriorityUnsupported int = math.MinInt32
	// PriorityLowest is the score of the default decoder, it beats only unsupported decoders
	PriorityLowest int = PriorityUnsupported + 1
	// PriorityGif is the score of the gif decoder for a gif header
	PriorityGif int = 100
	// PriorityWebp is the score of the webp decoder for a webp header
	PriorityWebp int = 100
)

// Options carries the collaborators a decoder renders with
type Options struct {
	Device             surface.Device
	Clock              clock.Clock
	ReleaseFramePixels bool
}

// Decoder turns a byte stream into an ImagePackage and controls its playback
type Decoder interface {
	Initialize(ctx context.Context, r io.Reader) (*ImagePackage, error)
	Start()
	Stop()
	// RecreateSurfaces reallocates surfaces after a device reset and returns the new presentable surface
	RecreateSurfaces() (image.Image, error)
	Dispose()
}

// Descriptor registers a decoder with the Registry
type Descriptor struct {
	Name       string
	HeaderSize int
	// Priority scores the header, higher wins and PriorityUnsupported refuses
	Priority func(header []byte) int
	New      func(options Options) Decoder
}

func (descriptor *Descriptor) validate() error {
	if len(descriptor.Name) == 0 {
		return xerrors.Errorf("decoder name must be given")
	}

	if descriptor.HeaderSize < 0 {
		return xerrors.Errorf("decoder %q has negative header size %d", descriptor.Name, descriptor.HeaderSize)
	}

	if descriptor.Priority == nil || descriptor.New == nil {
		return xerrors.Errorf("decoder %q must have priority and factory functions", descriptor.Name)
	}

	return nil
}

// DescriptorByName returns a built-in descriptor by name
func DescriptorByName(name string) (Descriptor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case GifDecoderName:
		return GifDescriptor(), nil
	case WebpDecoderName:
		return WebpDescriptor(), nil
	case DefaultDecoderName:
		return DefaultDescriptor(), nil
	default:
		return Descriptor{}, xerrors.Errorf("unknown decoder %q", name)
	}
}
