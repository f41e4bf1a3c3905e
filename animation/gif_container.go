package animation

import (
	"image"
	"image/gif"
	"io"
	"sync"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/xerrors"
)

const (
	// gifDefaultFrameDelay replaces delays of 10-20ms
	gifDefaultFrameDelay time.Duration = 30 * time.Millisecond
	// gifZeroFrameDelay is used when a frame has no delay
	gifZeroFrameDelay time.Duration = 100 * time.Millisecond
)

// GifContainer is a Container over a GIF stream
type GifContainer struct {
	gif        *gif.GIF
	properties ImageProperties
	frames     []FrameDescriptor
	mutex      sync.Mutex
}

// NewGifContainer parses a GIF stream
func NewGifContainer(r io.Reader) (*GifContainer, error) {
	decoded, err := gif.DecodeAll(r)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode gif: %w", err)
	}

	if len(decoded.Image) == 0 {
		return nil, xerrors.Errorf("gif has no frames")
	}

	width := decoded.Config.Width
	height := decoded.Config.Height
	if width <= 0 || height <= 0 {
		bounds := image.Rectangle{}
		for _, frame := range decoded.Image {
			bounds = bounds.Union(frame.Bounds())
		}
		width = bounds.Max.X
		height = bounds.Max.Y
	}

	frames := make([]FrameDescriptor, len(decoded.Image))
	for i, frame := range decoded.Image {
		delay := 0
		if i < len(decoded.Delay) {
			delay = decoded.Delay[i]
		}

		disposal := DisposalNone
		if i < len(decoded.Disposal) && decoded.Disposal[i] == gif.DisposalBackground {
			disposal = DisposalRestoreBackground
		}

		frames[i] = FrameDescriptor{
			Index:    i,
			Rect:     frame.Bounds(),
			Delay:    GetGifFrameDelay(delay),
			Disposal: disposal,
		}
	}

	// no NETSCAPE extension (-1) plays like an infinite loop
	loopCount := decoded.LoopCount
	if loopCount < 0 {
		loopCount = 0
	}

	return &GifContainer{
		gif: decoded,
		properties: ImageProperties{
			PixelWidth:  width,
			PixelHeight: height,
			IsAnimated:  len(decoded.Image) > 1,
			LoopCount:   loopCount,
		},
		frames: frames,
	}, nil
}

// GetGifFrameDelay converts a delay in hundredths of a second
func GetGifFrameDelay(hundredths int) time.Duration {
	switch {
	case hundredths >= 3:
		return time.Duration(hundredths) * 10 * time.Millisecond
	case hundredths == 0:
		return gifZeroFrameDelay
	default:
		return gifDefaultFrameDelay
	}
}

// Properties returns container properties
func (container *GifContainer) Properties() ImageProperties {
	return container.properties
}

// Frames returns frame descriptors
func (container *GifContainer) Frames() []FrameDescriptor {
	return container.frames
}

// DecodeFrame converts the paletted frame into RGBA pixels
func (container *GifContainer) DecodeFrame(index int) (*image.RGBA, error) {
	container.mutex.Lock()
	defer container.mutex.Unlock()

	if container.gif == nil {
		return nil, xerrors.Errorf("gif container is closed")
	}

	if index < 0 || index >= len(container.gif.Image) {
		return nil, xerrors.Errorf("frame index %d out of range [0, %d)", index, len(container.gif.Image))
	}

	frame := container.gif.Image[index]
	bounds := frame.Bounds()
	pixels := image.NewRGBA(bounds)
	draw.Draw(pixels, bounds, frame, bounds.Min, draw.Src)
	return pixels, nil
}

// Close releases the decoded stream
func (container *GifContainer) Close() error {
	container.mutex.Lock()
	defer container.mutex.Unlock()

	container.gif = nil
	return nil
}
