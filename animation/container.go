// Package animation decodes animated image containers and drives frame playback
// onto device surfaces.
package animation

import (
	"image"
	"time"
)

// Disposal tells whether the accumulation surface is cleared before the next frame is composed
type Disposal int

const (
	// DisposalNone keeps the composed frame as the base for the next one
	DisposalNone Disposal = iota
	// DisposalRestoreBackground clears the accumulation surface before the next frame
	DisposalRestoreBackground
)

func (disposal Disposal) String() string {
	switch disposal {
	case DisposalRestoreBackground:
		return "restore_background"
	default:
		return "none"
	}
}

// ImageProperties describes a container, LoopCount 0 means infinite repetition
type ImageProperties struct {
	PixelWidth  int
	PixelHeight int
	IsAnimated  bool
	LoopCount   int
}

// FrameDescriptor describes one frame without its pixels
type FrameDescriptor struct {
	Index    int
	Rect     image.Rectangle
	Delay    time.Duration
	Disposal Disposal
}

// Container gives access to the frames of an image container.
// Frame pixels are produced on demand by DecodeFrame.
type Container interface {
	Properties() ImageProperties
	Frames() []FrameDescriptor
	// DecodeFrame returns the pixels of the frame, bounds equal the frame rect
	DecodeFrame(index int) (*image.RGBA, error)
	Close() error
}
