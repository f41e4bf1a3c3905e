package decoder

import (
	"image"
	"sync"

	"golang.org/x/xerrors"
)

// ImagePackage is a decoded image ready for display.
// It is reference counted, the last Release disposes the decoder and drops the surface.
type ImagePackage struct {
	decoder     Decoder
	decoderName string
	surface     image.Image
	pixelWidth  int
	pixelHeight int
	animated    bool

	references int
	released   bool
	mutex      sync.Mutex
}

// NewImagePackage creates an ImagePackage holding one reference
func NewImagePackage(decoder Decoder, decoderName string, surface image.Image, pixelWidth int, pixelHeight int, animated bool) *ImagePackage {
	return &ImagePackage{
		decoder:     decoder,
		decoderName: decoderName,
		surface:     surface,
		pixelWidth:  pixelWidth,
		pixelHeight: pixelHeight,
		animated:    animated,
		references:  1,
	}
}

// GetDecoderName returns the name of the decoder that produced the package
func (pkg *ImagePackage) GetDecoderName() string {
	return pkg.decoderName
}

// GetPixelWidth returns image width in pixels
func (pkg *ImagePackage) GetPixelWidth() int {
	return pkg.pixelWidth
}

// GetPixelHeight returns image height in pixels
func (pkg *ImagePackage) GetPixelHeight() int {
	return pkg.pixelHeight
}

// IsAnimated returns true if the decoder plays frames
func (pkg *ImagePackage) IsAnimated() bool {
	return pkg.animated
}

// GetSurface returns the renderable surface, nil once released
func (pkg *ImagePackage) GetSurface() image.Image {
	pkg.mutex.Lock()
	defer pkg.mutex.Unlock()

	return pkg.surface
}

// GetDecoder returns the decoder, nil once released
func (pkg *ImagePackage) GetDecoder() Decoder {
	pkg.mutex.Lock()
	defer pkg.mutex.Unlock()

	return pkg.decoder
}

// UpdateSurface replaces the surface after the decoder recreated it
func (pkg *ImagePackage) UpdateSurface(surface image.Image) {
	pkg.mutex.Lock()
	defer pkg.mutex.Unlock()

	if pkg.released {
		return
	}
	pkg.surface = surface
}

// Acquire adds a reference, returns false if the package is already released
func (pkg *ImagePackage) Acquire() bool {
	pkg.mutex.Lock()
	defer pkg.mutex.Unlock()

	if pkg.released {
		return false
	}

	pkg.references++
	return true
}

// Release drops a reference
func (pkg *ImagePackage) Release() {
	pkg.mutex.Lock()

	if pkg.released {
		pkg.mutex.Unlock()
		return
	}

	pkg.references--
	if pkg.references > 0 {
		pkg.mutex.Unlock()
		return
	}

	decoder := pkg.decoder
	pkg.decoder = nil
	pkg.surface = nil
	pkg.released = true
	pkg.mutex.Unlock()

	if decoder != nil {
		decoder.Dispose()
	}
}

// IsReleased returns true once the last reference is gone
func (pkg *ImagePackage) IsReleased() bool {
	pkg.mutex.Lock()
	defer pkg.mutex.Unlock()

	return pkg.released
}

// GetReferences returns the reference count
func (pkg *ImagePackage) GetReferences() int {
	pkg.mutex.Lock()
	defer pkg.mutex.Unlock()

	return pkg.references
}

// Start starts playback of animated images
func (pkg *ImagePackage) Start() {
	if decoder := pkg.GetDecoder(); decoder != nil {
		decoder.Start()
	}
}

// Stop stops playback of animated images
func (pkg *ImagePackage) Stop() {
	if decoder := pkg.GetDecoder(); decoder != nil {
		decoder.Stop()
	}
}

// RecreateSurfaces asks the decoder for new surfaces after a device reset
func (pkg *ImagePackage) RecreateSurfaces() error {
	decoder := pkg.GetDecoder()
	if decoder == nil {
		return xerrors.Errorf("image package is released")
	}

	surface, err := decoder.RecreateSurfaces()
	if err != nil {
		return xerrors.Errorf("failed to recreate surfaces: %w", err)
	}

	pkg.UpdateSurface(surface)
	return nil
}
