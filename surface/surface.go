// Package surface abstracts the raster device that owns drawable surfaces.
package surface

import (
	"image"
	"image/color"
	"sync"

	"github.com/cyverse/go-imageloader/commons"
	"golang.org/x/image/draw"
	"golang.org/x/xerrors"
)

// Surface is a drawable pixel buffer owned by a Device
type Surface interface {
	draw.Image
}

// Device allocates surfaces and presents pixels onto them.
// Implementations return commons.DeviceLostError when the device is gone.
type Device interface {
	CreateSurface(width int, height int) (Surface, error)
	// Clear fills the rectangle of the surface with transparent pixels
	Clear(dst Surface, rect image.Rectangle) error
	// Draw composites src over dst at rect
	Draw(dst Surface, rect image.Rectangle, src image.Image) error
	// Present copies rect of src into dst
	Present(dst Surface, rect image.Rectangle, src image.Image) error
}

// SoftwareDevice renders into *image.RGBA surfaces in memory
type SoftwareDevice struct{}

// NewSoftwareDevice creates a SoftwareDevice
func NewSoftwareDevice() *SoftwareDevice {
	return &SoftwareDevice{}
}

// CreateSurface allocates a transparent RGBA surface
func (device *SoftwareDevice) CreateSurface(width int, height int) (Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, xerrors.Errorf("invalid surface size %dx%d", width, height)
	}

	return image.NewRGBA(image.Rect(0, 0, width, height)), nil
}

// Clear fills the rectangle with transparent pixels
func (device *SoftwareDevice) Clear(dst Surface, rect image.Rectangle) error {
	draw.Draw(dst, rect, image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	return nil
}

// Draw composites src over dst, src origin aligned with rect origin
func (device *SoftwareDevice) Draw(dst Surface, rect image.Rectangle, src image.Image) error {
	draw.Draw(dst, rect, src, src.Bounds().Min, draw.Over)
	return nil
}

// Present copies the pixels of src within rect into dst
func (device *SoftwareDevice) Present(dst Surface, rect image.Rectangle, src image.Image) error {
	rect = rect.Intersect(dst.Bounds()).Intersect(src.Bounds())
	if rect.Empty() {
		return nil
	}

	draw.Draw(dst, rect, src, rect.Min, draw.Src)
	return nil
}

// LosableDevice wraps a Device and fails every call with DeviceLostError while lost.
// It emulates a GPU device reset.
type LosableDevice struct {
	Device

	lost  bool
	mutex sync.Mutex
}

// NewLosableDevice wraps the given device
func NewLosableDevice(device Device) *LosableDevice {
	return &LosableDevice{
		Device: device,
	}
}

// SetLost marks the device lost or restored
func (device *LosableDevice) SetLost(lost bool) {
	device.mutex.Lock()
	defer device.mutex.Unlock()

	device.lost = lost
}

func (device *LosableDevice) isLost() bool {
	device.mutex.Lock()
	defer device.mutex.Unlock()

	return device.lost
}

// CreateSurface allocates a surface unless the device is lost
func (device *LosableDevice) CreateSurface(width int, height int) (Surface, error) {
	if device.isLost() {
		return nil, commons.NewDeviceLostError(nil)
	}
	return device.Device.CreateSurface(width, height)
}

// Clear clears unless the device is lost
func (device *LosableDevice) Clear(dst Surface, rect image.Rectangle) error {
	if device.isLost() {
		return commons.NewDeviceLostError(nil)
	}
	return device.Device.Clear(dst, rect)
}

// Draw draws unless the device is lost
func (device *LosableDevice) Draw(dst Surface, rect image.Rectangle, src image.Image) error {
	if device.isLost() {
		return commons.NewDeviceLostError(nil)
	}
	return device.Device.Draw(dst, rect, src)
}

// Present presents unless the device is lost
func (device *LosableDevice) Present(dst Surface, rect image.Rectangle, src image.Image) error {
	if device.isLost() {
		return commons.NewDeviceLostError(nil)
	}
	return device.Device.Present(dst, rect, src)
}
