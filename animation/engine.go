package animation

import (
	"image"
	"sync"
	"time"

	"github.com/cyverse/go-imageloader/clock"
	"github.com/cyverse/go-imageloader/commons"
	"github.com/cyverse/go-imageloader/surface"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// State is the playback state of an Engine
type State int

const (
	StateUninitialized State = iota
	StateStopped
	StatePlaying
	StateDisposed
)

func (state State) String() string {
	switch state {
	case StateUninitialized:
		return "uninitialized"
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// EngineOptions tunes an Engine
type EngineOptions struct {
	// ReleaseFramePixels drops decoded frame pixels right after they are composed
	ReleaseFramePixels bool
	// OnFramePresented is called outside the engine lock after a frame reaches the presentable surface
	OnFramePresented func(index int)
}

// EngineStats is a snapshot of playback bookkeeping
type EngineStats struct {
	State          State
	FrameIndex     int
	CompletedLoops int
	TimerArmed     bool
	FramesShown    int64
	TicksFailed    int64
}

// Engine plays the frames of a Container onto a presentable surface.
// Every mutation happens under one mutex; timer callbacks carry a sequence
// number so a callback from a cancelled or replaced timer does nothing.
type Engine struct {
	container Container
	device    surface.Device
	clock     clock.Clock
	options   EngineOptions

	properties ImageProperties
	frames     []FrameDescriptor
	pixels     []*image.RGBA

	accumulation surface.Surface
	presentable  surface.Surface

	state            State
	frameIndex       int
	completedLoops   int
	disposeRequested bool

	timer    *clock.Timer
	timerSeq uint64

	framesShown int64
	ticksFailed int64

	mutex sync.Mutex
}

// NewEngine creates an Engine in the uninitialized state
func NewEngine(container Container, device surface.Device, c clock.Clock, options EngineOptions) *Engine {
	if c == nil {
		c = clock.Real()
	}

	return &Engine{
		container: container,
		device:    device,
		clock:     c,
		options:   options,
		state:     StateUninitialized,
	}
}

// Initialize reads container properties and frame descriptors, allocates both surfaces
// and composes frame 0 so a stopped engine already shows the first frame
func (engine *Engine) Initialize() error {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()

	if engine.state != StateUninitialized {
		return xerrors.Errorf("engine is already initialized, state %s", engine.state)
	}

	if engine.container == nil || engine.device == nil {
		return xerrors.Errorf("container and device must be given")
	}

	properties := engine.container.Properties()
	frames := engine.container.Frames()
	if len(frames) == 0 {
		return xerrors.Errorf("container has no frames")
	}

	engine.properties = properties
	engine.frames = frames
	engine.pixels = make([]*image.RGBA, len(frames))

	err := engine.createSurfacesLocked()
	if err != nil {
		return err
	}

	err = engine.renderFirstFrameLocked()
	if err != nil {
		return err
	}

	engine.state = StateStopped
	return nil
}

// Properties returns container properties
func (engine *Engine) Properties() ImageProperties {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()

	return engine.properties
}

// Surface returns the presentable surface, nil before Initialize or after Dispose
func (engine *Engine) Surface() surface.Surface {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()

	return engine.presentable
}

// State returns the playback state
func (engine *Engine) State() State {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()

	return engine.state
}

// Stats returns a snapshot of playback bookkeeping
func (engine *Engine) Stats() EngineStats {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()

	return EngineStats{
		State:          engine.state,
		FrameIndex:     engine.frameIndex,
		CompletedLoops: engine.completedLoops,
		TimerArmed:     engine.timer != nil,
		FramesShown:    engine.framesShown,
		TicksFailed:    engine.ticksFailed,
	}
}

// Start begins playback from frame 0. It does nothing unless the engine is stopped,
// so a Playing engine whose loop budget ran out keeps showing its last frame.
func (engine *Engine) Start() {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()

	if engine.state != StateStopped {
		return
	}

	engine.restartLocked()
}

// Stop cancels the timer
func (engine *Engine) Stop() {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()

	if engine.state != StatePlaying {
		return
	}

	engine.stopTimerLocked()
	engine.state = StateStopped
}

// Advance renders the current frame and schedules the next one.
// It is the timer body and may be called directly to step playback.
func (engine *Engine) Advance() error {
	engine.mutex.Lock()

	if engine.state != StatePlaying {
		engine.mutex.Unlock()
		return nil
	}

	index, err := engine.advanceLocked()
	callback := engine.options.OnFramePresented
	engine.mutex.Unlock()

	if err == nil && index >= 0 && callback != nil {
		callback(index)
	}
	return err
}

// RecreateSurfaces reallocates both surfaces after a device reset.
// Playback restarts if playing, a stopped engine shows frame 0 again.
func (engine *Engine) RecreateSurfaces() (surface.Surface, error) {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()

	if engine.state == StateUninitialized || engine.state == StateDisposed {
		return nil, xerrors.Errorf("cannot recreate surfaces in state %s", engine.state)
	}

	err := engine.createSurfacesLocked()
	if err != nil {
		return nil, err
	}

	if engine.state == StatePlaying {
		engine.restartLocked()
	} else {
		err = engine.renderFirstFrameLocked()
		if err != nil {
			return nil, err
		}
	}

	return engine.presentable, nil
}

// Dispose stops playback and releases pixels, surfaces and the container
func (engine *Engine) Dispose() {
	logger := log.WithFields(log.Fields{
		"package":  "animation",
		"struct":   "Engine",
		"function": "Dispose",
	})

	engine.mutex.Lock()
	defer engine.mutex.Unlock()

	if engine.state == StateDisposed {
		return
	}

	engine.stopTimerLocked()
	engine.pixels = nil
	engine.accumulation = nil
	engine.presentable = nil

	if engine.container != nil {
		err := engine.container.Close()
		if err != nil {
			logger.WithError(err).Warn("failed to close container")
		}
		engine.container = nil
	}

	engine.state = StateDisposed
}

func (engine *Engine) createSurfacesLocked() error {
	accumulation, err := engine.device.CreateSurface(engine.properties.PixelWidth, engine.properties.PixelHeight)
	if err != nil {
		return xerrors.Errorf("failed to create accumulation surface: %w", err)
	}

	presentable, err := engine.device.CreateSurface(engine.properties.PixelWidth, engine.properties.PixelHeight)
	if err != nil {
		return xerrors.Errorf("failed to create presentable surface: %w", err)
	}

	engine.accumulation = accumulation
	engine.presentable = presentable
	return nil
}

// renderFirstFrameLocked composes frame 0 without touching playback bookkeeping
func (engine *Engine) renderFirstFrameLocked() error {
	pixels, err := engine.framePixelsLocked(0)
	if err != nil {
		return xerrors.Errorf("failed to decode frame 0: %w", err)
	}

	err = engine.composeLocked(engine.frames[0], pixels, true)
	if err != nil {
		return xerrors.Errorf("failed to compose frame 0: %w", err)
	}

	if engine.options.ReleaseFramePixels {
		engine.pixels[0] = nil
	}
	return nil
}

func (engine *Engine) restartLocked() {
	engine.frameIndex = 0
	engine.completedLoops = 0
	engine.disposeRequested = false
	engine.state = StatePlaying
	engine.armLocked(0)
}

func (engine *Engine) armLocked(delay time.Duration) {
	engine.stopTimerLocked()

	seq := engine.timerSeq
	engine.timer = engine.clock.AfterFunc(delay, func() {
		engine.onTimer(seq)
	})
}

func (engine *Engine) stopTimerLocked() {
	engine.timerSeq++
	if engine.timer != nil {
		engine.timer.Stop()
		engine.timer = nil
	}
}

func (engine *Engine) onTimer(seq uint64) {
	logger := log.WithFields(log.Fields{
		"package":  "animation",
		"struct":   "Engine",
		"function": "onTimer",
	})

	engine.mutex.Lock()

	if seq != engine.timerSeq || engine.state != StatePlaying {
		engine.mutex.Unlock()
		return
	}

	engine.timer = nil
	index, err := engine.advanceLocked()
	callback := engine.options.OnFramePresented
	engine.mutex.Unlock()

	if err != nil {
		logger.WithError(err).Warn("failed to render animation frame")
		return
	}

	if index >= 0 && callback != nil {
		callback(index)
	}
}

// advanceLocked returns the index of the presented frame, -1 when nothing was presented
func (engine *Engine) advanceLocked() (int, error) {
	index := engine.frameIndex
	frame := engine.frames[index]
	disposeRequested := engine.disposeRequested

	engine.frameIndex++
	if engine.frameIndex >= len(engine.frames) {
		engine.frameIndex = 0
		engine.completedLoops++
	}

	engine.disposeRequested = frame.Disposal == DisposalRestoreBackground

	if engine.properties.IsAnimated && (engine.properties.LoopCount == 0 || engine.completedLoops < engine.properties.LoopCount) {
		engine.armLocked(frame.Delay)
	} else {
		// playback ended, the state stays Playing until Stop
		engine.stopTimerLocked()
	}

	pixels, err := engine.framePixelsLocked(index)
	if err != nil {
		engine.ticksFailed++
		return -1, xerrors.Errorf("failed to decode frame %d: %w", index, err)
	}

	err = engine.composeLocked(frame, pixels, disposeRequested || index == 0)
	if err != nil {
		if commons.IsDeviceLostError(err) {
			// surfaces are recreated by the owner
			return -1, nil
		}

		engine.ticksFailed++
		return -1, xerrors.Errorf("failed to compose frame %d: %w", index, err)
	}

	if engine.options.ReleaseFramePixels {
		engine.pixels[index] = nil
	}

	engine.framesShown++
	return index, nil
}

func (engine *Engine) framePixelsLocked(index int) (*image.RGBA, error) {
	if pixels := engine.pixels[index]; pixels != nil {
		return pixels, nil
	}

	pixels, err := engine.container.DecodeFrame(index)
	if err != nil {
		return nil, err
	}

	engine.pixels[index] = pixels
	return pixels, nil
}

func (engine *Engine) composeLocked(frame FrameDescriptor, pixels *image.RGBA, shouldClear bool) error {
	if engine.accumulation == nil || engine.presentable == nil {
		return commons.NewDeviceLostError(xerrors.Errorf("surfaces are not available"))
	}

	if shouldClear {
		err := engine.device.Clear(engine.accumulation, engine.accumulation.Bounds())
		if err != nil {
			return err
		}
	}

	err := engine.device.Draw(engine.accumulation, frame.Rect, pixels)
	if err != nil {
		return err
	}

	presentRect := frame.Rect
	if shouldClear {
		presentRect = engine.accumulation.Bounds()
	}

	return engine.device.Present(engine.presentable, presentRect, engine.accumulation)
}
