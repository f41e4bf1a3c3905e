package decoder

import (
	"bytes"
	"context"
	"sync"

	"github.com/cyverse/go-imageloader/commons"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Registry holds decoder descriptors in registration order, the default decoder is always last
type Registry struct {
	descriptors   []Descriptor
	maxHeaderSize int
}

// NewRegistry creates a Registry from the given descriptors.
// Descriptors sharing a name with an earlier one are skipped.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	logger := log.WithFields(log.Fields{
		"package":  "decoder",
		"function": "NewRegistry",
	})

	registry := &Registry{
		descriptors: []Descriptor{},
	}

	seen := map[string]bool{}
	for _, descriptor := range append(descriptors, DefaultDescriptor()) {
		err := descriptor.validate()
		if err != nil {
			return nil, err
		}

		if seen[descriptor.Name] {
			logger.Debugf("skipping duplicated decoder %q", descriptor.Name)
			continue
		}
		seen[descriptor.Name] = true

		registry.descriptors = append(registry.descriptors, descriptor)
		if descriptor.HeaderSize > registry.maxHeaderSize {
			registry.maxHeaderSize = descriptor.HeaderSize
		}
	}

	return registry, nil
}

// NewRegistryFromNames creates a Registry from built-in decoder names
func NewRegistryFromNames(names []string) (*Registry, error) {
	descriptors := []Descriptor{}
	for _, name := range names {
		descriptor, err := DescriptorByName(name)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, descriptor)
	}

	return NewRegistry(descriptors...)
}

// GetDescriptors returns descriptors in evaluation order
func (registry *Registry) GetDescriptors() []Descriptor {
	return registry.descriptors
}

// MaxHeaderSize returns the number of leading bytes sniffed before selection
func (registry *Registry) MaxHeaderSize() int {
	return registry.maxHeaderSize
}

// Select returns the descriptor with the strictly highest priority for the header.
// Ties go to the earlier registration, so the result is deterministic.
func (registry *Registry) Select(header []byte) Descriptor {
	best := registry.descriptors[len(registry.descriptors)-1]
	bestPriority := PriorityUnsupported

	for idx, descriptor := range registry.descriptors {
		priority := descriptor.Priority(header)
		if idx == 0 || priority > bestPriority {
			best = descriptor
			bestPriority = priority
		}
	}

	return best
}

// Dispatch sniffs the header of data, selects a decoder and initializes it
func (registry *Registry) Dispatch(ctx context.Context, data []byte, options Options) (*ImagePackage, error) {
	return registry.NewSession().Run(ctx, data, options)
}

// NewSession creates a dispatch session in the idle state
func (registry *Registry) NewSession() *Session {
	return &Session{
		registry: registry,
		state:    DispatchStateIdle,
	}
}

// DispatchState is a step of a single decode attempt
type DispatchState int

const (
	DispatchStateIdle DispatchState = iota
	DispatchStateHeaderSniffed
	DispatchStateSelected
	DispatchStateInitializing
	DispatchStateReady
	DispatchStateFailed
)

func (state DispatchState) String() string {
	switch state {
	case DispatchStateIdle:
		return "idle"
	case DispatchStateHeaderSniffed:
		return "header_sniffed"
	case DispatchStateSelected:
		return "selected"
	case DispatchStateInitializing:
		return "initializing"
	case DispatchStateReady:
		return "ready"
	case DispatchStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session runs one decode attempt: Idle -> HeaderSniffed -> Selected -> Initializing -> Ready | Failed
type Session struct {
	registry   *Registry
	state      DispatchState
	header     []byte
	descriptor Descriptor
	err        error
	mutex      sync.Mutex
}

// GetState returns the current state
func (session *Session) GetState() DispatchState {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	return session.state
}

// GetDecoderName returns the selected decoder name, empty before selection
func (session *Session) GetDecoderName() string {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	return session.descriptor.Name
}

// GetError returns the failure cause
func (session *Session) GetError() error {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	return session.err
}

func (session *Session) setState(state DispatchState) {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	session.state = state
}

// Run drives the session to Ready or Failed
func (session *Session) Run(ctx context.Context, data []byte, options Options) (*ImagePackage, error) {
	logger := log.WithFields(log.Fields{
		"package":  "decoder",
		"struct":   "Session",
		"function": "Run",
	})

	if session.GetState() != DispatchStateIdle {
		return nil, xerrors.Errorf("dispatch session already ran, state %s", session.GetState())
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	headerSize := session.registry.MaxHeaderSize()
	if headerSize > len(data) {
		headerSize = len(data)
	}

	session.mutex.Lock()
	session.header = data[:headerSize]
	session.state = DispatchStateHeaderSniffed
	session.mutex.Unlock()

	descriptor := session.registry.Select(session.header)

	session.mutex.Lock()
	session.descriptor = descriptor
	session.state = DispatchStateSelected
	session.mutex.Unlock()

	logger.Debugf("selected decoder %q", descriptor.Name)

	decoder := descriptor.New(options)
	session.setState(DispatchStateInitializing)

	pkg, err := decoder.Initialize(ctx, bytes.NewReader(data))
	if err == nil && ctx.Err() != nil {
		// the caller gave up while the decoder was busy
		pkg.Release()
		pkg = nil
		err = ctx.Err()
	}

	if err != nil {
		decoder.Dispose()

		if !commons.IsCancelledError(err) {
			err = commons.NewDecodeError(descriptor.Name, err)
		}

		session.mutex.Lock()
		session.err = err
		session.state = DispatchStateFailed
		session.mutex.Unlock()
		return nil, err
	}

	session.setState(DispatchStateReady)
	return pkg, nil
}
