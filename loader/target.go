package loader

import (
	"sync"

	"github.com/cyverse/go-imageloader/decoder"
)

// Target is a view slot that shows one package at a time.
// Each load on a target takes a new token, a load holding an older token is superseded.
type Target struct {
	token uint64
	pkg   *decoder.ImagePackage
	mutex sync.Mutex
}

// NewTarget creates an empty Target
func NewTarget() *Target {
	return &Target{}
}

// GetPackage returns the committed package, nil if none
func (target *Target) GetPackage() *decoder.ImagePackage {
	target.mutex.Lock()
	defer target.mutex.Unlock()

	return target.pkg
}

// Clear supersedes pending loads and releases the committed package
func (target *Target) Clear() {
	target.mutex.Lock()
	target.token++
	pkg := target.pkg
	target.pkg = nil
	target.mutex.Unlock()

	if pkg != nil {
		pkg.Release()
	}
}

func (target *Target) begin() uint64 {
	target.mutex.Lock()
	defer target.mutex.Unlock()

	target.token++
	return target.token
}

// commit makes pkg the shown package if token is still current.
// The target takes its own reference, the previous package is released.
func (target *Target) commit(token uint64, pkg *decoder.ImagePackage) bool {
	target.mutex.Lock()

	if target.token != token || !pkg.Acquire() {
		target.mutex.Unlock()
		return false
	}

	previous := target.pkg
	target.pkg = pkg
	target.mutex.Unlock()

	if previous != nil && previous != pkg {
		previous.Release()
	} else if previous == pkg {
		// same package again, keep a single target reference
		pkg.Release()
	}
	return true
}
