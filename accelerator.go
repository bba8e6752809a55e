package lutra

import (
	"errors"
	"sync"

	"github.com/lutra-img/lutra/cube"
)

// TransformTarget gives an accelerator access to the pixel window it must
// transform in place. Data is interleaved RGBA, 4 bytes per pixel, Rows
// full image rows wide.
type TransformTarget struct {
	Data  []uint8
	Width int
	Rows  int
}

// GPUAccelerator is an optional GPU transform provider.
//
// When registered via RegisterAccelerator, the scheduler tries the
// accelerator first for full-resolution work. If Transform returns
// ErrFallbackToCPU or any other error, the affected chunk is transparently
// re-run on the CPU backend; accelerator failures are never fatal.
//
// Implementations live in GPU backend packages. Users opt in via blank
// import:
//
//	import _ "github.com/lutra-img/lutra/gpu" // enables GPU transforms
type GPUAccelerator interface {
	// Name returns the accelerator name (e.g. "wgpu-trilinear").
	Name() string

	// Init initializes device resources. Called once during registration.
	Init() error

	// Close releases device resources.
	Close()

	// Available reports whether a compute device was successfully opened.
	// An unavailable accelerator is skipped without a dispatch attempt.
	Available() bool

	// DeviceInfo returns a human-readable description of the active
	// compute device for the viewer's status display.
	DeviceInfo() string

	// Transform applies the lattice to the target pixels in place at the
	// given strength. Returns ErrFallbackToCPU (possibly wrapping a
	// *DeviceError) when the work must be redone on the CPU.
	Transform(target TransformTarget, lut *cube.LutDefinition, strength int) error
}

// DeviceProviderAware is an optional interface for accelerators that can
// reuse a GPU device owned by the host window instead of opening their own.
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}

var (
	accelMu sync.RWMutex
	accel   GPUAccelerator
)

// RegisterAccelerator registers a GPU accelerator for optional use.
//
// Only one accelerator can be registered; subsequent calls replace the
// previous one and close it. Init is called during registration; if it
// fails the accelerator is not registered.
func RegisterAccelerator(a GPUAccelerator) error {
	if a == nil {
		return errors.New("lutra: accelerator must not be nil")
	}
	if err := a.Init(); err != nil {
		return err
	}
	propagateLogger(a, Logger())

	accelMu.Lock()
	old := accel
	accel = a
	accelMu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// Accelerator returns the registered accelerator, or nil if none.
func Accelerator() GPUAccelerator {
	accelMu.RLock()
	a := accel
	accelMu.RUnlock()
	return a
}

// SetAcceleratorDeviceProvider passes a device provider to the registered
// accelerator for GPU device sharing. A no-op when no accelerator is
// registered or it does not support sharing.
func SetAcceleratorDeviceProvider(provider any) error {
	a := Accelerator()
	if a == nil {
		return nil
	}
	if dpa, ok := a.(DeviceProviderAware); ok {
		return dpa.SetDeviceProvider(provider)
	}
	return nil
}
