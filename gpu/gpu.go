//go:build !nogpu

// Package gpu registers the wgpu compute accelerator for GPU-accelerated
// lattice transforms.
//
// Import this package to enable GPU execution. If no compute device is
// available (no Vulkan), registration still succeeds and every transform
// runs on the CPU backend.
//
// Usage:
//
//	import _ "github.com/lutra-img/lutra/gpu" // enable GPU transforms
//
// Build with -tags nogpu to compile the viewer without the wgpu stack.
package gpu

import (
	"github.com/gogpu/gpucontext"

	"github.com/lutra-img/lutra"
	"github.com/lutra-img/lutra/internal/gpuimpl"
)

func init() {
	if err := lutra.RegisterAccelerator(gpuimpl.New()); err != nil {
		lutra.Logger().Warn("GPU accelerator not available", "err", err)
	}
}

// SetDeviceProvider configures the accelerator to reuse the GPU device of
// an external provider (e.g. the viewer's gogpu window) instead of opening
// its own. The provider must also implement the gpucontext HAL accessors
// (HalDevice/HalQueue).
//
// Call after the window's device exists, before submitting transforms.
func SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	return lutra.SetAcceleratorDeviceProvider(provider)
}
