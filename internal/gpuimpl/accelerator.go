// Package gpuimpl implements the GPU transform backend on wgpu/hal
// compute shaders.
package gpuimpl

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	// Import the Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/lutra-img/lutra"
	"github.com/lutra-img/lutra/cube"
)

// maxDispatchBytes bounds the pixel storage buffer of a single dispatch.
// Matches the default wgpu storage binding limit; images larger than this
// are processed as a sequence of row bands.
const maxDispatchBytes = 128 << 20

// maxDispatchPixels bounds one dispatch by the 65535-workgroup limit on
// a single dimension at workgroup size 64.
const maxDispatchPixels = 64 * 65535

// fenceTimeout is how long a dispatch may take before the backend gives
// up and signals CPU fallback.
const fenceTimeout = 5 * time.Second

// TrilinearAccelerator applies 3D lattices on a wgpu compute device.
// It implements lutra.GPUAccelerator.
//
// The kernel is compiled once per device; each Transform uploads the
// lattice and the pixel rows, dispatches one workgroup per 64 pixels, and
// reads the result back in place. Oversized images are tiled into row
// bands that respect device buffer and dispatch limits.
type TrilinearAccelerator struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	adapterName    string
	gpuReady       bool
	externalDevice bool // shared device: do not destroy on Close

	logger *slog.Logger
}

var _ lutra.GPUAccelerator = (*TrilinearAccelerator)(nil)

// New creates an unregistered accelerator. Most callers blank-import the
// lutra/gpu package instead of using this directly.
func New() *TrilinearAccelerator {
	return &TrilinearAccelerator{}
}

func (a *TrilinearAccelerator) Name() string { return "wgpu-trilinear" }

// SetLogger accepts the logger propagated from lutra.SetLogger.
func (a *TrilinearAccelerator) SetLogger(l *slog.Logger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logger = l
}

func (a *TrilinearAccelerator) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return lutra.Logger()
}

// Init opens a compute device and compiles the kernel. A missing device is
// not an error: the accelerator registers as unavailable and every
// Transform signals CPU fallback.
func (a *TrilinearAccelerator) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.initGPU(); err != nil {
		a.log().Warn("GPU transform unavailable, CPU only", "err", err)
	}
	return nil
}

// Available reports whether a compute device was opened.
func (a *TrilinearAccelerator) Available() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gpuReady
}

// DeviceInfo describes the active adapter.
func (a *TrilinearAccelerator) DeviceInfo() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.gpuReady {
		return "GPU unavailable"
	}
	return fmt.Sprintf("GPU (%s, wgpu compute)", a.adapterName)
}

// Close releases device resources.
func (a *TrilinearAccelerator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.destroyPipeline()
	if !a.externalDevice {
		if a.device != nil {
			a.device.Destroy()
		}
		if a.instance != nil {
			a.instance.Destroy()
		}
	}
	a.device = nil
	a.instance = nil
	a.queue = nil
	a.gpuReady = false
	a.externalDevice = false
}

// SetDeviceProvider switches to a GPU device owned by the host window.
// The provider must expose HalDevice() any and HalQueue() any returning
// hal types (the gpucontext.HalProvider contract).
func (a *TrilinearAccelerator) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("gpuimpl: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("gpuimpl: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("gpuimpl: provider HalQueue is not hal.Queue")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.destroyPipeline()
	if !a.externalDevice && a.device != nil {
		a.device.Destroy()
	}
	if a.instance != nil {
		a.instance.Destroy()
		a.instance = nil
	}

	a.device = device
	a.queue = queue
	a.externalDevice = true
	a.adapterName = "shared device"
	if err := a.createPipeline(); err != nil {
		a.device = nil
		a.queue = nil
		a.externalDevice = false
		a.gpuReady = false
		return fmt.Errorf("gpuimpl: pipeline on shared device: %w", err)
	}
	a.gpuReady = true
	return nil
}

// Transform applies the lattice to the target pixels in place.
//
// The image is split into row bands sized to the device dispatch limits;
// each band is one synchronous upload-dispatch-readback round trip. Any
// device failure is returned as *lutra.DeviceError so the scheduler can
// redo the work on the CPU.
func (a *TrilinearAccelerator) Transform(target lutra.TransformTarget, lut *cube.LutDefinition, strength int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.gpuReady {
		return lutra.ErrFallbackToCPU
	}
	if lut == nil || strength <= 0 {
		return nil
	}

	lutBytes := lutToBytes(lut)
	if len(lutBytes) > maxDispatchBytes {
		// A lattice too large for one binding cannot be tiled; refuse.
		return a.deviceErr("lattice upload", fmt.Errorf("lattice of %d bytes exceeds device budget", len(lutBytes)))
	}

	lutBuf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "lut_lattice", Size: uint64(len(lutBytes)),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return a.deviceErr("create lattice buffer", err)
	}
	defer a.device.DestroyBuffer(lutBuf)
	a.queue.WriteBuffer(lutBuf, 0, lutBytes)

	bandRows := a.bandRows(target.Width)
	rowBytes := target.Width * 4
	for row := 0; row < target.Rows; row += bandRows {
		rows := bandRows
		if row+rows > target.Rows {
			rows = target.Rows - row
		}
		band := target.Data[row*rowBytes : (row+rows)*rowBytes]
		if err := a.dispatchBand(band, target.Width, rows, lut.Size, strength, lutBuf, uint64(len(lutBytes))); err != nil {
			return err
		}
		a.log().Debug("band transformed", "row", row, "rows", rows, "bytes", len(band))
	}
	return nil
}

// bandRows returns the tallest row band that fits both the buffer budget
// and the single-dimension dispatch limit.
func (a *TrilinearAccelerator) bandRows(width int) int {
	if width < 1 {
		return 1
	}
	rowBytes := width * 4
	byBuffer := maxDispatchBytes / rowBytes
	byDispatch := maxDispatchPixels / width
	rows := byBuffer
	if byDispatch < rows {
		rows = byDispatch
	}
	if rows < 1 {
		rows = 1
	}
	return rows
}

// dispatchBand runs one band through the kernel and reads it back in place.
func (a *TrilinearAccelerator) dispatchBand(band []uint8, width, rows, lutSize, strength int,
	lutBuf hal.Buffer, lutBytes uint64) error {
	bandSize := uint64(len(band))
	pixels := width * rows

	pixelBuf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "lut_pixels", Size: bandSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return a.deviceErr("create pixel buffer", err)
	}
	defer a.device.DestroyBuffer(pixelBuf)

	stagingBuf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "lut_staging", Size: bandSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return a.deviceErr("create staging buffer", err)
	}
	defer a.device.DestroyBuffer(stagingBuf)

	paramBytes := packParams(uint32(width), uint32(rows), uint32(lutSize), uint32(strength))
	paramBuf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "lut_params", Size: uint64(len(paramBytes)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return a.deviceErr("create uniform buffer", err)
	}
	defer a.device.DestroyBuffer(paramBuf)

	a.queue.WriteBuffer(pixelBuf, 0, band)
	a.queue.WriteBuffer(paramBuf, 0, paramBytes)

	bindGroup, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "lut_bind", Layout: a.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: paramBuf.NativeHandle(), Offset: 0, Size: uint64(len(paramBytes))}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: lutBuf.NativeHandle(), Offset: 0, Size: lutBytes}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: pixelBuf.NativeHandle(), Offset: 0, Size: bandSize}},
		},
	})
	if err != nil {
		return a.deviceErr("create bind group", err)
	}
	defer a.device.DestroyBindGroup(bindGroup)

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "lut_encoder"})
	if err != nil {
		return a.deviceErr("create command encoder", err)
	}
	if err := encoder.BeginEncoding("lut_transform"); err != nil {
		return a.deviceErr("begin encoding", err)
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "lut_pass"})
	pass.SetPipeline(a.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Dispatch(uint32((pixels+63)/64), 1, 1)
	pass.End()

	encoder.CopyBufferToBuffer(pixelBuf, stagingBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: bandSize},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return a.deviceErr("end encoding", err)
	}
	defer a.device.FreeCommandBuffer(cmdBuf)

	fence, err := a.device.CreateFence()
	if err != nil {
		return a.deviceErr("create fence", err)
	}
	defer a.device.DestroyFence(fence)

	if err := a.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return a.deviceErr("submit", err)
	}
	fenceOK, err := a.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return a.deviceErr("wait", err)
	}
	if !fenceOK {
		return a.deviceErr("wait", fmt.Errorf("fence timeout after %s", fenceTimeout))
	}

	if err := a.queue.ReadBuffer(stagingBuf, 0, band); err != nil {
		return a.deviceErr("readback", err)
	}
	return nil
}

func (a *TrilinearAccelerator) initGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	a.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return fmt.Errorf("no compute adapters found")
	}
	// Prefer a GPU-class device; any adapter beats none.
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	a.device = openDev.Device
	a.queue = openDev.Queue
	a.adapterName = selected.Info.Name

	if err := a.createPipeline(); err != nil {
		a.device.Destroy()
		a.device = nil
		a.queue = nil
		return fmt.Errorf("create pipeline: %w", err)
	}
	a.gpuReady = true
	a.log().Info("GPU transform backend initialized", "adapter", a.adapterName)
	return nil
}

// createPipeline compiles the WGSL kernel through naga and builds the
// compute pipeline. Called once per device.
func (a *TrilinearAccelerator) createPipeline() error {
	spirvBytes, err := naga.Compile(trilinearShaderWGSL)
	if err != nil {
		return fmt.Errorf("compile kernel: %w", err)
	}
	spirv := make([]uint32, len(spirvBytes)/4)
	for i := range spirv {
		spirv[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}

	shader, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "lut_trilinear",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}
	a.shader = shader

	bindLayout, err := a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "lut_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	a.bindLayout = bindLayout

	pipeLayout, err := a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "lut_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{a.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	a.pipeLayout = pipeLayout

	pipeline, err := a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "lut_pipeline", Layout: a.pipeLayout,
		Compute: hal.ComputeState{Module: a.shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	a.pipeline = pipeline
	return nil
}

func (a *TrilinearAccelerator) destroyPipeline() {
	if a.device == nil {
		return
	}
	if a.pipeline != nil {
		a.device.DestroyComputePipeline(a.pipeline)
		a.pipeline = nil
	}
	if a.pipeLayout != nil {
		a.device.DestroyPipelineLayout(a.pipeLayout)
		a.pipeLayout = nil
	}
	if a.bindLayout != nil {
		a.device.DestroyBindGroupLayout(a.bindLayout)
		a.bindLayout = nil
	}
	if a.shader != nil {
		a.device.DestroyShaderModule(a.shader)
		a.shader = nil
	}
}

// deviceErr wraps a failure in the typed error the scheduler branches on.
func (a *TrilinearAccelerator) deviceErr(op string, err error) error {
	return &lutra.DeviceError{Backend: a.Name(), Op: op, Err: err}
}

// lutToBytes flattens the lattice samples into little-endian float32 bytes
// for the storage binding.
func lutToBytes(lut *cube.LutDefinition) []byte {
	out := make([]byte, len(lut.Data)*4)
	for i, v := range lut.Data {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// packParams lays out the Params uniform: four consecutive u32 fields.
func packParams(width, rows, lutSize, strength uint32) []byte {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint32(out[0:], width)
	binary.LittleEndian.PutUint32(out[4:], rows)
	binary.LittleEndian.PutUint32(out[8:], lutSize)
	binary.LittleEndian.PutUint32(out[12:], strength)
	return out
}
