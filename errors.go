package lutra

import (
	"errors"
	"fmt"
)

// ErrFallbackToCPU indicates the GPU accelerator cannot handle this
// transform. The scheduler transparently retries on the CPU backend.
var ErrFallbackToCPU = errors.New("lutra: falling back to CPU transform")

// ErrSuperseded is reported on a handle whose request was replaced by a
// newer submission before it finished.
var ErrSuperseded = errors.New("lutra: request superseded")

// ErrCancelled is reported on a handle that was cancelled explicitly.
var ErrCancelled = errors.New("lutra: request cancelled")

// ErrUnknownImage is returned by Submit when the request references an
// image ID with no registered pixel buffer.
var ErrUnknownImage = errors.New("lutra: unknown image id")

// DeviceError describes a GPU device or driver failure during dispatch or
// pipeline setup. Device errors are never user-visible: the scheduler logs
// them and falls back to the CPU backend.
type DeviceError struct {
	Backend string // accelerator name, e.g. "wgpu-trilinear"
	Op      string // failing operation, e.g. "dispatch", "readback"
	Err     error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("lutra: %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// ValidationError describes request parameters rejected at submission,
// before any processing starts.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("lutra: invalid %s: %s", e.Field, e.Reason)
}
