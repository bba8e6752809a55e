// Package lutra implements the 3D-LUT color-grading pipeline of an
// interactive image viewer: lattice loading and validation, trilinear
// color transforms with CPU and GPU backends, incremental non-blocking
// scheduling, and a bounded result cache.
//
// # Overview
//
// The presentation layer owns one ColorEngine and talks to nothing else:
//
//	eng := lutra.NewColorEngine(lutra.WithDisplay(onDisplay))
//	eng.RegisterImage("photo-1", lutra.FromImage(img))
//
//	handle, err := eng.SubmitTransform(&lutra.TransformRequest{
//	    ImageID:  "photo-1",
//	    LutPath:  "grade/teal-orange.cube",
//	    Strength: 80,
//	})
//
// Submit shows an instant downscaled preview synchronously; the
// full-resolution transform then advances in bounded row chunks, one per
// Tick, so the host event loop never blocks:
//
//	for eng.Tick() {
//	    // between ticks the loop stays responsive
//	}
//
// Submitting a different request while one is in flight supersedes it; the
// superseded job's partial output never reaches the cache or the display.
//
// # Backends
//
// The transform runs on a CPU reference implementation by default. A GPU
// compute backend is enabled by blank import:
//
//	import _ "github.com/lutra-img/lutra/gpu"
//
// The scheduler picks the backend per request from device availability and
// image size, and transparently redoes work on the CPU when a GPU dispatch
// fails.
//
// # Conventions
//
// Image buffers are interleaved RGBA, 4 bytes per pixel. Lattice samples
// are addressed with the red index varying fastest (see the cube package).
// These two conventions are independent.
package lutra
