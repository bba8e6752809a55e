package lutra

// Option configures a ColorEngine during creation.
//
// Example:
//
//	eng := lutra.NewColorEngine(
//	    lutra.WithChunkRows(64),
//	    lutra.WithDisplay(onDisplay),
//	)
type Option func(*engineOptions)

// engineOptions holds optional configuration for engine creation.
type engineOptions struct {
	chunkRows     int
	previewMaxDim int
	cacheCapacity int
	lutCapacity   int
	gpuMinPixels  int
	display       DisplayFunc
}

// Defaults. The result cache capacity matches the viewer's historical
// working set of recently displayed variants.
const (
	defaultChunkRows     = 128
	defaultPreviewMaxDim = 256
	defaultCacheCapacity = 20
	defaultGPUMinPixels  = 256 * 256
)

func defaultEngineOptions() engineOptions {
	return engineOptions{
		chunkRows:     defaultChunkRows,
		previewMaxDim: defaultPreviewMaxDim,
		cacheCapacity: defaultCacheCapacity,
		lutCapacity:   0, // cube.DefaultStoreCapacity
		gpuMinPixels:  defaultGPUMinPixels,
	}
}

// WithChunkRows sets the number of image rows transformed per scheduler
// tick on the CPU path. Smaller values yield to the host loop more often.
// Requests with an annotation overlay automatically use half the budget.
func WithChunkRows(rows int) Option {
	return func(o *engineOptions) {
		if rows > 0 {
			o.chunkRows = rows
		}
	}
}

// WithPreviewMaxDim sets the longest edge of the instant preview.
func WithPreviewMaxDim(dim int) Option {
	return func(o *engineOptions) {
		if dim > 0 {
			o.previewMaxDim = dim
		}
	}
}

// WithResultCacheCapacity bounds how many finished buffers are retained.
func WithResultCacheCapacity(n int) Option {
	return func(o *engineOptions) {
		if n > 0 {
			o.cacheCapacity = n
		}
	}
}

// WithLutCapacity bounds how many parsed lattices are retained.
func WithLutCapacity(n int) Option {
	return func(o *engineOptions) {
		if n > 0 {
			o.lutCapacity = n
		}
	}
}

// WithGPUMinPixels sets the image size below which the GPU backend is
// skipped: for small images the dispatch and readback overhead exceeds
// the CPU cost.
func WithGPUMinPixels(n int) Option {
	return func(o *engineOptions) {
		if n >= 0 {
			o.gpuMinPixels = n
		}
	}
}

// WithDisplay sets the callback receiving preview and final buffers.
//
// The callback runs with scheduler internals locked and must not call
// back into the engine synchronously; hand buffers off to the UI thread
// instead.
func WithDisplay(fn DisplayFunc) Option {
	return func(o *engineOptions) {
		o.display = fn
	}
}
