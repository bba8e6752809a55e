package lutra

import (
	"context"
	"sync"
	"time"

	"github.com/lutra-img/lutra/cube"
	"github.com/lutra-img/lutra/internal/cache"
)

// ColorEngine is the color-grading pipeline's single entry point. It owns
// the lattice store, the result cache, and the processing scheduler, and
// is injected into the presentation layer; nothing in the pipeline is
// reachable through package-level state except the optional accelerator
// registration.
type ColorEngine struct {
	store   *cube.Store
	results *cache.LRU[RequestSignature, *Pixmap]
	sched   *ProcessingScheduler

	mu     sync.RWMutex
	images map[string]*Pixmap
}

// NewColorEngine creates an engine with the given options.
func NewColorEngine(opts ...Option) *ColorEngine {
	o := defaultEngineOptions()
	for _, opt := range opts {
		opt(&o)
	}

	e := &ColorEngine{
		store:   cube.NewStore(o.lutCapacity),
		results: cache.NewLRU[RequestSignature, *Pixmap](o.cacheCapacity),
		images:  make(map[string]*Pixmap),
	}
	e.sched = newScheduler(e.store, e.results, e.imageByID, o)
	return e
}

// RegisterImage makes a pixel buffer addressable by ID in transform
// requests. Registering an existing ID replaces its buffer and invalidates
// nothing: the buffer bytes are not part of any request signature, so the
// caller must use a fresh ID for changed pixels.
func (e *ColorEngine) RegisterImage(id string, pm *Pixmap) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images[id] = pm
}

// UnregisterImage drops a pixel buffer. In-flight work for the image is
// superseded.
func (e *ColorEngine) UnregisterImage(id string) {
	e.mu.Lock()
	delete(e.images, id)
	e.mu.Unlock()

	e.sched.cancelImage(id)
}

func (e *ColorEngine) imageByID(id string) (*Pixmap, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pm, ok := e.images[id]
	return pm, ok
}

// LoadLut parses and caches the lattice at path. Errors are either
// *cube.FormatError for malformed files or wrapped I/O errors; neither
// mutates any cache.
func (e *ColorEngine) LoadLut(path string) (*cube.LutDefinition, error) {
	def, err := e.store.Load(path)
	if err != nil {
		return nil, err
	}
	Logger().Info("LUT loaded", "path", path, "size", def.Size, "title", def.Title)
	return def, nil
}

// SubmitTransform submits a request to the scheduler. See
// ProcessingScheduler.Submit for the synchronous preview semantics and
// handle lifecycle.
func (e *ColorEngine) SubmitTransform(req *TransformRequest) (*Handle, error) {
	return e.sched.Submit(req)
}

// Tick advances in-flight work by one bounded chunk. Returns true while
// work remains. Hosts with an event loop call this from an idle timer.
func (e *ColorEngine) Tick() bool {
	return e.sched.Tick()
}

// Run drives the scheduler from its own goroutine until ctx is cancelled,
// for hosts without a cooperative event loop.
func (e *ColorEngine) Run(ctx context.Context, interval time.Duration) {
	e.sched.Run(ctx, interval)
}

// CancelByImageChange supersedes in-flight work for any image other than
// the one now displayed. Called by the presentation layer when the user
// navigates.
func (e *ColorEngine) CancelByImageChange(newImageID string) {
	e.sched.CancelByImageChange(newImageID)
}

// QueryDeviceInfo describes the active compute backend for the status bar.
func (e *ColorEngine) QueryDeviceInfo() string {
	if a := Accelerator(); a != nil && a.Available() {
		return a.DeviceInfo()
	}
	return "CPU (software trilinear)"
}

// InvalidateResults drops all cached finished buffers. The presentation
// layer calls this when something outside the request signature changes,
// e.g. the annotation overlay rendering style.
func (e *ColorEngine) InvalidateResults() {
	e.results.Clear()
}
