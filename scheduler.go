package lutra

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lutra-img/lutra/cube"
	"github.com/lutra-img/lutra/internal/cache"
	"github.com/lutra-img/lutra/internal/transform"
)

// State identifies the scheduler's position in its processing cycle.
type State int

// Scheduler states. A new submission arriving while busy does not get its
// own state: the current job is discarded and the scheduler restarts in
// StateFullProcessing for the new request.
const (
	StateIdle State = iota
	StatePreviewing
	StateFullProcessing
	StateFinalizing
)

// String returns the state name for log output.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StatePreviewing:
		return "Previewing"
	case StateFullProcessing:
		return "FullProcessing"
	case StateFinalizing:
		return "Finalizing"
	default:
		return "Unknown"
	}
}

// DisplayFunc receives buffers as they become presentable. final is false
// for the instant low-resolution preview and true for the finished,
// composited buffer. Calls arrive in finalization order.
type DisplayFunc func(pm *Pixmap, sig RequestSignature, final bool)

// Handle tracks one submitted transform request. Cancel may be called from
// any goroutine; the scheduler honors it at the next chunk boundary.
type Handle struct {
	sig       RequestSignature
	cancelled atomic.Bool

	mu   sync.Mutex
	err  error
	done chan struct{}
}

func newHandle(sig RequestSignature) *Handle {
	return &Handle{sig: sig, done: make(chan struct{})}
}

// Signature returns the request identity this handle tracks.
func (h *Handle) Signature() RequestSignature { return h.sig }

// Cancel requests cancellation. The job's partial output is discarded and
// never reaches the cache or the display. Safe to call repeatedly.
func (h *Handle) Cancel() {
	h.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool { return h.cancelled.Load() }

// Done returns a channel closed when the request settles: finished,
// cancelled, or superseded.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the settlement outcome: nil for a finished request,
// ErrCancelled or ErrSuperseded otherwise. Valid only after Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// settle records the outcome and closes Done exactly once.
func (h *Handle) settle(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return
	default:
	}
	h.err = err
	close(h.done)
}

// processingState is the scheduler's bookkeeping for the single in-flight
// job. It exists only between preview and finalization; supersession or
// cancellation destroys it without side effects.
type processingState struct {
	req        *TransformRequest
	sig        RequestSignature
	lut        *cube.LutDefinition
	src        *Pixmap // registered source buffer (read-only here)
	work       *Pixmap // full-resolution output under construction
	currentRow int
	totalRows  int
	chunkRows  int
	startTime  time.Time
	handle     *Handle
	gpuTried   bool // a failed dispatch is retried on the CPU, once
}

// ProcessingScheduler drives transform requests to completion
// incrementally: an instant downscaled preview at submission, then
// full-quality work advanced one bounded chunk per Tick, then compositing,
// caching, and display.
//
// The scheduler is a single logical worker: ticks may come from a host
// event loop or from Run, but chunks never execute concurrently.
type ProcessingScheduler struct {
	mu      sync.Mutex
	state   State
	current *processingState

	store   *cube.Store
	results *cache.LRU[RequestSignature, *Pixmap]
	comp    Compositor
	lookup  func(imageID string) (*Pixmap, bool)
	display DisplayFunc

	opts engineOptions

	// Test instrumentation: full-resolution runs started and CPU chunks
	// executed.
	fullRuns  atomic.Int64
	cpuChunks atomic.Int64
}

func newScheduler(store *cube.Store, results *cache.LRU[RequestSignature, *Pixmap],
	lookup func(string) (*Pixmap, bool), opts engineOptions) *ProcessingScheduler {
	return &ProcessingScheduler{
		state:   StateIdle,
		store:   store,
		results: results,
		lookup:  lookup,
		display: opts.display,
		opts:    opts,
	}
}

// State returns the current scheduler state.
func (s *ProcessingScheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Submit validates and starts a transform request.
//
// The call is synchronous only up to the cheap parts: parameter
// validation, LUT load, cache lookup, and the downscaled preview. Full
// resolution work is left for subsequent Ticks. The returned handle can
// cancel the request; a duplicate submission of the in-flight signature
// returns the existing handle unchanged.
func (s *ProcessingScheduler) Submit(req *TransformRequest) (*Handle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	src, ok := s.lookup(req.ImageID)
	if !ok {
		return nil, ErrUnknownImage
	}

	// LUT failures abort before Previewing; the previous display stays.
	var lut *cube.LutDefinition
	if req.LutPath != "" {
		var err error
		lut, err = s.store.Load(req.LutPath)
		if err != nil {
			return nil, err
		}
	}

	sig := req.Signature()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Duplicate of the in-flight request: keep the existing job.
	if s.current != nil && s.current.sig == sig {
		return s.current.handle, nil
	}

	// Any different request supersedes the in-flight one, cache hit or
	// not; its partial buffer is dropped on the floor. Superseding before
	// the cache lookup keeps a stale job from finalizing over a newer
	// cached result.
	if s.current != nil {
		s.supersedeLocked()
	}

	// Repeated view of a finished request: serve from cache, no transform.
	if cached, ok := s.results.Get(sig); ok {
		h := newHandle(sig)
		h.settle(nil)
		s.show(cached, sig, true)
		return h, nil
	}

	handle := newHandle(sig)
	st := &processingState{
		req:       req,
		sig:       sig,
		lut:       lut,
		src:       src,
		totalRows: src.Height(),
		chunkRows: s.chunkRowsFor(req),
		startTime: time.Now(),
		handle:    handle,
	}

	// Instant preview: downscale, one synchronous CPU pass, show.
	s.state = StatePreviewing
	preview := src.Downscale(s.opts.previewMaxDim)
	transform.Apply(preview.Data(), preview.Data(), lut, req.Strength)
	s.show(preview, sig, false)

	st.work = src.Clone()
	s.current = st
	s.state = StateFullProcessing
	s.fullRuns.Add(1)

	Logger().Debug("transform scheduled",
		"sig", sig.String(), "rows", st.totalRows, "chunk", st.chunkRows)
	return handle, nil
}

// Tick advances the in-flight job by one chunk. It returns true if work
// remains after this tick, false when the scheduler is idle.
//
// Hosts embed Tick into their event loop or use Run. A chunk is bounded:
// either a single GPU dispatch for the whole image, or chunkRows rows on
// the CPU.
func (s *ProcessingScheduler) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.current
	if st == nil {
		return false
	}

	// Cancellation is honored only at chunk boundaries: cheap, and the
	// partial buffer is private so nothing inconsistent can leak.
	if st.handle.Cancelled() {
		s.dropLocked(st, ErrCancelled)
		return false
	}

	if s.shouldDispatchGPU(st) {
		st.gpuTried = true
		if err := s.dispatchGPU(st); err == nil {
			st.currentRow = st.totalRows
		} else {
			// Typed fallback: redo on the CPU transparently. Anything
			// else coming out of a device is treated the same way.
			var devErr *DeviceError
			if errors.As(err, &devErr) || errors.Is(err, ErrFallbackToCPU) {
				Logger().Warn("GPU transform failed, retrying on CPU", "err", err)
			} else {
				Logger().Warn("unexpected accelerator error, retrying on CPU", "err", err)
			}
		}
	} else if st.currentRow < st.totalRows {
		rows := st.chunkRows
		if st.currentRow+rows > st.totalRows {
			rows = st.totalRows - st.currentRow
		}
		transform.Apply(st.work.Rows(st.currentRow, rows), st.src.Rows(st.currentRow, rows),
			st.lut, st.req.Strength)
		st.currentRow += rows
		s.cpuChunks.Add(1)
	}

	if st.currentRow >= st.totalRows {
		s.finalizeLocked(st)
		return false
	}
	return true
}

// Run ticks the scheduler on an interval until ctx is cancelled. It is a
// convenience for hosts without their own event loop; ticks are still
// serialized with Submit through the scheduler mutex.
func (s *ProcessingScheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// CancelByImageChange supersedes the in-flight job if it belongs to a
// different image than the one now displayed.
func (s *ProcessingScheduler) CancelByImageChange(newImageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.req.ImageID != newImageID {
		s.supersedeLocked()
	}
}

// cancelImage supersedes the in-flight job if it targets the given image.
func (s *ProcessingScheduler) cancelImage(imageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.req.ImageID == imageID {
		s.supersedeLocked()
	}
}

// shouldDispatchGPU applies the backend selection policy: a registered,
// available accelerator, an image large enough to amortize dispatch
// overhead, a lattice to apply, and no prior failed attempt for this job.
func (s *ProcessingScheduler) shouldDispatchGPU(st *processingState) bool {
	if st.gpuTried || st.currentRow != 0 || st.lut == nil || st.req.Strength == 0 {
		return false
	}
	if st.src.Width()*st.src.Height() < s.opts.gpuMinPixels {
		return false
	}
	a := Accelerator()
	return a != nil && a.Available()
}

// dispatchGPU runs the whole image through the accelerator in one
// synchronous dispatch. The accelerator tiles internally if the buffer
// exceeds device limits.
func (s *ProcessingScheduler) dispatchGPU(st *processingState) error {
	a := Accelerator()
	if a == nil {
		return ErrFallbackToCPU
	}
	target := TransformTarget{
		Data:  st.work.Data(),
		Width: st.src.Width(),
		Rows:  st.totalRows,
	}
	// The working buffer still holds the source pixels at row 0.
	return a.Transform(target, st.lut, st.req.Strength)
}

// finalizeLocked composites, caches, and displays a completed job.
// Caller must hold s.mu.
func (s *ProcessingScheduler) finalizeLocked(st *processingState) {
	s.state = StateFinalizing

	// Last cancellation check before any shared state is written: a
	// cancelled job must never reach the cache or the display.
	if st.handle.Cancelled() {
		s.dropLocked(st, ErrCancelled)
		return
	}

	final := s.comp.Compose(st.work, st.req)
	s.results.Put(st.sig, final)
	s.show(final, st.sig, true)

	Logger().Debug("transform finalized",
		"sig", st.sig.String(), "elapsed", time.Since(st.startTime))

	s.current = nil
	s.state = StateIdle
	st.handle.settle(nil)
}

// supersedeLocked discards the in-flight job in favor of a newer request.
// Caller must hold s.mu.
func (s *ProcessingScheduler) supersedeLocked() {
	st := s.current
	st.handle.Cancel()
	s.dropLocked(st, ErrSuperseded)
}

// dropLocked destroys the in-flight state without writing to the cache.
// Caller must hold s.mu.
func (s *ProcessingScheduler) dropLocked(st *processingState, reason error) {
	Logger().Debug("transform dropped",
		"sig", st.sig.String(), "row", st.currentRow, "reason", reason)
	s.current = nil
	s.state = StateIdle
	st.handle.settle(reason)
}

// chunkRowsFor returns the per-tick row budget. Requests carrying an
// annotation overlay get smaller chunks: post-transform compositing is
// cheap to repeat, and frequent yields keep the overlay responsive.
func (s *ProcessingScheduler) chunkRowsFor(req *TransformRequest) int {
	rows := s.opts.chunkRows
	if req.Overlay != nil || req.AnnotationSignature != "" {
		rows /= 2
		if rows < 1 {
			rows = 1
		}
	}
	return rows
}

// show forwards a presentable buffer to the display callback, if any.
// Caller must hold s.mu; finalization order is therefore display order.
func (s *ProcessingScheduler) show(pm *Pixmap, sig RequestSignature, final bool) {
	if s.display != nil {
		s.display(pm, sig, final)
	}
}
