package lutra

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEndToEndInvertLattice(t *testing.T) {
	// A 4x4 RGBA image with known values through a size-2 invert lattice
	// at full strength must come out exactly complemented, alpha intact.
	src := NewPixmap(4, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.SetPixel(x, y, uint8(x*60), uint8(y*60), uint8((x+y)*30), uint8(200+x))
		}
	}

	rec := &displayRecorder{}
	e := newTestEngine(rec)
	e.RegisterImage("tiny", src)

	h, err := e.SubmitTransform(&TransformRequest{ImageID: "tiny", LutPath: testLutFile(t), Strength: 100})
	if err != nil {
		t.Fatal(err)
	}
	drain(t, e)
	if h.Err() != nil {
		t.Fatal(h.Err())
	}

	ev, ok := rec.lastFinal()
	if !ok {
		t.Fatal("no final display")
	}
	want := NewPixmap(4, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			r, g, b, a := src.PixelAt(x, y)
			want.SetPixel(x, y, 255-r, 255-g, 255-b, a)
		}
	}

	within1 := cmp.Comparer(func(a, b uint8) bool {
		d := int(a) - int(b)
		return d >= -1 && d <= 1
	})
	if d := cmp.Diff(want.Data(), ev.pm.Data(), within1); d != "" {
		t.Errorf("final buffer mismatch (-want +got):\n%s", d)
	}
}

func TestEndToEndGeometryParticipatesInKey(t *testing.T) {
	rec := &displayRecorder{}
	e := newTestEngine(rec)
	e.RegisterImage("img", testImage(6, 4))
	lut := testLutFile(t)

	plain := &TransformRequest{ImageID: "img", LutPath: lut, Strength: 100}
	rotated := &TransformRequest{ImageID: "img", LutPath: lut, Strength: 100,
		Geometry: Geometry{Rotation: Rotate90}}

	if _, err := e.SubmitTransform(plain); err != nil {
		t.Fatal(err)
	}
	drain(t, e)
	if _, err := e.SubmitTransform(rotated); err != nil {
		t.Fatal(err)
	}
	drain(t, e)

	if e.sched.fullRuns.Load() != 2 {
		t.Errorf("geometry change must miss the cache: %d runs", e.sched.fullRuns.Load())
	}
	if !e.results.Contains(plain.Signature()) || !e.results.Contains(rotated.Signature()) {
		t.Error("both variants should be cached")
	}

	ev, _ := rec.lastFinal()
	if ev.pm.Width() != 4 || ev.pm.Height() != 6 {
		t.Errorf("rotated output is %dx%d, want 4x6", ev.pm.Width(), ev.pm.Height())
	}
}

func TestQueryDeviceInfoWithoutAccelerator(t *testing.T) {
	e := NewColorEngine()
	if got := e.QueryDeviceInfo(); got != "CPU (software trilinear)" {
		t.Errorf("unexpected device info %q", got)
	}
}

func TestLoadLutReportsErrors(t *testing.T) {
	e := NewColorEngine()
	if _, err := e.LoadLut("does-not-exist.cube"); err == nil {
		t.Error("expected error for missing file")
	}

	def, err := e.LoadLut(testLutFile(t))
	if err != nil {
		t.Fatalf("LoadLut failed: %v", err)
	}
	if def.Size != 2 || def.Title != "invert" {
		t.Errorf("unexpected definition: size=%d title=%q", def.Size, def.Title)
	}
}

func TestUnregisterImageSupersedesInFlight(t *testing.T) {
	e := newTestEngine(nil)
	e.RegisterImage("img", testImage(32, 32))

	h, err := e.SubmitTransform(&TransformRequest{ImageID: "img", LutPath: testLutFile(t), Strength: 100})
	if err != nil {
		t.Fatal(err)
	}
	e.Tick()
	e.UnregisterImage("img")

	if h.Err() != ErrSuperseded {
		t.Errorf("expected ErrSuperseded, got %v", h.Err())
	}
	if _, err := e.SubmitTransform(&TransformRequest{ImageID: "img"}); err != ErrUnknownImage {
		t.Errorf("expected ErrUnknownImage after unregister, got %v", err)
	}
}

func TestInvalidateResultsForcesRecomputation(t *testing.T) {
	e := newTestEngine(nil)
	e.RegisterImage("img", testImage(8, 8))
	req := &TransformRequest{ImageID: "img", LutPath: testLutFile(t), Strength: 100}

	if _, err := e.SubmitTransform(req); err != nil {
		t.Fatal(err)
	}
	drain(t, e)
	e.InvalidateResults()

	if _, err := e.SubmitTransform(req); err != nil {
		t.Fatal(err)
	}
	drain(t, e)
	if e.sched.fullRuns.Load() != 2 {
		t.Errorf("expected recomputation after invalidation, got %d runs", e.sched.fullRuns.Load())
	}
}

func TestResultCacheEvictionIsLRU(t *testing.T) {
	e := newTestEngine(nil, WithResultCacheCapacity(2))
	e.RegisterImage("img", testImage(4, 4))
	lut := testLutFile(t)

	reqs := []*TransformRequest{
		{ImageID: "img", LutPath: lut, Strength: 10},
		{ImageID: "img", LutPath: lut, Strength: 20},
		{ImageID: "img", LutPath: lut, Strength: 30},
	}
	for _, r := range reqs[:2] {
		if _, err := e.SubmitTransform(r); err != nil {
			t.Fatal(err)
		}
		drain(t, e)
	}
	// Touch the first entry so the second becomes least recently used.
	if _, err := e.SubmitTransform(reqs[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SubmitTransform(reqs[2]); err != nil {
		t.Fatal(err)
	}
	drain(t, e)

	if e.results.Contains(reqs[1].Signature()) {
		t.Error("expected least recently used entry to be evicted")
	}
	if !e.results.Contains(reqs[0].Signature()) || !e.results.Contains(reqs[2].Signature()) {
		t.Error("recently used entries must survive")
	}
}
