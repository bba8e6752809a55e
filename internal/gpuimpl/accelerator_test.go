package gpuimpl

import (
	"encoding/binary"
	"math"
	"math/rand"
	"testing"

	"github.com/lutra-img/lutra"
	"github.com/lutra-img/lutra/cube"
	"github.com/lutra-img/lutra/internal/transform"
)

func TestPackParams(t *testing.T) {
	got := packParams(1920, 1080, 33, 75)
	if len(got) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(got))
	}
	want := []uint32{1920, 1080, 33, 75}
	for i, w := range want {
		if v := binary.LittleEndian.Uint32(got[i*4:]); v != w {
			t.Errorf("field %d: got %d, want %d", i, v, w)
		}
	}
}

func TestLutToBytes(t *testing.T) {
	lut := cube.Identity(2)
	got := lutToBytes(lut)
	if len(got) != len(lut.Data)*4 {
		t.Fatalf("expected %d bytes, got %d", len(lut.Data)*4, len(got))
	}
	for i, v := range lut.Data {
		bits := binary.LittleEndian.Uint32(got[i*4:])
		if math.Float32frombits(bits) != v {
			t.Fatalf("sample %d: got %v, want %v", i, math.Float32frombits(bits), v)
		}
	}
}

func TestBandRows(t *testing.T) {
	a := New()

	tests := []struct {
		width   int
		minRows int
	}{
		{0, 1}, // degenerate target must not divide by zero
		{16, 1},
		{1920, 1},
		{maxDispatchPixels, 1}, // one row is always allowed
	}
	for _, tt := range tests {
		rows := a.bandRows(tt.width)
		if rows < tt.minRows {
			t.Errorf("width %d: got %d rows, want at least %d", tt.width, rows, tt.minRows)
		}
		if rows*tt.width*4 > maxDispatchBytes && rows > 1 {
			t.Errorf("width %d: band of %d rows exceeds buffer budget", tt.width, rows)
		}
		if rows*tt.width > maxDispatchPixels && rows > 1 {
			t.Errorf("width %d: band of %d rows exceeds dispatch limit", tt.width, rows)
		}
	}
}

func TestTransformUnavailableSignalsFallback(t *testing.T) {
	a := New() // Init not called: no device
	target := lutra.TransformTarget{Data: make([]uint8, 16), Width: 2, Rows: 2}

	err := a.Transform(target, cube.Identity(2), 100)
	if err != lutra.ErrFallbackToCPU {
		t.Errorf("expected ErrFallbackToCPU, got %v", err)
	}
}

// TestCPUGPUEquivalence cross-checks the kernel against the CPU reference
// on a small image. Runs only where a compute device is present.
func TestCPUGPUEquivalence(t *testing.T) {
	a := New()
	if err := a.Init(); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	defer a.Close()
	if !a.Available() {
		t.Skip("no compute device available")
	}

	const width, height = 16, 16
	rng := rand.New(rand.NewSource(7))
	src := make([]uint8, width*height*4)
	for i := range src {
		src[i] = uint8(rng.Intn(256))
	}

	lut := cube.Identity(4)
	// Perturb the lattice so the transform is not the identity.
	for i := range lut.Data {
		lut.Data[i] = 1 - lut.Data[i]*lut.Data[i]
	}

	for _, strength := range []int{25, 100} {
		cpu := make([]uint8, len(src))
		transform.Apply(cpu, src, lut, strength)

		gpu := make([]uint8, len(src))
		copy(gpu, src)
		err := a.Transform(lutra.TransformTarget{Data: gpu, Width: width, Rows: height}, lut, strength)
		if err != nil {
			t.Fatalf("strength %d: Transform failed: %v", strength, err)
		}

		for i := range cpu {
			d := int(cpu[i]) - int(gpu[i])
			if d < 0 {
				d = -d
			}
			if d > 2 {
				t.Fatalf("strength %d byte %d: CPU %d vs GPU %d differ by %d (>2)",
					strength, i, cpu[i], gpu[i], d)
			}
		}
	}
}
