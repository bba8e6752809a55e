// Package cube loads 3D color lattices from the plain-text .cube format.
//
// A lattice is a size³ grid of RGB samples addressed with the red index
// varying fastest, then green, then blue:
//
//	index = r + g*size + b*size*size
//
// This addressing convention is independent of the pixel channel order used
// by the transform engine (interleaved RGBA); see the lutra package docs.
package cube

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// MaxSize is the largest accepted lattice edge length. A 256³ lattice is
// already 192 MiB of float32 samples; anything larger is treated as a
// corrupt or hostile file.
const MaxSize = 256

// MinSize is the smallest meaningful lattice edge length.
const MinSize = 2

// FormatError describes a malformed lattice file. It always carries the
// source path so the viewer can point the user at the offending file.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("cube: %s: %s", e.Path, e.Reason)
}

// LutDefinition is a parsed, validated 3D lattice.
//
// Data holds size³ RGB triples as a flat float32 slice (3 floats per
// sample, R-fastest sample order). Definitions are immutable once parsed;
// the store hands out shared references.
type LutDefinition struct {
	Size       int
	Data       []float32
	SourcePath string
	ByteLength int64
	Title      string
}

// Sample returns the lattice sample at the given grid coordinates.
// Coordinates must be in [0, Size).
func (d *LutDefinition) Sample(r, g, b int) (float32, float32, float32) {
	i := 3 * (r + g*d.Size + b*d.Size*d.Size)
	return d.Data[i], d.Data[i+1], d.Data[i+2]
}

// Identity returns a lattice whose every sample equals its own normalized
// coordinate. Applying it at full strength is a no-op within rounding.
func Identity(size int) *LutDefinition {
	data := make([]float32, 0, 3*size*size*size)
	scale := 1.0 / float32(size-1)
	for b := 0; b < size; b++ {
		for g := 0; g < size; g++ {
			for r := 0; r < size; r++ {
				data = append(data, float32(r)*scale, float32(g)*scale, float32(b)*scale)
			}
		}
	}
	return &LutDefinition{Size: size, Data: data, Title: "identity"}
}

// Parse reads a lattice in .cube text format.
//
// Lines beginning with '#' are comments. A LUT_3D_SIZE line must appear
// before any data row. TITLE metadata is retained. DOMAIN_MIN/DOMAIN_MAX
// are accepted but only the default [0,1] domain is supported. Every
// remaining line with at least three fields is one RGB sample; rows with
// fewer than three parseable floats, a declared size outside [2,256], or
// a total row count different from size³ are format errors.
//
// The path argument is used only for error reporting and the SourcePath
// field; Parse never touches the filesystem.
func Parse(r io.Reader, path string) (*LutDefinition, error) {
	var (
		def     = LutDefinition{SourcePath: path}
		scanner = bufio.NewScanner(r)
		read    int64
	)
	// Data rows for a 256³ lattice overflow the default scanner buffer
	// budget in pathological files with very long lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		read += int64(len(scanner.Bytes())) + 1

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "LUT_3D_SIZE":
			if len(fields) < 2 {
				return nil, &FormatError{Path: path, Reason: "LUT_3D_SIZE missing value"}
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, &FormatError{Path: path, Reason: "LUT_3D_SIZE is not an integer: " + fields[1]}
			}
			if n < MinSize || n > MaxSize {
				return nil, &FormatError{
					Path:   path,
					Reason: fmt.Sprintf("lattice size %d outside [%d, %d]", n, MinSize, MaxSize),
				}
			}
			def.Size = n
			def.Data = make([]float32, 0, 3*n*n*n)

		case "TITLE":
			if start := strings.Index(line, `"`); start != -1 {
				if end := strings.LastIndex(line, `"`); end > start {
					def.Title = line[start+1 : end]
				}
			}

		case "DOMAIN_MIN", "DOMAIN_MAX":
			if err := checkDefaultDomain(fields, path); err != nil {
				return nil, err
			}

		case "LUT_1D_SIZE":
			return nil, &FormatError{Path: path, Reason: "1D LUTs are not supported"}

		default:
			if def.Size == 0 {
				return nil, &FormatError{Path: path, Reason: "data row before LUT_3D_SIZE"}
			}
			if len(fields) < 3 {
				return nil, &FormatError{
					Path:   path,
					Reason: fmt.Sprintf("data row has %d fields, want 3: %q", len(fields), line),
				}
			}
			var triple [3]float32
			for i := 0; i < 3; i++ {
				v, err := strconv.ParseFloat(fields[i], 32)
				if err != nil {
					return nil, &FormatError{Path: path, Reason: "unparseable sample value: " + fields[i]}
				}
				triple[i] = float32(v)
			}
			def.Data = append(def.Data, triple[0], triple[1], triple[2])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cube: reading %s: %w", path, err)
	}

	if def.Size == 0 {
		return nil, &FormatError{Path: path, Reason: "missing LUT_3D_SIZE"}
	}
	want := 3 * def.Size * def.Size * def.Size
	if len(def.Data) != want {
		return nil, &FormatError{
			Path: path,
			Reason: fmt.Sprintf("sample count %d does not match size %d (want %d triples)",
				len(def.Data)/3, def.Size, want/3),
		}
	}

	def.ByteLength = read
	return &def, nil
}

// LoadFile parses a lattice file from disk. File access failures are
// returned as wrapped os errors, distinct from *FormatError.
func LoadFile(path string) (*LutDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cube: %w", err)
	}
	defer f.Close()

	return Parse(f, path)
}

// checkDefaultDomain rejects DOMAIN_MIN/DOMAIN_MAX lines that declare a
// domain other than the default unit cube. Supporting arbitrary domains
// would push a per-pixel rescale into both backends for a feature no
// grading LUT in practice uses.
func checkDefaultDomain(fields []string, path string) error {
	want := [3]float64{0, 0, 0}
	if fields[0] == "DOMAIN_MAX" {
		want = [3]float64{1, 1, 1}
	}
	if len(fields) < 4 {
		return &FormatError{Path: path, Reason: fields[0] + " needs three values"}
	}
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return &FormatError{Path: path, Reason: "unparseable " + fields[0] + " value: " + fields[i+1]}
		}
		if v != want[i] {
			return &FormatError{Path: path, Reason: fields[0] + " other than the unit cube is not supported"}
		}
	}
	return nil
}
