package lutra

import "fmt"

// Rotation is a quarter-turn image rotation in degrees clockwise.
type Rotation int

// Valid rotations.
const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Valid reports whether r is one of the four quarter turns.
func (r Rotation) Valid() bool {
	switch r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return true
	}
	return false
}

// Geometry describes the orientation applied after the color transform.
// Flips are applied first (horizontal, then vertical), then rotation.
type Geometry struct {
	Rotation Rotation
	FlipH    bool
	FlipV    bool
}

// IsIdentity reports whether the geometry leaves the image untouched.
func (g Geometry) IsIdentity() bool {
	return g.Rotation == Rotate0 && !g.FlipH && !g.FlipV
}

// TransformRequest describes one logical view of an image: which pixels,
// which lattice at which strength, how oriented, and which annotation
// overlay generation.
//
// The pixel buffer itself is looked up by ImageID; its bytes do not
// participate in the request identity.
type TransformRequest struct {
	// ImageID names a pixel buffer previously registered with the engine.
	ImageID string

	// LutPath selects the lattice file. Empty means no color transform.
	LutPath string

	// Strength mixes the lattice output with the original color,
	// 0 (input unchanged) to 100 (pure lattice result).
	Strength int

	// Geometry is the post-transform orientation.
	Geometry Geometry

	// AnnotationSignature is an opaque digest of the current line-overlay
	// state, supplied by the presentation layer. It participates only in
	// the request signature.
	AnnotationSignature string

	// Overlay, when non-nil, draws the annotation overlay onto the final
	// buffer during compositing. The callback must stay consistent with
	// AnnotationSignature.
	Overlay func(*Pixmap)
}

// Validate checks request parameters that can be rejected synchronously
// at submission.
func (r *TransformRequest) Validate() error {
	if r.ImageID == "" {
		return &ValidationError{Field: "ImageID", Reason: "must not be empty"}
	}
	if r.Strength < 0 || r.Strength > 100 {
		return &ValidationError{
			Field:  "Strength",
			Reason: fmt.Sprintf("%d outside [0, 100]", r.Strength),
		}
	}
	if !r.Geometry.Rotation.Valid() {
		return &ValidationError{
			Field:  "Geometry.Rotation",
			Reason: fmt.Sprintf("%d not a quarter turn", r.Geometry.Rotation),
		}
	}
	return nil
}

// RequestSignature is the comparable identity of a TransformRequest. Every
// cache and every cancellation check keys on this one type; ad hoc string
// keys are never assembled elsewhere.
type RequestSignature struct {
	ImageID             string
	LutPath             string
	Strength            int
	Geometry            Geometry
	AnnotationSignature string
}

// Signature returns the request's caching and cancellation identity.
func (r *TransformRequest) Signature() RequestSignature {
	return RequestSignature{
		ImageID:             r.ImageID,
		LutPath:             r.LutPath,
		Strength:            r.Strength,
		Geometry:            r.Geometry,
		AnnotationSignature: r.AnnotationSignature,
	}
}

// String renders the signature for log output.
func (s RequestSignature) String() string {
	return fmt.Sprintf("img=%s lut=%s strength=%d rot=%d flip=%v/%v ann=%s",
		s.ImageID, s.LutPath, s.Strength,
		s.Geometry.Rotation, s.Geometry.FlipH, s.Geometry.FlipV,
		s.AnnotationSignature)
}
