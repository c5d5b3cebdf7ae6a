// Package colorxform applies the sensor color transform: a single 3x3
// matrix multiply per pixel, composed ahead of time so the per-pixel
// cost never depends on the output mode.
//
// Grounded on the teacher's pkg/ecolor/cameranative.go (XYZToSRGB's
// precomposed D50-to-D65 sRGB matrix, Mat3.Apply per pixel) and
// pkg/emath/affine.go's Mat3 multiply, generalized from the teacher's
// fixed XYZ(D50)->sRGB(D65) matrix to an arbitrary sensor->XYZ matrix
// supplied per camera.
package colorxform

import (
	"fmt"

	"github.com/mdouchement/hdr/hdrcolor"

	"github.com/abworrall/rawhdr/internal/emath"
)

// Mode selects the output color space.
type Mode int

const (
	Native Mode = iota // no-op: pass the demosaiced RGB through unchanged
	XYZ
	SRGB
)

func (m Mode) String() string {
	switch m {
	case Native:
		return "native"
	case XYZ:
		return "xyz"
	case SRGB:
		return "srgb"
	default:
		return fmt.Sprintf("colorxform.Mode(%d)", int(m))
	}
}

// XYZToLinearSRGBD65 converts CIE XYZ (D65 reference white, matching
// the D65-normalized sensor matrix internal/ahd builds its Lab
// conversion against) to linear sRGB. Grounded on the teacher's
// XYZD50_to_linear_sRGBD65 constant, re-derived for a D65 source white
// since this pipeline's sensor->XYZ matrix is already D65-normalized
// (internal/ahd's CIELab step divides by the same white point), unlike
// the teacher's DNG ForwardMatrix which targets D50.
var XYZToLinearSRGBD65 = emath.Mat3{
	3.2404542, -1.5371385, -0.4985314,
	-0.9692660, 1.8760108, 0.0415560,
	0.0556434, -0.2040259, 1.0572252,
}

// Transformer wires together the matrix a pixel gets multiplied by,
// chosen once for the whole run.
type Transformer struct {
	mode   Mode
	matrix emath.Mat3 // identity for Native
}

// New builds a Transformer for the given mode and sensor->XYZ matrix.
// sensorToXYZ is ignored in Native mode.
func New(mode Mode, sensorToXYZ emath.Mat3) Transformer {
	switch mode {
	case Native:
		return Transformer{mode: mode, matrix: emath.Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}}
	case XYZ:
		return Transformer{mode: mode, matrix: sensorToXYZ}
	case SRGB:
		return Transformer{mode: mode, matrix: XYZToLinearSRGBD65.Mult(sensorToXYZ)}
	default:
		panic(fmt.Sprintf("colorxform: unknown mode %v", mode))
	}
}

// Apply transforms a single RGB triple.
func (t Transformer) Apply(rgb hdrcolor.RGB) hdrcolor.RGB {
	if t.mode == Native {
		return rgb
	}
	out := t.matrix.Apply(emath.Vec3{rgb.R, rgb.G, rgb.B})
	return hdrcolor.RGB{R: out[0], G: out[1], B: out[2]}
}

// TransformImage applies the transform in place to an interleaved
// width*height*3 float32 buffer (internal/rawseries.Series.Demosaiced
// layout).
func TransformImage(t Transformer, img []float32) {
	if t.mode == Native {
		return
	}
	for i := 0; i+2 < len(img); i += 3 {
		out := t.matrix.Apply(emath.Vec3{float64(img[i]), float64(img[i+1]), float64(img[i+2])})
		img[i] = float32(out[0])
		img[i+1] = float32(out[1])
		img[i+2] = float32(out[2])
	}
}
