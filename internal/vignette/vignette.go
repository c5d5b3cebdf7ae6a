// Package vignette fits and corrects a radial falloff: a degree-6
// even polynomial in normalized radius, fit against the demosaiced
// luminance and then divided out of every channel.
//
// Grounded on the public shape of
// _examples/original_source/hdrmerge.h's ExposureSeries::vcal/vcorr
// (a calibration pass producing (a,b,c), and a correction pass taking
// them back in) — the header gives no implementation body, so the fit
// and correction formulas themselves follow SPEC_FULL.md's complete
// description directly. The least-squares solve reuses
// internal/exptime's gonum.org/v1/gonum/mat QR approach.
package vignette

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const skip = 10

// Coefficients are the normalized radial polynomial's non-constant
// terms: falloff(r) = 1 + A*r^2 + B*r^4 + C*r^6.
type Coefficients struct {
	A, B, C float64
}

// Falloff evaluates the fitted polynomial at normalized radius r.
func (c Coefficients) Falloff(r float64) float64 {
	r2 := r * r
	return 1 + c.A*r2 + c.B*r2*r2 + c.C*r2*r2*r2
}

// Fit samples the demosaiced image's luminance every skip pixels in
// each axis and solves the least-squares radial model, normalized so
// its constant term is 1.
func Fit(img []float32, width, height int) (Coefficients, error) {
	cx, cy := float64(width)/2, float64(height)/2
	maxDim := float64(width)
	if height > width {
		maxDim = float64(height)
	}

	var rows int
	for y := 0; y < height; y += skip {
		for x := 0; x < width; x += skip {
			rows++
		}
	}
	if rows < 4 {
		return Coefficients{}, fmt.Errorf("vignette: only %d sample points at skip=%d, need at least 4", rows, skip)
	}

	A := mat.NewDense(rows, 4, nil)
	b := make([]float64, rows)

	row := 0
	for y := 0; y < height; y += skip {
		for x := 0; x < width; x += skip {
			dx, dy := float64(x)-cx, float64(y)-cy
			r := math.Sqrt(dx*dx+dy*dy) / maxDim
			r2 := r * r
			A.Set(row, 0, 1)
			A.Set(row, 1, r2)
			A.Set(row, 2, r2*r2)
			A.Set(row, 3, r2*r2*r2)

			off := (y*width + x) * 3
			lum := 0.212671*float64(img[off]) + 0.715160*float64(img[off+1]) + 0.072169*float64(img[off+2])
			b[row] = lum
			row++
		}
	}

	var qr mat.QR
	qr.Factorize(A)
	bVec := mat.NewVecDense(rows, b)
	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, bVec); err != nil {
		return Coefficients{}, fmt.Errorf("vignette: least squares solve: %w", err)
	}

	k0 := x.AtVec(0)
	if k0 == 0 {
		return Coefficients{}, fmt.Errorf("vignette: fitted constant term is zero, cannot normalize")
	}
	return Coefficients{
		A: x.AtVec(1) / k0,
		B: x.AtVec(2) / k0,
		C: x.AtVec(3) / k0,
	}, nil
}

// Apply divides every channel of an interleaved width*height*3 image
// by the fitted falloff at that pixel's normalized radius, in place.
func Apply(img []float32, width, height int, c Coefficients) {
	cx, cy := float64(width)/2, float64(height)/2
	maxDim := float64(width)
	if height > width {
		maxDim = float64(height)
	}

	for y := 0; y < height; y++ {
		dy := float64(y) - cy
		for x := 0; x < width; x++ {
			dx := float64(x) - cx
			r := math.Sqrt(dx*dx+dy*dy) / maxDim
			factor := float32(c.Falloff(r))
			off := (y*width + x) * 3
			img[off] /= factor
			img[off+1] /= factor
			img[off+2] /= factor
		}
	}
}
