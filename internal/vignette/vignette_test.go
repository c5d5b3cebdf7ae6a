package vignette

import (
	"math"
	"testing"
)

func closeEnough(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

// syntheticFalloffImage builds a flat-grey image whose luminance at
// every pixel equals exactly coeffs.Falloff(r), so Fit should recover
// coeffs (up to solver noise) from it.
func syntheticFalloffImage(width, height int, coeffs Coefficients) []float32 {
	img := make([]float32, width*height*3)
	cx, cy := float64(width)/2, float64(height)/2
	maxDim := float64(width)
	if height > width {
		maxDim = float64(height)
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			r := math.Sqrt(dx*dx+dy*dy) / maxDim
			v := float32(coeffs.Falloff(r))
			off := (y*width + x) * 3
			img[off], img[off+1], img[off+2] = v, v, v
		}
	}
	return img
}

func TestFitRecoversKnownCoefficients(t *testing.T) {
	want := Coefficients{A: -0.3, B: 0.05, C: -0.01}
	width, height := 200, 150
	img := syntheticFalloffImage(width, height, want)

	got, err := Fit(img, width, height)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !closeEnough(got.A, want.A, 1e-3) || !closeEnough(got.B, want.B, 1e-3) || !closeEnough(got.C, want.C, 1e-3) {
		t.Fatalf("Fit() = %+v, want %+v", got, want)
	}
}

func TestFitConstantFieldIsFlat(t *testing.T) {
	width, height := 120, 120
	img := make([]float32, width*height*3)
	for i := range img {
		img[i] = 0.5
	}

	got, err := Fit(img, width, height)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !closeEnough(got.A, 0, 1e-3) || !closeEnough(got.B, 0, 1e-3) || !closeEnough(got.C, 0, 1e-3) {
		t.Fatalf("Fit() on a flat field = %+v, want all zero", got)
	}
}

func TestFitRejectsTooFewSamples(t *testing.T) {
	// a 5x5 image only has one sample point at skip=10.
	width, height := 5, 5
	img := make([]float32, width*height*3)
	if _, err := Fit(img, width, height); err == nil {
		t.Fatalf("expected an error with too few sample points")
	}
}

func TestApplyDividesByFalloff(t *testing.T) {
	width, height := 4, 4
	coeffs := Coefficients{A: 0.5}
	img := make([]float32, width*height*3)
	for i := range img {
		img[i] = 1.0
	}

	Apply(img, width, height, coeffs)

	cx, cy := float64(width)/2, float64(height)/2
	dx, dy := 0.0-cx, 0.0-cy
	r := math.Sqrt(dx*dx+dy*dy) / float64(width)
	wantFactor := coeffs.Falloff(r)

	got := float64(img[0])
	want := 1.0 / wantFactor
	if !closeEnough(got, want, 1e-5) {
		t.Errorf("corner pixel = %f, want %f", got, want)
	}
}

func TestApplyLeavesEveryPixelUnchangedForZeroCoefficients(t *testing.T) {
	width, height := 10, 10
	img := make([]float32, width*height*3)
	for i := range img {
		img[i] = 0.3
	}

	Apply(img, width, height, Coefficients{})

	for i, v := range img {
		if !closeEnough(float64(v), 0.3, 1e-6) {
			t.Fatalf("sample %d = %f, want 0.3 unchanged (falloff is identically 1)", i, v)
		}
	}
}

func TestFalloffAtZeroRadiusIsOne(t *testing.T) {
	c := Coefficients{A: -0.4, B: 0.1, C: -0.02}
	if v := c.Falloff(0); v != 1 {
		t.Errorf("Falloff(0) = %f, want 1", v)
	}
}
