package colorxform

import (
	"math"
	"testing"

	"github.com/mdouchement/hdr/hdrcolor"

	"github.com/abworrall/rawhdr/internal/emath"
)

func closeEnough(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestNativeModeIsIdentity(t *testing.T) {
	xform := New(Native, emath.Mat3{2, 0, 0, 0, 2, 0, 0, 0, 2})
	in := hdrcolor.RGB{R: 0.1, G: 0.2, B: 0.3}
	out := xform.Apply(in)
	if out != in {
		t.Errorf("Native Apply = %+v, want unchanged %+v", out, in)
	}
}

func TestXYZModeAppliesSensorMatrix(t *testing.T) {
	sensorToXYZ := emath.Mat3{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
	xform := New(XYZ, sensorToXYZ)
	in := hdrcolor.RGB{R: 0.5, G: 0.25, B: 0.75}
	out := xform.Apply(in)
	if !closeEnough(out.R, in.R, 1e-9) || !closeEnough(out.G, in.G, 1e-9) || !closeEnough(out.B, in.B, 1e-9) {
		t.Errorf("identity sensor matrix changed color: in=%+v out=%+v", in, out)
	}
}

func TestSRGBModeComposesMatrices(t *testing.T) {
	sensorToXYZ := emath.Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}
	xform := New(SRGB, sensorToXYZ)
	in := hdrcolor.RGB{R: 0.2, G: 0.2, B: 0.2}
	out := xform.Apply(in)

	want := XYZToLinearSRGBD65.Apply(emath.Vec3{0.2, 0.2, 0.2})
	if !closeEnough(out.R, want[0], 1e-9) || !closeEnough(out.G, want[1], 1e-9) || !closeEnough(out.B, want[2], 1e-9) {
		t.Errorf("SRGB Apply = %+v, want %+v", out, want)
	}
}

func TestApplyIsLinear(t *testing.T) {
	sensorToXYZ := emath.Mat3{
		0.5, 0.1, 0.0,
		0.2, 0.8, 0.1,
		0.0, 0.1, 0.9,
	}
	xform := New(SRGB, sensorToXYZ)

	a := hdrcolor.RGB{R: 0.3, G: 0.1, B: 0.2}
	b := hdrcolor.RGB{R: 0.05, G: 0.4, B: 0.15}
	alpha, beta := 2.0, 3.0

	lhs := xform.Apply(hdrcolor.RGB{
		R: alpha*a.R + beta*b.R,
		G: alpha*a.G + beta*b.G,
		B: alpha*a.B + beta*b.B,
	})

	fa, fb := xform.Apply(a), xform.Apply(b)
	rhs := hdrcolor.RGB{
		R: alpha*fa.R + beta*fb.R,
		G: alpha*fa.G + beta*fb.G,
		B: alpha*fa.B + beta*fb.B,
	}

	if !closeEnough(lhs.R, rhs.R, 1e-9) || !closeEnough(lhs.G, rhs.G, 1e-9) || !closeEnough(lhs.B, rhs.B, 1e-9) {
		t.Errorf("Apply not linear: f(ax+by)=%+v, af(x)+bf(y)=%+v", lhs, rhs)
	}
}

func TestTransformImageMatchesPerPixelApply(t *testing.T) {
	sensorToXYZ := emath.Mat3{
		0.6, 0.2, 0.1,
		0.1, 0.9, 0.0,
		0.0, 0.1, 0.8,
	}
	xform := New(SRGB, sensorToXYZ)

	img := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	want := make([]hdrcolor.RGB, 2)
	for i := 0; i < 2; i++ {
		want[i] = xform.Apply(hdrcolor.RGB{R: float64(img[i*3]), G: float64(img[i*3+1]), B: float64(img[i*3+2])})
	}

	TransformImage(xform, img)

	for i := 0; i < 2; i++ {
		if !closeEnough(float64(img[i*3]), want[i].R, 1e-5) ||
			!closeEnough(float64(img[i*3+1]), want[i].G, 1e-5) ||
			!closeEnough(float64(img[i*3+2]), want[i].B, 1e-5) {
			t.Errorf("pixel %d = (%f,%f,%f), want (%f,%f,%f)", i, img[i*3], img[i*3+1], img[i*3+2], want[i].R, want[i].G, want[i].B)
		}
	}
}

func TestTransformImageNativeModeLeavesBufferUntouched(t *testing.T) {
	xform := New(Native, emath.Mat3{})
	img := []float32{0.1, 0.2, 0.3}
	TransformImage(xform, img)
	want := []float32{0.1, 0.2, 0.3}
	for i := range want {
		if img[i] != want[i] {
			t.Errorf("Native TransformImage changed img[%d] to %f", i, img[i])
		}
	}
}

func TestModeString(t *testing.T) {
	cases := map[Mode]string{Native: "native", XYZ: "xyz", SRGB: "srgb"}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Errorf("Mode(%d).String() = %q, want %q", int(mode), got, want)
		}
	}
}
