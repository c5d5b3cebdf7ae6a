package ahd

import (
	"math"
	"sync"

	"github.com/abworrall/rawhdr/internal/emath"
)

const labLUTSize = 65536

var (
	labLUTOnce sync.Once
	labLUT     [labLUTSize]float32
)

// nonlinearity is CIELab's f(t): a cube root above the knee, a linear
// ramp below it, using the standard CIE constants.
func nonlinearity(t float64) float64 {
	if t > 0.008856 {
		return math.Cbrt(t)
	}
	return 7.787*t + 4.0/29.0
}

func buildLabLUT() {
	for i := 0; i < labLUTSize; i++ {
		labLUT[i] = float32(nonlinearity(float64(i) / float64(labLUTSize-1)))
	}
}

// labF looks up the nonlinearity for v, clamped to [0,1] before
// indexing the table.
func labF(v float64) float32 {
	labLUTOnce.Do(buildLabLUT)
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	idx := int(v*float64(labLUTSize-1) + 0.5)
	return labLUT[idx]
}

// rgbToLab converts one RGB triple to CIELab. matrix is the
// sensor->XYZ matrix already divided row-wise by the D65 white, so
// matrix.Apply(rgb) yields X/Xn, Y/Yn, Z/Zn directly; scale further
// rescales those into [0,1] for the LUT.
func rgbToLab(rgb emath.Vec3, matrix emath.Mat3, scale float64) (l, a, b float32) {
	xyz := matrix.Apply(rgb)
	fx := labF(xyz[0] / scale)
	fy := labF(xyz[1] / scale)
	fz := labF(xyz[2] / scale)
	l = 116*fy - 16
	a = 500 * (fx - fy)
	b = 200 * (fy - fz)
	return
}
