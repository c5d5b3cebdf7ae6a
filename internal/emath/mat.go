// Package emath holds the small linear-algebra types shared by the
// color-transform, AHD and vignetting stages. Adapted from the
// teacher's pkg/emath/affine.go, trimmed to the 3x3/3-vector
// operations the core pipeline actually needs (the alignment-specific
// Aff3 affine type is dropped along with alignment itself).
package emath

import (
	"fmt"

	"golang.org/x/image/math/f64"
)

// Vec3 is a 3-element float64 vector, used for colors (RGB, XYZ, Lab).
type Vec3 f64.Vec3

// Mat3 is a row-major 3x3 float64 matrix.
type Mat3 f64.Mat3

func (a Mat3) Mult(b Mat3) Mat3 {
	return Mat3{
		a[3*0+0]*b[3*0+0] + a[3*0+1]*b[3*1+0] + a[3*0+2]*b[3*2+0],
		a[3*0+0]*b[3*0+1] + a[3*0+1]*b[3*1+1] + a[3*0+2]*b[3*2+1],
		a[3*0+0]*b[3*0+2] + a[3*0+1]*b[3*1+2] + a[3*0+2]*b[3*2+2],

		a[3*1+0]*b[3*0+0] + a[3*1+1]*b[3*1+0] + a[3*1+2]*b[3*2+0],
		a[3*1+0]*b[3*0+1] + a[3*1+1]*b[3*1+1] + a[3*1+2]*b[3*2+1],
		a[3*1+0]*b[3*0+2] + a[3*1+1]*b[3*1+2] + a[3*1+2]*b[3*2+2],

		a[3*2+0]*b[3*0+0] + a[3*2+1]*b[3*1+0] + a[3*2+2]*b[3*2+0],
		a[3*2+0]*b[3*0+1] + a[3*2+1]*b[3*1+1] + a[3*2+2]*b[3*2+1],
		a[3*2+0]*b[3*0+2] + a[3*2+1]*b[3*1+2] + a[3*2+2]*b[3*2+2],
	}
}

func (m Mat3) Apply(v Vec3) Vec3 {
	return Vec3{
		m[3*0+0]*v[0] + m[3*0+1]*v[1] + m[3*0+2]*v[2],
		m[3*1+0]*v[0] + m[3*1+1]*v[1] + m[3*1+2]*v[2],
		m[3*2+0]*v[0] + m[3*2+1]*v[1] + m[3*2+2]*v[2],
	}
}

// DivRows divides each row of m by the corresponding element of white,
// used to build a sensor->XYZ matrix normalized by the D65 reference
// white before it feeds the CIELab conversion.
func (m Mat3) DivRows(white Vec3) Mat3 {
	return Mat3{
		m[0] / white[0], m[1] / white[0], m[2] / white[0],
		m[3] / white[1], m[4] / white[1], m[5] / white[1],
		m[6] / white[2], m[7] / white[2], m[8] / white[2],
	}
}

// MaxEntry returns the largest element of m.
func (m Mat3) MaxEntry() float64 {
	max := m[0]
	for _, v := range m {
		if v > max {
			max = v
		}
	}
	return max
}

func (m Mat3) String() string {
	return fmt.Sprintf("[%10f, %10f, %10f]\n[%10f, %10f, %10f]\n[%10f, %10f, %10f]\n",
		m[0], m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8])
}

func (v Vec3) String() string {
	return fmt.Sprintf("[%12.10f, %12.10f, %12.10f]", v[0], v[1], v[2])
}

func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

func (v *Vec3) FloorAt(min float64) {
	for i := range v {
		if v[i] < min {
			v[i] = min
		}
	}
}
