// Package quat provides the 3-vector and unit-quaternion primitives used by
// the attitude filter and its simulation harness.
//
// Conventions:
//   - Quat{W, V} has scalar part W and vector part V.
//   - An orientation quaternion q maps body-frame vectors into the reference
//     frame via VectorRotation, and reference-frame vectors into the body frame
//     via FrameRotation.
//   - Euler angles follow the aerospace ZYX (yaw, pitch, roll) convention.
package quat

import "math"

// Vec3 is an ordered (x, y, z) triple.
type Vec3 [3]float64

func (a Vec3) Add(b Vec3) Vec3 {
	return Vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func (a Vec3) Sub(b Vec3) Vec3 {
	return Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

// Scale returns k*a.
func (a Vec3) Scale(k float64) Vec3 {
	return Vec3{k * a[0], k * a[1], k * a[2]}
}

// ScaleAdd returns k*a + b.
func (a Vec3) ScaleAdd(k float64, b Vec3) Vec3 {
	return Vec3{k*a[0] + b[0], k*a[1] + b[1], k*a[2] + b[2]}
}

// Hadamard returns the elementwise product.
func (a Vec3) Hadamard(b Vec3) Vec3 {
	return Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

func (a Vec3) Dot(b Vec3) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// Norm returns the Euclidean length.
func (a Vec3) Norm() float64 {
	return math.Sqrt(a.Dot(a))
}

func (a Vec3) Neg() Vec3 {
	return Vec3{-a[0], -a[1], -a[2]}
}

// Normalize returns a unit vector along a, or the zero vector when a has no
// length.
func (a Vec3) Normalize() Vec3 {
	n := a.Norm()
	if n == 0 {
		return Vec3{}
	}
	return a.Scale(1 / n)
}

// IsFinite reports whether every component is neither NaN nor infinite.
func (a Vec3) IsFinite() bool {
	for _, v := range a {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
