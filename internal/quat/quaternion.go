package quat

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Quat is a quaternion with scalar part W and vector part V.
type Quat struct {
	W float64
	V Vec3
}

// Identity is the no-rotation quaternion.
func Identity() Quat {
	return Quat{W: 1}
}

// Number converts q into a gonum quaternion.
func (q Quat) Number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.V[0], Jmag: q.V[1], Kmag: q.V[2]}
}

// FromNumber converts a gonum quaternion.
func FromNumber(n quat.Number) Quat {
	return Quat{W: n.Real, V: Vec3{n.Imag, n.Jmag, n.Kmag}}
}

// Pure returns the quaternion (0, v).
func Pure(v Vec3) Quat {
	return Quat{V: v}
}

// Mul returns the Hamilton product q*p.
func (q Quat) Mul(p Quat) Quat {
	return FromNumber(quat.Mul(q.Number(), p.Number()))
}

func (q Quat) Conj() Quat {
	return FromNumber(quat.Conj(q.Number()))
}

// Add returns q+p.
func (q Quat) Add(p Quat) Quat {
	return FromNumber(quat.Add(q.Number(), p.Number()))
}

// Scale returns k*q.
func (q Quat) Scale(k float64) Quat {
	return FromNumber(quat.Scale(k, q.Number()))
}

func (q Quat) Neg() Quat {
	return Quat{W: -q.W, V: q.V.Neg()}
}

// Dot is the 4-dimensional inner product of q and p.
func (q Quat) Dot(p Quat) float64 {
	return q.W*p.W + q.V.Dot(p.V)
}

// Norm returns ‖q‖.
func (q Quat) Norm() float64 {
	return quat.Abs(q.Number())
}

// Normalize returns q/‖q‖. A zero quaternion normalizes to Identity.
func (q Quat) Normalize() Quat {
	n := q.Norm()
	if n == 0 || math.IsNaN(n) {
		return Identity()
	}
	return q.Scale(1 / n)
}

// IsFinite reports whether every component is neither NaN nor infinite.
func (q Quat) IsFinite() bool {
	if math.IsNaN(q.W) || math.IsInf(q.W, 0) {
		return false
	}
	return q.V.IsFinite()
}

// IntegrateOmega advances q by one first-order step of length dt under body
// angular rate omega:
//
//	q' = q + dt/2 * q*(0, omega)
//
// The result is not normalized.
func IntegrateOmega(q Quat, omega Vec3, dt float64) Quat {
	h := 0.5 * dt
	return Quat{
		W: q.W - h*q.V.Dot(omega),
		V: omega.Scale(q.W).Add(q.V.Cross(omega)).ScaleAdd(h, q.V),
	}
}
