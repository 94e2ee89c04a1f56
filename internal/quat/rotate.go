package quat

import "math"

// antiparallelTolerance bounds 1+cos(angle) below which two directions are
// treated as exactly opposite.
const antiparallelTolerance = 1e-12

// FrameRotation expresses the reference-frame vector v in the body frame
// described by q: conj(q) * (0, v) * q.
func FrameRotation(q Quat, v Vec3) Vec3 {
	return q.Conj().Mul(Pure(v)).Mul(q).V
}

// VectorRotation is the inverse of FrameRotation: q * (0, v) * conj(q).
// It maps a body-frame vector into the reference frame.
func VectorRotation(q Quat, v Vec3) Vec3 {
	return q.Mul(Pure(v)).Mul(q.Conj()).V
}

// FromAxisAngle returns the rotation by angle (rad) about axis. A zero axis
// yields Identity.
func FromAxisAngle(axis Vec3, angle float64) Quat {
	u := axis.Normalize()
	if u == (Vec3{}) {
		return Identity()
	}
	s, c := math.Sincos(0.5 * angle)
	return Quat{W: c, V: u.Scale(s)}
}

// RotateAtoB returns the shortest-arc unit quaternion q such that
// VectorRotation(q, a) points along b.
//
// Parallel inputs give Identity. Antiparallel inputs give a half turn about an
// arbitrary axis orthogonal to a. Zero-length inputs give Identity.
func RotateAtoB(a, b Vec3) Quat {
	ua := a.Normalize()
	ub := b.Normalize()
	if ua == (Vec3{}) || ub == (Vec3{}) {
		return Identity()
	}

	d := ua.Dot(ub)
	if d >= 1 {
		return Identity()
	}
	if 1+d < antiparallelTolerance {
		return Pure(orthogonal(ua))
	}
	// (1+cos θ, sin θ·n) is proportional to (cos θ/2, sin θ/2·n).
	return Quat{W: 1 + d, V: ua.Cross(ub)}.Normalize()
}

// orthogonal returns a unit vector orthogonal to the unit vector u.
func orthogonal(u Vec3) Vec3 {
	if math.Abs(u[0]) < 0.9 {
		return u.Cross(Vec3{1, 0, 0}).Normalize()
	}
	return u.Cross(Vec3{0, 1, 0}).Normalize()
}
