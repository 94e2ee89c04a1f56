package quat

import "math"

// Euler holds ZYX Euler angles in radians.
//
// Ranges produced by ToEuler:
//
//	Yaw   in (-pi, pi]
//	Pitch in [-pi/2, pi/2]
//	Roll  in (-pi, pi]
type Euler struct {
	Yaw   float64
	Pitch float64
	Roll  float64
}

// Degrees returns e converted to degrees.
func (e Euler) Degrees() Euler {
	const k = 180 / math.Pi
	return Euler{Yaw: e.Yaw * k, Pitch: e.Pitch * k, Roll: e.Roll * k}
}

// ToEuler extracts ZYX Euler angles from the unit quaternion q.
// At pitch = ±90° the asin argument is clamped to [-1, 1].
func ToEuler(q Quat) Euler {
	w, x, y, z := q.W, q.V[0], q.V[1], q.V[2]

	sp := 2 * (w*y - z*x)
	if sp >= 1 {
		sp = 1
	} else if sp <= -1 {
		sp = -1
	}

	ysq := y * y
	return Euler{
		Yaw:   math.Atan2(w*z+x*y, 0.5-(ysq+z*z)),
		Pitch: math.Asin(sp),
		Roll:  math.Atan2(w*x+y*z, 0.5-(ysq+x*x)),
	}
}

// FromEuler builds the unit quaternion for ZYX Euler angles e.
func FromEuler(e Euler) Quat {
	sy, cy := math.Sincos(0.5 * e.Yaw)
	sp, cp := math.Sincos(0.5 * e.Pitch)
	sr, cr := math.Sincos(0.5 * e.Roll)

	return Quat{
		W: cy*cp*cr + sy*sp*sr,
		V: Vec3{
			cy*cp*sr - sy*sp*cr,
			cy*sp*cr + sy*cp*sr,
			sy*cp*cr - cy*sp*sr,
		},
	}
}

// WrapAngle maps a to (-pi, pi].
func WrapAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a > math.Pi {
		a -= 2 * math.Pi
	} else if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
