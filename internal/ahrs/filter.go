// Package ahrs implements a quaternion complementary attitude filter with
// integrated gyro-bias estimation and hysteretic rejection of
// non-gravitational accelerations.
//
// A Filter is driven by alternating Predict (gyro) and Correct (acc + mag)
// calls at a fixed sample period. It is not safe for concurrent use; Service
// wraps one Filter for callers that share it across goroutines.
package ahrs

import (
	"errors"
	"fmt"
	"math"

	"omega-ahrs/internal/quat"
)

// StandardGravity is the magnitude of standard gravity in m/s^2.
const StandardGravity = 9.80665

// ErrNonFiniteSample is returned when a sensor sample contains NaN or ±Inf.
// The filter state is left untouched.
var ErrNonFiniteSample = errors.New("ahrs: non-finite sample")

// Reference holds the reference-frame field vectors the sensors are compared
// against. The z axis is the gravity axis; Mag only needs a direction.
type Reference struct {
	Gravity quat.Vec3
	Mag     quat.Vec3
}

// DefaultReference is gravity along +z with standard magnitude and magnetic
// north along +y.
func DefaultReference() Reference {
	return Reference{
		Gravity: quat.Vec3{0, 0, StandardGravity},
		Mag:     quat.Vec3{0, 1, 0},
	}
}

// Params configures a Filter.
type Params struct {
	// Alpha is the time (s) to converge onto the reference attitude.
	Alpha float64
	// Beta is the integral gain on the bias-correction integral.
	Beta float64
	// ThrWeak and ThrStrong are the disturbance thresholds on e, ThrWeak < ThrStrong.
	ThrWeak   float64
	ThrStrong float64
	// DT is the fixed sample period (s).
	DT float64

	// Initial attitude; the zero value selects identity.
	Initial quat.Quat
	// Reference field vectors; the zero value selects DefaultReference.
	Reference Reference
	Metric    Metric
}

// DefaultParams returns the tuning used by the reference simulation.
func DefaultParams() Params {
	return Params{
		Alpha:     1.0,
		Beta:      0.2,
		ThrWeak:   0.04,
		ThrStrong: 0.08,
		DT:        0.02,
		Initial:   quat.Identity(),
		Reference: DefaultReference(),
		Metric:    MetricResidual,
	}
}

func (p Params) validate() error {
	for name, v := range map[string]float64{
		"alpha": p.Alpha, "beta": p.Beta, "thr_weak": p.ThrWeak, "thr_strong": p.ThrStrong, "dt": p.DT,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("ahrs: %s must be finite", name)
		}
	}
	if p.Alpha <= 0 {
		return fmt.Errorf("ahrs: alpha must be > 0 (got %v)", p.Alpha)
	}
	if p.DT <= 0 {
		return fmt.Errorf("ahrs: dt must be > 0 (got %v)", p.DT)
	}
	if p.Beta < 0 {
		return fmt.Errorf("ahrs: beta must be >= 0 (got %v)", p.Beta)
	}
	if p.ThrWeak >= p.ThrStrong {
		return fmt.Errorf("ahrs: thr_weak (%v) must be < thr_strong (%v)", p.ThrWeak, p.ThrStrong)
	}
	if !p.Metric.valid() {
		return fmt.Errorf("ahrs: unknown metric %v", p.Metric)
	}
	if !p.Initial.IsFinite() {
		return fmt.Errorf("ahrs: initial attitude must be finite")
	}
	if !p.Reference.Gravity.IsFinite() || p.Reference.Gravity.Norm() == 0 {
		return fmt.Errorf("ahrs: reference gravity must be finite and non-zero")
	}
	if p.Reference.Gravity[0] != 0 || p.Reference.Gravity[1] != 0 {
		return fmt.Errorf("ahrs: reference gravity must lie on the z axis")
	}
	if !p.Reference.Mag.IsFinite() || p.Reference.Mag.Norm() == 0 {
		return fmt.Errorf("ahrs: reference magnetic field must be finite and non-zero")
	}
	return nil
}

// Filter is the attitude estimator.
type Filter struct {
	q quat.Quat // attitude estimate, always unit norm

	gyrCorrect quat.Vec3 // correction rate consumed by the next Predict
	gyrInteg   quat.Vec3 // running integral of the correction rate

	coefGyrC  float64 // 2/alpha
	coefInteg float64 // beta
	thrWeak   float64
	thrStrong float64
	dt        float64

	ref    Reference
	g      float64 // ‖ref.Gravity‖
	metric Metric

	state DisturbanceState
	e     float64 // last disturbance error
}

// New validates p and returns a Filter at p.Initial.
func New(p Params) (*Filter, error) {
	if p.Initial == (quat.Quat{}) {
		p.Initial = quat.Identity()
	}
	if p.Reference == (Reference{}) {
		p.Reference = DefaultReference()
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Filter{
		q:         p.Initial.Normalize(),
		coefGyrC:  2 / p.Alpha,
		coefInteg: p.Beta,
		thrWeak:   p.ThrWeak,
		thrStrong: p.ThrStrong,
		dt:        p.DT,
		ref:       p.Reference,
		g:         p.Reference.Gravity.Norm(),
		metric:    p.Metric,
	}, nil
}

// Predict integrates one gyro sample (rad/s, body frame) together with the
// current correction rate.
func (f *Filter) Predict(gyro quat.Vec3) error {
	if !gyro.IsFinite() {
		return fmt.Errorf("%w: gyro=%v", ErrNonFiniteSample, gyro)
	}
	omega := gyro.Add(f.gyrCorrect)
	f.q = quat.IntegrateOmega(f.q, omega, f.dt).Normalize()
	return nil
}

// Correct consumes one accelerometer (m/s^2) and magnetometer (any unit)
// sample pair, updates the disturbance state and recomputes the correction
// rate for the next Predict.
func (f *Filter) Correct(acc, mag quat.Vec3) error {
	if !acc.IsFinite() || !mag.IsFinite() {
		return fmt.Errorf("%w: acc=%v mag=%v", ErrNonFiniteSample, acc, mag)
	}

	predicted := f.predictedGravity()
	f.e = f.metric.eval(acc, predicted, f.g)

	d := classify(f.state, f.e, f.thrWeak, f.thrStrong)
	f.state = d.state
	if d.suppress {
		acc = predicted
	}
	coef := f.coefGyrC * d.gain

	qgm := ReferenceAttitude(f.ref, acc, mag)

	// Vector part of conj(q)*qgm: the body-frame error rotation.
	term := qgm.V.Scale(f.q.W).Sub(f.q.V.Scale(qgm.W)).Add(qgm.V.Cross(f.q.V))
	f.gyrCorrect = term.Scale(coef)
	if f.q.Dot(qgm) < 0 {
		f.gyrCorrect = f.gyrCorrect.Neg()
	}

	f.gyrInteg = f.gyrCorrect.ScaleAdd(f.dt, f.gyrInteg)
	f.gyrCorrect = f.gyrInteg.ScaleAdd(f.coefInteg, f.gyrCorrect)
	return nil
}

// ReferenceAttitude computes the tilt-compensated compass attitude from a
// body-frame accelerometer and magnetometer pair: first align acc with the
// reference gravity, then rotate about the gravity axis to align the
// horizontal part of mag with the reference field.
func ReferenceAttitude(ref Reference, acc, mag quat.Vec3) quat.Quat {
	qg := quat.RotateAtoB(acc, ref.Gravity)
	magRef := quat.VectorRotation(qg, mag).Hadamard(quat.Vec3{1, 1, 0})
	qe := quat.RotateAtoB(magRef, ref.Mag.Hadamard(quat.Vec3{1, 1, 0}))
	return qe.Mul(qg)
}

// Attitude returns the unit quaternion estimate (body -> reference).
func (f *Filter) Attitude() quat.Quat { return f.q }

// Euler returns the estimate as ZYX Euler angles.
func (f *Filter) Euler() quat.Euler { return quat.ToEuler(f.q) }

// BiasIntegral returns the running integral of the correction rate.
// The gyro bias estimate in the measurement sign convention is
// -IntegralGain() * BiasIntegral().
func (f *Filter) BiasIntegral() quat.Vec3 { return f.gyrInteg }

// IntegralGain returns beta.
func (f *Filter) IntegralGain() float64 { return f.coefInteg }

// Correction returns the correction rate the next Predict will add.
func (f *Filter) Correction() quat.Vec3 { return f.gyrCorrect }

// State returns the disturbance state from the last Correct.
func (f *Filter) State() DisturbanceState { return f.state }

// ErrorMetric returns the disturbance error e from the last Correct.
func (f *Filter) ErrorMetric() float64 { return f.e }

// DT returns the sample period.
func (f *Filter) DT() float64 { return f.dt }

// Reference returns the reference field vectors.
func (f *Filter) Reference() Reference { return f.ref }

func (f *Filter) predictedGravity() quat.Vec3 {
	return quat.FrameRotation(f.q, f.ref.Gravity)
}
