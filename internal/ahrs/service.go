package ahrs

import (
	"fmt"
	"math"
	"sync"
	"time"

	"omega-ahrs/internal/quat"
)

// Sample is one synchronous gyro + accelerometer + magnetometer reading in
// the body frame.
type Sample struct {
	Gyro quat.Vec3 // rad/s
	Acc  quat.Vec3 // m/s^2
	Mag  quat.Vec3 // any unit
}

// Snapshot is a copy of the filter outputs after the most recent update.
type Snapshot struct {
	Valid bool
	Step  uint64

	Attitude   quat.Quat
	Euler      quat.Euler // radians
	HeadingDeg float64    // clockwise from the reference magnetic field, [0, 360)

	// Rate is the last gyro sample with the bias estimate removed (rad/s).
	Rate quat.Vec3
	// GLoad is the last accelerometer magnitude in units of reference gravity.
	GLoad float64

	BiasIntegral quat.Vec3
	IntegralGain float64
	Correction   quat.Vec3

	State       DisturbanceState
	ErrorMetric float64

	LastError string
	UpdatedAt time.Time
}

// BiasEstimate returns the gyro bias estimate in the measurement sign
// convention (measured = true + bias).
func (s Snapshot) BiasEstimate() quat.Vec3 {
	return s.BiasIntegral.Scale(-s.IntegralGain)
}

// Service owns one Filter and serialises access to it so a single sensor
// stream can be processed on one goroutine while others read snapshots.
type Service struct {
	mu     sync.RWMutex
	filter *Filter
	snap   Snapshot

	now func() time.Time
}

// NewService builds the filter from p. The initial snapshot is valid and
// reflects p.Initial.
func NewService(p Params) (*Service, error) {
	f, err := New(p)
	if err != nil {
		return nil, err
	}
	s := &Service{
		filter: f,
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.snap = s.capture()
	return s, nil
}

// Update runs Predict then Correct for one sample. On error the filter is
// left as it was before the failing step and the snapshot records the error.
func (s *Service) Update(sample Sample) (Snapshot, error) {
	if s == nil {
		return Snapshot{}, fmt.Errorf("ahrs: service is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate both halves up front so a bad acc/mag does not leave a
	// half-applied step behind.
	if !sample.Acc.IsFinite() || !sample.Mag.IsFinite() {
		return s.fail(fmt.Errorf("%w: acc=%v mag=%v", ErrNonFiniteSample, sample.Acc, sample.Mag))
	}
	if err := s.filter.Predict(sample.Gyro); err != nil {
		return s.fail(err)
	}
	if err := s.filter.Correct(sample.Acc, sample.Mag); err != nil {
		return s.fail(err)
	}

	step := s.snap.Step + 1
	s.snap = s.capture()
	s.snap.Step = step
	s.snap.Rate = sample.Gyro.Sub(s.snap.BiasEstimate())
	s.snap.GLoad = sample.Acc.Norm() / s.filter.g
	return s.snap, nil
}

// Snapshot returns the most recent outputs.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// DT returns the filter sample period.
func (s *Service) DT() float64 {
	return s.filter.DT()
}

// Reference returns the reference field vectors the filter compares against.
func (s *Service) Reference() Reference {
	return s.filter.Reference()
}

func (s *Service) fail(err error) (Snapshot, error) {
	s.snap.LastError = err.Error()
	s.snap.UpdatedAt = s.now()
	return s.snap, err
}

func (s *Service) capture() Snapshot {
	f := s.filter
	e := f.Euler()
	return Snapshot{
		Valid:        true,
		Attitude:     f.Attitude(),
		Euler:        e,
		HeadingDeg:   f.Reference().HeadingDeg(e.Yaw),
		BiasIntegral: f.BiasIntegral(),
		IntegralGain: f.IntegralGain(),
		Correction:   f.Correction(),
		State:        f.State(),
		ErrorMetric:  f.ErrorMetric(),
		UpdatedAt:    s.now(),
	}
}

// HeadingDeg converts yaw (counter-clockwise about +z from +x) into a compass
// heading in [0, 360) measured clockwise from the horizontal direction of Mag.
func (r Reference) HeadingDeg(yaw float64) float64 {
	north := math.Atan2(r.Mag[1], r.Mag[0])
	h := (north - yaw) * 180 / math.Pi
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}
